// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

// Correlated attaches the correlation ID of the request that produced a
// command. It behaves as the wrapped command.
type Correlated struct {
	Command
	CorrelationID string
}

// WithCorrelationID wraps cmd with id. An empty id returns cmd unchanged.
func WithCorrelationID(cmd Command, id string) Command {
	if id == "" {
		return cmd
	}
	return Correlated{Command: cmd, CorrelationID: id}
}

// Unwrap strips any Correlated wrappers and returns the innermost command
// together with the outermost correlation ID.
func Unwrap(cmd Command) (Command, string) {
	var id string
	for {
		c, ok := cmd.(Correlated)
		if !ok {
			return cmd, id
		}
		if id == "" {
			id = c.CorrelationID
		}
		cmd = c.Command
	}
}
