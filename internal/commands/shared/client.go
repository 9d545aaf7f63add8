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

package shared

import (
	"context"

	"github.com/tombee/servicehost/internal/client"
	"github.com/tombee/servicehost/internal/tracing"
)

// NewClient creates an endpoint client from the global flags.
func NewClient() (*client.Client, error) {
	var opts []client.Option
	if globals.host != "" {
		opts = append(opts, client.WithBaseURL(globals.host))
	}
	return client.New(opts...)
}

// CommandContext returns a context bounded by --timeout and carrying a
// fresh correlation ID, so the daemon's logs and journal can be matched to
// this invocation.
func CommandContext(parent context.Context) (context.Context, context.CancelFunc, tracing.CorrelationID) {
	if parent == nil {
		parent = context.Background()
	}
	id := tracing.NewCorrelationID()
	ctx, cancel := context.WithTimeout(tracing.ToContext(parent, id), globals.timeout)
	return ctx, cancel, id
}
