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

// Package host implements the lifecycle manager that owns every hosted
// service.
//
// The Manager is a handoff.Callback for command.Command values. It must only
// be driven from the handoff's owner goroutine: the service table and the
// process state are unsynchronised. Other goroutines observe the manager
// through Snapshot, which returns an immutable copy published after every
// command.
//
// Module callbacks are trusted code. A panic raised by one is not recovered
// and terminates the host.
package host
