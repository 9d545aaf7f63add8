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

/*
Package cli assembles the servicehost operator CLI. NewRootCommand returns
the full command tree, grouped for help output:

	Lifecycle      service, trim-memory, process-state, bind-application
	Inspection     services, journal, health
	Administration daemon, config, completion, version, help

Every command talks to servicehostd over its HTTP endpoint through
internal/client, except daemon start|stop|status, which manage the process
itself, and config, which reads the local file.

Persistent flags are --verbose/-v, --quiet/-q (mutually exclusive), --json,
--host (default $SERVICEHOST_HOST, then http://127.0.0.1:7460) and
--timeout. Errors carry exit codes from internal/commands/shared; main
passes them to HandleExitError.
*/
package cli
