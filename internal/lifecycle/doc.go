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
Package lifecycle manages the host daemon's process-level concerns: the PID
file that marks a running daemon, readiness polling of its endpoint, and
starting or stopping a daemon from the command line.

PID files use exclusive creation and flock. A file left behind by a daemon
that died without cleaning up is not locked by anyone and is reclaimed:

	pf := lifecycle.NewPIDFile("/run/servicehost/servicehost.pid")
	if err := pf.Create(os.Getpid()); err != nil {
	    return err
	}
	defer pf.Remove()

Readiness polling retries GET /v1/health with exponential backoff:

	checker := lifecycle.NewHealthChecker("http://127.0.0.1:7460/v1/health")
	err := checker.WaitUntilHealthy(ctx, nil)

Spawn launches servicehostd in its own session and StopDaemon signals it,
refusing PIDs whose command line does not name the daemon binary. EventLog
keeps a JSON-lines history of those control actions.
*/
package lifecycle
