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

import "time"

// DefaultTimeout bounds each endpoint request unless --timeout is given.
const DefaultTimeout = 10 * time.Second

// globalFlags holds the root command's persistent flags. The root command
// binds them through RegisterFlagPointers; subcommands read them through the
// getters below.
type globalFlags struct {
	verbose bool
	quiet   bool
	json    bool
	host    string
	timeout time.Duration
}

type buildInfo struct {
	version, commit, date string
}

var (
	globals = globalFlags{timeout: DefaultTimeout}
	build   = buildInfo{version: "dev", commit: "unknown", date: "unknown"}
)

// RegisterFlagPointers returns the storage for the persistent flags.
func RegisterFlagPointers() (verbose, quiet, json *bool, host *string, timeout *time.Duration) {
	return &globals.verbose, &globals.quiet, &globals.json, &globals.host, &globals.timeout
}

// SetVersion records build information injected through ldflags.
func SetVersion(v, c, b string) {
	build = buildInfo{version: v, commit: c, date: b}
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}

func GetVerbose() bool { return globals.verbose }

func GetQuiet() bool { return globals.quiet }

func GetJSON() bool { return globals.json }

// GetHost returns --host, which may be empty.
func GetHost() string { return globals.host }

func GetTimeout() time.Duration { return globals.timeout }

// SetHostForTest points commands at a test server and returns a restore
// func.
func SetHostForTest(host string) func() {
	prev := globals.host
	globals.host = host
	return func() { globals.host = prev }
}

// SetJSONForTest toggles JSON output and returns a restore func.
func SetJSONForTest(enabled bool) func() {
	prev := globals.json
	globals.json = enabled
	return func() { globals.json = prev }
}
