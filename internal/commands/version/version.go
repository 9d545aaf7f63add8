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

package version

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/client"
	"github.com/tombee/servicehost/internal/commands/shared"
)

// VersionInfo is the CLI build plus, with --daemon, the daemon's build.
type VersionInfo struct {
	Version   string                  `json:"version"`
	Commit    string                  `json:"commit"`
	BuildDate string                  `json:"build_date"`
	GoVersion string                  `json:"go_version"`
	Daemon    *client.VersionResponse `json:"daemon,omitempty"`
}

// Mismatch reports whether the daemon was queried and runs a different
// version from the CLI.
func (v VersionInfo) Mismatch() bool {
	return v.Daemon != nil && v.Daemon.Version != v.Version
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	var withDaemon bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show the servicehost build. With --daemon, also ask the daemon at --host
for its build and warn when the two differ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := collect(cmd, withDaemon)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitResult(cmd.OutOrStdout(), "version", info)
			}
			printVersion(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDaemon, "daemon", false, "Also query the running daemon's version")
	return cmd
}

func collect(cmd *cobra.Command, withDaemon bool) (VersionInfo, error) {
	v, c, b := shared.GetVersion()
	info := VersionInfo{Version: v, Commit: c, BuildDate: b, GoVersion: runtime.Version()}
	if !withDaemon {
		return info, nil
	}

	api, err := shared.NewClient()
	if err != nil {
		return info, shared.NewUsageError("invalid --host", err)
	}
	ctx, cancel, _ := shared.CommandContext(cmd.Context())
	defer cancel()
	daemon, err := api.Version(ctx)
	if err != nil {
		return info, shared.NewRequestError("failed to query daemon version", err)
	}
	info.Daemon = daemon
	return info, nil
}

func printVersion(w io.Writer, info VersionInfo) {
	fmt.Fprintf(w, "servicehost %s (%s, built %s, %s)\n", info.Version, info.Commit, info.BuildDate, info.GoVersion)
	if info.Daemon == nil {
		return
	}
	fmt.Fprintf(w, "servicehostd %s (%s, built %s)\n", info.Daemon.Version, info.Daemon.Commit, info.Daemon.BuildDate)
	if info.Mismatch() {
		fmt.Fprintln(w, shared.RenderWarn("CLI and daemon versions differ"))
	}
}
