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

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/commands/completion"
	configcmd "github.com/tombee/servicehost/internal/commands/config"
	daemoncmd "github.com/tombee/servicehost/internal/commands/daemon"
	"github.com/tombee/servicehost/internal/commands/process"
	"github.com/tombee/servicehost/internal/commands/service"
	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/commands/status"
	versioncmd "github.com/tombee/servicehost/internal/commands/version"
)

// Command group IDs shown in help output.
const (
	GroupLifecycle = "lifecycle"
	GroupInspect   = "inspect"
	GroupAdmin     = "admin"
)

// SetVersion records build information for the version command.
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand builds the servicehost command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servicehost",
		Short: "Operate a native service host",
		Long: `servicehost is the operator CLI for servicehostd, the daemon that hosts
natively loaded service modules on behalf of an orchestrator.

Lifecycle commands are acknowledged once queued; the daemon executes them in
order on its lifecycle thread. Use "services" and "journal" to see what
happened.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: checkGlobalFlags,
	}

	verbose, quiet, json, host, timeout := shared.RegisterFlagPointers()
	flags := cmd.PersistentFlags()
	flags.BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	flags.BoolVar(json, "json", false, "Output in JSON format")
	flags.StringVar(host, "host", "", "Daemon address (default: $SERVICEHOST_HOST or http://127.0.0.1:7460)")
	flags.DurationVar(timeout, "timeout", shared.DefaultTimeout, "Per-request timeout")

	cmd.AddGroup(
		&cobra.Group{ID: GroupLifecycle, Title: "Lifecycle Commands:"},
		&cobra.Group{ID: GroupInspect, Title: "Inspection Commands:"},
		&cobra.Group{ID: GroupAdmin, Title: "Administration Commands:"},
	)

	addToGroup(cmd, GroupLifecycle,
		service.NewCommand(),
		process.NewTrimMemoryCommand(),
		process.NewProcessStateCommand(),
		process.NewBindApplicationCommand(),
	)
	addToGroup(cmd, GroupInspect,
		status.NewServicesCommand(),
		status.NewJournalCommand(),
		status.NewHealthCommand(),
	)
	addToGroup(cmd, GroupAdmin,
		daemoncmd.NewCommand(),
		configcmd.NewConfigCommand(),
		completion.NewCommand(),
		versioncmd.NewVersionCommand(),
	)
	cmd.SetHelpCommandGroupID(GroupAdmin)

	return cmd
}

func addToGroup(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}

func checkGlobalFlags(cmd *cobra.Command, args []string) error {
	if shared.GetVerbose() && shared.GetQuiet() {
		return shared.NewUsageError("--verbose and --quiet are mutually exclusive", nil)
	}
	if shared.GetTimeout() <= 0 {
		return shared.NewUsageError("--timeout must be positive", errors.New(shared.GetTimeout().String()))
	}
	return nil
}

// HandleExitError prints err and exits with its exit code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
