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

// Package daemon implements the command that runs servicehostd and the
// operator commands that start and stop it in the background.
package daemon

import (
	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/commands/completion"
	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/daemon"
)

// ServeOptions holds the serve command's flag values.
type ServeOptions struct {
	ConfigPath      string
	ListenAddr      string
	OrchestratorURL string
	Backend         string
	StartSeq        int64
	PIDFile         string
	JournalPath     string
}

// NewServeCommand creates the serve command. servicehostd uses it as its
// root command.
func NewServeCommand(use string) *cobra.Command {
	var opts ServeOptions

	cmd := &cobra.Command{
		Use:   use,
		Short: "Run the native service host",
		Long: `Run the native service host.

The daemon loads hosted service modules on request from the orchestrator,
runs every lifecycle callback on a single lifecycle thread, and reports
completion back to the orchestrator.

Configuration is read from --config (default:
~/.config/servicehost/config.yaml when present), then SERVICEHOST_*
environment variables, then the flags below.`,
		Example: `  # Start against a local orchestrator
  servicehostd --orchestrator-url http://127.0.0.1:7700

  # Serve WebAssembly modules with a journal
  servicehostd --backend wasm --journal ./servicehost.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon.Run(runOptions(cmd, opts))
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "Endpoint listen address (host:port)")
	cmd.Flags().StringVar(&opts.OrchestratorURL, "orchestrator-url", "", "Orchestrator base URL")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "Module loader backend (static, wasm)")
	cmd.Flags().Int64Var(&opts.StartSeq, "start-seq", 0, "Process start sequence number")
	cmd.Flags().StringVar(&opts.PIDFile, "pid-file", "", "PID file path")
	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "Command journal database path")
	_ = cmd.RegisterFlagCompletionFunc("backend", completion.CompleteBackends)

	return cmd
}

func runOptions(cmd *cobra.Command, opts ServeOptions) daemon.RunOptions {
	v, c, b := shared.GetVersion()
	return daemon.RunOptions{
		Version:         v,
		Commit:          c,
		BuildDate:       b,
		ConfigPath:      opts.ConfigPath,
		ListenAddr:      opts.ListenAddr,
		OrchestratorURL: opts.OrchestratorURL,
		Backend:         opts.Backend,
		StartSeq:        opts.StartSeq,
		StartSeqSet:     cmd.Flags().Changed("start-seq"),
		PIDFile:         opts.PIDFile,
		JournalPath:     opts.JournalPath,
	}
}
