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

// Package status implements the read-only commands: services, journal and
// health.
package status

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/commands/completion"
	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/host"
	"github.com/tombee/servicehost/internal/journal"
	"github.com/tombee/servicehost/internal/lifecycle"
)

// NewServicesCommand creates the services command.
func NewServicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "services",
		Aliases: []string{"ls", "status"},
		Short:   "List hosted services",
		Annotations: map[string]string{
			"group": "status",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := shared.NewClient()
			if err != nil {
				return shared.NewUsageError("invalid --host", err)
			}
			ctx, cancel, _ := shared.CommandContext(cmd.Context())
			defer cancel()

			snap, err := c.Services(ctx)
			if err != nil {
				return shared.NewRequestError("failed to list services", err)
			}
			if shared.GetJSON() {
				return shared.EmitResult(cmd.OutOrStdout(), "services", snap)
			}
			return printServices(cmd.OutOrStdout(), snap)
		},
	}
}

func printServices(w io.Writer, snap *host.Snapshot) error {
	fmt.Fprintf(w, "%s %s  %s %d  %s %d\n",
		shared.RenderLabel("process state:"), snap.ProcessStateName,
		shared.RenderLabel("start seq:"), snap.StartSeq,
		shared.RenderLabel("commands:"), snap.Commands)

	if len(snap.Services) == 0 {
		fmt.Fprintln(w, shared.RenderLabel("no hosted services"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, shared.RenderHeader("TOKEN\tSTATE\tLIBRARY\tNAMESPACE\tBINDS\tCALLBACKS"))
	for _, svc := range snap.Services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			svc.Token, shared.RenderState(svc.State), svc.Library, svc.Namespace,
			svc.Binds, strings.Join(svc.Callbacks, ","))
	}
	return tw.Flush()
}

// NewJournalCommand creates the journal command.
func NewJournalCommand() *cobra.Command {
	var service string
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recently executed commands",
		Annotations: map[string]string{
			"group": "status",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return shared.NewUsageError("--limit must not be negative", nil)
			}
			c, err := shared.NewClient()
			if err != nil {
				return shared.NewUsageError("invalid --host", err)
			}
			ctx, cancel, _ := shared.CommandContext(cmd.Context())
			defer cancel()

			entries, err := c.Journal(ctx, service, limit)
			if err != nil {
				return shared.NewRequestError("failed to read journal", err)
			}
			if shared.GetJSON() {
				return shared.EmitResult(cmd.OutOrStdout(), "journal", entries)
			}
			return printJournal(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Only show commands for this service token")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	_ = cmd.RegisterFlagCompletionFunc("service", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return completion.CompleteServiceTokens(cmd, nil, toComplete)
	})
	return cmd
}

func printJournal(w io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, shared.RenderLabel("no journal entries"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, shared.RenderHeader("TIME\tCOMMAND\tSERVICE\tOUTCOME\tDURATION\tERROR"))
	for _, e := range entries {
		outcome := shared.Styled(shared.StatusOK, e.Outcome)
		if e.Error != "" {
			outcome = shared.Styled(shared.StatusError, e.Outcome)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			e.Time.Local().Format(time.DateTime), e.Kind, e.ServiceToken,
			outcome, e.DurationMs, e.Error)
	}
	return tw.Flush()
}

// NewHealthCommand creates the health command.
func NewHealthCommand() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the daemon is accepting commands",
		Long: `Check whether the daemon is accepting commands.

With --wait, poll until the daemon reports healthy or the wait expires.
This is useful in service units and test scripts that start servicehostd
in the background.`,
		Example: `  # Fail fast
  servicehost health

  # Wait up to 30s for a freshly started daemon
  servicehost health --wait 30s`,
		Annotations: map[string]string{
			"group": "status",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := shared.NewClient()
			if err != nil {
				return shared.NewUsageError("invalid --host", err)
			}

			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				checker := lifecycle.NewHealthChecker(c.BaseURL() + "/v1/health")
				err := checker.WaitUntilHealthy(ctx, func(result *lifecycle.HealthCheckResult, attempt int) {
					if shared.GetVerbose() && !result.Success {
						fmt.Fprintf(cmd.ErrOrStderr(), "attempt %d: not healthy (status %d)\n", attempt, result.StatusCode)
					}
				})
				if err != nil {
					return &shared.ExitError{Code: shared.ExitUnavailable, Message: "daemon not healthy", Cause: err}
				}
			}

			ctx, cancel, _ := shared.CommandContext(cmd.Context())
			defer cancel()
			health, err := c.Health(ctx)
			if shared.GetJSON() && health != nil {
				if jerr := shared.EmitJSON(cmd.OutOrStdout(), health); jerr != nil {
					return jerr
				}
			}
			if err != nil {
				return shared.NewRequestError("daemon not healthy", err)
			}
			if !shared.GetJSON() && !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("healthy (%d services, up %s)", health.Services, health.Uptime)))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll until healthy for up to this long")
	return cmd
}
