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

// Package process implements the process-wide commands: memory trim,
// process state updates and application bind.
package process

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/client"
	"github.com/tombee/servicehost/internal/command"
	"github.com/tombee/servicehost/internal/commands/completion"
	"github.com/tombee/servicehost/internal/commands/service"
	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/endpoint"
)

// NewTrimMemoryCommand creates the trim-memory command.
func NewTrimMemoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trim-memory LEVEL",
		Short: "Ask hosted services to release memory",
		Long: `Broadcast a memory trim request to every hosted service.

LEVEL is ui-hidden, background, or a numeric value. The daemon drops
background requests while the process is important foreground or
higher.`,
		Annotations: map[string]string{
			"group": "process",
		},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteTrimLevels,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseTrimLevel(args[0])
			if err != nil {
				return shared.NewUsageError("invalid trim level", err)
			}
			return submit(cmd, "trim-memory", func(ctx context.Context, c *client.Client) (*endpoint.AcceptedResponse, error) {
				return c.TrimMemory(ctx, int32(level))
			})
		},
	}
}

// NewProcessStateCommand creates the process-state command.
func NewProcessStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process-state STATE",
		Short: "Record the process importance level",
		Long: `Record the process importance level used to filter memory trims.

STATE is a state name such as top, important-foreground or
cached-empty, or its numeric value.`,
		Annotations: map[string]string{
			"group": "process",
		},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteProcessStates,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := parseProcessState(args[0])
			if err != nil {
				return shared.NewUsageError("invalid process state", err)
			}
			return submit(cmd, "process-state", func(ctx context.Context, c *client.Client) (*endpoint.AcceptedResponse, error) {
				return c.SetProcessState(ctx, int32(state))
			})
		},
	}
}

// NewBindApplicationCommand creates the bind-application command.
func NewBindApplicationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bind-application",
		Short: "Acknowledge application attach to the orchestrator",
		Annotations: map[string]string{
			"group": "process",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, "bind-application", func(ctx context.Context, c *client.Client) (*endpoint.AcceptedResponse, error) {
				return c.BindApplication(ctx)
			})
		},
	}
}

func parseTrimLevel(s string) (abi.TrimLevel, error) {
	if level, ok := abi.ParseTrimLevel(strings.ToLower(s)); ok {
		return level, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	// Unrecognised numbers are forwarded; the daemon rejects them.
	return abi.TrimLevel(n), nil
}

func parseProcessState(s string) (command.ProcessState, error) {
	if state, ok := command.ParseProcessState(s); ok {
		return state, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown state %q", s)
	}
	return command.ProcessState(n), nil
}

func submit(cmd *cobra.Command, name string, call func(context.Context, *client.Client) (*endpoint.AcceptedResponse, error)) error {
	c, err := shared.NewClient()
	if err != nil {
		return shared.NewUsageError("invalid --host", err)
	}

	ctx, cancel, _ := shared.CommandContext(cmd.Context())
	defer cancel()

	accepted, err := call(ctx, c)
	if err != nil {
		return shared.NewRequestError(name+" failed", err)
	}
	return service.PrintAccepted(cmd.OutOrStdout(), name, accepted)
}
