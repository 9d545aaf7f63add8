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

// Package service implements the commands that drive one hosted service
// through its lifecycle: create, bind, unbind and destroy.
package service

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/command"
	"github.com/tombee/servicehost/internal/commands/completion"
	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/endpoint"
)

// NewCommand creates the service command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Create, bind, unbind and destroy hosted services",
		Long: `Submit lifecycle commands for a hosted service.

Commands are queued on the daemon and run in order on its lifecycle
thread. A successful exit means the command was accepted; use
'servicehost journal' to see its outcome.`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
	}

	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newDestroyCommand())
	cmd.AddCommand(newBindCommand())
	cmd.AddCommand(newUnbindCommand())
	return cmd
}

func newCreateCommand() *cobra.Command {
	var req endpoint.CreateServiceRequest
	var processState int32

	cmd := &cobra.Command{
		Use:   "create TOKEN",
		Short: "Load a module in a fresh namespace and create a service",
		Example: `  servicehost service create svc-1 \
    --library-path /usr/lib/servicehost \
    --library libecho.so --symbol ServiceHostCreate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.LibraryName == "" {
				return shared.NewUsageError("--library is required", nil)
			}
			req.ProcessState = command.ProcessState(processState)
			return submit(cmd, "create", func(ctx context.Context, c apiClient) (*endpoint.AcceptedResponse, error) {
				return c.CreateService(ctx, args[0], req)
			})
		},
	}

	cmd.Flags().StringSliceVar(&req.LibraryPaths, "library-path", nil, "Library search directory (repeatable)")
	cmd.Flags().StringVar(&req.PermittedLibsDir, "permitted-dir", "", "Directory libraries must resolve inside")
	cmd.Flags().StringVar(&req.LibraryName, "library", "", "Library to load")
	cmd.Flags().StringVar(&req.BaseSymbolName, "symbol", "", "Entry point symbol")
	cmd.Flags().Int32Var(&processState, "process-state", 0, "Process state at creation")
	return cmd
}

func newDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy TOKEN",
		Short: "Destroy a hosted service and unload its module",
		Args:  cobra.ExactArgs(1),

		ValidArgsFunction: completion.CompleteServiceTokens,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, "destroy", func(ctx context.Context, c apiClient) (*endpoint.AcceptedResponse, error) {
				return c.DestroyService(ctx, args[0])
			})
		},
	}
}

func newBindCommand() *cobra.Command {
	var req endpoint.BindServiceRequest
	var action, data string
	var processState int32

	cmd := &cobra.Command{
		Use:   "bind TOKEN BIND_TOKEN",
		Short: "Bind a client to a hosted service",
		Args:  cobra.ExactArgs(2),

		ValidArgsFunction: completion.CompleteServiceTokens,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.BindToken = args[1]
			if cmd.Flags().Changed("action") {
				req.Action = &action
			}
			if cmd.Flags().Changed("data") {
				req.Data = &data
			}
			req.ProcessState = command.ProcessState(processState)
			return submit(cmd, "bind", func(ctx context.Context, c apiClient) (*endpoint.AcceptedResponse, error) {
				return c.BindService(ctx, args[0], req)
			})
		},
	}

	cmd.Flags().Int64Var(&req.IntentHash, "intent-hash", 0, "Intent identity hash")
	cmd.Flags().StringVar(&action, "action", "", "Intent action (omitted when unset)")
	cmd.Flags().StringVar(&data, "data", "", "Intent data (omitted when unset)")
	cmd.Flags().BoolVar(&req.Rebind, "rebind", false, "Deliver as a rebind")
	cmd.Flags().Int32Var(&processState, "process-state", 0, "Process state at bind")
	cmd.Flags().Int64Var(&req.BindSeq, "bind-seq", 0, "Bind sequence number")
	return cmd
}

func newUnbindCommand() *cobra.Command {
	var req endpoint.UnbindServiceRequest

	cmd := &cobra.Command{
		Use:   "unbind TOKEN BIND_TOKEN",
		Short: "Unbind a client from a hosted service",
		Args:  cobra.ExactArgs(2),

		ValidArgsFunction: completion.CompleteServiceTokens,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.BindToken = args[1]
			return submit(cmd, "unbind", func(ctx context.Context, c apiClient) (*endpoint.AcceptedResponse, error) {
				return c.UnbindService(ctx, args[0], req)
			})
		},
	}

	cmd.Flags().Int64Var(&req.IntentHash, "intent-hash", 0, "Intent identity hash")
	return cmd
}

// apiClient is the part of client.Client these commands call.
type apiClient interface {
	CreateService(ctx context.Context, token string, req endpoint.CreateServiceRequest) (*endpoint.AcceptedResponse, error)
	DestroyService(ctx context.Context, token string) (*endpoint.AcceptedResponse, error)
	BindService(ctx context.Context, token string, req endpoint.BindServiceRequest) (*endpoint.AcceptedResponse, error)
	UnbindService(ctx context.Context, token string, req endpoint.UnbindServiceRequest) (*endpoint.AcceptedResponse, error)
}

func submit(cmd *cobra.Command, name string, call func(context.Context, apiClient) (*endpoint.AcceptedResponse, error)) error {
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
	return PrintAccepted(cmd.OutOrStdout(), "service "+name, accepted)
}

// PrintAccepted reports an accepted command.
func PrintAccepted(w io.Writer, command string, accepted *endpoint.AcceptedResponse) error {
	if shared.GetJSON() {
		return shared.EmitResult(w, command, accepted)
	}
	if shared.GetQuiet() {
		return nil
	}
	fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s accepted", accepted.Command)))
	if accepted.CorrelationID != "" {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("correlation id:"), accepted.CorrelationID)
	}
	return nil
}
