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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/client"
	"github.com/tombee/servicehost/internal/commands/completion"
	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/config"
	"github.com/tombee/servicehost/internal/lifecycle"
)

// State file names under config.StateDir.
const (
	pidFileName  = "servicehostd.pid"
	outputName   = "servicehostd.out"
	eventLogName = "events.log"
)

// StartOptions holds the start command's flag values.
type StartOptions struct {
	Binary          string
	ConfigPath      string
	ListenAddr      string
	OrchestratorURL string
	Backend         string
	PIDFile         string
	Wait            time.Duration
}

// StopOptions holds the stop command's flag values.
type StopOptions struct {
	PIDFile string
	Grace   time.Duration
	Force   bool
}

// StatusInfo is the daemon status report.
type StatusInfo struct {
	PIDFile string `json:"pid_file"`
	PID     int    `json:"pid,omitempty"`
	Running bool   `json:"running"`
	Command string `json:"command,omitempty"`
	Health  string `json:"health,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewCommand creates the daemon command group, which starts, stops and
// inspects a background servicehostd.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start, stop and inspect a background servicehostd",
		Long: `Start, stop and inspect a background servicehostd.

State lives under $XDG_STATE_HOME/servicehost (default
~/.local/state/servicehost): the PID file, the daemon's output and a
JSON-lines log of control events.`,
	}
	cmd.AddCommand(newStartCommand(), newStopCommand(), newStatusCommand())
	return cmd
}

func newStartCommand() *cobra.Command {
	var opts StartOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start servicehostd in the background",
		Example: `  servicehost daemon start --orchestrator-url http://127.0.0.1:7700
  servicehost daemon start --listen 127.0.0.1:7461 --backend wasm`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Binary, "binary", lifecycle.DaemonBinary, "Daemon executable")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to config file passed to the daemon")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "Endpoint listen address (host:port)")
	cmd.Flags().StringVar(&opts.OrchestratorURL, "orchestrator-url", "", "Orchestrator base URL")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "Module loader backend (static, wasm)")
	cmd.Flags().StringVar(&opts.PIDFile, "pid-file", "", "PID file path (default: state directory)")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 30*time.Second, "How long to wait for the daemon to become healthy")
	_ = cmd.RegisterFlagCompletionFunc("backend", completion.CompleteBackends)

	return cmd
}

func newStopCommand() *cobra.Command {
	var opts StopOptions

	cmd := &cobra.Command{
		Use:          "stop",
		Short:        "Stop the background servicehostd",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.PIDFile, "pid-file", "", "PID file path (default: state directory)")
	cmd.Flags().DurationVar(&opts.Grace, "grace", 15*time.Second, "How long to wait after SIGTERM")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Send SIGKILL when the grace period runs out")

	return cmd
}

func newStatusCommand() *cobra.Command {
	var pidPath string

	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Show whether servicehostd is running",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, pidPath)
		},
	}

	cmd.Flags().StringVar(&pidPath, "pid-file", "", "PID file path (default: state directory)")
	return cmd
}

// statePath resolves a file in the state directory unless override is set.
func statePath(override, name string) (string, error) {
	if override != "" {
		return override, nil
	}
	dir, err := config.StateDir()
	if err != nil {
		return "", fmt.Errorf("resolve state directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

func eventLog() (*lifecycle.EventLog, error) {
	path, err := statePath("", eventLogName)
	if err != nil {
		return nil, err
	}
	return lifecycle.NewEventLog(path), nil
}

// record writes a control event. Failures are logged, never returned, so a
// broken event log cannot block start or stop.
func record(ctx context.Context, events *lifecycle.EventLog, event string, pid int, err error, attrs ...slog.Attr) {
	if recErr := events.Record(ctx, event, pid, err, attrs...); recErr != nil {
		slog.Warn("failed to record daemon event", slog.String("event", event), slog.Any("error", recErr))
	}
}

// startArgs builds the daemon's argument list from the start flags.
func startArgs(opts StartOptions, pidPath string) []string {
	args := []string{"--pid-file", pidPath}
	add := func(flag, value string) {
		if value != "" {
			args = append(args, flag, value)
		}
	}
	add("--config", opts.ConfigPath)
	add("--listen", opts.ListenAddr)
	add("--orchestrator-url", opts.OrchestratorURL)
	add("--backend", opts.Backend)
	return args
}

// daemonClient targets --listen when given and the global --host otherwise.
func daemonClient(listen string) (*client.Client, error) {
	if listen != "" {
		return client.New(client.WithBaseURL("http://" + listen))
	}
	return shared.NewClient()
}

// readPID returns the PID recorded at path, or 0 when no file exists.
func readPID(path string) (int, error) {
	pid, err := lifecycle.NewPIDFile(path).Read()
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return pid, err
}

func runStart(cmd *cobra.Command, opts StartOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pidPath, err := statePath(opts.PIDFile, pidFileName)
	if err != nil {
		return err
	}
	outPath, err := statePath("", outputName)
	if err != nil {
		return err
	}
	events, err := eventLog()
	if err != nil {
		return err
	}

	pid, err := readPID(pidPath)
	if err != nil {
		return shared.NewUsageError("unreadable PID file "+pidPath, err)
	}
	if pid != 0 {
		if lifecycle.IsDaemon(pid) {
			return &shared.ExitError{Code: shared.ExitFailed, Message: fmt.Sprintf("servicehostd is already running (pid %d)", pid)}
		}
		record(ctx, events, lifecycle.EventStalePID, pid, nil, slog.String("pid_file", pidPath))
	}

	c, err := daemonClient(opts.ListenAddr)
	if err != nil {
		return shared.NewUsageError("invalid daemon address", err)
	}

	args := startArgs(opts, pidPath)
	record(ctx, events, lifecycle.EventStart, 0, nil,
		slog.String("binary", opts.Binary),
		slog.String("args", strings.Join(args, " ")))

	started := time.Now()
	pid, err = lifecycle.Spawn(lifecycle.SpawnConfig{
		Binary:     opts.Binary,
		Args:       args,
		OutputPath: outPath,
		Env:        os.Environ(),
	})
	if err != nil {
		record(ctx, events, lifecycle.EventStartFailure, 0, err)
		return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to start servicehostd", Cause: err}
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
	defer cancel()
	attempts := 0
	checker := lifecycle.NewHealthChecker(c.BaseURL() + "/v1/health")
	err = checker.WaitUntilHealthy(waitCtx, func(_ *lifecycle.HealthCheckResult, attempt int) {
		attempts = attempt
	})
	if err != nil {
		record(ctx, events, lifecycle.EventStartFailure, pid, err, slog.Int("attempts", attempts))
		return &shared.ExitError{
			Code:    shared.ExitUnavailable,
			Message: fmt.Sprintf("servicehostd (pid %d) did not become healthy; see %s", pid, outPath),
			Cause:   err,
		}
	}
	record(ctx, events, lifecycle.EventStartSuccess, pid, nil,
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(started)))

	if shared.GetJSON() {
		return shared.EmitResult(cmd.OutOrStdout(), "daemon start", map[string]any{
			"pid":      pid,
			"endpoint": c.BaseURL(),
			"pid_file": pidPath,
		})
	}
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("servicehostd started (pid %d) at %s", pid, c.BaseURL())))
	}
	return nil
}

func runStop(cmd *cobra.Command, opts StopOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pidPath, err := statePath(opts.PIDFile, pidFileName)
	if err != nil {
		return err
	}
	events, err := eventLog()
	if err != nil {
		return err
	}

	pid, err := readPID(pidPath)
	if err != nil {
		return shared.NewUsageError("unreadable PID file "+pidPath, err)
	}
	if pid == 0 {
		return &shared.ExitError{Code: shared.ExitFailed, Message: "servicehostd is not running (no PID file at " + pidPath + ")"}
	}

	record(ctx, events, lifecycle.EventStop, pid, nil, slog.Bool("force", opts.Force))
	started := time.Now()
	err = lifecycle.StopDaemon(ctx, pid, opts.Grace, opts.Force)
	switch {
	case err == nil:
		record(ctx, events, lifecycle.EventStopSuccess, pid, nil, slog.Duration("duration", time.Since(started)))
	case errors.Is(err, lifecycle.ErrProcessNotRunning), errors.Is(err, lifecycle.ErrNotDaemon):
		record(ctx, events, lifecycle.EventStalePID, pid, nil, slog.String("reason", err.Error()))
		if rmErr := os.Remove(pidPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to remove stale PID file", slog.String("path", pidPath), slog.Any("error", rmErr))
		}
		return &shared.ExitError{Code: shared.ExitFailed, Message: fmt.Sprintf("servicehostd is not running (stale PID %d removed)", pid)}
	default:
		record(ctx, events, lifecycle.EventStopFailure, pid, err)
		return &shared.ExitError{Code: shared.ExitFailed, Message: fmt.Sprintf("failed to stop servicehostd (pid %d)", pid), Cause: err}
	}

	if shared.GetJSON() {
		return shared.EmitResult(cmd.OutOrStdout(), "daemon stop", map[string]any{"pid": pid})
	}
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("servicehostd stopped (pid %d)", pid)))
	}
	return nil
}

func runStatus(cmd *cobra.Command, pidOverride string) error {
	pidPath, err := statePath(pidOverride, pidFileName)
	if err != nil {
		return err
	}
	info := StatusInfo{PIDFile: pidPath}

	pid, err := readPID(pidPath)
	if err != nil {
		info.Error = err.Error()
	}
	if pid != 0 {
		info.PID = pid
		info.Running = lifecycle.IsDaemon(pid)
		if info.Running {
			info.Command, _ = lifecycle.CommandLine(pid)
		}
	}

	if info.Running {
		c, err := shared.NewClient()
		if err != nil {
			return shared.NewUsageError("invalid --host", err)
		}
		ctx, cancel, _ := shared.CommandContext(cmd.Context())
		health, err := c.Health(ctx)
		cancel()
		if health != nil {
			info.Health = health.Status
			info.Uptime = health.Uptime
		}
		if err != nil && info.Error == "" {
			info.Error = err.Error()
		}
	}

	if shared.GetJSON() {
		if err := shared.EmitResult(cmd.OutOrStdout(), "daemon status", info); err != nil {
			return err
		}
	} else {
		printStatus(cmd.OutOrStdout(), info)
	}
	if !info.Running {
		return &shared.ExitError{Code: shared.ExitFailed, Message: "servicehostd is not running"}
	}
	return nil
}

func printStatus(w io.Writer, info StatusInfo) {
	state := shared.RenderError("stopped")
	if info.Running {
		state = shared.RenderOK("running")
	}
	fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Daemon:"), state)
	fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("PID file:"), info.PIDFile)
	if info.PID != 0 {
		fmt.Fprintf(w, "%s %d\n", shared.RenderLabel("PID:"), info.PID)
	}
	if info.Command != "" {
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Command:"), info.Command)
	}
	if info.Health != "" {
		health := shared.RenderWarn(info.Health)
		if info.Health == "ok" {
			health = shared.RenderOK(info.Health)
		}
		fmt.Fprintf(w, "%s %s (up %s)\n", shared.RenderLabel("Health:"), health, info.Uptime)
	}
	if info.Error != "" {
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Error:"), shared.RenderWarn(info.Error))
	}
}
