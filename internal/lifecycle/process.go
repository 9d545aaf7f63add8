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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// DaemonBinary is the executable name a hosting daemon runs under.
const DaemonBinary = "servicehostd"

var (
	// ErrProcessNotRunning is returned when no process has the given PID.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrNotDaemon is returned when a PID belongs to something other than a
	// hosting daemon, which happens when a stale PID file's number is reused.
	ErrNotDaemon = errors.New("process is not a servicehost daemon")

	// ErrStopTimeout is returned when a daemon outlives its stop deadline.
	ErrStopTimeout = errors.New("daemon did not exit before the deadline")
)

const exitPollInterval = 100 * time.Millisecond

// Alive reports whether a process with the given PID exists and can be
// signalled by the caller.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// IsDaemon reports whether pid is a live hosting daemon. The process command
// line must name DaemonBinary.
func IsDaemon(pid int) bool {
	if !Alive(pid) {
		return false
	}
	cmd, err := commandLine(pid)
	if err != nil {
		return false
	}
	return strings.Contains(cmd, DaemonBinary)
}

// CommandLine returns the space-joined argv of pid.
func CommandLine(pid int) (string, error) {
	if !Alive(pid) {
		return "", ErrProcessNotRunning
	}
	return commandLine(pid)
}

// WaitExit blocks until pid is gone or ctx ends.
func WaitExit(ctx context.Context, pid int) error {
	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()
	for Alive(pid) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// StopDaemon asks the daemon at pid to shut down with SIGTERM and waits up to
// timeout for it to exit. When force is set a daemon still running at the
// deadline is sent SIGKILL.
func StopDaemon(ctx context.Context, pid int, timeout time.Duration, force bool) error {
	if !Alive(pid) {
		return ErrProcessNotRunning
	}
	if !IsDaemon(pid) {
		return fmt.Errorf("pid %d: %w", pid, ErrNotDaemon)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	err := WaitExit(waitCtx, pid)
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !force {
		return ErrStopTimeout
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	killCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := WaitExit(killCtx, pid); err != nil {
		return fmt.Errorf("pid %d survived SIGKILL: %w", pid, err)
	}
	return nil
}
