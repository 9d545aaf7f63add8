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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// SpawnConfig describes a detached daemon launch.
type SpawnConfig struct {
	// Binary is the daemon executable, resolved through PATH when relative.
	Binary string

	// Args are passed to the daemon verbatim.
	Args []string

	// OutputPath receives the daemon's stdout and stderr. Appended to.
	OutputPath string

	// Env replaces the inherited environment when non-nil.
	Env []string
}

// Spawn starts a daemon in its own session so it survives the caller's
// terminal, and returns its PID. The child is released immediately; callers
// track it through the PID file and the health endpoint.
func Spawn(cfg SpawnConfig) (int, error) {
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return 0, fmt.Errorf("locate %s: %w", cfg.Binary, err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o700); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}
	out, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open daemon output: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(binary, cfg.Args...)
	cmd.Env = cfg.Env
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", binary, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release pid %d: %w", pid, err)
	}
	return pid, nil
}
