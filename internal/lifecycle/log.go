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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Daemon control events recorded in the event log.
const (
	EventStart        = "start"
	EventStartSuccess = "start_success"
	EventStartFailure = "start_failure"
	EventStop         = "stop"
	EventStopSuccess  = "stop_success"
	EventStopFailure  = "stop_failure"
	EventStalePID     = "stale_pid"
)

// EventLog appends daemon control events to a JSON-lines file so operators
// can see when and why a daemon was started or stopped from the CLI.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog returns an event log that appends to path. The file is opened
// per record and created on first use.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the log file location.
func (l *EventLog) Path() string { return l.path }

// Record appends one event. A non-nil err marks the event as failed.
func (l *EventLog) Record(ctx context.Context, event string, pid int, err error, attrs ...slog.Attr) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mkErr := os.MkdirAll(filepath.Dir(l.path), 0o700); mkErr != nil {
		return fmt.Errorf("create event log directory: %w", mkErr)
	}
	f, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if openErr != nil {
		return fmt.Errorf("open event log: %w", openErr)
	}
	defer f.Close()

	fields := []slog.Attr{slog.Bool("success", err == nil)}
	if pid > 0 {
		fields = append(fields, slog.Int("pid", pid))
	}
	if err != nil {
		fields = append(fields, slog.String("error", err.Error()))
	}
	fields = append(fields, attrs...)

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	slog.New(slog.NewJSONHandler(f, nil)).LogAttrs(ctx, level, event, fields...)
	return nil
}
