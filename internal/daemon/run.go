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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/servicehost/internal/config"
	"github.com/tombee/servicehost/internal/log"
)

// RunOptions configures daemon execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is the YAML config file. Empty uses the XDG default when
	// it exists.
	ConfigPath string

	// Config overrides, applied after the file and the environment.
	ListenAddr      string
	OrchestratorURL string
	Backend         string
	StartSeq        int64
	StartSeqSet     bool
	PIDFile         string
	JournalPath     string
}

func processID() int { return os.Getpid() }

// Run loads configuration, starts the daemon and blocks until SIGINT or
// SIGTERM, or until the daemon fails.
func Run(opts RunOptions) error {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := loadConfig(path, opts)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.New(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := New(ctx, cfg, Options{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create daemon", slog.Any("error", err))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	runErr := d.Start(ctx)
	if ctx.Err() != nil {
		logger.Info("shutdown signal received")
	}
	if err := d.Shutdown(context.Background()); err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	if runErr != nil {
		logger.Error("Daemon error", slog.Any("error", runErr))
		return fmt.Errorf("daemon error: %w", runErr)
	}
	return nil
}

// loadConfig reads the file and environment, then applies flag overrides
// before validating.
func loadConfig(path string, opts RunOptions) (*config.Config, error) {
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}

	if opts.ListenAddr != "" {
		cfg.Listen.Addr = opts.ListenAddr
	}
	if opts.OrchestratorURL != "" {
		cfg.Orchestrator.URL = opts.OrchestratorURL
	}
	if opts.Backend != "" {
		cfg.Loader.Backend = opts.Backend
	}
	if opts.StartSeqSet {
		cfg.StartSeq = opts.StartSeq
	}
	if opts.PIDFile != "" {
		cfg.PIDFile = opts.PIDFile
	}
	if opts.JournalPath != "" {
		cfg.Journal.Path = opts.JournalPath
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}
