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

// Package daemon wires the host's components into a running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tombee/servicehost/internal/command"
	"github.com/tombee/servicehost/internal/config"
	"github.com/tombee/servicehost/internal/endpoint"
	"github.com/tombee/servicehost/internal/handoff"
	"github.com/tombee/servicehost/internal/host"
	"github.com/tombee/servicehost/internal/journal"
	"github.com/tombee/servicehost/internal/lifecycle"
	"github.com/tombee/servicehost/internal/loader"
	"github.com/tombee/servicehost/internal/loader/static"
	"github.com/tombee/servicehost/internal/loader/wasm"
	internallog "github.com/tombee/servicehost/internal/log"
	"github.com/tombee/servicehost/internal/orchestrator"
	"github.com/tombee/servicehost/internal/tracing"

	// Built-in modules for the static backend.
	_ "github.com/tombee/servicehost/internal/modules/echo"
)

// ErrHandlerStopped is returned by Start when the command handler closes
// because a command failed under the fail-stop policy.
var ErrHandlerStopped = errors.New("command handler stopped")

// Options contains daemon options set at build time, plus collaborators
// that tests replace.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Orchestrator replaces the HTTP orchestrator client.
	Orchestrator orchestrator.Client

	// Registry replaces the default static module registry.
	Registry *static.Registry
}

// Daemon is the servicehostd process.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	tracing *tracing.Provider
	journal *journal.Journal
	reactor *handoff.Reactor
	handler *handoff.Handler[command.Command]
	manager *host.Manager
	router  *endpoint.Router
	pidFile *lifecycle.PIDFile

	server *http.Server
	ln     net.Listener

	reactorDone chan error

	mu      sync.Mutex
	started bool
}

// New builds every component. Nothing listens or runs until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (d *Daemon, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := internallog.WithComponent(opts.Logger, "daemon")

	d = &Daemon{cfg: cfg, opts: opts, logger: logger}
	defer func() {
		if err != nil {
			d.release(context.Background())
		}
	}()

	d.tracing, err = tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "servicehost",
		ServiceVersion: opts.Version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	var jw journal.Writer = journal.Discard
	if cfg.Journal.Path != "" {
		d.journal, err = journal.Open(ctx, journal.Config{Path: cfg.Journal.Path, WAL: cfg.Journal.WAL})
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		if cfg.Journal.Retention > 0 {
			pruned, perr := d.journal.Prune(ctx, time.Now().Add(-cfg.Journal.Retention))
			if perr != nil {
				logger.Warn("journal prune failed", internallog.Error(perr))
			} else if pruned > 0 {
				logger.Info("journal pruned", slog.Int64("entries", pruned))
			}
		}
		jw = d.journal
	}

	client := opts.Orchestrator
	if client == nil {
		client, err = orchestrator.NewHTTPClient(orchestrator.HTTPConfig{
			BaseURL:   cfg.Orchestrator.URL,
			Timeout:   cfg.Orchestrator.Timeout,
			UserAgent: "servicehost/" + opts.Version,
			Logger:    opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create orchestrator client: %w", err)
		}
	}

	d.manager, err = host.NewManager(host.Config{
		Namespaces:   loader.NewNamespaceFactory(newLinker(cfg.Loader.Backend, opts), cfg.NamespaceBaseName()),
		Orchestrator: client,
		Journal:      jw,
		Logger:       opts.Logger,
		StartSeq:     cfg.StartSeq,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle manager: %w", err)
	}

	policy, ok := handoff.ParseErrorPolicy(cfg.Handoff.ErrorPolicy)
	if !ok {
		return nil, fmt.Errorf("unknown error policy %q", cfg.Handoff.ErrorPolicy)
	}
	d.reactor = handoff.NewReactor(internallog.WithComponent(opts.Logger, "reactor"))
	handler, sender, err := handoff.NewHandler[command.Command](d.reactor, d.manager,
		handoff.WithName("lifecycle"),
		handoff.WithErrorPolicy(policy),
		handoff.WithLogger(internallog.WithComponent(opts.Logger, "handoff")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create command handler: %w", err)
	}
	d.handler = handler

	d.router = endpoint.NewRouter(endpoint.RouterConfig{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
		Logger:    opts.Logger,
	}, endpoint.New(sender))
	d.router.SetStatusProvider(d.manager)
	d.router.SetHealthFunc(d.health)
	if d.journal != nil {
		d.router.SetJournal(d.journal)
	}

	if cfg.PIDFile != "" {
		d.pidFile = lifecycle.NewPIDFile(cfg.PIDFile)
	}

	logger.Debug("daemon configured",
		slog.String("backend", cfg.Loader.Backend),
		slog.String("error_policy", policy.String()),
		slog.String("namespace_base", cfg.NamespaceBaseName()))
	return d, nil
}

func newLinker(backend string, opts Options) loader.Linker {
	if backend == config.BackendWasm {
		return wasm.NewLinker(wasm.WithLogger(internallog.WithComponent(opts.Logger, "wasm")))
	}
	return static.NewLinker(opts.Registry)
}

// health reports whether commands can still be accepted.
func (d *Daemon) health() error {
	select {
	case <-d.handler.Done():
		if err := d.handler.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrHandlerStopped, err)
		}
		return ErrHandlerStopped
	default:
		return nil
	}
}

// Manager returns the lifecycle manager.
func (d *Daemon) Manager() *host.Manager { return d.manager }

// Addr returns the address the endpoint listens on, or nil before Start.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Start runs the reactor and serves the endpoint. It blocks until ctx is
// cancelled, the server fails, or the command handler stops.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true

	if d.pidFile != nil {
		if err := d.pidFile.Create(processID()); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}

	ln, err := net.Listen("tcp", d.cfg.Listen.Addr)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Listen.Addr, err)
	}
	d.ln = ln
	d.server = &http.Server{
		Handler:      d.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The reactor outlives ctx so Shutdown can drain it in order.
	d.reactorDone = make(chan error, 1)
	go func() {
		d.reactorDone <- d.reactor.Run(context.WithoutCancel(ctx))
	}()
	d.mu.Unlock()

	d.logger.Info("servicehostd starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.Int64("start_seq", d.cfg.StartSeq))

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	case <-d.handler.Done():
		return d.health()
	}
}

// Shutdown stops accepting requests, stops the reactor and releases every
// resource. Hosted services are not destroyed: their lifetime belongs to
// the orchestrator.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		d.release(ctx)
		return nil
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("HTTP server shutdown error", internallog.Error(err))
		}
	}

	if n := len(d.manager.Snapshot().Services); n > 0 {
		d.logger.Warn("shutting down with hosted services", slog.Int("services", n))
	}
	d.handler.Close()
	d.reactor.Stop()
	if d.reactorDone != nil {
		if err := <-d.reactorDone; err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("reactor error", internallog.Error(err))
		}
	}

	d.release(ctx)
	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}

// release closes the resources New acquired.
func (d *Daemon) release(ctx context.Context) {
	if d.pidFile != nil {
		if err := d.pidFile.Remove(); err != nil {
			d.logger.Error("failed to remove PID file", internallog.Error(err),
				slog.String("path", d.pidFile.Path()))
		}
	}
	if d.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.tracing.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("tracing shutdown error", internallog.Error(err))
		}
		d.tracing = nil
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.logger.Error("failed to close journal", internallog.Error(err))
		}
		d.journal = nil
	}
}
