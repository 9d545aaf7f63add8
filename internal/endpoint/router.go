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

package endpoint

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/servicehost/internal/host"
	"github.com/tombee/servicehost/internal/journal"
	internallog "github.com/tombee/servicehost/internal/log"
	"github.com/tombee/servicehost/internal/tracing"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// StatusProvider exposes the lifecycle manager's published state.
type StatusProvider interface {
	Snapshot() *host.Snapshot
}

// HealthFunc reports whether the host can still accept commands.
type HealthFunc func() error

// JournalReader reads recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, q journal.Query) ([]journal.Entry, error)
}

// Router serves the command routes plus read-only status routes.
type Router struct {
	mux     *http.ServeMux
	config  RouterConfig
	logger  *slog.Logger
	started time.Time

	status  StatusProvider
	health  HealthFunc
	journal JournalReader

	handler http.Handler
}

// NewRouter creates a router that forwards commands to endpoint.
func NewRouter(cfg RouterConfig, endpoint *Endpoint) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Router{
		mux:     http.NewServeMux(),
		config:  cfg,
		logger:  internallog.WithComponent(cfg.Logger, "endpoint"),
		started: cfg.Now(),
	}

	endpoint.RegisterRoutes(r.mux, r.logger)
	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)
	r.mux.HandleFunc("GET /v1/services", r.handleServices)
	r.mux.HandleFunc("GET /v1/journal", r.handleJournal)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Correlation runs first so the request log carries the ID.
	r.handler = tracing.CorrelationMiddleware(internallog.HTTPMiddleware(r.logger)(r.mux))
	return r
}

// SetStatusProvider sets the source for GET /v1/services.
func (r *Router) SetStatusProvider(provider StatusProvider) {
	r.status = provider
}

// SetHealthFunc sets the check behind GET /v1/health.
func (r *Router) SetHealthFunc(fn HealthFunc) {
	r.health = fn
}

// SetJournal sets the source for GET /v1/journal.
func (r *Router) SetJournal(reader JournalReader) {
	r.journal = reader
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Services     int    `json:"services"`
	ProcessState string `json:"process_state,omitempty"`
	Uptime       string `json:"uptime"`
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: r.config.Now().Sub(r.started).Round(time.Second).String(),
	}
	if r.status != nil {
		if snap := r.status.Snapshot(); snap != nil {
			resp.Services = len(snap.Services)
			resp.ProcessState = snap.ProcessStateName
		}
	}
	status := http.StatusOK
	if r.health != nil {
		if err := r.health(); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	WriteJSON(w, status, resp)
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}

func (r *Router) handleServices(w http.ResponseWriter, req *http.Request) {
	if r.status == nil {
		WriteError(w, http.StatusServiceUnavailable, "status not available")
		return
	}
	WriteJSON(w, http.StatusOK, r.status.Snapshot())
}

func (r *Router) handleJournal(w http.ResponseWriter, req *http.Request) {
	if r.journal == nil {
		WriteError(w, http.StatusNotFound, "journal not enabled")
		return
	}
	q := journal.Query{ServiceToken: req.URL.Query().Get("service")}
	if v := req.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			WriteError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		q.Limit = limit
	}
	entries, err := r.journal.Recent(req.Context(), q)
	if err != nil {
		r.logger.ErrorContext(req.Context(), "journal query failed", internallog.Error(err))
		WriteError(w, http.StatusInternalServerError, "journal query failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
