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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/servicehost/internal/command"
	"github.com/tombee/servicehost/internal/tracing"
)

// CreateServiceRequest is the body of POST /v1/services/{token}.
type CreateServiceRequest struct {
	LibraryPaths     []string             `json:"library_paths"`
	PermittedLibsDir string               `json:"permitted_libs_dir"`
	LibraryName      string               `json:"library_name"`
	BaseSymbolName   string               `json:"base_symbol_name"`
	ProcessState     command.ProcessState `json:"process_state"`
}

// BindServiceRequest is the body of POST /v1/services/{token}/bind.
type BindServiceRequest struct {
	BindToken    string               `json:"bind_token"`
	IntentHash   int64                `json:"intent_hash"`
	Action       *string              `json:"action,omitempty"`
	Data         *string              `json:"data,omitempty"`
	Rebind       bool                 `json:"rebind"`
	ProcessState command.ProcessState `json:"process_state"`
	BindSeq      int64                `json:"bind_seq"`
}

// UnbindServiceRequest is the body of POST /v1/services/{token}/unbind.
type UnbindServiceRequest struct {
	BindToken  string `json:"bind_token"`
	IntentHash int64  `json:"intent_hash"`
}

// TrimMemoryRequest is the body of POST /v1/trim-memory.
type TrimMemoryRequest struct {
	Level int32 `json:"level"`
}

// ProcessStateRequest is the body of PUT /v1/process-state.
type ProcessStateRequest struct {
	State int32 `json:"state"`
}

// AcceptedResponse is returned for every queued command.
type AcceptedResponse struct {
	Status        string `json:"status"`
	Command       string `json:"command"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// commandHandlers serves the command routes of one Endpoint.
type commandHandlers struct {
	endpoint *Endpoint
	logger   *slog.Logger
}

// RegisterRoutes registers the command routes on mux. Rejected commands are
// logged to logger, or to slog.Default() when logger is nil.
func (e *Endpoint) RegisterRoutes(mux *http.ServeMux, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &commandHandlers{endpoint: e, logger: logger}
	mux.HandleFunc("POST /v1/services/{token}", h.handleCreate)
	mux.HandleFunc("DELETE /v1/services/{token}", h.handleDestroy)
	mux.HandleFunc("POST /v1/services/{token}/bind", h.handleBind)
	mux.HandleFunc("POST /v1/services/{token}/unbind", h.handleUnbind)
	mux.HandleFunc("POST /v1/trim-memory", h.handleTrimMemory)
	mux.HandleFunc("PUT /v1/process-state", h.handleProcessState)
	mux.HandleFunc("POST /v1/bind-application", h.handleBindApplication)
}

func (h *commandHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.endpoint.CreateService(r.Context(), r.PathValue("token"), req.LibraryPaths, req.PermittedLibsDir, req.LibraryName, req.BaseSymbolName, req.ProcessState)
	h.respond(w, r, command.KindCreateService, err)
}

func (h *commandHandlers) handleDestroy(w http.ResponseWriter, r *http.Request) {
	err := h.endpoint.DestroyService(r.Context(), r.PathValue("token"))
	h.respond(w, r, command.KindDestroyService, err)
}

func (h *commandHandlers) handleBind(w http.ResponseWriter, r *http.Request) {
	var req BindServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.endpoint.BindService(r.Context(), r.PathValue("token"), req.BindToken, req.IntentHash, req.Action, req.Data, req.Rebind, req.ProcessState, req.BindSeq)
	h.respond(w, r, command.KindBindService, err)
}

func (h *commandHandlers) handleUnbind(w http.ResponseWriter, r *http.Request) {
	var req UnbindServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.endpoint.UnbindService(r.Context(), r.PathValue("token"), req.BindToken, req.IntentHash)
	h.respond(w, r, command.KindUnbindService, err)
}

func (h *commandHandlers) handleTrimMemory(w http.ResponseWriter, r *http.Request) {
	var req TrimMemoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, r, command.KindTrimMemory, h.endpoint.TrimMemory(r.Context(), req.Level))
}

func (h *commandHandlers) handleProcessState(w http.ResponseWriter, r *http.Request) {
	var req ProcessStateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, r, command.KindSetProcessState, h.endpoint.SetProcessState(r.Context(), req.State))
}

func (h *commandHandlers) handleBindApplication(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, command.KindBindApplication, h.endpoint.BindApplication(r.Context()))
}

// decodeBody decodes the JSON body into v. An empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	return false
}

func (h *commandHandlers) respond(w http.ResponseWriter, r *http.Request, kind command.Kind, err error) {
	if err != nil {
		h.logger.WarnContext(r.Context(), "command rejected",
			slog.String("command", string(kind)),
			slog.Any("error", err))
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, AcceptedResponse{
		Status:        "accepted",
		Command:       string(kind),
		CorrelationID: tracing.FromContextOrEmpty(r.Context()).String(),
	})
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}
