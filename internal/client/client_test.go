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

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tombee/servicehost/internal/endpoint"
	"github.com/tombee/servicehost/internal/tracing"
)

type capturedRequest struct {
	Method        string
	Path          string
	Body          string
	CorrelationID string
}

func newTestClient(t *testing.T, status int, response any) (*Client, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{
			Method:        r.Method,
			Path:          r.URL.RequestURI(),
			Body:          string(body),
			CorrelationID: r.Header.Get(tracing.HeaderCorrelationID),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	c, err := New(WithHTTPClient(server.Client()), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c, &captured
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv(HostEnv, "")
	c, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("Expected %s, got %s", DefaultBaseURL, c.BaseURL())
	}
}

func TestNew_HostEnv(t *testing.T) {
	t.Setenv(HostEnv, "http://10.0.0.5:7460/")
	c, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.BaseURL() != "http://10.0.0.5:7460" {
		t.Errorf("Expected env address, got %s", c.BaseURL())
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Setenv(HostEnv, "")
	if _, err := New(WithBaseURL("unix:///tmp/servicehost.sock")); err == nil {
		t.Error("Expected error for non-HTTP scheme")
	}
}

func TestCommands(t *testing.T) {
	action := "android.intent.action.VIEW"
	tests := []struct {
		name       string
		call       func(c *Client) (*endpoint.AcceptedResponse, error)
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{
			name: "create",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.CreateService(context.Background(), "svc/1", endpoint.CreateServiceRequest{
					LibraryPaths: []string{"/a"},
					LibraryName:  "libfoo.so",
				})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/v1/services/svc%2F1",
			wantBody:   `{"library_paths":["/a"],"permitted_libs_dir":"","library_name":"libfoo.so","base_symbol_name":"","process_state":0}`,
		},
		{
			name: "destroy",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.DestroyService(context.Background(), "svc")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/v1/services/svc",
		},
		{
			name: "bind",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.BindService(context.Background(), "svc", endpoint.BindServiceRequest{
					BindToken: "b1", IntentHash: 9, Action: &action,
				})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/v1/services/svc/bind",
			wantBody:   `{"bind_token":"b1","intent_hash":9,"action":"android.intent.action.VIEW","rebind":false,"process_state":0,"bind_seq":0}`,
		},
		{
			name: "unbind",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.UnbindService(context.Background(), "svc", endpoint.UnbindServiceRequest{BindToken: "b1", IntentHash: 9})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/v1/services/svc/unbind",
			wantBody:   `{"bind_token":"b1","intent_hash":9}`,
		},
		{
			name: "trim",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.TrimMemory(context.Background(), 20)
			},
			wantMethod: http.MethodPost,
			wantPath:   "/v1/trim-memory",
			wantBody:   `{"level":20}`,
		},
		{
			name: "process state",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.SetProcessState(context.Background(), 4)
			},
			wantMethod: http.MethodPut,
			wantPath:   "/v1/process-state",
			wantBody:   `{"state":4}`,
		},
		{
			name: "bind application",
			call: func(c *Client) (*endpoint.AcceptedResponse, error) {
				return c.BindApplication(context.Background())
			},
			wantMethod: http.MethodPost,
			wantPath:   "/v1/bind-application",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, captured := newTestClient(t, http.StatusAccepted, endpoint.AcceptedResponse{Status: "accepted", Command: "x"})
			accepted, err := tt.call(c)
			if err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if accepted.Status != "accepted" {
				t.Errorf("Expected accepted, got %s", accepted.Status)
			}
			if len(*captured) != 1 {
				t.Fatalf("Expected 1 request, got %d", len(*captured))
			}
			got := (*captured)[0]
			if got.Method != tt.wantMethod {
				t.Errorf("Expected method %s, got %s", tt.wantMethod, got.Method)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Expected path %s, got %s", tt.wantPath, got.Path)
			}
			if got.Body != tt.wantBody {
				t.Errorf("Expected body %s, got %s", tt.wantBody, got.Body)
			}
		})
	}
}

func TestCorrelationIDForwarded(t *testing.T) {
	c, captured := newTestClient(t, http.StatusAccepted, endpoint.AcceptedResponse{Status: "accepted"})
	id := tracing.NewCorrelationID()
	ctx := tracing.ToContext(context.Background(), id)

	if _, err := c.TrimMemory(ctx, 5); err != nil {
		t.Fatalf("TrimMemory failed: %v", err)
	}
	if (*captured)[0].CorrelationID != id.String() {
		t.Errorf("Expected correlation ID %s, got %s", id, (*captured)[0].CorrelationID)
	}
}

func TestStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusServiceUnavailable, map[string]string{"error": "lifecycle host unavailable"})

	_, err := c.DestroyService(context.Background(), "svc")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", statusErr.StatusCode)
	}
	if statusErr.Message != "lifecycle host unavailable" {
		t.Errorf("Unexpected message: %s", statusErr.Message)
	}
}

func TestHealth_Unavailable(t *testing.T) {
	c, _ := newTestClient(t, http.StatusServiceUnavailable, endpoint.HealthResponse{
		Status: "unavailable",
		Error:  "command handler stopped",
	})

	health, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("Expected error for unavailable daemon")
	}
	if health == nil || health.Status != "unavailable" {
		t.Errorf("Expected decoded body, got %+v", health)
	}
}

func TestServicesAndVersion(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, map[string]any{
		"services":   []map[string]any{{"token": "svc", "state": "bound"}},
		"commands":   3,
		"version":    "1.0.0",
		"commit":     "abc123",
		"build_date": "2025-01-01",
	})

	snap, err := c.Services(context.Background())
	if err != nil {
		t.Fatalf("Services failed: %v", err)
	}
	if len(snap.Services) != 1 || snap.Services[0].State != "bound" {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if snap.Commands != 3 {
		t.Errorf("Expected 3 commands, got %d", snap.Commands)
	}

	version, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version.Version != "1.0.0" || version.Commit != "abc123" {
		t.Errorf("Unexpected version: %+v", version)
	}
}

func TestJournalQuery(t *testing.T) {
	c, captured := newTestClient(t, http.StatusOK, map[string]any{
		"entries": []map[string]any{{"id": 1, "kind": "create_service", "outcome": "ok"}},
	})

	entries, err := c.Journal(context.Background(), "svc", 5)
	if err != nil {
		t.Fatalf("Journal failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != "create_service" {
		t.Errorf("Unexpected entries: %+v", entries)
	}
	if (*captured)[0].Path != "/v1/journal?limit=5&service=svc" {
		t.Errorf("Unexpected path: %s", (*captured)[0].Path)
	}
}
