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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/servicehost/internal/endpoint"
	"github.com/tombee/servicehost/internal/host"
	"github.com/tombee/servicehost/internal/journal"
	"github.com/tombee/servicehost/internal/tracing"
)

// DefaultBaseURL is used when neither WithBaseURL nor SERVICEHOST_HOST is set.
const DefaultBaseURL = "http://127.0.0.1:7460"

// HostEnv overrides the default base URL.
const HostEnv = "SERVICEHOST_HOST"

// Client is a client for the servicehostd endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithBaseURL sets the daemon address.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid base URL %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
		}
		c.baseURL = strings.TrimRight(raw, "/")
		return nil
	}
}

// New creates a client with the given options.
func New(opts ...Option) (*Client, error) {
	c := &Client{baseURL: DefaultBaseURL}
	if env := os.Getenv(HostEnv); env != "" {
		if err := WithBaseURL(env)(c); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is returned when the daemon answers with a 4xx or 5xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("servicehostd returned error %d: %s", e.StatusCode, e.Message)
}

// VersionResponse is the response from /v1/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Health returns the daemon health. A daemon whose command handler has
// stopped answers 503; the decoded body is returned along with the error.
func (c *Client) Health(ctx context.Context) (*endpoint.HealthResponse, error) {
	var health endpoint.HealthResponse
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &health)
	if err != nil && health.Status == "" {
		return nil, err
	}
	return &health, err
}

// Version returns the daemon's build information.
func (c *Client) Version(ctx context.Context) (*VersionResponse, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/version", nil, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// Services returns the daemon's latest status snapshot.
func (c *Client) Services(ctx context.Context) (*host.Snapshot, error) {
	var snap host.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/services", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Journal returns the newest journal entries, optionally for one service.
func (c *Client) Journal(ctx context.Context, serviceToken string, limit int) ([]journal.Entry, error) {
	q := url.Values{}
	if serviceToken != "" {
		q.Set("service", serviceToken)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/journal"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Entries []journal.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// CreateService submits a create-service command.
func (c *Client) CreateService(ctx context.Context, token string, req endpoint.CreateServiceRequest) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodPost, servicePath(token, ""), req)
}

// DestroyService submits a destroy-service command.
func (c *Client) DestroyService(ctx context.Context, token string) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodDelete, servicePath(token, ""), nil)
}

// BindService submits a bind-service command.
func (c *Client) BindService(ctx context.Context, token string, req endpoint.BindServiceRequest) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodPost, servicePath(token, "bind"), req)
}

// UnbindService submits an unbind-service command.
func (c *Client) UnbindService(ctx context.Context, token string, req endpoint.UnbindServiceRequest) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodPost, servicePath(token, "unbind"), req)
}

// TrimMemory submits a trim-memory command.
func (c *Client) TrimMemory(ctx context.Context, level int32) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodPost, "/v1/trim-memory", endpoint.TrimMemoryRequest{Level: level})
}

// SetProcessState submits a process-state update.
func (c *Client) SetProcessState(ctx context.Context, state int32) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodPut, "/v1/process-state", endpoint.ProcessStateRequest{State: state})
}

// BindApplication submits a bind-application command.
func (c *Client) BindApplication(ctx context.Context) (*endpoint.AcceptedResponse, error) {
	return c.command(ctx, http.MethodPost, "/v1/bind-application", nil)
}

func servicePath(token, action string) string {
	p := "/v1/services/" + url.PathEscape(token)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) command(ctx context.Context, method, path string, body any) (*endpoint.AcceptedResponse, error) {
	var accepted endpoint.AcceptedResponse
	if err := c.do(ctx, method, path, body, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// do sends a request and decodes the JSON response into out. Error
// responses are decoded into out too when they carry a JSON body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectIntoRequest(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
