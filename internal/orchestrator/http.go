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

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/tracing"
)

const instrumentationName = "github.com/tombee/servicehost/internal/orchestrator"

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the orchestrator's base URL, e.g. "http://127.0.0.1:7700".
	BaseURL string

	// Timeout bounds each call. Default: 10s.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	Logger *slog.Logger

	// TracerProvider creates the client span around each call. Default: the
	// global provider.
	TracerProvider trace.TracerProvider
}

// HTTPClient calls the orchestrator's JSON HTTP API.
type HTTPClient struct {
	base   *url.URL
	client *http.Client
	tracer trace.Tracer
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("orchestrator base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid orchestrator base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid orchestrator base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "servicehost"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	baseTransport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &HTTPClient{
		base: base,
		client: &http.Client{
			Transport: newLoggingTransport(baseTransport, cfg.UserAgent, cfg.Logger),
			Timeout:   cfg.Timeout,
		},
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}, nil
}

// StatusError is returned when the orchestrator answers with a non-2xx status.
type StatusError struct {
	Call       string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: orchestrator returned %d", e.Call, e.StatusCode)
	}
	return fmt.Sprintf("%s: orchestrator returned %d: %s", e.Call, e.StatusCode, e.Body)
}

type doneRequest struct {
	Kind DoneKind `json:"kind"`
	Arg1 int32    `json:"arg1"`
	Arg2 int32    `json:"arg2"`
}

type publishRequest struct {
	BindToken string        `json:"bind_token"`
	Reference abi.Reference `json:"reference"`
}

type unbindFinishedRequest struct {
	BindToken string `json:"bind_token"`
}

type attachFinishedRequest struct {
	Extra int64 `json:"extra"`
}

// ServiceDoneExecuting implements Client.
func (c *HTTPClient) ServiceDoneExecuting(ctx context.Context, token string, kind DoneKind, arg1, arg2 int32) error {
	return c.post(ctx, CallServiceDoneExecuting, "/v1/services/"+url.PathEscape(token)+"/done",
		doneRequest{Kind: kind, Arg1: arg1, Arg2: arg2})
}

// PublishService implements Client.
func (c *HTTPClient) PublishService(ctx context.Context, token, bindToken string, ref abi.Reference) error {
	return c.post(ctx, CallPublishService, "/v1/services/"+url.PathEscape(token)+"/publish",
		publishRequest{BindToken: bindToken, Reference: ref})
}

// UnbindFinished implements Client.
func (c *HTTPClient) UnbindFinished(ctx context.Context, token, bindToken string) error {
	return c.post(ctx, CallUnbindFinished, "/v1/services/"+url.PathEscape(token)+"/unbind-finished",
		unbindFinishedRequest{BindToken: bindToken})
}

// FinishAttachApplication implements Client.
func (c *HTTPClient) FinishAttachApplication(ctx context.Context, startSeq, extra int64) error {
	return c.post(ctx, CallFinishAttachApplication, fmt.Sprintf("/v1/applications/%d/attach-finished", startSeq),
		attachFinishedRequest{Extra: extra})
}

// post sends one call inside a client span. The span carries the call name
// and status code and is marked as an error on any failure.
func (c *HTTPClient) post(ctx context.Context, call, path string, body any) (err error) {
	ctx, span := c.tracer.Start(ctx, "orchestrator."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("servicehost.orchestrator.call", call),
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("url.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", call, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: building request: %w", call, err)
	}
	req.Header.Set("Content-Type", "application/json")
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Call: call, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// loggingTransport logs every outbound request and propagates the
// correlation ID from the request context.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func newLoggingTransport(base http.RoundTripper, userAgent string, logger *slog.Logger) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, userAgent: userAgent, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	tracing.InjectIntoRequest(req.Context(), req)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		t.logger.WarnContext(req.Context(), "orchestrator request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", duration,
			"error", err.Error(),
		)
		return resp, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.Log(req.Context(), level, "orchestrator request",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
