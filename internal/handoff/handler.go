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

package handoff

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrHandlerClosed is returned by Send once the receiving handler is gone.
var ErrHandlerClosed = errors.New("handoff: handler closed")

// Callback processes tasks on the owner goroutine.
type Callback[T any] interface {
	HandleTask(ctx context.Context, task T) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc[T any] func(ctx context.Context, task T) error

// HandleTask implements Callback.
func (f CallbackFunc[T]) HandleTask(ctx context.Context, task T) error {
	return f(ctx, task)
}

// ErrorPolicy decides what happens when a callback returns an error.
type ErrorPolicy int

const (
	// FailStop closes the handler on the first callback error. Pending and
	// future tasks are rejected.
	FailStop ErrorPolicy = iota

	// ContinueOnError logs the error and keeps dispatching.
	ContinueOnError
)

// String implements fmt.Stringer.
func (p ErrorPolicy) String() string {
	switch p {
	case FailStop:
		return "fail-stop"
	case ContinueOnError:
		return "continue"
	default:
		return "unknown"
	}
}

// ParseErrorPolicy parses the names returned by String.
func ParseErrorPolicy(s string) (ErrorPolicy, bool) {
	switch s {
	case "fail-stop", "":
		return FailStop, true
	case "continue":
		return ContinueOnError, true
	}
	return FailStop, false
}

type options struct {
	name   string
	policy ErrorPolicy
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*options)

// WithName sets the handler name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithErrorPolicy sets the handler's error policy. The default is FailStop.
func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Handler is the receiving side of a handoff. It runs on the reactor's
// goroutine.
type Handler[T any] struct {
	name     string
	policy   ErrorPolicy
	logger   *slog.Logger
	reactor  *Reactor
	callback Callback[T]
	queue    *taskQueue[T]
	source   *Source

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.Mutex
	err       error
}

// Sender is the sending side of a handoff. It is a small value that may be
// copied and used concurrently from any goroutine.
type Sender[T any] struct {
	name   string
	queue  *taskQueue[T]
	source *Source
}

// NewHandler registers a new handler with reactor and returns it together
// with its Sender.
func NewHandler[T any](reactor *Reactor, callback Callback[T], opts ...Option) (*Handler[T], Sender[T], error) {
	o := options{name: "default", policy: FailStop, logger: reactor.logger}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handler[T]{
		name:     o.name,
		policy:   o.policy,
		logger:   o.logger.With("handler", o.name),
		reactor:  reactor,
		callback: callback,
		queue:    &taskQueue[T]{},
		done:     make(chan struct{}),
	}

	src, err := reactor.AddSource(h.drain)
	if err != nil {
		return nil, Sender[T]{}, err
	}
	h.source = src

	return h, Sender[T]{name: o.name, queue: h.queue, source: src}, nil
}

// Send enqueues task and wakes the handler. It never blocks on the handler
// and never runs the callback itself.
func (s Sender[T]) Send(task T) error {
	if s.queue == nil {
		return ErrHandlerClosed
	}
	depth, err := s.queue.push(task)
	if err != nil {
		return err
	}
	queueDepth.WithLabelValues(s.name).Set(float64(depth))
	s.source.Wake()
	return nil
}

// drain dispatches queued tasks until the queue is empty.
func (h *Handler[T]) drain(ctx context.Context) {
	for {
		task, depth, ok := h.queue.pop()
		if !ok {
			return
		}
		queueDepth.WithLabelValues(h.name).Set(float64(depth))

		err := h.callback.HandleTask(ctx, task)
		if err == nil {
			recordDispatch(h.name, outcomeOK)
			continue
		}

		if h.policy == ContinueOnError {
			recordDispatch(h.name, outcomeError)
			h.logger.ErrorContext(ctx, "task failed", "error", err)
			continue
		}

		recordDispatch(h.name, outcomeFatal)
		h.logger.ErrorContext(ctx, "task failed, closing handler", "error", err)
		h.fail(err)
		return
	}
}

func (h *Handler[T]) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
	h.Close()
}

// Close tears the handler down. Pending tasks are discarded and later Sends
// fail with ErrHandlerClosed. It is safe to call more than once.
func (h *Handler[T]) Close() {
	h.closeOnce.Do(func() {
		if dropped := h.queue.close(); dropped > 0 {
			h.logger.Warn("discarding pending tasks", "count", dropped)
		}
		queueDepth.WithLabelValues(h.name).Set(0)
		if err := h.reactor.RemoveSource(h.source); err != nil {
			h.logger.Error("failed to remove wake source", "error", err)
		}
		close(h.done)
	})
}

// Done is closed once the handler has been torn down.
func (h *Handler[T]) Done() <-chan struct{} {
	return h.done
}

// Err returns the callback error that closed the handler, if any.
func (h *Handler[T]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Pending returns the number of tasks waiting to be dispatched.
func (h *Handler[T]) Pending() int {
	return h.queue.len()
}
