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
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrReactorRunning is returned by Run when the reactor is already running.
	ErrReactorRunning = errors.New("handoff: reactor already running")

	// ErrReactorStopped is returned when registering with a stopped reactor.
	ErrReactorStopped = errors.New("handoff: reactor stopped")

	// ErrUnknownSource is returned when removing a source that is not registered.
	ErrUnknownSource = errors.New("handoff: source not registered")
)

// Reactor runs callbacks for woken sources on a single goroutine.
type Reactor struct {
	logger *slog.Logger

	mu      sync.Mutex
	sources []*Source
	stopped bool

	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// NewReactor creates a reactor. It does nothing until Run is called.
func NewReactor(logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		logger: logger,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Source is a wake-up registration. Wake may be called from any goroutine.
type Source struct {
	reactor *Reactor
	fn      func(ctx context.Context)
	pending atomic.Bool
	removed atomic.Bool
}

// Wake marks the source ready and nudges the reactor. Wakes that arrive
// before the reactor has serviced the source coalesce into one dispatch.
func (s *Source) Wake() {
	if s.removed.Load() {
		return
	}
	if s.pending.CompareAndSwap(false, true) {
		select {
		case s.reactor.notify <- struct{}{}:
		default:
		}
	}
}

// AddSource registers fn to run on the reactor goroutine whenever the
// returned source is woken.
func (r *Reactor) AddSource(fn func(ctx context.Context)) (*Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrReactorStopped
	}
	src := &Source{reactor: r, fn: fn}
	r.sources = append(r.sources, src)
	return src, nil
}

// RemoveSource unregisters src. Pending wakes for it are discarded.
func (r *Reactor) RemoveSource(src *Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sources {
		if s == src {
			src.removed.Store(true)
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			return nil
		}
	}
	return ErrUnknownSource
}

// Run services wake-ups until ctx is cancelled or Stop is called. The calling
// goroutine is locked to its OS thread for the duration so that code which
// depends on thread identity always observes the same thread.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrReactorRunning
	}
	defer r.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.logger.Debug("reactor started")
	defer r.logger.Debug("reactor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case <-r.notify:
			r.dispatch(ctx)
		}
	}
}

func (r *Reactor) dispatch(ctx context.Context) {
	r.mu.Lock()
	sources := make([]*Source, len(r.sources))
	copy(sources, r.sources)
	r.mu.Unlock()

	for _, src := range sources {
		if src.removed.Load() {
			continue
		}
		if src.pending.CompareAndSwap(true, false) {
			src.fn(ctx)
		}
	}
}

// Stop makes Run return and rejects new sources. It is safe to call more
// than once.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		close(r.stop)
	})
}
