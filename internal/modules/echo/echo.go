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

// Package echo is a built-in module for the static loader backend. It
// publishes a capability that echoes the bind request back and keeps a
// small history that trim requests discard.
//
// Importing the package registers it:
//
//	import _ "github.com/tombee/servicehost/internal/modules/echo"
package echo

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/loader/static"
	internallog "github.com/tombee/servicehost/internal/log"
)

const (
	// Dir is the search path the module is registered under.
	Dir = "/usr/lib/servicehost"

	// Library is the module's library name.
	Library = "libecho.so"

	// Symbol is the creation entry point.
	Symbol = "ServiceHostCreate"

	// StickyData asks the module to request a rebind on unbind.
	StickyData = "sticky"

	maxHistory = 64
)

func init() {
	static.Register(filepath.Join(Dir, Library), Open)
}

// Capability is the handle published for each bind.
type Capability struct {
	Intent int64  `json:"intent"`
	Action string `json:"action,omitempty"`
	Data   string `json:"data,omitempty"`
}

// Module is one loaded instance. Each namespace gets its own.
type Module struct {
	logger *slog.Logger

	mu      sync.Mutex
	history []Capability
	sticky  map[int64]bool
	trims   int
}

// Open returns a fresh library instance. It is the static.Opener for the
// module.
func Open() *static.Library {
	m := newModule()
	return &static.Library{
		Symbols: map[string]any{Symbol: abi.CreateFunc(m.create)},
	}
}

func newModule() *Module {
	return &Module{
		logger: internallog.WithComponent(slog.Default(), "module.echo"),
		sticky: make(map[int64]bool),
	}
}

func (m *Module) create(ctx context.Context, cb *abi.Callbacks) {
	cb.OnBind = m.onBind
	cb.OnUnbind = m.onUnbind
	cb.OnRebind = m.onRebind
	cb.OnDestroy = m.onDestroy
	cb.OnTrimMemory = m.onTrimMemory
}

func (m *Module) onBind(ctx context.Context, intent int64, action, data *string) any {
	c := &Capability{Intent: intent}
	if action != nil {
		c.Action = *action
	}
	if data != nil {
		c.Data = *data
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *c)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.sticky[intent] = c.Data == StickyData
	return c
}

func (m *Module) onUnbind(ctx context.Context, intent int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sticky := m.sticky[intent]
	delete(m.sticky, intent)
	return sticky
}

func (m *Module) onRebind(ctx context.Context, intent int64) {
	m.logger.DebugContext(ctx, "rebind", slog.Int64("intent", intent))
}

func (m *Module) onDestroy(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.DebugContext(ctx, "destroy", slog.Int("history", len(m.history)))
	m.history = nil
}

func (m *Module) onTrimMemory(ctx context.Context, level abi.TrimLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims++
	if level == abi.TrimMemoryBackground {
		m.history = nil
		return
	}
	if len(m.history) > maxHistory/4 {
		m.history = m.history[len(m.history)-maxHistory/4:]
	}
}

// History returns the retained bind requests, oldest first.
func (m *Module) History() []Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Capability, len(m.history))
	copy(out, m.history)
	return out
}
