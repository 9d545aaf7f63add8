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

package loader

import (
	"context"
	"fmt"
	"sync"

	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

// Module is a library loaded into a namespace.
type Module struct {
	path      string
	namespace string
	handle    LibraryHandle

	mu     sync.Mutex
	closed bool
}

// Load opens modulePath inside ns. The library's initialisers run on the
// calling goroutine; callers must ensure they are safe to run there.
func Load(ctx context.Context, modulePath string, ns *Namespace) (*Module, error) {
	if ns.isClosed() {
		return nil, &hosterrors.SetupError{Stage: hosterrors.StageLoad, Target: modulePath, Cause: ErrClosed}
	}
	handle, err := ns.handle.Open(ctx, modulePath)
	if err != nil {
		return nil, &hosterrors.SetupError{
			Stage:  hosterrors.StageLoad,
			Target: fmt.Sprintf("%s in %s", modulePath, ns.name),
			Cause:  err,
		}
	}
	return &Module{path: modulePath, namespace: ns.name, handle: handle}, nil
}

// Path returns the library path the module was loaded from.
func (m *Module) Path() string { return m.path }

// Namespace returns the name of the namespace the module lives in.
func (m *Module) Namespace() string { return m.namespace }

// Resolve looks up an exported symbol.
func (m *Module) Resolve(symbol string) (any, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, &hosterrors.SetupError{Stage: hosterrors.StageResolve, Target: symbol, Cause: ErrClosed}
	}

	sym, err := m.handle.Lookup(symbol)
	if err != nil {
		return nil, &hosterrors.SetupError{Stage: hosterrors.StageResolve, Target: symbol, Cause: err}
	}
	if sym == nil {
		return nil, &hosterrors.SetupError{Stage: hosterrors.StageResolve, Target: symbol, Cause: ErrSymbolNotFound}
	}
	return sym, nil
}

// Close unloads the module. It is idempotent.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.handle.Close(ctx)
}
