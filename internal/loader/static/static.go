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

// Package static is a loader backend for modules compiled into the host
// binary.
//
// Modules register an Opener under a library path, usually from an init
// function. Every Open calls the Opener again, so each namespace receives a
// fresh Library with its own state, matching what a dynamic linker does when
// the same shared object is loaded into two isolated namespaces.
package static

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tombee/servicehost/internal/loader"
)

// Library is one loaded instance of a registered module.
type Library struct {
	// Symbols maps exported names to values, typically an abi.CreateFunc.
	Symbols map[string]any

	// Init runs when the library is opened, like a shared object constructor.
	Init func(ctx context.Context) error

	// Fini runs when the library is unloaded, like a shared object destructor.
	Fini func(ctx context.Context)
}

// Opener produces a new Library instance.
type Opener func() *Library

// Registry maps library paths to openers.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener

	loads   atomic.Int64
	unloads atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Default is the process-wide registry used by Register.
var Default = NewRegistry()

// Register adds a module to the default registry.
func Register(path string, open Opener) {
	Default.Register(path, open)
}

// Register adds a module under path. It panics on a duplicate registration.
func (r *Registry) Register(path string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path = filepath.Clean(path)
	if _, dup := r.openers[path]; dup {
		panic(fmt.Sprintf("static: library %s registered twice", path))
	}
	r.openers[path] = open
}

// Paths returns the registered library paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.openers))
	for p := range r.openers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Loads returns how many library instances have been opened.
func (r *Registry) Loads() int64 { return r.loads.Load() }

// Unloads returns how many library instances have been unloaded.
func (r *Registry) Unloads() int64 { return r.unloads.Load() }

func (r *Registry) exists(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.openers[path]
	return ok
}

func (r *Registry) opener(path string) (Opener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	open, ok := r.openers[path]
	return open, ok
}

// Linker implements loader.Linker over a Registry.
type Linker struct {
	registry *Registry
}

// NewLinker creates a linker serving modules from registry. A nil registry
// selects Default.
func NewLinker(registry *Registry) *Linker {
	if registry == nil {
		registry = Default
	}
	return &Linker{registry: registry}
}

// Name implements loader.Linker.
func (l *Linker) Name() string { return "static" }

// CreateNamespace implements loader.Linker.
func (l *Linker) CreateNamespace(ctx context.Context, name string, searchPaths []string, permittedDir string) (loader.NamespaceHandle, error) {
	return &namespace{
		registry:     l.registry,
		name:         name,
		searchPaths:  searchPaths,
		permittedDir: permittedDir,
	}, nil
}

type namespace struct {
	registry     *Registry
	name         string
	searchPaths  []string
	permittedDir string

	mu   sync.Mutex
	libs []*library
}

func (n *namespace) Open(ctx context.Context, name string) (loader.LibraryHandle, error) {
	path, err := loader.ResolveLibraryPath(name, n.searchPaths, n.permittedDir, n.registry.exists)
	if err != nil {
		return nil, err
	}
	open, ok := n.registry.opener(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", loader.ErrLibraryNotFound, path)
	}

	inst := open()
	if inst == nil {
		return nil, fmt.Errorf("static: opener for %s returned no library", path)
	}
	if inst.Init != nil {
		if err := inst.Init(ctx); err != nil {
			return nil, fmt.Errorf("initialising %s: %w", path, err)
		}
	}
	n.registry.loads.Add(1)

	lib := &library{registry: n.registry, path: path, inst: inst}
	n.mu.Lock()
	n.libs = append(n.libs, lib)
	n.mu.Unlock()
	return lib, nil
}

// Close unloads every library still open in the namespace, newest first.
func (n *namespace) Close(ctx context.Context) error {
	n.mu.Lock()
	libs := n.libs
	n.libs = nil
	n.mu.Unlock()

	for i := len(libs) - 1; i >= 0; i-- {
		_ = libs[i].Close(ctx)
	}
	return nil
}

type library struct {
	registry *Registry
	path     string
	inst     *Library

	mu     sync.Mutex
	closed bool
}

func (l *library) Lookup(symbol string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, loader.ErrClosed
	}
	sym, ok := l.inst.Symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", loader.ErrSymbolNotFound, symbol, l.path)
	}
	return sym, nil
}

func (l *library) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.inst.Fini != nil {
		l.inst.Fini(ctx)
	}
	l.registry.unloads.Add(1)
	return nil
}
