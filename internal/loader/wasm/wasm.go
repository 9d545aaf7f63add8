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

// Package wasm is a loader backend for WebAssembly modules.
//
// Each namespace owns its own wazero runtime, so modules in different
// namespaces share no memory, globals or host state. Libraries are .wasm
// files located with the namespace path policy and are instantiated as
// reactor modules: "_initialize" runs after instantiation and "_fini" runs
// before the instance is closed, when the module exports them.
//
// # Entry points
//
// A creation entry point is any export of type () -> i32. It returns a
// bitmask of the callbacks the module implements; the host binds each set bit
// to a fixed export:
//
//	MaskBind       on_bind(intent i64, action i64, data i64) -> i64
//	MaskUnbind     on_unbind(intent i64) -> i32
//	MaskRebind     on_rebind(intent i64)
//	MaskDestroy    on_destroy()
//	MaskTrimMemory on_trim_memory(level i32)
//
// Strings are copied into guest memory through the guest's "allocate(len)"
// export and passed as a packed i64 (ptr<<32 | len); an absent string is
// passed as 0. A present string always gets a non-zero pointer, so an empty
// string is never mistaken for an absent one. on_bind returns an opaque
// non-zero handle, or 0 for none.
//
// Guests may import "servicehost.log_message(packed i64)" to write a JSON
// {"level","message"} record to the host log.
package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/loader"
)

// Callback mask bits returned by an entry point.
const (
	MaskBind       = 1 << 0
	MaskUnbind     = 1 << 1
	MaskRebind     = 1 << 2
	MaskDestroy    = 1 << 3
	MaskTrimMemory = 1 << 4
)

// HostModuleName is the import module name of the host functions.
const HostModuleName = "servicehost"

// Linker implements loader.Linker with one wazero runtime per namespace.
type Linker struct {
	logger *slog.Logger
	exists func(string) bool
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets the logger used for guest log output and call failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) {
		l.logger = logger
	}
}

// NewLinker creates a wasm linker.
func NewLinker(opts ...Option) *Linker {
	l := &Linker{
		logger: slog.Default(),
		exists: loader.FileExists,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements loader.Linker.
func (l *Linker) Name() string { return "wasm" }

// CreateNamespace implements loader.Linker.
func (l *Linker) CreateNamespace(ctx context.Context, name string, searchPaths []string, permittedDir string) (loader.NamespaceHandle, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	logger := l.logger.With("namespace", name)
	if err := registerHostFunctions(ctx, rt, logger); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return &namespace{
		runtime:      rt,
		logger:       logger,
		exists:       l.exists,
		name:         name,
		searchPaths:  searchPaths,
		permittedDir: permittedDir,
	}, nil
}

func registerHostFunctions(ctx context.Context, rt wazero.Runtime, logger *slog.Logger) error {
	_, err := rt.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, packed uint64) {
			ptr, length := unpackPtrLen(packed)
			payload, ok := m.Memory().Read(ptr, length)
			if !ok {
				return
			}

			var msg struct {
				Level   string `json:"level"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload, &msg); err != nil {
				logger.InfoContext(ctx, "module log (raw)", "module", m.Name(), "payload", string(payload))
				return
			}
			logger.Log(ctx, guestLevel(msg.Level), msg.Message, "module", m.Name())
		}).
		Export("log_message").
		Instantiate(ctx)
	return err
}

func guestLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type namespace struct {
	runtime      wazero.Runtime
	logger       *slog.Logger
	exists       func(string) bool
	name         string
	searchPaths  []string
	permittedDir string

	mu     sync.Mutex
	opened int
	libs   []*library
}

func (n *namespace) Open(ctx context.Context, name string) (loader.LibraryHandle, error) {
	path, err := loader.ResolveLibraryPath(name, n.searchPaths, n.permittedDir, n.exists)
	if err != nil {
		return nil, err
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	compiled, err := n.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}

	n.mu.Lock()
	instanceName := fmt.Sprintf("%s#%d", filepath.Base(path), n.opened)
	n.opened++
	n.mu.Unlock()

	cfg := wazero.NewModuleConfig().
		WithName(instanceName).
		WithStartFunctions()
	mod, err := n.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s: %w", path, err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			mod.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize in %s: %w", path, err)
		}
	}

	lib := &library{module: mod, path: path, logger: n.logger.With("library", path)}
	n.mu.Lock()
	n.libs = append(n.libs, lib)
	n.mu.Unlock()
	return lib, nil
}

// Close finalises every open library then releases the runtime.
func (n *namespace) Close(ctx context.Context) error {
	n.mu.Lock()
	libs := n.libs
	n.libs = nil
	n.mu.Unlock()

	for i := len(libs) - 1; i >= 0; i-- {
		if err := libs[i].Close(ctx); err != nil {
			n.logger.WarnContext(ctx, "failed to close library", "library", libs[i].path, "error", err)
		}
	}
	return n.runtime.Close(ctx)
}

type library struct {
	module api.Module
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Lookup returns an abi.CreateFunc for exports of type () -> i32 and the raw
// api.Function for anything else.
func (l *library) Lookup(symbol string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, loader.ErrClosed
	}

	fn := l.module.ExportedFunction(symbol)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s in %s", loader.ErrSymbolNotFound, symbol, l.path)
	}
	if !isEntrySignature(fn.Definition()) {
		return fn, nil
	}
	return abi.CreateFunc(func(ctx context.Context, cb *abi.Callbacks) {
		l.create(ctx, fn, cb)
	}), nil
}

func isEntrySignature(def api.FunctionDefinition) bool {
	results := def.ResultTypes()
	return len(def.ParamTypes()) == 0 && len(results) == 1 && results[0] == api.ValueTypeI32
}

func (l *library) create(ctx context.Context, entry api.Function, cb *abi.Callbacks) {
	results, err := entry.Call(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "entry point trapped", "error", err)
		return
	}
	mask := uint32(results[0])

	if mask&MaskBind != 0 {
		if fn := l.export(ctx, "on_bind"); fn != nil {
			cb.OnBind = func(ctx context.Context, intent int64, action, data *string) any {
				actionArg := l.writeString(ctx, action)
				dataArg := l.writeString(ctx, data)
				res, err := fn.Call(ctx, uint64(intent), actionArg, dataArg)
				if err != nil {
					l.logger.ErrorContext(ctx, "on_bind trapped", "error", err)
					return nil
				}
				if len(res) == 0 || res[0] == 0 {
					return nil
				}
				return res[0]
			}
		}
	}
	if mask&MaskUnbind != 0 {
		if fn := l.export(ctx, "on_unbind"); fn != nil {
			cb.OnUnbind = func(ctx context.Context, intent int64) bool {
				res, err := fn.Call(ctx, uint64(intent))
				if err != nil {
					l.logger.ErrorContext(ctx, "on_unbind trapped", "error", err)
					return false
				}
				return len(res) > 0 && uint32(res[0]) != 0
			}
		}
	}
	if mask&MaskRebind != 0 {
		if fn := l.export(ctx, "on_rebind"); fn != nil {
			cb.OnRebind = func(ctx context.Context, intent int64) {
				if _, err := fn.Call(ctx, uint64(intent)); err != nil {
					l.logger.ErrorContext(ctx, "on_rebind trapped", "error", err)
				}
			}
		}
	}
	if mask&MaskDestroy != 0 {
		if fn := l.export(ctx, "on_destroy"); fn != nil {
			cb.OnDestroy = func(ctx context.Context) {
				if _, err := fn.Call(ctx); err != nil {
					l.logger.ErrorContext(ctx, "on_destroy trapped", "error", err)
				}
			}
		}
	}
	if mask&MaskTrimMemory != 0 {
		if fn := l.export(ctx, "on_trim_memory"); fn != nil {
			cb.OnTrimMemory = func(ctx context.Context, level abi.TrimLevel) {
				if _, err := fn.Call(ctx, api.EncodeI32(int32(level))); err != nil {
					l.logger.ErrorContext(ctx, "on_trim_memory trapped", "error", err)
				}
			}
		}
	}
}

func (l *library) export(ctx context.Context, name string) api.Function {
	fn := l.module.ExportedFunction(name)
	if fn == nil {
		l.logger.WarnContext(ctx, "callback advertised but not exported", "export", name)
	}
	return fn
}

// writeString copies s into guest memory and returns the packed pointer, or 0
// when s is nil or cannot be written. At least one byte is allocated so that
// an empty string still has a non-zero pointer.
func (l *library) writeString(ctx context.Context, s *string) uint64 {
	if s == nil {
		return 0
	}
	allocate := l.module.ExportedFunction("allocate")
	if allocate == nil {
		l.logger.WarnContext(ctx, "guest does not export allocate; passing null string")
		return 0
	}
	res, err := allocate.Call(ctx, uint64(max(len(*s), 1)))
	if err != nil || len(res) == 0 {
		l.logger.ErrorContext(ctx, "failed to allocate in guest", "error", err)
		return 0
	}
	ptr := uint32(res[0])
	if ptr == 0 {
		l.logger.ErrorContext(ctx, "guest allocate returned null", "size", max(len(*s), 1))
		return 0
	}
	if !l.module.Memory().Write(ptr, []byte(*s)) {
		l.logger.ErrorContext(ctx, "failed to write string to guest memory")
		return 0
	}
	return packPtrLen(ptr, uint32(len(*s)))
}

func (l *library) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if fini := l.module.ExportedFunction("_fini"); fini != nil {
		if _, err := fini.Call(ctx); err != nil {
			l.logger.WarnContext(ctx, "_fini trapped", "error", err)
		}
	}
	return l.module.Close(ctx)
}

// packPtrLen packs a pointer and length into a single i64.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen reverses packPtrLen.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
