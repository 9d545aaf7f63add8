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

package wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/loader"
)

// destroyOnlyModule exports create() -> i32 returning MaskDestroy and an
// empty on_destroy().
var destroyOnlyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: () -> i32, () -> ()
	0x01, 0x08, 0x02, 0x60, 0x00, 0x01, 0x7f, 0x60, 0x00, 0x00,
	// function section
	0x03, 0x03, 0x02, 0x00, 0x01,
	// export section
	0x07, 0x17, 0x02,
	0x06, 'c', 'r', 'e', 'a', 't', 'e', 0x00, 0x00,
	0x0a, 'o', 'n', '_', 'd', 'e', 's', 't', 'r', 'o', 'y', 0x00, 0x01,
	// code section
	0x0a, 0x09, 0x02,
	0x04, 0x00, 0x41, 0x08, 0x0b,
	0x02, 0x00, 0x0b,
}

// echoBindModule exports create() -> i32 returning MaskBind and
// on_bind(intent, action, data) returning intent as the handle.
var echoBindModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: () -> i32, (i64, i64, i64) -> i64
	0x01, 0x0c, 0x02, 0x60, 0x00, 0x01, 0x7f, 0x60, 0x03, 0x7e, 0x7e, 0x7e, 0x01, 0x7e,
	// function section
	0x03, 0x03, 0x02, 0x00, 0x01,
	// export section
	0x07, 0x14, 0x02,
	0x06, 'c', 'r', 'e', 'a', 't', 'e', 0x00, 0x00,
	0x07, 'o', 'n', '_', 'b', 'i', 'n', 'd', 0x00, 0x01,
	// code section
	0x0a, 0x0b, 0x02,
	0x04, 0x00, 0x41, 0x01, 0x0b,
	0x04, 0x00, 0x20, 0x00, 0x0b,
}

// dataBindModule exports memory, create() -> i32 returning MaskBind,
// on_bind(intent, action, data) returning data as the handle, and an
// allocate(len) that returns 0 for a zero-length request and 16 otherwise.
var dataBindModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: () -> i32, (i64, i64, i64) -> i64, (i32) -> i32
	0x01, 0x11, 0x03,
	0x60, 0x00, 0x01, 0x7f,
	0x60, 0x03, 0x7e, 0x7e, 0x7e, 0x01, 0x7e,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	// function section
	0x03, 0x04, 0x03, 0x00, 0x01, 0x02,
	// memory section: one page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export section
	0x07, 0x28, 0x04,
	0x06, 'c', 'r', 'e', 'a', 't', 'e', 0x00, 0x00,
	0x07, 'o', 'n', '_', 'b', 'i', 'n', 'd', 0x00, 0x01,
	0x08, 'a', 'l', 'l', 'o', 'c', 'a', 't', 'e', 0x00, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	// code section
	0x0a, 0x19, 0x03,
	0x04, 0x00, 0x41, 0x01, 0x0b,
	0x04, 0x00, 0x20, 0x02, 0x0b,
	0x0d, 0x00, 0x20, 0x00, 0x45, 0x04, 0x7f, 0x41, 0x00, 0x05, 0x41, 0x10, 0x0b, 0x0b,
}

func writeModule(t *testing.T, dir, name string, wasm []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), wasm, 0o600))
}

func newNamespace(t *testing.T, searchPaths []string, permittedDir string) *loader.Namespace {
	t.Helper()
	f := loader.NewNamespaceFactory(NewLinker(), "wasm_test")
	ns, err := f.Create(context.Background(), searchPaths, permittedDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ns.Close(context.Background()) })
	return ns
}

func TestLoadAndCreate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "destroy.wasm", destroyOnlyModule)

	ns := newNamespace(t, []string{dir}, "")
	mod, err := loader.Load(ctx, "destroy.wasm", ns)
	require.NoError(t, err)

	sym, err := mod.Resolve("create")
	require.NoError(t, err)
	create, err := abi.AsCreateFunc(sym)
	require.NoError(t, err)

	var cb abi.Callbacks
	create(ctx, &cb)
	assert.Equal(t, []string{"onDestroy"}, cb.Implemented())
	cb.OnDestroy(ctx)

	require.NoError(t, mod.Close(ctx))
	_, err = mod.Resolve("create")
	assert.ErrorIs(t, err, loader.ErrClosed)
}

func TestResolve_NonEntrySymbol(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "destroy.wasm", destroyOnlyModule)

	ns := newNamespace(t, []string{dir}, "")
	mod, err := loader.Load(ctx, "destroy.wasm", ns)
	require.NoError(t, err)

	sym, err := mod.Resolve("on_destroy")
	require.NoError(t, err)
	_, err = abi.AsCreateFunc(sym)
	assert.ErrorIs(t, err, abi.ErrSymbolType)

	_, err = mod.Resolve("missing")
	assert.ErrorIs(t, err, loader.ErrSymbolNotFound)
}

func TestOnBindHandle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "echo.wasm", echoBindModule)

	ns := newNamespace(t, []string{dir}, "")
	mod, err := loader.Load(ctx, filepath.Join(dir, "echo.wasm"), ns)
	require.NoError(t, err)

	sym, err := mod.Resolve("create")
	require.NoError(t, err)
	create, err := abi.AsCreateFunc(sym)
	require.NoError(t, err)

	var cb abi.Callbacks
	create(ctx, &cb)
	require.NotNil(t, cb.OnBind)
	assert.Nil(t, cb.OnUnbind)

	assert.Equal(t, uint64(42), cb.OnBind(ctx, 42, nil, nil))
	assert.Nil(t, cb.OnBind(ctx, 0, nil, nil))

	// Without an allocate export strings degrade to null.
	action := "android.intent.action.VIEW"
	assert.Equal(t, uint64(7), cb.OnBind(ctx, 7, &action, nil))
}

func TestOnBind_EmptyStringIsNotNull(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "data.wasm", dataBindModule)

	ns := newNamespace(t, []string{dir}, "")
	mod, err := loader.Load(ctx, "data.wasm", ns)
	require.NoError(t, err)

	sym, err := mod.Resolve("create")
	require.NoError(t, err)
	create, err := abi.AsCreateFunc(sym)
	require.NoError(t, err)

	var cb abi.Callbacks
	create(ctx, &cb)
	require.NotNil(t, cb.OnBind)

	// The guest echoes the packed data pointer back as its handle.
	assert.Nil(t, cb.OnBind(ctx, 1, nil, nil))

	empty := ""
	got := cb.OnBind(ctx, 1, nil, &empty)
	require.NotNil(t, got)
	ptr, length := unpackPtrLen(got.(uint64))
	assert.Equal(t, uint32(16), ptr)
	assert.Equal(t, uint32(0), length)

	data := "payload"
	got = cb.OnBind(ctx, 1, nil, &data)
	require.NotNil(t, got)
	ptr, length = unpackPtrLen(got.(uint64))
	assert.Equal(t, uint32(16), ptr)
	assert.Equal(t, uint32(len(data)), length)
}

func TestNamespacesHaveSeparateRuntimes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "destroy.wasm", destroyOnlyModule)

	f := loader.NewNamespaceFactory(NewLinker(), "wasm_test")
	nsA, err := f.Create(ctx, []string{dir}, "")
	require.NoError(t, err)
	nsB, err := f.Create(ctx, []string{dir}, "")
	require.NoError(t, err)

	modA, err := loader.Load(ctx, "destroy.wasm", nsA)
	require.NoError(t, err)
	modB, err := loader.Load(ctx, "destroy.wasm", nsB)
	require.NoError(t, err)

	require.NoError(t, nsA.Close(ctx))

	// nsB is unaffected by closing nsA.
	sym, err := modB.Resolve("create")
	require.NoError(t, err)
	create, err := abi.AsCreateFunc(sym)
	require.NoError(t, err)
	var cb abi.Callbacks
	create(ctx, &cb)
	assert.NotNil(t, cb.OnDestroy)

	require.NoError(t, modA.Close(ctx))
	require.NoError(t, nsB.Close(ctx))
}

func TestLoad_PathPolicy(t *testing.T) {
	ctx := context.Background()
	libDir := t.TempDir()
	otherDir := t.TempDir()
	writeModule(t, otherDir, "destroy.wasm", destroyOnlyModule)

	ns := newNamespace(t, []string{libDir}, "")
	_, err := loader.Load(ctx, filepath.Join(otherDir, "destroy.wasm"), ns)
	assert.ErrorIs(t, err, loader.ErrLibraryNotPermitted)

	_, err = loader.Load(ctx, "destroy.wasm", ns)
	assert.ErrorIs(t, err, loader.ErrLibraryNotFound)
}

func TestLoad_InvalidModule(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "bad.wasm", []byte("not wasm"))

	ns := newNamespace(t, []string{dir}, "")
	_, err := loader.Load(ctx, "bad.wasm", ns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile")
}

func TestPackPtrLen(t *testing.T) {
	packed := packPtrLen(0x1000, 12)
	ptr, length := unpackPtrLen(packed)
	assert.Equal(t, uint32(0x1000), ptr)
	assert.Equal(t, uint32(12), length)
}
