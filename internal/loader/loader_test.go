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
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

type fakeLinker struct {
	createErr error
	created   []string
	libs      map[string]map[string]any
}

func (l *fakeLinker) Name() string { return "fake" }

func (l *fakeLinker) CreateNamespace(ctx context.Context, name string, searchPaths []string, permittedDir string) (NamespaceHandle, error) {
	if l.createErr != nil {
		return nil, l.createErr
	}
	l.created = append(l.created, name)
	return &fakeNamespace{linker: l}, nil
}

type fakeNamespace struct {
	linker *fakeLinker
	closes int
}

func (n *fakeNamespace) Open(ctx context.Context, library string) (LibraryHandle, error) {
	syms, ok := n.linker.libs[library]
	if !ok {
		return nil, ErrLibraryNotFound
	}
	return &fakeLibrary{syms: syms}, nil
}

func (n *fakeNamespace) Close(ctx context.Context) error {
	n.closes++
	return nil
}

type fakeLibrary struct {
	syms   map[string]any
	closes int
}

func (l *fakeLibrary) Lookup(symbol string) (any, error) {
	sym, ok := l.syms[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return sym, nil
}

func (l *fakeLibrary) Close(ctx context.Context) error {
	l.closes++
	return nil
}

func TestNamespaceFactory_Names(t *testing.T) {
	linker := &fakeLinker{}
	f := NewNamespaceFactory(linker, DefaultBaseName(42))

	a, err := f.Create(context.Background(), []string{"/data/app/lib"}, "/data/app")
	require.NoError(t, err)
	b, err := f.Create(context.Background(), nil, "")
	require.NoError(t, err)

	assert.Equal(t, "native_app_42_0", a.Name())
	assert.Equal(t, "native_app_42_1", b.Name())
	assert.Equal(t, []string{"/data/app/lib"}, a.SearchPaths())
	assert.Equal(t, "/data/app", a.PermittedDir())
	assert.Equal(t, []string{"native_app_42_0", "native_app_42_1"}, linker.created)
}

func TestNamespaceFactory_BackendFailure(t *testing.T) {
	f := NewNamespaceFactory(&fakeLinker{createErr: errors.New("dlopen: no memory")}, "ns")

	_, err := f.Create(context.Background(), nil, "")
	require.Error(t, err)

	var setupErr *hosterrors.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, hosterrors.StageNamespace, setupErr.Stage)
	assert.Contains(t, err.Error(), "dlopen: no memory")
}

func TestNamespaceFactory_Overflow(t *testing.T) {
	f := NewNamespaceFactory(&fakeLinker{}, "ns")
	f.serial = math.MaxUint64

	_, err := f.Create(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrNamespaceSerialOverflow)
}

func TestLoadAndResolve(t *testing.T) {
	entry := func() {}
	linker := &fakeLinker{libs: map[string]map[string]any{
		"libecho.so": {"create": entry},
	}}
	f := NewNamespaceFactory(linker, "ns")
	ns, err := f.Create(context.Background(), nil, "")
	require.NoError(t, err)

	t.Run("missing library", func(t *testing.T) {
		_, err := Load(context.Background(), "libmissing.so", ns)
		var setupErr *hosterrors.SetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, hosterrors.StageLoad, setupErr.Stage)
		assert.ErrorIs(t, err, ErrLibraryNotFound)
	})

	mod, err := Load(context.Background(), "libecho.so", ns)
	require.NoError(t, err)
	assert.Equal(t, "libecho.so", mod.Path())
	assert.Equal(t, "ns_0", mod.Namespace())

	sym, err := mod.Resolve("create")
	require.NoError(t, err)
	assert.NotNil(t, sym)

	_, err = mod.Resolve("destroy")
	var setupErr *hosterrors.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, hosterrors.StageResolve, setupErr.Stage)
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	lib := mod.handle.(*fakeLibrary)
	require.NoError(t, mod.Close(context.Background()))
	require.NoError(t, mod.Close(context.Background()))
	assert.Equal(t, 1, lib.closes)

	_, err = mod.Resolve("create")
	assert.ErrorIs(t, err, ErrClosed)

	nsHandle := ns.handle.(*fakeNamespace)
	require.NoError(t, ns.Close(context.Background()))
	require.NoError(t, ns.Close(context.Background()))
	assert.Equal(t, 1, nsHandle.closes)

	_, err = Load(context.Background(), "libecho.so", ns)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResolveLibraryPath(t *testing.T) {
	files := map[string]bool{
		filepath.FromSlash("/apex/lib/libecho.so"):     true,
		filepath.FromSlash("/data/app/lib/libecho.so"): true,
		filepath.FromSlash("/data/app/extra/libx.so"):  true,
		filepath.FromSlash("/system/lib/libc.so"):      true,
	}
	exists := func(p string) bool { return files[p] }
	search := []string{filepath.FromSlash("/data/app/lib"), filepath.FromSlash("/apex/lib")}
	permitted := filepath.FromSlash("/data/app")

	tests := []struct {
		name    string
		lib     string
		want    string
		wantErr error
	}{
		{"first search path wins", "libecho.so", "/data/app/lib/libecho.so", nil},
		{"absolute inside search path", "/apex/lib/libecho.so", "/apex/lib/libecho.so", nil},
		{"absolute inside permitted dir", "/data/app/extra/libx.so", "/data/app/extra/libx.so", nil},
		{"absolute outside namespace", "/system/lib/libc.so", "", ErrLibraryNotPermitted},
		{"absolute escaping via dotdot", "/data/app/../../system/lib/libc.so", "", ErrLibraryNotPermitted},
		{"relative escaping via dotdot", "../../system/lib/libc.so", "", ErrLibraryNotFound},
		{"bare name missing", "libnope.so", "", ErrLibraryNotFound},
		{"absolute missing", "/data/app/lib/libnope.so", "", ErrLibraryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveLibraryPath(filepath.FromSlash(tt.lib), search, permitted, exists)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a/b", "/a"))
	assert.True(t, within("/a", "/a"))
	assert.False(t, within("/ab", "/a"))
	assert.False(t, within("/a", ""))
	assert.True(t, within("/a/..b", "/a"))
}
