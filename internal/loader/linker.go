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
)

var (
	// ErrSymbolNotFound is returned by LibraryHandle.Lookup when the library
	// does not export the requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrLibraryNotFound is returned when no candidate path exists.
	ErrLibraryNotFound = errors.New("library not found")

	// ErrLibraryNotPermitted is returned when an absolute library path lies
	// outside the namespace's search paths and permitted directory.
	ErrLibraryNotPermitted = errors.New("library path not permitted in namespace")

	// ErrNamespaceSerialOverflow is returned when the namespace counter is exhausted.
	ErrNamespaceSerialOverflow = errors.New("namespace serial overflow")

	// ErrClosed is returned when operating on a closed namespace or module.
	ErrClosed = errors.New("loader: closed")
)

// Linker is the backend that actually creates namespaces and maps code.
type Linker interface {
	// Name identifies the backend in logs and status output.
	Name() string

	// CreateNamespace creates an isolated namespace. Libraries opened in it
	// are looked up in searchPaths; permittedDir additionally allows absolute
	// paths below it.
	CreateNamespace(ctx context.Context, name string, searchPaths []string, permittedDir string) (NamespaceHandle, error)
}

// NamespaceHandle is a backend namespace.
type NamespaceHandle interface {
	Open(ctx context.Context, library string) (LibraryHandle, error)

	// Close unloads everything opened in the namespace.
	Close(ctx context.Context) error
}

// LibraryHandle is a library opened inside a namespace.
type LibraryHandle interface {
	// Lookup returns the exported symbol or an error wrapping ErrSymbolNotFound.
	Lookup(symbol string) (any, error)

	// Close runs the library's finalisers and unmaps it.
	Close(ctx context.Context) error
}
