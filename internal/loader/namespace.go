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
	"math"
	"slices"
	"sync"

	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

// DefaultBaseName returns the namespace base name for a host process started
// with the given start sequence.
func DefaultBaseName(startSeq int64) string {
	return fmt.Sprintf("native_app_%d", startSeq)
}

// NamespaceFactory allocates uniquely named namespaces from a Linker.
type NamespaceFactory struct {
	linker   Linker
	baseName string

	mu     sync.Mutex
	serial uint64
}

// NewNamespaceFactory creates a factory naming namespaces "<baseName>_<serial>".
func NewNamespaceFactory(linker Linker, baseName string) *NamespaceFactory {
	return &NamespaceFactory{linker: linker, baseName: baseName}
}

// Linker returns the backend the factory creates namespaces with.
func (f *NamespaceFactory) Linker() Linker {
	return f.linker
}

func (f *NamespaceFactory) nextName() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.serial == math.MaxUint64 {
		return "", ErrNamespaceSerialOverflow
	}
	name := fmt.Sprintf("%s_%d", f.baseName, f.serial)
	f.serial++
	return name, nil
}

// Create creates a new namespace. Backend failures are returned as a
// SetupError carrying the backend's diagnostic.
func (f *NamespaceFactory) Create(ctx context.Context, searchPaths []string, permittedDir string) (*Namespace, error) {
	name, err := f.nextName()
	if err != nil {
		return nil, &hosterrors.SetupError{Stage: hosterrors.StageNamespace, Target: f.baseName, Cause: err}
	}

	handle, err := f.linker.CreateNamespace(ctx, name, slices.Clone(searchPaths), permittedDir)
	if err != nil {
		return nil, &hosterrors.SetupError{Stage: hosterrors.StageNamespace, Target: name, Cause: err}
	}

	return &Namespace{
		name:         name,
		searchPaths:  slices.Clone(searchPaths),
		permittedDir: permittedDir,
		handle:       handle,
	}, nil
}

// Namespace is an isolated library-loading context owned by one service.
type Namespace struct {
	name         string
	searchPaths  []string
	permittedDir string
	handle       NamespaceHandle

	mu     sync.Mutex
	closed bool
}

// Name returns the namespace's unique name.
func (n *Namespace) Name() string { return n.name }

// SearchPaths returns a copy of the namespace's library search paths.
func (n *Namespace) SearchPaths() []string { return slices.Clone(n.searchPaths) }

// PermittedDir returns the additional directory absolute paths may live in.
func (n *Namespace) PermittedDir() string { return n.permittedDir }

// Close unloads everything loaded into the namespace. It is idempotent.
func (n *Namespace) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	return n.handle.Close(ctx)
}

func (n *Namespace) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
