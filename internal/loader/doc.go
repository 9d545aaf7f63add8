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

// Package loader loads service modules into isolated namespaces.
//
// Every hosted service gets its own Namespace. Libraries opened inside a
// namespace are resolved with that namespace's search paths and cannot see
// symbols from libraries loaded into other namespaces, so two services may
// load the same library path and receive independent copies of its state.
//
// The OS-facing work is delegated to a Linker. Two linkers ship with the
// host: package static serves modules compiled into the binary and package
// wasm serves WebAssembly modules from disk.
package loader
