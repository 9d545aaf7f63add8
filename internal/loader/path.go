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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ResolveLibraryPath applies the namespace path policy to name.
//
// A bare or relative name is tried against each search path in order and the
// first candidate for which exists returns true wins. An absolute name is
// accepted only if it lies inside one of the search paths or inside
// permittedDir.
func ResolveLibraryPath(name string, searchPaths []string, permittedDir string, exists func(string) bool) (string, error) {
	if exists == nil {
		exists = FileExists
	}

	if filepath.IsAbs(name) {
		clean := filepath.Clean(name)
		allowed := within(clean, permittedDir)
		for _, dir := range searchPaths {
			if within(clean, dir) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("%w: %s", ErrLibraryNotPermitted, name)
		}
		if !exists(clean) {
			return "", fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
		}
		return clean, nil
	}

	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if !within(candidate, dir) {
			continue
		}
		if exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrLibraryNotFound, name, strings.Join(searchPaths, ":"))
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
