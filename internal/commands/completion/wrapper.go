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

package completion

import "github.com/spf13/cobra"

// SafeCompletionWrapper runs fn and turns a panic or nil result into an
// empty completion list without file fallback.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	defer func() {
		if recover() != nil {
			results = nil
		}
		if results == nil {
			results, directive = []string{}, cobra.ShellCompDirectiveNoFileComp
		}
	}()
	return fn()
}
