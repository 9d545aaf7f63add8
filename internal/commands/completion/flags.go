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

import (
	"github.com/spf13/cobra"
)

// CompleteTrimLevels provides completion for trim-memory levels.
func CompleteTrimLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		levels := []string{
			"ui-hidden\tProcess UI is no longer visible",
			"background\tProcess moved to the background",
		}
		return levels, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteProcessStates provides completion for process-state names.
func CompleteProcessStates(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		states := []string{
			"top\tForeground activity",
			"foreground-service\tRunning a foreground service",
			"important-foreground\tImportant to the user, not visible",
			"important-background\tImportant, in the background",
			"service\tRunning a background service",
			"cached-empty\tCached with no activities",
		}
		return states, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteBackends provides completion for --backend flag values.
func CompleteBackends(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		backends := []string{
			"static\tModules compiled into the daemon",
			"wasm\tWebAssembly modules",
		}
		return backends, cobra.ShellCompDirectiveNoFileComp
	})
}
