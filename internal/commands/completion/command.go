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
	"fmt"

	"github.com/spf13/cobra"
)

// Shells supported by the completion command.
var Shells = []string{"bash", "zsh", "fish", "powershell"}

// NewCommand creates the completion command, which prints a completion
// script for the requested shell. Scripts call back into servicehost for
// service tokens, so completions reflect the running daemon.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script for servicehost.

Service token completion queries the daemon named by --host, so it works
only while servicehostd is running. Other completions are static.`,
		Example: `  # Current bash session
  source <(servicehost completion bash)

  # Persist for zsh
  servicehost completion zsh > "${fpath[1]}/_servicehost"

  # Persist for fish
  servicehost completion fish > ~/.config/fish/completions/servicehost.fish

  # PowerShell session
  servicehost completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             Shells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeScript(cmd, args[0])
		},
	}
}

// writeScript generates the script for the whole tree cmd belongs to.
func writeScript(cmd *cobra.Command, shell string) error {
	root, out := cmd.Root(), cmd.OutOrStdout()
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(out, true)
	case "zsh":
		return root.GenZshCompletion(out)
	case "fish":
		return root.GenFishCompletion(out, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(out)
	default:
		return fmt.Errorf("unsupported shell %q", shell)
	}
}
