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

// Package config implements the commands that inspect daemon configuration.
package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/servicehost/internal/commands/shared"
	"github.com/tombee/servicehost/internal/config"
	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect servicehostd configuration",
		Long: `Inspect the configuration servicehostd would run with.

Subcommands:
  show     - Display the effective configuration
  validate - Check the configuration and report every problem
  path     - Show the default config file location`,
		Annotations: map[string]string{
			"group": "configuration",
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&path, "config", "", "Path to config file (default: ~/.config/servicehost/config.yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after applying the file, defaults and
SERVICEHOST_* environment variables. The result is not validated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(resolvePath(path))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showConfig(cmd.OutOrStdout(), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), resolvePath(path))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.ConfigPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}
			if shared.GetJSON() {
				return shared.EmitResult(cmd.OutOrStdout(), "config path", map[string]string{"path": p})
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	})

	return cmd
}

func resolvePath(path string) string {
	if path != "" {
		return path
	}
	return config.DefaultPath()
}

func showConfig(w io.Writer, cfg *config.Config) error {
	if shared.GetJSON() {
		return shared.EmitResult(w, "config show", cfg)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// validateConfig prints one line per validation problem and fails with a
// usage exit code when there are any.
func validateConfig(w io.Writer, path string) error {
	cfg, err := config.Read(path)
	if err != nil {
		return shared.NewUsageError("failed to load config", err)
	}

	err = cfg.Validate()
	var problems []*hosterrors.ValidationError
	if err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				var ve *hosterrors.ValidationError
				if errors.As(e, &ve) {
					problems = append(problems, ve)
				}
			}
		}
	}

	if shared.GetJSON() {
		type problem struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		}
		out := make([]problem, 0, len(problems))
		for _, p := range problems {
			out = append(out, problem{Field: p.Field, Message: p.Message})
		}
		if jerr := shared.EmitJSON(w, map[string]any{"valid": err == nil, "problems": out}); jerr != nil {
			return jerr
		}
	} else if err == nil {
		fmt.Fprintln(w, shared.RenderOK("configuration is valid"))
	} else {
		for _, p := range problems {
			fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("%s: %s", p.Field, p.Message)))
		}
	}

	if err != nil {
		return shared.NewUsageError("configuration is invalid", err)
	}
	return nil
}
