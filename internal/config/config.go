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

// Package config loads the host daemon's configuration from a YAML file,
// environment overrides and built-in defaults, in that order of increasing
// precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Loader backends.
const (
	BackendStatic = "static"
	BackendWasm   = "wasm"
)

// Config represents the complete host configuration.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Loader       LoaderConfig       `yaml:"loader"`
	Handoff      HandoffConfig      `yaml:"handoff"`
	Journal      JournalConfig      `yaml:"journal"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Log          LogConfig          `yaml:"log"`

	// PIDFile is the path to the PID file. Empty means no PID file.
	// Environment: SERVICEHOST_PID_FILE
	PIDFile string `yaml:"pid_file,omitempty"`

	// StartSeq identifies this process start to the orchestrator. It names
	// the loader namespaces and is echoed by the bind-application handshake.
	// Environment: SERVICEHOST_START_SEQ
	StartSeq int64 `yaml:"start_seq" validate:"gte=0"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Environment: SERVICEHOST_SHUTDOWN_TIMEOUT
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// ListenConfig configures the inbound endpoint.
type ListenConfig struct {
	// Addr is the TCP address to serve on.
	// Environment: SERVICEHOST_LISTEN_ADDR
	// Default: 127.0.0.1:7460
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// OrchestratorConfig configures outbound completion reports.
type OrchestratorConfig struct {
	// URL is the orchestrator's base URL.
	// Environment: SERVICEHOST_ORCHESTRATOR_URL
	URL string `yaml:"url" validate:"required,http_url"`

	// Timeout bounds each outbound call.
	// Environment: SERVICEHOST_ORCHESTRATOR_TIMEOUT
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// LoaderConfig configures module loading.
type LoaderConfig struct {
	// Backend selects the linker: static or wasm.
	// Environment: SERVICEHOST_LOADER_BACKEND
	// Default: static
	Backend string `yaml:"backend" validate:"oneof=static wasm"`

	// NamespaceBase overrides the namespace base name. Empty derives it from
	// StartSeq.
	// Environment: SERVICEHOST_NAMESPACE_BASE
	NamespaceBase string `yaml:"namespace_base,omitempty" validate:"omitempty,excludesall=/\\"`
}

// HandoffConfig configures the command queue.
type HandoffConfig struct {
	// ErrorPolicy is fail-stop or continue.
	// Environment: SERVICEHOST_ERROR_POLICY
	// Default: fail-stop
	ErrorPolicy string `yaml:"error_policy" validate:"oneof=fail-stop continue"`
}

// JournalConfig configures the lifecycle journal.
type JournalConfig struct {
	// Path is the SQLite database file. Empty disables the journal.
	// Environment: SERVICEHOST_JOURNAL_PATH
	Path string `yaml:"path,omitempty"`

	// WAL enables write-ahead logging.
	WAL bool `yaml:"wal"`

	// Retention prunes entries older than this at startup. Zero keeps
	// everything.
	Retention time.Duration `yaml:"retention,omitempty" validate:"gte=0"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	// Environment: SERVICEHOST_TRACING_ENABLED
	Enabled bool `yaml:"enabled"`

	// Exporter is none, stdout, otlp-grpc or otlp-http.
	// Environment: SERVICEHOST_TRACING_EXPORTER
	// Default: stdout
	Exporter string `yaml:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`

	// Endpoint is the collector address for the OTLP exporters.
	// Environment: SERVICEHOST_TRACING_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp-grpc,required_if=Exporter otlp-http"`

	// Insecure disables TLS for the OTLP exporters.
	Insecure bool `yaml:"insecure"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Environment: LOG_LEVEL
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`

	// Environment: LOG_FORMAT
	Format string `yaml:"format" validate:"oneof=json text"`

	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// Default returns a Config with every default applied. Orchestrator.URL has
// no default and must be supplied.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr: "127.0.0.1:7460",
		},
		Orchestrator: OrchestratorConfig{
			Timeout: 10 * time.Second,
		},
		Loader: LoaderConfig{
			Backend: BackendStatic,
		},
		Handoff: HandoffConfig{
			ErrorPolicy: "fail-stop",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads configuration from configPath (optional), applies defaults to
// unset fields and environment overrides, then validates the result.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads configuration like Load but does not validate it, so callers
// can apply command-line overrides first and then call Check.
func Read(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &hosterrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the configuration and wraps failures in a ConfigError.
func (c *Config) Check() error {
	if err := c.Validate(); err != nil {
		return &hosterrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen.Addr == "" {
		c.Listen.Addr = def.Listen.Addr
	}
	if c.Orchestrator.Timeout == 0 {
		c.Orchestrator.Timeout = def.Orchestrator.Timeout
	}
	if c.Loader.Backend == "" {
		c.Loader.Backend = def.Loader.Backend
	}
	if c.Handoff.ErrorPolicy == "" {
		c.Handoff.ErrorPolicy = def.Handoff.ErrorPolicy
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
}

func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies environment overrides. Unlike string settings,
// malformed numbers and durations are reported rather than ignored.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("SERVICEHOST_LISTEN_ADDR"); val != "" {
		c.Listen.Addr = val
	}
	if val := os.Getenv("SERVICEHOST_ORCHESTRATOR_URL"); val != "" {
		c.Orchestrator.URL = val
	}
	if val := os.Getenv("SERVICEHOST_ORCHESTRATOR_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("SERVICEHOST_ORCHESTRATOR_TIMEOUT", err)
		}
		c.Orchestrator.Timeout = d
	}
	if val := os.Getenv("SERVICEHOST_LOADER_BACKEND"); val != "" {
		c.Loader.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("SERVICEHOST_NAMESPACE_BASE"); val != "" {
		c.Loader.NamespaceBase = val
	}
	if val := os.Getenv("SERVICEHOST_ERROR_POLICY"); val != "" {
		c.Handoff.ErrorPolicy = strings.ToLower(val)
	}
	if val := os.Getenv("SERVICEHOST_JOURNAL_PATH"); val != "" {
		c.Journal.Path = val
	}
	if val := os.Getenv("SERVICEHOST_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SERVICEHOST_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("SERVICEHOST_TRACING_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("SERVICEHOST_PID_FILE"); val != "" {
		c.PIDFile = val
	}
	if val := os.Getenv("SERVICEHOST_START_SEQ"); val != "" {
		seq, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return envError("SERVICEHOST_START_SEQ", err)
		}
		c.StartSeq = seq
	}
	if val := os.Getenv("SERVICEHOST_SHUTDOWN_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("SERVICEHOST_SHUTDOWN_TIMEOUT", err)
		}
		c.ShutdownTimeout = d
	}

	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
	return nil
}

func envError(name string, err error) error {
	return &hosterrors.ConfigError{Key: name, Reason: "invalid environment value", Cause: err}
}

// validate is shared; building a validator is expensive.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report YAML keys rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the configuration. Every violation is reported as a
// ValidationError naming the dotted YAML key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	errs := make([]error, 0, len(fieldErrs)+1)
	errs = append(errs, ErrInvalidConfig)
	for _, fe := range fieldErrs {
		errs = append(errs, &hosterrors.ValidationError{
			Field:   fieldKey(fe),
			Message: describe(fe),
		})
	}
	return errors.Join(errs...)
}

// fieldKey strips the root struct name from the validator namespace.
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %q", fmt.Sprint(fe.Value()))
	case "http_url":
		return fmt.Sprintf("must be an http or https URL, got %q", fmt.Sprint(fe.Value()))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "excludesall":
		return "must not contain path separators"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// NamespaceBaseName returns the configured namespace base, or the one
// derived from StartSeq.
func (c *Config) NamespaceBaseName() string {
	if c.Loader.NamespaceBase != "" {
		return c.Loader.NamespaceBase
	}
	return fmt.Sprintf("native_app_%d", c.StartSeq)
}
