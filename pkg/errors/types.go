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

package errors

import (
	"fmt"
)

// Error type identifiers returned by ErrorType.
const (
	TypeSetup      = "setup"
	TypeNotFound   = "not_found"
	TypeProtocol   = "protocol"
	TypeTransport  = "transport"
	TypeConfig     = "config"
	TypeValidation = "validation"
)

// Setup stages reported by SetupError.
const (
	StageNamespace = "namespace"
	StageLoad      = "load"
	StageResolve   = "resolve"
)

// SetupError represents a failure while materialising a hosted service:
// namespace creation, module load or symbol resolution.
// No service is registered when a SetupError is returned.
type SetupError struct {
	// Stage is one of StageNamespace, StageLoad, StageResolve
	Stage string

	// Target names the namespace, library or symbol involved
	Target string

	// Cause carries the underlying loader diagnostic
	Cause error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Stage)
	if e.Target != "" {
		msg = fmt.Sprintf("%s failed for %s", e.Stage, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SetupError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *SetupError) ErrorType() string { return TypeSetup }

// IsRetryable implements ErrorClassifier.
func (e *SetupError) IsRetryable() bool { return false }

// NotFoundError represents a lookup of an identifier that is not registered.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "service")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return TypeNotFound }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ProtocolError represents a command that is well-formed on the wire but
// violates the hosting contract: an unrecognised trim level, a module that
// returned a null capability or lacks a required entry point, a create for a
// token that is already live.
type ProtocolError struct {
	// Command is the command kind being executed
	Command string

	// Reason explains the violation
	Reason string

	// Cause is an optional sentinel for errors.Is matching
	Cause error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}
	return e.Reason
}

// Unwrap returns the sentinel cause, if any.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ProtocolError) ErrorType() string { return TypeProtocol }

// IsRetryable implements ErrorClassifier.
func (e *ProtocolError) IsRetryable() bool { return false }

// TransportError represents a failure to deliver an outbound call to the
// orchestrator. State changes made before the call are not rolled back.
type TransportError struct {
	// Call is the outbound operation (e.g., "serviceDoneExecuting")
	Call string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to call %s: %v", e.Call, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return TypeTransport }

// IsRetryable implements ErrorClassifier. Outbound calls acknowledge
// non-idempotent state changes and are never retried.
func (e *TransportError) IsRetryable() bool { return false }

// ValidationError represents input validation failures.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return TypeValidation }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "orchestrator.url")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s", e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return TypeConfig }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }
