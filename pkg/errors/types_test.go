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

package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

func TestSetupError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *hosterrors.SetupError
		wantMsg string
	}{
		{
			name:    "with target and cause",
			err:     &hosterrors.SetupError{Stage: hosterrors.StageLoad, Target: "libfoo.so", Cause: errors.New("dlopen failed")},
			wantMsg: "load failed for libfoo.so: dlopen failed",
		},
		{
			name:    "stage only",
			err:     &hosterrors.SetupError{Stage: hosterrors.StageNamespace},
			wantMsg: "namespace failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestSetupError_Unwrap(t *testing.T) {
	cause := errors.New("symbol missing")
	err := fmt.Errorf("create: %w", &hosterrors.SetupError{Stage: hosterrors.StageResolve, Cause: cause})

	assert.True(t, errors.Is(err, cause))

	var setupErr *hosterrors.SetupError
	assert.True(t, errors.As(err, &setupErr))
	assert.Equal(t, hosterrors.StageResolve, setupErr.Stage)
}

func TestNotFoundError_Error(t *testing.T) {
	err := &hosterrors.NotFoundError{Resource: "service", ID: "tok-7"}
	assert.Equal(t, "service not found: tok-7", err.Error())
	assert.True(t, hosterrors.IsNotFound(fmt.Errorf("bind: %w", err)))
	assert.False(t, hosterrors.IsNotFound(errors.New("other")))
}

func TestProtocolError_Error(t *testing.T) {
	assert.Equal(t, "bind_service: onBind returned a null capability",
		(&hosterrors.ProtocolError{Command: "bind_service", Reason: "onBind returned a null capability"}).Error())
	assert.Equal(t, "bad level", (&hosterrors.ProtocolError{Reason: "bad level"}).Error())
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &hosterrors.TransportError{Call: "publishService", Cause: cause}

	assert.Equal(t, "failed to call publishService: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
}

func TestConfigError_Error(t *testing.T) {
	err := &hosterrors.ConfigError{Key: "orchestrator.url", Reason: "required", Cause: errors.New("empty")}
	assert.Equal(t, "config error at orchestrator.url: required: empty", err.Error())
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"setup", &hosterrors.SetupError{Stage: hosterrors.StageLoad}, hosterrors.TypeSetup},
		{"wrapped not found", fmt.Errorf("x: %w", &hosterrors.NotFoundError{}), hosterrors.TypeNotFound},
		{"protocol", &hosterrors.ProtocolError{}, hosterrors.TypeProtocol},
		{"transport", &hosterrors.TransportError{}, hosterrors.TypeTransport},
		{"canceled", context.Canceled, "context_canceled"},
		{"plain", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hosterrors.TypeOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, hosterrors.Wrap(nil, "ignored"))

	base := errors.New("base")
	err := hosterrors.Wrapf(base, "closing %s", "ns_1")
	assert.Equal(t, "closing ns_1: base", err.Error())
	assert.True(t, hosterrors.Is(err, base))
}
