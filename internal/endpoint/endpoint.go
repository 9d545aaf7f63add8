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

package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/command"
	"github.com/tombee/servicehost/internal/tracing"
)

// ErrHostUnavailable is returned when a command could not be queued.
var ErrHostUnavailable = errors.New("host unavailable")

// Sender queues commands for the lifecycle manager. handoff.Sender satisfies
// it.
type Sender interface {
	Send(cmd command.Command) error
}

// Endpoint holds nothing but the Sender. It performs no validation beyond
// type conversion; the lifecycle manager rejects what it cannot execute.
type Endpoint struct {
	sender Sender
}

// New creates an Endpoint that forwards to sender.
func New(sender Sender) *Endpoint {
	return &Endpoint{sender: sender}
}

func (e *Endpoint) send(ctx context.Context, cmd command.Command) error {
	cmd = command.WithCorrelationID(cmd, tracing.FromContextOrEmpty(ctx).String())
	if err := e.sender.Send(cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHostUnavailable, cmd.Kind(), err)
	}
	return nil
}

// CreateService queues the creation of a hosted service.
func (e *Endpoint) CreateService(ctx context.Context, token string, libraryPaths []string, permittedLibsDir, libraryName, baseSymbolName string, processState command.ProcessState) error {
	return e.send(ctx, command.CreateService{
		Token:            token,
		LibraryPaths:     libraryPaths,
		PermittedLibsDir: permittedLibsDir,
		LibraryName:      libraryName,
		BaseSymbolName:   baseSymbolName,
		ProcessState:     processState,
	})
}

// DestroyService queues the destruction of a hosted service.
func (e *Endpoint) DestroyService(ctx context.Context, token string) error {
	return e.send(ctx, command.DestroyService{Token: token})
}

// BindService queues a bind, or a rebind when rebind is set.
func (e *Endpoint) BindService(ctx context.Context, token, bindToken string, intentHash int64, action, data *string, rebind bool, processState command.ProcessState, bindSeq int64) error {
	return e.send(ctx, command.BindService{
		Token:        token,
		BindToken:    bindToken,
		IntentHash:   intentHash,
		Action:       action,
		Data:         data,
		Rebind:       rebind,
		ProcessState: processState,
		BindSeq:      bindSeq,
	})
}

// UnbindService queues an unbind.
func (e *Endpoint) UnbindService(ctx context.Context, token, bindToken string, intentHash int64) error {
	return e.send(ctx, command.UnbindService{Token: token, BindToken: bindToken, IntentHash: intentHash})
}

// TrimMemory queues a trim request for every hosted service. The level is
// not checked here.
func (e *Endpoint) TrimMemory(ctx context.Context, level int32) error {
	return e.send(ctx, command.TrimMemory{Level: abi.TrimLevel(level)})
}

// SetProcessState queues a process importance update.
func (e *Endpoint) SetProcessState(ctx context.Context, state int32) error {
	return e.send(ctx, command.SetProcessState{State: command.ProcessState(state)})
}

// BindApplication queues the bind-application handshake.
func (e *Endpoint) BindApplication(ctx context.Context) error {
	return e.send(ctx, command.BindApplication{})
}
