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

// Package orchestrator implements the host's outbound calls to the
// orchestrator that controls it.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/tombee/servicehost/internal/abi"
)

// DoneKind tells the orchestrator which lifecycle step a service finished.
type DoneKind int32

// Done kinds, numbered as the orchestrator expects them.
const (
	DoneGeneric DoneKind = 0
	DoneStart   DoneKind = 1
	DoneStop    DoneKind = 2
	DoneRebind  DoneKind = 3
	DoneUnbind  DoneKind = 4
)

// String implements fmt.Stringer.
func (k DoneKind) String() string {
	switch k {
	case DoneGeneric:
		return "generic"
	case DoneStart:
		return "start"
	case DoneStop:
		return "stop"
	case DoneRebind:
		return "rebind"
	case DoneUnbind:
		return "unbind"
	default:
		return fmt.Sprintf("DoneKind(%d)", int32(k))
	}
}

// Outbound call names, used in errors, spans and metrics.
const (
	CallServiceDoneExecuting    = "serviceDoneExecuting"
	CallPublishService          = "publishService"
	CallUnbindFinished          = "unbindFinished"
	CallFinishAttachApplication = "finishAttachApplication"
)

// Client is the set of calls the host makes to the orchestrator. None of
// them are retried: each acknowledges a state change that has already
// happened.
type Client interface {
	ServiceDoneExecuting(ctx context.Context, token string, kind DoneKind, arg1, arg2 int32) error
	PublishService(ctx context.Context, token, bindToken string, ref abi.Reference) error
	UnbindFinished(ctx context.Context, token, bindToken string) error
	FinishAttachApplication(ctx context.Context, startSeq, extra int64) error
}
