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

// Package command defines the lifecycle commands delivered to the host.
//
// Commands are immutable values. They are built on whichever goroutine
// received the request and handed, in order, to the lifecycle manager on the
// owner goroutine.
package command

import (
	"github.com/tombee/servicehost/internal/abi"
)

// Kind identifies a command type.
type Kind string

// Command kinds.
const (
	KindCreateService   Kind = "create_service"
	KindDestroyService  Kind = "destroy_service"
	KindBindService     Kind = "bind_service"
	KindUnbindService   Kind = "unbind_service"
	KindTrimMemory      Kind = "trim_memory"
	KindBindApplication Kind = "bind_application"
	KindSetProcessState Kind = "set_process_state"
)

// Command is implemented by every command value.
type Command interface {
	Kind() Kind

	// ServiceToken returns the target service token, or "" for commands that
	// apply to the whole process.
	ServiceToken() string
}

// CreateService loads a module and registers a new service under Token.
type CreateService struct {
	Token            string
	LibraryPaths     []string
	PermittedLibsDir string
	LibraryName      string
	BaseSymbolName   string
	ProcessState     ProcessState
}

func (CreateService) Kind() Kind { return KindCreateService }
func (c CreateService) ServiceToken() string { return c.Token }

// DestroyService tears down the service registered under Token.
type DestroyService struct {
	Token string
}

func (DestroyService) Kind() Kind { return KindDestroyService }
func (c DestroyService) ServiceToken() string { return c.Token }

// BindService binds a client to a service, or rebinds when Rebind is set.
// Action and Data are nil when the request did not carry them.
type BindService struct {
	Token        string
	BindToken    string
	IntentHash   int64
	Action       *string
	Data         *string
	Rebind       bool
	ProcessState ProcessState
	BindSeq      int64
}

func (BindService) Kind() Kind { return KindBindService }
func (c BindService) ServiceToken() string { return c.Token }

// UnbindService unbinds a client from a service.
type UnbindService struct {
	Token      string
	BindToken  string
	IntentHash int64
}

func (UnbindService) Kind() Kind { return KindUnbindService }
func (c UnbindService) ServiceToken() string { return c.Token }

// TrimMemory asks every hosted service to release memory.
type TrimMemory struct {
	Level abi.TrimLevel
}

func (TrimMemory) Kind() Kind { return KindTrimMemory }
func (TrimMemory) ServiceToken() string { return "" }

// BindApplication completes the application attach handshake.
type BindApplication struct{}

func (BindApplication) Kind() Kind { return KindBindApplication }
func (BindApplication) ServiceToken() string { return "" }

// SetProcessState records the orchestrator's importance level for the process.
type SetProcessState struct {
	State ProcessState
}

func (SetProcessState) Kind() Kind { return KindSetProcessState }
func (SetProcessState) ServiceToken() string { return "" }

// Compile-time interface checks.
var (
	_ Command = CreateService{}
	_ Command = DestroyService{}
	_ Command = BindService{}
	_ Command = UnbindService{}
	_ Command = TrimMemory{}
	_ Command = BindApplication{}
	_ Command = SetProcessState{}
)
