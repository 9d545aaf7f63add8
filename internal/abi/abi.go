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

// Package abi defines the contract between the service host and the modules
// it loads.
//
// A module exports one creation entry point. The host calls it exactly once
// after loading the module, passing a zero-valued Callbacks table; the module
// fills in the entry points it implements and leaves the rest nil.
//
//	func Create(ctx context.Context, cb *abi.Callbacks) {
//	    cb.OnBind = func(ctx context.Context, intent int64, action, data *string) any {
//	        return newBinder()
//	    }
//	    cb.OnDestroy = func(ctx context.Context) { closeAll() }
//	}
//
// The table belongs to the module that produced it: the host never invokes an
// entry point after it has started unloading that module.
package abi

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSymbolType is returned when a resolved symbol is not a creation entry point.
	ErrSymbolType = errors.New("abi: symbol is not a creation entry point")

	// ErrNullCapability is returned when a bind entry point returns no capability.
	ErrNullCapability = errors.New("abi: onBind returned a null capability")
)

// CreateFunc is the signature of a module's creation entry point.
type CreateFunc func(ctx context.Context, cb *Callbacks)

// Callbacks is the table of optional lifecycle entry points supplied by a
// module. A nil field means the module does not implement that entry point.
type Callbacks struct {
	// OnBind returns the capability published for a bind request, or nil.
	// action and data are nil when the request did not carry them.
	OnBind func(ctx context.Context, intent int64, action, data *string) any

	// OnUnbind reports whether the module wants a later rebind.
	OnUnbind func(ctx context.Context, intent int64) bool

	OnRebind func(ctx context.Context, intent int64)

	OnDestroy func(ctx context.Context)

	OnTrimMemory func(ctx context.Context, level TrimLevel)
}

// Implemented returns the names of the entry points present in the table.
func (c *Callbacks) Implemented() []string {
	if c == nil {
		return nil
	}
	var names []string
	if c.OnBind != nil {
		names = append(names, "onBind")
	}
	if c.OnUnbind != nil {
		names = append(names, "onUnbind")
	}
	if c.OnRebind != nil {
		names = append(names, "onRebind")
	}
	if c.OnDestroy != nil {
		names = append(names, "onDestroy")
	}
	if c.OnTrimMemory != nil {
		names = append(names, "onTrimMemory")
	}
	return names
}

// AsCreateFunc converts a resolved symbol into a CreateFunc.
func AsCreateFunc(sym any) (CreateFunc, error) {
	switch fn := sym.(type) {
	case CreateFunc:
		if fn != nil {
			return fn, nil
		}
	case func(context.Context, *Callbacks):
		if fn != nil {
			return fn, nil
		}
	case *CreateFunc:
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	case *func(context.Context, *Callbacks):
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	}
	return nil, fmt.Errorf("%w: got %T", ErrSymbolType, sym)
}

// TrimLevel is a coarse memory-pressure signal forwarded to modules.
type TrimLevel int32

const (
	// TrimMemoryUIHidden is sent when the process's UI is no longer visible.
	TrimMemoryUIHidden TrimLevel = 20

	// TrimMemoryBackground is sent when the process has moved to the background.
	TrimMemoryBackground TrimLevel = 40
)

// Valid reports whether l is one of the recognised trim levels.
func (l TrimLevel) Valid() bool {
	return l == TrimMemoryUIHidden || l == TrimMemoryBackground
}

// String implements fmt.Stringer.
func (l TrimLevel) String() string {
	switch l {
	case TrimMemoryUIHidden:
		return "ui-hidden"
	case TrimMemoryBackground:
		return "background"
	default:
		return fmt.Sprintf("TrimLevel(%d)", int32(l))
	}
}

// ParseTrimLevel accepts the symbolic names used on the wire.
func ParseTrimLevel(s string) (TrimLevel, bool) {
	switch s {
	case "ui-hidden", "ui_hidden":
		return TrimMemoryUIHidden, true
	case "background":
		return TrimMemoryBackground, true
	}
	return 0, false
}
