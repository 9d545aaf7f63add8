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

package abi

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Reference wraps a capability returned by a module's bind entry point into a
// value that can be published to the orchestrator.
type Reference struct {
	// ID uniquely identifies this publication.
	ID string `json:"id"`

	ServiceToken string `json:"service_token"`
	BindToken    string `json:"bind_token"`

	// Kind describes the handle's dynamic type.
	Kind string `json:"kind"`

	// Handle is the module-supplied capability. It is never nil.
	Handle any `json:"-"`
}

// NewReference wraps handle. It fails with ErrNullCapability when handle is
// nil, a typed nil (pointer, map, slice, func, chan or interface) or a zero
// wasm handle.
func NewReference(serviceToken, bindToken string, handle any) (Reference, error) {
	if isNull(handle) {
		return Reference{}, ErrNullCapability
	}
	return Reference{
		ID:           uuid.New().String(),
		ServiceToken: serviceToken,
		BindToken:    bindToken,
		Kind:         fmt.Sprintf("%T", handle),
		Handle:       handle,
	}, nil
}

func isNull(handle any) bool {
	if handle == nil {
		return true
	}
	if h, ok := handle.(uint64); ok {
		return h == 0
	}
	v := reflect.ValueOf(handle)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}
