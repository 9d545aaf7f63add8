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

package host

import (
	"fmt"
	"time"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/loader"
)

// State is a hosted service's lifecycle state.
type State int

const (
	// StateCreated is entered once the module's entry point has run.
	StateCreated State = iota + 1
	// StateBound means a client is bound.
	StateBound
	// StateRebinding means the last unbind asked for a later rebind.
	StateRebinding
	// StateUnbound means the last client unbound without asking for a rebind.
	StateUnbound
	// StateDestroyed is terminal. Destroyed services are no longer in the table.
	StateDestroyed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateRebinding:
		return "rebinding"
	case StateUnbound:
		return "unbound"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// service is one entry in the manager's table.
type service struct {
	token     string
	library   string
	namespace *loader.Namespace
	module    *loader.Module

	// callbacks is cleared before the module is unloaded.
	callbacks *abi.Callbacks

	state          State
	createdAt      time.Time
	lastTransition time.Time
	binds          int
}

func (s *service) transition(to State, now time.Time) {
	s.state = to
	s.lastTransition = now
}
