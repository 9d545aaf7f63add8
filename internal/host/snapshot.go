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
	"sort"
	"time"

	"github.com/tombee/servicehost/internal/command"
)

// ServiceStatus describes one hosted service.
type ServiceStatus struct {
	Token          string    `json:"token"`
	State          string    `json:"state"`
	Library        string    `json:"library"`
	Namespace      string    `json:"namespace"`
	Callbacks      []string  `json:"callbacks"`
	Binds          int       `json:"binds"`
	CreatedAt      time.Time `json:"created_at"`
	LastTransition time.Time `json:"last_transition"`
}

// Snapshot is an immutable view of the manager's state.
type Snapshot struct {
	Services         []ServiceStatus      `json:"services"`
	ProcessState     command.ProcessState `json:"process_state"`
	ProcessStateName string               `json:"process_state_name"`
	StartSeq         int64                `json:"start_seq"`
	Commands         uint64               `json:"commands"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Tokens returns the tokens of all hosted services in sorted order.
func (s *Snapshot) Tokens() []string {
	tokens := make([]string, len(s.Services))
	for i, svc := range s.Services {
		tokens[i] = svc.Token
	}
	return tokens
}

// Service returns the status for token.
func (s *Snapshot) Service(token string) (ServiceStatus, bool) {
	i := sort.Search(len(s.Services), func(i int) bool { return s.Services[i].Token >= token })
	if i < len(s.Services) && s.Services[i].Token == token {
		return s.Services[i], true
	}
	return ServiceStatus{}, false
}

// publishSnapshot copies the table into a new Snapshot.
func (m *Manager) publishSnapshot() {
	snap := &Snapshot{
		Services:         make([]ServiceStatus, 0, len(m.services)),
		ProcessState:     m.processState,
		ProcessStateName: m.processState.String(),
		StartSeq:         m.startSeq,
		Commands:         m.commands,
		UpdatedAt:        m.now(),
	}
	for _, token := range m.sortedTokens() {
		svc := m.services[token]
		snap.Services = append(snap.Services, ServiceStatus{
			Token:          svc.token,
			State:          svc.state.String(),
			Library:        svc.library,
			Namespace:      svc.namespace.Name(),
			Callbacks:      svc.callbacks.Implemented(),
			Binds:          svc.binds,
			CreatedAt:      svc.createdAt,
			LastTransition: svc.lastTransition,
		})
	}
	m.snapshot.Store(snap)
}
