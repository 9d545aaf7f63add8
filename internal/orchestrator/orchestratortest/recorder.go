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

// Package orchestratortest provides an in-memory orchestrator.Client for tests.
package orchestratortest

import (
	"context"
	"sync"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/orchestrator"
)

// Call is one recorded outbound call.
type Call struct {
	Name      string
	Token     string
	BindToken string
	Kind      orchestrator.DoneKind
	Arg1      int32
	Arg2      int32
	Reference abi.Reference
	StartSeq  int64
	Extra     int64
}

// Recorder records calls in order. Failures can be injected per call name.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[string]error)}
}

// FailOn makes every later call named name return err. A nil err clears it.
// The failing call is still recorded.
func (r *Recorder) FailOn(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, name)
		return
	}
	r.fail[name] = err
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Names returns the names of the recorded calls in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Name
	}
	return names
}

// Reset forgets recorded calls. Injected failures are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.fail[c.Name]
}

// ServiceDoneExecuting implements orchestrator.Client.
func (r *Recorder) ServiceDoneExecuting(ctx context.Context, token string, kind orchestrator.DoneKind, arg1, arg2 int32) error {
	return r.record(Call{Name: orchestrator.CallServiceDoneExecuting, Token: token, Kind: kind, Arg1: arg1, Arg2: arg2})
}

// PublishService implements orchestrator.Client.
func (r *Recorder) PublishService(ctx context.Context, token, bindToken string, ref abi.Reference) error {
	return r.record(Call{Name: orchestrator.CallPublishService, Token: token, BindToken: bindToken, Reference: ref})
}

// UnbindFinished implements orchestrator.Client.
func (r *Recorder) UnbindFinished(ctx context.Context, token, bindToken string) error {
	return r.record(Call{Name: orchestrator.CallUnbindFinished, Token: token, BindToken: bindToken})
}

// FinishAttachApplication implements orchestrator.Client.
func (r *Recorder) FinishAttachApplication(ctx context.Context, startSeq, extra int64) error {
	return r.record(Call{Name: orchestrator.CallFinishAttachApplication, StartSeq: startSeq, Extra: extra})
}

var _ orchestrator.Client = (*Recorder)(nil)
