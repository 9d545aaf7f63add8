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

package orchestratortest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/servicehost/internal/orchestrator"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	assert.NoError(t, r.ServiceDoneExecuting(ctx, "a", orchestrator.DoneGeneric, 0, 0))

	refused := errors.New("refused")
	r.FailOn(orchestrator.CallUnbindFinished, refused)
	assert.ErrorIs(t, r.UnbindFinished(ctx, "a", "b"), refused)

	r.FailOn(orchestrator.CallUnbindFinished, nil)
	assert.NoError(t, r.UnbindFinished(ctx, "a", "b"))

	assert.Equal(t, []string{
		orchestrator.CallServiceDoneExecuting,
		orchestrator.CallUnbindFinished,
		orchestrator.CallUnbindFinished,
	}, r.Names())

	r.Reset()
	assert.Empty(t, r.Calls())
}
