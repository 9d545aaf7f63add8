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
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsCreateFunc(t *testing.T) {
	var called int
	named := CreateFunc(func(ctx context.Context, cb *Callbacks) { called++ })
	plain := func(ctx context.Context, cb *Callbacks) { called++ }

	tests := []struct {
		name    string
		sym     any
		wantErr bool
	}{
		{"named", named, false},
		{"plain func", plain, false},
		{"pointer to named", &named, false},
		{"pointer to plain", &plain, false},
		{"nil named", CreateFunc(nil), true},
		{"wrong signature", func() {}, true},
		{"not a function", 42, true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := AsCreateFunc(tt.sym)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSymbolType)
				assert.Nil(t, fn)
				return
			}
			require.NoError(t, err)
			before := called
			fn(context.Background(), &Callbacks{})
			assert.Equal(t, before+1, called)
		})
	}
}

func TestCallbacks_Implemented(t *testing.T) {
	var nilTable *Callbacks
	assert.Empty(t, nilTable.Implemented())

	cb := &Callbacks{
		OnBind:    func(context.Context, int64, *string, *string) any { return nil },
		OnDestroy: func(context.Context) {},
	}
	assert.Equal(t, []string{"onBind", "onDestroy"}, cb.Implemented())
}

func TestTrimLevel(t *testing.T) {
	assert.True(t, TrimMemoryUIHidden.Valid())
	assert.True(t, TrimMemoryBackground.Valid())
	assert.False(t, TrimLevel(0).Valid())
	assert.False(t, TrimLevel(15).Valid())

	assert.Equal(t, "background", TrimMemoryBackground.String())
	assert.Equal(t, "TrimLevel(5)", TrimLevel(5).String())

	level, ok := ParseTrimLevel("ui-hidden")
	assert.True(t, ok)
	assert.Equal(t, TrimMemoryUIHidden, level)

	_, ok = ParseTrimLevel("complete")
	assert.False(t, ok)
}

func TestNewReference(t *testing.T) {
	ref, err := NewReference("svc", "bind-3", "binder")
	require.NoError(t, err)
	assert.Equal(t, "svc", ref.ServiceToken)
	assert.Equal(t, "bind-3", ref.BindToken)
	assert.Equal(t, "string", ref.Kind)
	_, parseErr := uuid.Parse(ref.ID)
	assert.NoError(t, parseErr)

	_, err = NewReference("svc", "bind-3", nil)
	assert.ErrorIs(t, err, ErrNullCapability)

	_, err = NewReference("svc", "bind-3", uint64(0))
	assert.ErrorIs(t, err, ErrNullCapability)

	ref, err = NewReference("svc", "bind-3", uint64(17))
	require.NoError(t, err)
	assert.Equal(t, "uint64", ref.Kind)
}

func TestNewReference_TypedNil(t *testing.T) {
	type capability struct{}
	var nilIface interface{ Close() error }

	for name, handle := range map[string]any{
		"pointer": (*capability)(nil),
		"slice":   []byte(nil),
		"map":     map[string]string(nil),
		"chan":    (chan int)(nil),
		"func":    (func())(nil),
		"iface":   nilIface,
	} {
		_, err := NewReference("svc", "bind-3", handle)
		assert.ErrorIs(t, err, ErrNullCapability, name)
	}

	ref, err := NewReference("svc", "bind-3", &capability{})
	require.NoError(t, err)
	assert.Equal(t, "*abi.capability", ref.Kind)

	_, err = NewReference("svc", "bind-3", []byte{})
	assert.NoError(t, err, "an empty non-nil slice is a valid handle")
}
