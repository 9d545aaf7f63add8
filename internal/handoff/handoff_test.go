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

package handoff

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startReactor(t *testing.T) *Reactor {
	t.Helper()
	r := NewReactor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

type recorder struct {
	mu    sync.Mutex
	tasks []int
}

func (r *recorder) HandleTask(ctx context.Context, task int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func TestSend_SingleSenderOrder(t *testing.T) {
	r := startReactor(t)
	rec := &recorder{}
	_, sender, err := NewHandler[int](r, rec, WithName("single-order"))
	require.NoError(t, err)

	want := make([]int, 100)
	for i := range want {
		want[i] = i
		require.NoError(t, sender.Send(i))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == len(want) }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.snapshot())
}

func TestSend_ConcurrentSendersPreservePerSenderOrder(t *testing.T) {
	r := startReactor(t)

	const senders = 8
	const perSender = 200

	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	got := make(map[int][]int)

	cb := CallbackFunc[[2]int](func(ctx context.Context, task [2]int) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		mu.Lock()
		got[task[0]] = append(got[task[0]], task[1])
		mu.Unlock()
		inFlight.Add(-1)
		return nil
	})

	_, sender, err := NewHandler[[2]int](r, cb, WithName("concurrent-order"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(id int, snd Sender[[2]int]) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				assert.NoError(t, snd.Send([2]int{id, i}))
			}
		}(s, sender)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, seq := range got {
			total += len(seq)
		}
		return total == senders*perSender
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id := 0; id < senders; id++ {
		seq := got[id]
		require.Len(t, seq, perSender)
		for i, v := range seq {
			require.Equal(t, i, v, "sender %d out of order", id)
		}
	}
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestSend_ConcurrentSendersPreserveGlobalOrder(t *testing.T) {
	r := startReactor(t)
	rec := &recorder{}
	_, sender, err := NewHandler[int](r, rec, WithName("global-order"))
	require.NoError(t, err)

	const senders, perSender = 8, 200

	// Holding enqueueMu across Send makes the append to order the observed
	// global enqueue order.
	var enqueueMu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				task := id*perSender + i
				enqueueMu.Lock()
				err := sender.Send(task)
				order = append(order, task)
				enqueueMu.Unlock()
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == senders*perSender
	}, 5*time.Second, 5*time.Millisecond)

	enqueueMu.Lock()
	defer enqueueMu.Unlock()
	assert.Equal(t, order, rec.snapshot())
}

func TestSend_DoesNotRunCallbackInline(t *testing.T) {
	// The reactor is never started, so nothing may be dispatched.
	r := NewReactor(nil)
	rec := &recorder{}
	h, sender, err := NewHandler[int](r, rec)
	require.NoError(t, err)

	require.NoError(t, sender.Send(1))
	require.NoError(t, sender.Send(2))
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 2, h.Pending())
}

func TestFailStop(t *testing.T) {
	r := startReactor(t)
	boom := errors.New("boom")
	var handled atomic.Int32

	cb := CallbackFunc[int](func(ctx context.Context, task int) error {
		handled.Add(1)
		if task == 2 {
			return boom
		}
		return nil
	})
	h, sender, err := NewHandler[int](r, cb, WithName("fail-stop"))
	require.NoError(t, err)

	require.NoError(t, sender.Send(1))
	require.NoError(t, sender.Send(2))

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not close after callback error")
	}

	assert.ErrorIs(t, h.Err(), boom)
	assert.ErrorIs(t, sender.Send(3), ErrHandlerClosed)
	assert.Equal(t, int32(2), handled.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(tasksDispatched.WithLabelValues("fail-stop", outcomeFatal)))
}

func TestContinueOnError(t *testing.T) {
	r := startReactor(t)
	rec := &recorder{}
	cb := CallbackFunc[int](func(ctx context.Context, task int) error {
		_ = rec.HandleTask(ctx, task)
		if task%2 == 0 {
			return errors.New("even")
		}
		return nil
	})
	h, sender, err := NewHandler[int](r, cb, WithName("continue"), WithErrorPolicy(ContinueOnError))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, sender.Send(i))
	}
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(tasksDispatched.WithLabelValues("continue", outcomeError)) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(tasksDispatched.WithLabelValues("continue", outcomeOK)))
	assert.NoError(t, h.Err())
}

func TestHandlerClose(t *testing.T) {
	r := NewReactor(nil)
	h, sender, err := NewHandler[int](r, &recorder{})
	require.NoError(t, err)

	require.NoError(t, sender.Send(1))
	h.Close()
	h.Close()

	assert.ErrorIs(t, sender.Send(2), ErrHandlerClosed)
	assert.Equal(t, 0, h.Pending())
	assert.ErrorIs(t, r.RemoveSource(h.source), ErrUnknownSource)

	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestZeroSender(t *testing.T) {
	var s Sender[int]
	assert.ErrorIs(t, s.Send(1), ErrHandlerClosed)
}

func TestReactor_CoalescesWakes(t *testing.T) {
	r := NewReactor(nil)
	var calls atomic.Int32
	src, err := r.AddSource(func(ctx context.Context) { calls.Add(1) })
	require.NoError(t, err)

	src.Wake()
	src.Wake()
	src.Wake()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	src.Wake()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestReactor_RunTwice(t *testing.T) {
	r := NewReactor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, r.running.Load, 5*time.Second, time.Millisecond)
	assert.ErrorIs(t, r.Run(ctx), ErrReactorRunning)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReactor_Stop(t *testing.T) {
	r := NewReactor(nil)
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	r.Stop()
	r.Stop()
	assert.NoError(t, <-done)

	_, err := r.AddSource(func(context.Context) {})
	assert.ErrorIs(t, err, ErrReactorStopped)

	_, _, err = NewHandler[int](r, &recorder{})
	assert.ErrorIs(t, err, ErrReactorStopped)
}

func TestRemovedSourceIgnoresWake(t *testing.T) {
	r := startReactor(t)
	var calls atomic.Int32
	src, err := r.AddSource(func(ctx context.Context) { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, r.RemoveSource(src))
	src.Wake()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestParseErrorPolicy(t *testing.T) {
	p, ok := ParseErrorPolicy("continue")
	assert.True(t, ok)
	assert.Equal(t, ContinueOnError, p)

	p, ok = ParseErrorPolicy("")
	assert.True(t, ok)
	assert.Equal(t, FailStop, p)

	_, ok = ParseErrorPolicy("retry")
	assert.False(t, ok)
	assert.Equal(t, "fail-stop", FailStop.String())
}
