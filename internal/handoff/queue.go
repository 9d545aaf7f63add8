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
	"sync"
)

// taskQueue is an unbounded multi-producer FIFO.
type taskQueue[T any] struct {
	mu     sync.Mutex
	tasks  []T
	closed bool
}

func (q *taskQueue[T]) push(task T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrHandlerClosed
	}
	q.tasks = append(q.tasks, task)
	return len(q.tasks), nil
}

func (q *taskQueue[T]) pop() (T, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.closed || len(q.tasks) == 0 {
		return zero, 0, false
	}
	task := q.tasks[0]
	q.tasks[0] = zero
	q.tasks = q.tasks[1:]
	return task, len(q.tasks), true
}

func (q *taskQueue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// close rejects further pushes and discards pending tasks, returning how many
// were dropped.
func (q *taskQueue[T]) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.tasks)
	q.tasks = nil
	return dropped
}
