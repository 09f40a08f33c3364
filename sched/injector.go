/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sched

import (
	"sync"

	"github.com/cloudwego/raskrt/task"
)

// injector is the global, mutex-protected injection queue. Tasks land here
// when spawned from outside any worker goroutine (Scheduler.Spawn) and when
// an I/O completion callback re-enqueues them.
type injector struct {
	mu    sync.Mutex
	items []*task.Task
}

func newInjector() *injector {
	return &injector{}
}

func (q *injector) push(t *task.Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

func (q *injector) pop() (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

func (q *injector) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
