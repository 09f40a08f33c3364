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

package task

import "sync/atomic"

// Handle is the affine, exactly-once-consumable reference to a spawned
// task returned to its spawner. Exactly one of Join, Detach or Cancel may
// be called on a given Handle; any second call panics.
type Handle struct {
	t        *Task
	consumed atomic.Bool
}

func newHandle(t *Task) *Handle {
	return &Handle{t: t}
}

func (h *Handle) consume(op string) {
	if !h.consumed.CompareAndSwap(false, true) {
		panic("raskrt: " + op + " on consumed TaskHandle")
	}
}

// Join blocks the calling goroutine until the task completes and returns
// its outcome. Panics if the task itself panicked, carrying the original
// message, unless the caller prefers to inspect Outcome.Kind directly via
// TryJoin.
func (h *Handle) Join() (int64, error) {
	h.consume("join")
	out := h.t.Wait()
	h.t.decref()
	switch out.Kind {
	case Failed:
		panic("task panicked: " + out.Message)
	case Cancelled:
		return 0, ErrCancelled
	}
	return out.Value, out.Err
}

// TryJoin is Join without the panic-propagation convenience: the caller
// gets the raw Outcome, including Failed, to handle as it sees fit.
func (h *Handle) TryJoin() Outcome {
	h.consume("join")
	out := h.t.Wait()
	h.t.decref()
	return out
}

// Detach releases the handle's reference without waiting. If the task
// panics while detached (or already has), the failure is logged rather
// than propagated anywhere (there is no joiner left to propagate it to).
func (h *Handle) Detach() {
	h.consume("detach")
	h.t.markDetached()
	h.t.decref()
}

// Cancel sets the task's cooperative cancellation flag (release ordering),
// then behaves exactly like Join: it blocks until the task reaches a
// terminal outcome, releases the handle's reference, and returns the
// result. If the task panicked instead of observing the cancellation, the
// panic is re-raised here just as it is from Join.
func (h *Handle) Cancel() (int64, error) {
	h.consume("cancel")
	h.t.Cancel()
	out := h.t.Wait()
	h.t.decref()
	switch out.Kind {
	case Failed:
		panic("task panicked: " + out.Message)
	case Cancelled:
		return 0, ErrCancelled
	}
	return out.Value, out.Err
}

// IsCancelled reports the task's cancellation flag without consuming the
// handle. Safe to call any number of times.
func (h *Handle) IsCancelled() bool {
	return h.t.cancelled.Load()
}
