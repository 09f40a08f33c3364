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
	"runtime"
	"time"

	"github.com/bytedance/gopkg/util/xxhash3"

	"github.com/cloudwego/raskrt/container/workdeque"
	"github.com/cloudwego/raskrt/panicplane"
	"github.com/cloudwego/raskrt/task"
)

// seedRNG derives a XorShift32 seed for worker id from its hash, rather
// than a raw multiply-seed, so nearby worker ids don't produce correlated
// steal sequences.
func seedRNG(workerID uint32) uint32 {
	var buf [4]byte
	buf[0] = byte(workerID)
	buf[1] = byte(workerID >> 8)
	buf[2] = byte(workerID >> 16)
	buf[3] = byte(workerID >> 24)
	h := uint32(xxhash3.Hash(buf[:]))
	if h == 0 {
		h = 0x9e3779b9
	}
	return h
}

// xorshift32 advances the RNG state and returns the new value.
func xorshift32(state uint32) uint32 {
	state ^= state << 13
	state ^= state >> 17
	state ^= state << 5
	return state
}

type worker struct {
	id    int
	sched *Scheduler
	deque *workdeque.Deque[*task.Task]
	rng   uint32
}

func (w *worker) spawnChild(st task.State) *task.Handle {
	t := w.sched.newTask(st)
	t.SetSpawner(w.spawnChild)
	w.deque.PushBottom(t)
	w.sched.wake()
	return t.NewHandle()
}

// pickVictim returns a random peer worker, never itself, for stealing.
func (w *worker) pickVictim() *worker {
	n := len(w.sched.workers)
	if n <= 1 {
		return nil
	}
	w.rng = xorshift32(w.rng)
	i := int(w.rng) % n
	if i < 0 {
		i = -i
	}
	if i == w.id {
		i = (i + 1) % n
	}
	return w.sched.workers[i]
}

// run is the worker's main loop: priority order is local pop, steal,
// global pop, I/O poll, spin, park.
func (w *worker) run() {
	// A panic reaching here means something outside any task's Poll call
	// went wrong (scheduler bookkeeping, a bug in the worker loop itself).
	// There is no joiner to propagate it to, so it is logged and re-raised
	// to crash the process, the closest Go equivalent of the runtime's
	// abort() on an uncaught panic outside a task.
	defer func() {
		if r := recover(); r != nil {
			panicplane.Outside(r)
			panic(r)
		}
	}()

	spins := 0
	for w.sched.running.Load() || w.sched.inject.len() > 0 || !w.deque.Empty() {
		t, ok := w.deque.PopBottom()
		if !ok {
			if victim := w.pickVictim(); victim != nil {
				t, ok = victim.deque.Steal()
			}
		}
		if !ok {
			t, ok = w.sched.inject.pop()
		}
		if !ok {
			if w.sched.engine != nil {
				w.sched.engine.Poll(0)
			}
			// re-check after poll before spinning/parking
			if !w.deque.Empty() || w.sched.inject.len() > 0 {
				continue
			}
		}
		if !ok {
			spins++
			if spins < w.sched.opt.SpinIterations {
				runtime.Gosched()
				continue
			}
			spins = 0
			w.park()
			continue
		}
		spins = 0
		w.drive(t)
	}
}

func (w *worker) drive(t *task.Task) {
	t.SetSpawner(w.spawnChild)
	t.SetIOSubmitter(w.sched)
	if t.Drive() {
		return
	}
	// Still pending. A cooperative yield, or a completion that raced in
	// while the poll was executing, leaves the resched flag set: re-enqueue
	// locally. Otherwise the task is held only by whatever will wake it
	// (an I/O completion callback, a channel signal, a timer).
	if t.TakeResched() {
		w.deque.PushBottom(t)
		w.sched.wake()
	}
}

// park sleeps until woken by an enqueue/shutdown signal, bounded by
// ParkTimeout so a worker periodically rechecks the I/O engine even with
// no wakeup (matches the runtime's 1ms timed condition wait).
func (w *worker) park() {
	timer := time.AfterFunc(w.sched.opt.ParkTimeout, func() {
		w.sched.parkMu.Lock()
		w.sched.parkCond.Broadcast()
		w.sched.parkMu.Unlock()
	})
	defer timer.Stop()

	w.sched.parkMu.Lock()
	w.sched.parkCond.Wait()
	w.sched.parkMu.Unlock()
}
