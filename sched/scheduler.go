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

// Package sched implements the M:N work-stealing scheduler: a fixed set of
// worker goroutines, each owning a Chase-Lev local deque (container/workdeque),
// backed by a shared global injection queue and an optional async I/O
// engine whose completions re-enqueue the waiting task.
//
// Scheduling priority per worker iteration, highest first: pop local,
// steal from a random peer, pop global, poll the I/O engine, spin briefly,
// then park until woken by an enqueue or a bounded timeout.
package sched

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/raskrt/container/workdeque"
	"github.com/cloudwego/raskrt/internal/ioeng"
	"github.com/cloudwego/raskrt/task"
)

// Scheduler owns a fixed pool of workers and the shared queues/engine they
// draw work from. The zero value is not usable; construct with New.
type Scheduler struct {
	opt    Option
	engine ioeng.Engine

	workers []*worker
	inject  *injector

	parkMu   sync.Mutex
	parkCond *sync.Cond

	running      atomic.Bool
	active       atomic.Int32 // tasks not yet complete
	shuttingDown atomic.Bool

	wg sync.WaitGroup
}

// New constructs a Scheduler. opt may be nil (DefaultOption is used).
// engine may be nil (a pure-CPU scheduler); a task that then submits async
// I/O panics at submission, which fails that task and no other.
func New(opt *Option, engine ioeng.Engine) *Scheduler {
	if opt == nil {
		opt = DefaultOption()
	}
	s := &Scheduler{opt: *opt, engine: engine, inject: newInjector()}
	s.parkCond = sync.NewCond(&s.parkMu)

	s.workers = make([]*worker, opt.Workers)
	for i := range s.workers {
		s.workers[i] = &worker{
			id:    i,
			sched: s,
			deque: workdeque.New[*task.Task](opt.DequeCapacity),
			rng:   seedRNG(uint32(i)),
		}
	}
	return s
}

// Start spins up all worker goroutines. Spawn panics if called before
// Start (the equivalent of the runtime's "spawn outside a running
// scheduler" fault).
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker) {
			defer s.wg.Done()
			w.run()
		}(w)
	}
}

// Spawn creates a task from st and schedules it on the global injector,
// returning a handle the caller must eventually Join, Detach or Cancel
// exactly once. Spawn is for use from outside any running task (e.g. top
// level code, or a Join'ed goroutine); a task that wants to spawn a child
// of its own should call Ctx.Spawn instead, which lands directly on the
// driving worker's local deque.
func (s *Scheduler) Spawn(st task.State) *task.Handle {
	if !s.running.Load() {
		panic("raskrt: spawn on a scheduler that is not running")
	}
	t := s.newTask(st)
	s.injectTask(t)
	return t.NewHandle()
}

func (s *Scheduler) newTask(st task.State) *task.Task {
	t := task.New(st)
	s.active.Add(1)
	t.SetOnComplete(func(*task.Task) { s.taskFinished() })
	return t
}

// injectTask pushes a task onto the global queue and wakes one parked
// worker.
func (s *Scheduler) injectTask(t *task.Task) {
	s.inject.push(t)
	s.wake()
}

func (s *Scheduler) wake() {
	s.parkMu.Lock()
	s.parkCond.Signal()
	s.parkMu.Unlock()
}

// onIOComplete is handed to the I/O engine as the completion callback: it
// stages the result onto the task and re-enqueues it, exactly as the
// runtime's io_completion_cb does. RequestWake keeps a completion that
// fires while the task is still mid-poll (a fast-path submit, a zero-length
// timer) from putting the task in a queue before its current poll returns;
// the driving worker re-enqueues it instead.
func (s *Scheduler) onIOComplete(ud any, result int64, err error) {
	t, ok := ud.(*task.Task)
	if !ok {
		return
	}
	t.StageIOCompletion(result, err)
	if t.RequestWake() {
		s.injectTask(t)
	}
}

// Scheduler implements task.IOSubmitter: a task's Ctx.SubmitRead/Write/
// Accept/Timeout calls route through these methods straight into the
// attached I/O engine, with onIOComplete as the completion callback and the
// task itself as userdata. Each panics if no engine is attached, mirroring
// Spawn's "outside a running scheduler" fault.
func (s *Scheduler) requireEngine() ioeng.Engine {
	if s.engine == nil {
		panic("raskrt: task attempted I/O but this scheduler has no engine attached")
	}
	return s.engine
}

func (s *Scheduler) SubmitRead(fd int, buf []byte, t *task.Task) {
	s.requireEngine().SubmitRead(fd, buf, s.onIOComplete, t)
}

func (s *Scheduler) SubmitWrite(fd int, buf []byte, t *task.Task) {
	s.requireEngine().SubmitWrite(fd, buf, s.onIOComplete, t)
}

func (s *Scheduler) SubmitAccept(listenFD int, t *task.Task) {
	s.requireEngine().SubmitAccept(listenFD, s.onIOComplete, t)
}

func (s *Scheduler) SubmitTimeout(d time.Duration, t *task.Task) {
	s.requireEngine().SubmitTimeout(d, s.onIOComplete, t)
}

func (s *Scheduler) taskFinished() {
	if s.active.Add(-1) == 0 && s.shuttingDown.Load() {
		s.parkMu.Lock()
		s.parkCond.Broadcast()
		s.parkMu.Unlock()
	}
}

// Shutdown drains all active tasks (polling ShutdownPoll apart), then
// signals every worker to stop and waits for them to exit.
func (s *Scheduler) Shutdown() {
	s.shuttingDown.Store(true)

	s.parkMu.Lock()
	for s.active.Load() > 0 {
		s.parkMu.Unlock()
		time.Sleep(s.opt.ShutdownPoll)
		s.parkMu.Lock()
	}
	s.parkMu.Unlock()

	s.running.Store(false)
	s.parkMu.Lock()
	s.parkCond.Broadcast()
	s.parkMu.Unlock()
	s.wg.Wait()

	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			log.Printf("RASKRT: error closing io engine: %v", err)
		}
	}
}

// ActiveTasks returns the number of tasks spawned but not yet complete.
func (s *Scheduler) ActiveTasks() int {
	return int(s.active.Load())
}
