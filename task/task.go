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

// Package task defines the green task: a resumable state machine driven by
// a scheduler, plus the affine handle used to join, detach or cancel it.
//
// A task never blocks an OS thread. Its State.Poll method is called
// repeatedly by a worker; it must return immediately, reporting Ready,
// Pending (still waiting on something, e.g. I/O) or Failed (panicked).
package task

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/raskrt/panicplane"
)

// Kind is the result of a single Poll call. A panicking poll never unwinds
// through the scheduler driving it; the failure comes back as a Kind
// instead.
type Kind int32

const (
	// Ready means the task produced a final value and will not be polled again.
	Ready Kind = iota
	// Pending means the task is waiting (on I/O, a channel, a timer) and
	// will be re-enqueued when that wait is satisfied.
	Pending
	// Failed means the task panicked; Message carries the recovered text.
	Failed
	// Cancelled means the task observed its cancellation flag and stopped.
	Cancelled
)

// ErrCancelled is returned from Handle.Join and Handle.Cancel when the task
// completed by observing its cancellation flag.
var ErrCancelled = errors.New("raskrt: task cancelled")

// Outcome is what Poll returns.
type Outcome struct {
	Kind    Kind
	Value   int64
	Err     error
	Message string // set when Kind == Failed
}

func ReadyValue(v int64) Outcome { return Outcome{Kind: Ready, Value: v} }
func ReadyErr(err error) Outcome { return Outcome{Kind: Ready, Err: err} }
func PendingOutcome() Outcome    { return Outcome{Kind: Pending} }

// CancelledOutcome is what a task returns when it observes Ctx.Cancelled.
// It is terminal: cleanup hooks run and the joiner sees ErrCancelled.
func CancelledOutcome() Outcome { return Outcome{Kind: Cancelled} }

// State is implemented by a task's compiled-down poll loop.
type State interface {
	Poll(ctx *Ctx) Outcome
}

// StateFunc adapts a plain function to State, for tasks with no internal
// suspension points of their own: callers spawn an ordinary closure without
// hand-writing a State implementation.
type StateFunc func(ctx *Ctx) (int64, error)

func (f StateFunc) Poll(ctx *Ctx) Outcome {
	v, err := f(ctx)
	if err != nil {
		return ReadyErr(err)
	}
	return ReadyValue(v)
}

type cleanupHook func(ctx *Ctx)

// Ctx is handed to a task's Poll method on every call. It carries the
// cancellation flag and the LIFO cleanup hook stack.
type Ctx struct {
	t *Task
}

// Cancelled reports whether the task has been asked to cancel. Observed
// cooperatively at suspension points; never preemptive.
func (c *Ctx) Cancelled() bool {
	return c.t.cancelled.Load()
}

// Defer pushes a cleanup hook, run in reverse order of registration when
// the task completes, is cancelled, or fails.
func (c *Ctx) Defer(f func(ctx *Ctx)) {
	c.t.mu.Lock()
	c.t.cleanup = append(c.t.cleanup, f)
	c.t.mu.Unlock()
}

// Spawn schedules a child task on behalf of the worker currently driving
// this task, landing it directly on that worker's local deque rather than
// the global injector. Panics if no scheduler has attached a spawner (i.e.
// this Ctx did not come from a task running under a Scheduler).
func (c *Ctx) Spawn(st State) *Handle {
	if c.t.spawnFn == nil {
		panic("raskrt: spawn outside a running scheduler")
	}
	return c.t.spawnFn(st)
}

// Yield requests that the task be re-enqueued after this poll returns
// Pending, without waiting on any external wakeup. This is the direct
// re-enqueue form of cooperative yield; a task running under an I/O engine
// may equivalently submit a zero-duration timeout via SubmitTimeout.
func (c *Ctx) Yield() {
	c.t.resched.Store(true)
}

// IOResult fetches and clears the last staged I/O completion, if any.
func (c *Ctx) IOResult() (result int64, err error, ok bool) {
	t := c.t
	if !t.ioStaged.Load() {
		return 0, nil, false
	}
	t.ioStaged.Store(false)
	return t.ioResult, t.ioErr, true
}

// IOSubmitter is the narrow surface a scheduler's I/O engine exposes to a
// running task. The scheduler attaches itself as the IOSubmitter for every
// task it drives, routing each call through its engine with the scheduler's
// own completion callback and this task as userdata; implemented by
// *sched.Scheduler.
type IOSubmitter interface {
	SubmitRead(fd int, buf []byte, t *Task)
	SubmitWrite(fd int, buf []byte, t *Task)
	SubmitAccept(listenFD int, t *Task)
	SubmitTimeout(d time.Duration, t *Task)
}

func (c *Ctx) requireIOSubmitter() IOSubmitter {
	s := c.t.ioSubmitter
	if s == nil {
		panic("raskrt: I/O submitted outside a scheduler with an attached I/O engine")
	}
	return s
}

// SubmitRead submits an async read on fd into buf. The task should return
// Pending and observe the result via IOResult on a later poll.
func (c *Ctx) SubmitRead(fd int, buf []byte) {
	c.requireIOSubmitter().SubmitRead(fd, buf, c.t)
}

// SubmitWrite submits an async write of buf to fd.
func (c *Ctx) SubmitWrite(fd int, buf []byte) {
	c.requireIOSubmitter().SubmitWrite(fd, buf, c.t)
}

// SubmitAccept submits an async accept on listenFD; the completion result
// is the accepted file descriptor.
func (c *Ctx) SubmitAccept(listenFD int) {
	c.requireIOSubmitter().SubmitAccept(listenFD, c.t)
}

// SubmitTimeout arms a one-shot timer; the completion fires once d elapses.
func (c *Ctx) SubmitTimeout(d time.Duration) {
	c.requireIOSubmitter().SubmitTimeout(d, c.t)
}

type state int32

const (
	stateReady state = iota
	stateRunning
	stateWaiting
	stateComplete
)

// Task is the scheduler-visible unit of work. Refcount starts at 2: one
// for the scheduler's own reference, one for the TaskHandle returned to the
// spawner. It reaches zero (and is released) when both sides are done with
// it: the scheduler on completion, the handle on Join/Detach/Cancel.
type Task struct {
	id    uint64
	state atomic.Int32

	poll State

	mu      sync.Mutex
	cleanup []cleanupHook

	cancelled atomic.Bool

	ioStaged atomic.Bool
	ioResult int64
	ioErr    error

	// resched is the one-shot "re-enqueue after the current poll" flag,
	// set by Ctx.Yield and by a wakeup arriving while the task is still
	// mid-poll. Consumed exactly once via CAS.
	resched atomic.Bool

	refcount atomic.Int32

	done     sync.Mutex
	doneCond *sync.Cond
	finished bool
	detached bool // guarded by done; set once by Handle.Detach
	outcome  Outcome

	release     func(*Task)         // scheduler-supplied: return this task's resources
	spawnFn     func(State) *Handle // set by the worker currently driving this task
	ioSubmitter IOSubmitter         // set by the worker currently driving this task

	onComplete func(*Task) // scheduler-supplied: bookkeeping on completion
}

// SetSpawner attaches the scheduler callback used by Ctx.Spawn while this
// task is being driven. Called by the worker loop before each Drive.
func (t *Task) SetSpawner(fn func(State) *Handle) {
	t.spawnFn = fn
}

// SetIOSubmitter attaches the scheduler's I/O engine front-end used by
// Ctx.SubmitRead/Write/Accept/Timeout while this task is being driven.
// Called by the worker loop before each Drive.
func (t *Task) SetIOSubmitter(s IOSubmitter) {
	t.ioSubmitter = s
}

// SetOnComplete attaches a callback invoked exactly once, after the task
// reaches a terminal outcome. Used by the scheduler for active-task
// bookkeeping.
func (t *Task) SetOnComplete(fn func(*Task)) {
	t.onComplete = fn
}

// NewHandle mints the affine handle for this task. Called once by whatever
// constructs the task (normally a Scheduler.Spawn).
func (t *Task) NewHandle() *Handle {
	return newHandle(t)
}

var nextTaskID atomic.Uint64

// New constructs a task in the Ready state with a starting refcount of 2.
func New(poll State) *Task {
	t := &Task{
		id:   nextTaskID.Add(1),
		poll: poll,
	}
	t.state.Store(int32(stateReady))
	t.refcount.Store(2)
	t.doneCond = sync.NewCond(&t.done)
	return t
}

func (t *Task) ID() uint64 { return t.id }

// StageIOCompletion is called by the I/O engine's completion callback. It is
// the sole channel through which I/O results reach a task.
func (t *Task) StageIOCompletion(result int64, err error) {
	t.ioResult = result
	t.ioErr = err
	t.ioStaged.Store(true)
}

// Cancel sets the cooperative cancellation flag. It does not itself stop
// the task; the task must observe Ctx.Cancelled() at a suspension point.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// RequestWake is called by whoever wants to re-enqueue this task (the I/O
// completion callback, a channel wakeup). It returns true if the caller
// should enqueue the task itself. If the task is mid-poll on some worker,
// the wakeup is instead deferred onto the resched flag — the driving worker
// re-enqueues when the poll returns — so a task is never in a run queue
// while one of its polls is still executing.
func (t *Task) RequestWake() bool {
	switch state(t.state.Load()) {
	case stateComplete:
		// A complete task never re-enters a queue.
		return false
	case stateRunning:
		t.resched.Store(true)
		// The poll may have finished between the state load and the flag
		// store, in which case nobody is left to consume the flag: claim
		// it back and enqueue here.
		if state(t.state.Load()) == stateWaiting && t.resched.CompareAndSwap(true, false) {
			return true
		}
		return false
	default:
		return true
	}
}

// TakeResched consumes the re-enqueue request, if one is set. Called by the
// driving worker after a poll returns Pending.
func (t *Task) TakeResched() bool {
	return t.resched.CompareAndSwap(true, false)
}

// runCleanup runs cleanup hooks LIFO (reverse of push order).
func (t *Task) runCleanup(ctx *Ctx) {
	t.mu.Lock()
	hooks := t.cleanup
	t.cleanup = nil
	t.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
}

// poll1 runs exactly one poll step, routing the call through panicplane so
// a panicking Poll never unwinds into the scheduler: it comes back as a
// Failed outcome instead.
func (t *Task) poll1() (out Outcome) {
	t.state.Store(int32(stateRunning))
	ctx := &Ctx{t: t}

	res, msg, failed := panicplane.Run(func() Outcome {
		return t.poll.Poll(ctx)
	})
	if failed {
		out = Outcome{Kind: Failed, Message: msg}
	} else {
		out = res
	}
	if out.Kind != Pending {
		t.runCleanup(ctx)
	}
	return out
}

// Drive runs one poll step and reports whether the task is now complete.
// Called only by the scheduler.
func (t *Task) Drive() (complete bool) {
	out := t.poll1()
	switch out.Kind {
	case Pending:
		t.state.Store(int32(stateWaiting))
		return false
	default:
		t.markComplete(out)
		return true
	}
}

func (t *Task) markComplete(out Outcome) {
	t.done.Lock()
	t.outcome = out
	t.finished = true
	t.state.Store(int32(stateComplete))
	t.doneCond.Broadcast()
	// A failure with no joiner left to propagate to goes to the host
	// diagnostic channel instead. The done mutex orders this against
	// detach, so exactly one side reports it.
	logIt := t.detached && out.Kind == Failed
	t.done.Unlock()

	if logIt {
		logDetachedFailure(t)
	}
	if t.onComplete != nil {
		t.onComplete(t)
	}
	t.decref()
}

func logDetachedFailure(t *Task) {
	log.Printf("RASKRT: panic in detached task %d: %s", t.id, t.outcome.Message)
}

// markDetached records that no joiner will ever observe this task's
// outcome. If the task already failed, the failure is reported now.
func (t *Task) markDetached() {
	t.done.Lock()
	t.detached = true
	logIt := t.finished && t.outcome.Kind == Failed
	t.done.Unlock()

	if logIt {
		logDetachedFailure(t)
	}
}

func (t *Task) decref() {
	if t.refcount.Add(-1) == 0 && t.release != nil {
		t.release(t)
	}
}

// Wait blocks the calling goroutine (not a green task - this is the boundary
// where a real OS thread may legitimately block, used by Join) until the
// task finishes, and returns its outcome.
func (t *Task) Wait() Outcome {
	t.done.Lock()
	for !t.finished {
		t.doneCond.Wait()
	}
	out := t.outcome
	t.done.Unlock()
	return out
}
