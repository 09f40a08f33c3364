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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readyOnFirstPoll struct{}

func (readyOnFirstPoll) Poll(ctx *Ctx) Outcome { return ReadyValue(7) }

func TestTaskReadyOnFirstPollNeverWaits(t *testing.T) {
	tr := New(readyOnFirstPoll{})
	require.True(t, tr.Drive())
	out := tr.Wait()
	assert.Equal(t, Ready, out.Kind)
	assert.EqualValues(t, 7, out.Value)
}

type pendingThenReady struct{ polls int }

func (p *pendingThenReady) Poll(ctx *Ctx) Outcome {
	p.polls++
	if p.polls == 1 {
		return PendingOutcome()
	}
	return ReadyValue(int64(p.polls))
}

func TestTaskPendingThenReady(t *testing.T) {
	tr := New(&pendingThenReady{})
	require.False(t, tr.Drive())
	require.True(t, tr.Drive())
	out := tr.Wait()
	assert.Equal(t, Ready, out.Kind)
	assert.EqualValues(t, 2, out.Value)
}

type panicTask struct{}

func (panicTask) Poll(ctx *Ctx) Outcome { panic("boom") }

func TestTaskPanicBecomesFailedOutcome(t *testing.T) {
	tr := New(panicTask{})
	require.True(t, tr.Drive())
	out := tr.Wait()
	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, "boom", out.Message)
}

// TestCleanupRunsInReverseOrder: hooks H1, H2, H3 pushed in that order,
// then the task completes (here via a simple Ready return rather than a
// cancel loop); cleanup must run H3, H2, H1.
func TestCleanupRunsInReverseOrder(t *testing.T) {
	var order []string
	st := StateFunc(func(ctx *Ctx) (int64, error) {
		ctx.Defer(func(*Ctx) { order = append(order, "H1") })
		ctx.Defer(func(*Ctx) { order = append(order, "H2") })
		ctx.Defer(func(*Ctx) { order = append(order, "H3") })
		return 0, nil
	})

	tr := New(st)
	tr.Drive()
	assert.Equal(t, []string{"H3", "H2", "H1"}, order)
}

type cancelLoop struct {
	order *[]string
	armed bool
}

func (c *cancelLoop) Poll(ctx *Ctx) Outcome {
	if !c.armed {
		c.armed = true
		*c.order = append(*c.order, "H1-push", "H2-push", "H3-push")
		ctx.Defer(func(*Ctx) { *c.order = append(*c.order, "H1") })
		ctx.Defer(func(*Ctx) { *c.order = append(*c.order, "H2") })
		ctx.Defer(func(*Ctx) { *c.order = append(*c.order, "H3") })
	}
	if ctx.Cancelled() {
		return CancelledOutcome()
	}
	return PendingOutcome()
}

func TestCancellationRunsCleanupBeforeCompletion(t *testing.T) {
	var order []string
	tr := New(&cancelLoop{order: &order})

	require.False(t, tr.Drive()) // first poll: pushes hooks, sees not cancelled, pends
	tr.Cancel()
	require.True(t, tr.Drive()) // second poll: observes cancellation, completes

	assert.Equal(t, []string{"H1-push", "H2-push", "H3-push", "H3", "H2", "H1"}, order)

	out := tr.Wait()
	assert.Equal(t, Cancelled, out.Kind)
}

// yieldNTimes requests a direct re-enqueue (Ctx.Yield) a fixed number of
// times before completing, the scheduler-less half of the cooperative yield
// contract: each Pending return must leave the resched flag consumable.
type yieldNTimes struct{ left int }

func (y *yieldNTimes) Poll(ctx *Ctx) Outcome {
	if y.left > 0 {
		y.left--
		ctx.Yield()
		return PendingOutcome()
	}
	return ReadyValue(99)
}

func TestYieldSetsRescheduleFlag(t *testing.T) {
	tr := New(&yieldNTimes{left: 2})

	require.False(t, tr.Drive())
	assert.True(t, tr.TakeResched())
	assert.False(t, tr.TakeResched(), "resched must be consumed exactly once")

	require.False(t, tr.Drive())
	assert.True(t, tr.TakeResched())

	require.True(t, tr.Drive())
	assert.EqualValues(t, 99, tr.Wait().Value)
}

// TestRequestWakeDefersWhileRunning pins down the mid-poll wakeup rule: a
// wakeup on a Waiting task tells the caller to enqueue, one on a Running
// task (simulated by setting the state directly) is deferred onto the
// resched flag, and one on a Complete task is refused outright.
func TestRequestWakeDefersWhileRunning(t *testing.T) {
	tr := New(&pendingThenReady{})
	require.False(t, tr.Drive()) // now Waiting
	assert.True(t, tr.RequestWake(), "waiting task should be enqueued by the waker")

	tr.state.Store(int32(stateRunning)) // a wakeup landing mid-poll
	assert.False(t, tr.RequestWake(), "a running task's wakeup is left to its driving worker")
	assert.True(t, tr.TakeResched(), "the deferred wakeup is left on the resched flag")

	require.True(t, tr.Drive()) // now Complete
	assert.False(t, tr.RequestWake(), "a complete task never re-enters a queue")
}

func TestStageIOCompletionDeliversOnce(t *testing.T) {
	tr := New(readyOnFirstPoll{})
	tr.StageIOCompletion(5, nil)

	ctx := &Ctx{t: tr}
	result, err, ok := ctx.IOResult()
	require.True(t, ok)
	assert.EqualValues(t, 5, result)
	assert.NoError(t, err)

	_, _, ok = ctx.IOResult()
	assert.False(t, ok, "staged result must be consumed exactly once")
}
