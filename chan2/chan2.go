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

// Package chan2 implements the runtime's inter-task channel: two
// interchangeable modes picked at construction time by capacity, BUFFERED
// (a ring of capacity slots) or RENDEZVOUS (capacity 0, direct handoff
// between one sender and one receiver with no intermediate copy).
//
// Named chan2 (not chan, which is a Go keyword) to sit next to task and
// syncx as the third synchronization primitive package.
package chan2

import "sync"

// Status is the channel operation result code. Values match the runtime's
// documented constants exactly: OK=0, Closed=-1, Full=-2, Empty=-3.
type Status int

const (
	OK     Status = 0
	Closed Status = -1
	Full   Status = -2
	Empty  Status = -3
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Closed:
		return "Closed"
	case Full:
		return "Full"
	case Empty:
		return "Empty"
	default:
		return "Status(?)"
	}
}

// Channel is the shared state between a Sender[T] and Receiver[T] pair.
// Exactly one of two modes is picked at New: capacity > 0 is BUFFERED
// (ring buffer), capacity == 0 is RENDEZVOUS (direct handoff, no copy
// through an intermediate slot).
type Channel[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	capacity int
	closed   bool

	senders   int32
	receivers int32

	// BUFFERED mode.
	ring []T
	head int
	tail int
	cnt  int

	// RENDEZVOUS mode (capacity == 0).
	handoff *T
	ready   bool
	taken   bool
}

// New constructs a channel with the given capacity (0 means rendezvous) and
// returns its two initial handles, each with side refcount 1. Negative
// capacity is a construction error and panics.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 0 {
		panic("chan2: negative capacity")
	}
	c := &Channel[T]{capacity: capacity, senders: 1, receivers: 1}
	c.notFull = sync.NewCond(&c.mu)
	c.notEmpty = sync.NewCond(&c.mu)
	if capacity > 0 {
		c.ring = make([]T, capacity)
	}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

func (c *Channel[T]) rendezvous() bool { return c.capacity == 0 }

// Sender is one side's handle onto a Channel. Cloneable (receivers are
// not); non-linear, may be dropped at any time via Close.
type Sender[T any] struct {
	c      *Channel[T]
	closed bool
}

// Receiver is the other side's handle. Not cloneable.
type Receiver[T any] struct {
	c      *Channel[T]
	closed bool
}

// Clone increments the sender-side refcount and returns a new Sender
// referencing the same channel.
func (s *Sender[T]) Clone() *Sender[T] {
	s.c.mu.Lock()
	s.c.senders++
	s.c.mu.Unlock()
	return &Sender[T]{c: s.c}
}

// Close drops this sender handle. On the last sender drop the channel is
// marked closed and every waiting receiver is woken.
func (s *Sender[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true

	c := s.c
	c.mu.Lock()
	c.senders--
	last := c.senders == 0
	if last {
		c.closed = true
	}
	c.mu.Unlock()
	if last {
		c.notEmpty.Broadcast()
		c.notFull.Broadcast() // also wakes a Send still blocked on notFull
	}
}

// Close drops this receiver handle. On the last receiver drop, every
// waiting sender is woken with CLOSED.
func (r *Receiver[T]) Close() {
	if r.closed {
		return
	}
	r.closed = true

	c := r.c
	c.mu.Lock()
	c.receivers--
	last := c.receivers == 0
	if last {
		c.closed = true
	}
	c.mu.Unlock()
	if last {
		c.notFull.Broadcast()
	}
}

// Send delivers v to the channel, blocking the calling goroutine (not a
// green task - callers on a task's behalf must run this from a context
// that is allowed to block the OS thread, or prefer an async-aware wrapper
// that cooperatively yields instead) until it is accepted, the channel
// closes, or all receivers have dropped.
func (s *Sender[T]) Send(v T) Status {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rendezvous() {
		return c.sendRendezvousLocked(v)
	}
	return c.sendBufferedLocked(v)
}

// TrySend is Send's non-blocking variant: it never waits. A rendezvous
// channel's TrySend always returns Full unless already closed, since a
// sender cannot safely hand off without an already-waiting receiver.
func (s *Sender[T]) TrySend(v T) Status {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.receivers == 0 {
		return Closed
	}
	if c.rendezvous() {
		return Full
	}
	if c.cnt == c.capacity {
		return Full
	}
	c.pushLocked(v)
	return OK
}

func (c *Channel[T]) pushLocked(v T) {
	c.ring[c.tail] = v
	c.tail = (c.tail + 1) % c.capacity
	c.cnt++
	c.notEmpty.Signal()
}

func (c *Channel[T]) sendBufferedLocked(v T) Status {
	for c.cnt == c.capacity && !c.closed && c.receivers > 0 {
		c.notFull.Wait()
	}
	if c.closed || c.receivers == 0 {
		return Closed
	}
	c.pushLocked(v)
	return OK
}

// sendRendezvousLocked implements the two-phase handoff: wait for any
// previous offering to be cleared, publish this element, then wait for the
// receiver to actually copy it out before returning. Caller holds c.mu.
func (c *Channel[T]) sendRendezvousLocked(v T) Status {
	for c.ready && !c.closed {
		c.notFull.Wait()
	}
	if c.closed || c.receivers == 0 {
		return Closed
	}

	c.handoff = &v
	c.ready = true
	c.taken = false
	c.notEmpty.Signal()

	for !c.taken && !c.closed {
		c.notFull.Wait()
	}

	// The offering is cleared either because the receiver copied it (taken)
	// or because the channel closed out from under us. A close landing in
	// the same window the receiver took the value still reports Closed;
	// see DESIGN.md for why that disambiguation stays as-is.
	wasTaken := c.taken
	c.ready = false
	c.handoff = nil
	c.taken = false

	if !wasTaken {
		return Closed
	}
	if c.closed {
		return Closed
	}
	return OK
}

// Recv blocks until a value is available, the channel closes, or all
// senders have dropped and the buffer (if any) has drained.
func (r *Receiver[T]) Recv() (T, Status) {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rendezvous() {
		return c.recvRendezvousLocked()
	}
	return c.recvBufferedLocked()
}

// TryRecv is Recv's non-blocking variant: it never waits.
func (r *Receiver[T]) TryRecv() (T, Status) {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.rendezvous() {
		if !c.ready {
			if c.closed || c.senders == 0 {
				return zero, Closed
			}
			return zero, Empty
		}
		return c.takeRendezvousLocked(), OK
	}

	if c.cnt == 0 {
		if c.closed || c.senders == 0 {
			return zero, Closed
		}
		return zero, Empty
	}
	return c.popLocked(), OK
}

func (c *Channel[T]) popLocked() T {
	v := c.ring[c.head]
	var zero T
	c.ring[c.head] = zero
	c.head = (c.head + 1) % c.capacity
	c.cnt--
	c.notFull.Signal()
	return v
}

func (c *Channel[T]) recvBufferedLocked() (T, Status) {
	for c.cnt == 0 {
		if c.closed || c.senders == 0 {
			var zero T
			return zero, Closed
		}
		c.notEmpty.Wait()
	}
	return c.popLocked(), OK
}

// takeRendezvousLocked copies out the sender's offering and signals the
// sender side. Clearing ready before signaling notFull, in that order,
// stops a second receiver from racing in and observing a stale offering
// between the copy and the wakeup.
func (c *Channel[T]) takeRendezvousLocked() T {
	v := *c.handoff
	c.ready = false
	c.taken = true
	c.notFull.Signal()
	return v
}

func (c *Channel[T]) recvRendezvousLocked() (T, Status) {
	for !c.ready {
		if c.closed || c.senders == 0 {
			var zero T
			return zero, Closed
		}
		c.notEmpty.Wait()
	}
	return c.takeRendezvousLocked(), OK
}

// Len returns a racy snapshot of the number of buffered elements. Always 0
// for a rendezvous channel (it has no intermediate buffer).
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cnt
}

// Cap returns the channel's buffer capacity (0 for rendezvous).
func (c *Channel[T]) Cap() int { return c.capacity }
