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

//go:build linux

package ioeng

import (
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/cloudwego/raskrt/internal/iouring"
)

// opSlot is one entry of the fixed, freelist-allocated slot table mapping
// an SQE's user_data (the slot index) back to its callback. iov and ts are
// embedded, not heap-allocated per submission: since slots is a fixed-size
// array for the engine's lifetime, their addresses stay stable for exactly
// as long as the kernel might hold a reference to them, mirroring the
// original engine's parallel stable-memory array for timeout operands.
type opSlot struct {
	occupied bool
	next     int32
	cb       Callback
	ud       any
	iov      iouring.Iovec
	ts       iouring.TimeSpec
}

// uringEngine is the submission-ring backend: it wraps the raw ring
// primitive (internal/iouring) with a slot table and submits/reaps
// completions on the scheduler's behalf.
type uringEngine struct {
	ring *iouring.IOUring

	mu       sync.Mutex
	slots    []opSlot
	freeHead int32
	pending  int
}

func newUringEngine() (Engine, error) {
	cfg := iouring.DefaultConfig()
	ring, err := iouring.NewIOUring(cfg)
	if err != nil {
		return nil, err
	}

	slotCount := int(cfg.IOUringQueueSize)
	e := &uringEngine{
		ring:     ring,
		slots:    make([]opSlot, slotCount),
		freeHead: -1,
	}
	for i := slotCount - 1; i >= 0; i-- {
		e.slots[i].next = e.freeHead
		e.freeHead = int32(i)
	}
	return e, nil
}

// allocSlot pops a slot off the freelist. Caller holds e.mu.
func (e *uringEngine) allocSlot(cb Callback, ud any) (int32, *opSlot, bool) {
	if e.freeHead == -1 {
		return 0, nil, false
	}
	idx := e.freeHead
	s := &e.slots[idx]
	e.freeHead = s.next
	s.occupied = true
	s.cb = cb
	s.ud = ud
	return idx, s, true
}

// freeSlot returns a slot to the freelist. Caller holds e.mu.
func (e *uringEngine) freeSlot(idx int32) {
	s := &e.slots[idx]
	s.occupied = false
	s.cb = nil
	s.ud = nil
	s.next = e.freeHead
	e.freeHead = idx
}

// pushSQE fills and advances one submission queue entry for the given slot,
// then flushes it to the kernel. Returns false (having already run cb with
// the failure) if the ring has no room or the kernel rejects the submit.
func (e *uringEngine) pushSQE(idx int32, opcode uint8, fd int32, addr uint64, length, flags uint32) bool {
	sqe := e.ring.PeekSQE(true)
	if sqe == nil {
		e.failSlot(idx, syscall.EBUSY)
		return false
	}
	sqe.Opcode = opcode
	sqe.Fd = fd
	sqe.Addr = addr
	sqe.Len = length
	sqe.OpcodeFlags = flags
	sqe.UserData = uint64(idx)
	e.ring.AdvanceSQ()

	if _, errno := e.ring.Submit(); errno != 0 {
		e.failSlot(idx, errno)
		return false
	}
	return true
}

// failSlot frees a slot and reports its failure to the caller's callback.
// Caller holds e.mu; cb fires after releasing the lock.
func (e *uringEngine) failSlot(idx int32, err error) {
	s := &e.slots[idx]
	cb, ud := s.cb, s.ud
	e.freeSlot(idx)
	e.pending--
	e.mu.Unlock()
	cb(ud, 0, err)
	e.mu.Lock()
}

func (e *uringEngine) SubmitRead(fd int, buf []byte, cb Callback, ud any) {
	if len(buf) == 0 {
		cb(ud, 0, nil)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, s, ok := e.allocSlot(cb, ud)
	if !ok {
		e.mu.Unlock()
		cb(ud, 0, syscall.EAGAIN)
		e.mu.Lock()
		return
	}
	e.pending++
	s.iov.Set(buf)
	e.pushSQE(idx, iouring.IORING_OP_READV, int32(fd), uint64(uintptr(unsafe.Pointer(&s.iov))), 1, 0)
}

func (e *uringEngine) SubmitWrite(fd int, buf []byte, cb Callback, ud any) {
	if len(buf) == 0 {
		cb(ud, 0, nil)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, s, ok := e.allocSlot(cb, ud)
	if !ok {
		e.mu.Unlock()
		cb(ud, 0, syscall.EAGAIN)
		e.mu.Lock()
		return
	}
	e.pending++
	s.iov.Set(buf)
	e.pushSQE(idx, iouring.IORING_OP_WRITEV, int32(fd), uint64(uintptr(unsafe.Pointer(&s.iov))), 1, 0)
}

func (e *uringEngine) SubmitAccept(listenFD int, cb Callback, ud any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, _, ok := e.allocSlot(cb, ud)
	if !ok {
		e.mu.Unlock()
		cb(ud, 0, syscall.EAGAIN)
		e.mu.Lock()
		return
	}
	e.pending++
	e.pushSQE(idx, iouring.IORING_OP_ACCEPT, int32(listenFD), 0, 0, 0)
}

func (e *uringEngine) SubmitTimeout(d time.Duration, cb Callback, ud any) {
	ts := iouring.TimeSpec{TvSec: int64(d / time.Second), TvNsec: int64(d % time.Second)}
	if ts.IsZero() {
		// No point round-tripping through the ring for an already-elapsed
		// deadline: fire immediately, from inside this call. (The readiness
		// backend instead queues a zero timer and fires it on its next Poll.)
		cb(ud, 0, nil)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	idx, s, ok := e.allocSlot(cb, ud)
	if !ok {
		e.mu.Unlock()
		cb(ud, 0, syscall.EAGAIN)
		e.mu.Lock()
		return
	}
	e.pending++
	s.ts = ts
	e.pushSQE(idx, iouring.IORING_OP_TIMEOUT, -1, uint64(uintptr(unsafe.Pointer(&s.ts))), 1, 0)
}

// Poll drains ready completions. timeoutMS == 0 is a non-blocking peek and
// drains everything already queued; -1 blocks until at least one
// completion is ready; a positive value is approximated with a bounded
// peek-and-backoff loop since the raw ring primitive's WaitCQE has no
// timeout parameter of its own.
func (e *uringEngine) Poll(timeoutMS int) int {
	fired := 0
	var deadline time.Time
	if timeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}

	for {
		// The CQ head is single-consumer: peek-then-advance must not be
		// interleaved between two workers polling concurrently, or both
		// would reap (and double-free) the same completion.
		e.mu.Lock()
		cqe := e.ring.PeekCQE()
		if cqe == nil {
			e.mu.Unlock()
			switch {
			case timeoutMS == 0:
				return fired
			case timeoutMS < 0:
				// Block in the enter syscall with no lock held, then loop
				// back and race for the completion under the lock.
				if _, err := e.ring.WaitCQE(); err != nil {
					return fired
				}
				continue
			default:
				if time.Now().After(deadline) {
					return fired
				}
				time.Sleep(time.Millisecond)
				continue
			}
		}

		idx := int32(cqe.UserData)
		res := cqe.Res
		e.ring.AdvanceCQ()

		s := &e.slots[idx]
		cb, ud := s.cb, s.ud
		e.freeSlot(idx)
		e.pending--
		e.mu.Unlock()

		// Fire outside the lock: the callback may resubmit on this engine.
		if res < 0 {
			cb(ud, 0, syscall.Errno(-res))
		} else {
			cb(ud, int64(res), nil)
		}
		fired++

		if timeoutMS != 0 {
			return fired
		}
	}
}

func (e *uringEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *uringEngine) Close() error {
	return e.ring.Close()
}
