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
	"container/list"
	"sync"
	"syscall"
	"time"
)

// pendingOp tracks one in-flight readiness-backed operation. Read/write/
// accept ops are keyed by fd in the epoll interest set; a pure timeout has
// no fd and lives only in the deadline list.
type pendingOp struct {
	fd       int
	write    bool
	accept   bool
	buf      []byte
	deadline time.Time
	hasTimer bool
	elem     *list.Element // position in timers, if hasTimer

	cb Callback
	ud any
}

// epollEngine is the readiness-poll fallback backend: one epoll descriptor,
// fast-path-try-then-register-one-shot submission, and a deadline-sorted
// list of pending timeouts.
type epollEngine struct {
	epfd int

	mu      sync.Mutex
	byFD    map[int]*pendingOp
	timers  *list.List // sorted ascending by deadline, elements are *pendingOp
	pending int
}

func newEpollEngine() (Engine, error) {
	fd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollEngine{
		epfd:   fd,
		byFD:   make(map[int]*pendingOp),
		timers: list.New(),
	}, nil
}

func (e *epollEngine) SubmitRead(fd int, buf []byte, cb Callback, ud any) {
	e.submitIO(fd, buf, false, false, cb, ud)
}

func (e *epollEngine) SubmitWrite(fd int, buf []byte, cb Callback, ud any) {
	e.submitIO(fd, buf, true, false, cb, ud)
}

func (e *epollEngine) SubmitAccept(listenFD int, cb Callback, ud any) {
	e.submitIO(listenFD, nil, false, true, cb, ud)
}

func (e *epollEngine) submitIO(fd int, buf []byte, write, accept bool, cb Callback, ud any) {
	// The retry-on-readiness protocol only works against a non-blocking
	// descriptor; a blocking one would wedge the whole poll loop inside
	// tryNow.
	_ = syscall.SetNonblock(fd, true)

	// Fast path: try the syscall immediately before registering anything
	// with epoll, avoiding a round trip when the fd is already ready.
	if n, err, done := e.tryNow(fd, buf, write, accept); done {
		e.fire(cb, ud, n, err)
		return
	}

	op := &pendingOp{fd: fd, write: write, accept: accept, buf: buf, cb: cb, ud: ud}

	e.mu.Lock()
	e.byFD[fd] = op
	e.pending++
	e.mu.Unlock()

	events := uint32(syscall.EPOLLIN | syscall.EPOLLONESHOT)
	if write {
		events = syscall.EPOLLOUT | syscall.EPOLLONESHOT
	}
	ev := syscall.EpollEvent{Events: events, Fd: int32(fd)}
	if err := syscall.EpollCtl(e.epfd, syscall.EPOLL_CTL_ADD, fd, &ev); err != nil {
		// Already registered (e.g. re-arm after EAGAIN on a retried op):
		// modify instead.
		_ = syscall.EpollCtl(e.epfd, syscall.EPOLL_CTL_MOD, fd, &ev)
	}
}

func (e *epollEngine) tryNow(fd int, buf []byte, write, accept bool) (n int64, err error, done bool) {
	switch {
	case accept:
		// Accept4 obtains non-blocking + close-on-exec in one syscall.
		nfd, _, errno := syscall.Accept4(fd, syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
		if errno == syscall.EAGAIN {
			return 0, nil, false
		}
		if errno != nil {
			return 0, errno, true
		}
		return int64(nfd), nil, true
	case write:
		wn, errno := syscall.Write(fd, buf)
		if errno == syscall.EAGAIN {
			return 0, nil, false
		}
		if errno != nil {
			return 0, errno, true
		}
		return int64(wn), nil, true
	default:
		rn, errno := syscall.Read(fd, buf)
		if errno == syscall.EAGAIN {
			return 0, nil, false
		}
		if errno != nil {
			return 0, errno, true
		}
		return int64(rn), nil, true
	}
}

func (e *epollEngine) fire(cb Callback, ud any, n int64, err error) {
	cb(ud, n, err)
}

func (e *epollEngine) SubmitTimeout(d time.Duration, cb Callback, ud any) {
	op := &pendingOp{deadline: time.Now().Add(d), hasTimer: true, cb: cb, ud: ud}

	e.mu.Lock()
	e.pending++
	e.insertTimer(op)
	e.mu.Unlock()
}

// insertTimer inserts op into the deadline-sorted list. Caller holds e.mu.
func (e *epollEngine) insertTimer(op *pendingOp) {
	for el := e.timers.Front(); el != nil; el = el.Next() {
		if el.Value.(*pendingOp).deadline.After(op.deadline) {
			op.elem = e.timers.InsertBefore(op, el)
			return
		}
	}
	op.elem = e.timers.PushBack(op)
}

// Poll reaps expired timers first, computes the minimum of the requested
// timeout and the next deadline, blocks in epoll_wait outside any lock,
// then retries ready fds and rechecks timers once more after waking.
func (e *epollEngine) Poll(timeoutMS int) int {
	fired := e.reapExpiredTimers()

	waitMS := timeoutMS
	e.mu.Lock()
	if front := e.timers.Front(); front != nil {
		until := time.Until(front.Value.(*pendingOp).deadline)
		ms := int(until.Milliseconds())
		if ms < 0 {
			ms = 0
		}
		if waitMS < 0 || ms < waitMS {
			waitMS = ms
		}
	}
	e.mu.Unlock()

	// timeoutMS == 0 still drives one non-blocking epoll_wait: the
	// scheduler's per-iteration Poll(0) is how ready descriptors get
	// retried at all.
	events := make([]syscall.EpollEvent, 64)
	n, err := syscall.EpollWait(e.epfd, events, waitMS)
	if err == syscall.EINTR {
		n, err = 0, nil
	}
	if err == nil {
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			e.mu.Lock()
			op, ok := e.byFD[fd]
			if ok {
				delete(e.byFD, fd)
			}
			e.mu.Unlock()
			if !ok {
				continue
			}
			n64, oerr, done := e.tryNow(op.fd, op.buf, op.write, op.accept)
			if !done {
				// Spurious wake. EPOLLONESHOT disarmed the fd when it was
				// reported, so re-registering the interest is required, not
				// just putting the op back in the table.
				e.mu.Lock()
				e.byFD[fd] = op
				e.mu.Unlock()
				ev := syscall.EpollEvent{Events: syscall.EPOLLIN | syscall.EPOLLONESHOT, Fd: int32(fd)}
				if op.write {
					ev.Events = syscall.EPOLLOUT | syscall.EPOLLONESHOT
				}
				_ = syscall.EpollCtl(e.epfd, syscall.EPOLL_CTL_MOD, fd, &ev)
				continue
			}
			e.mu.Lock()
			e.pending--
			e.mu.Unlock()
			e.fire(op.cb, op.ud, n64, oerr)
			fired++
		}
	}

	fired += e.reapExpiredTimers()
	return fired
}

func (e *epollEngine) reapExpiredTimers() int {
	now := time.Now()
	var expired []*pendingOp

	e.mu.Lock()
	for {
		front := e.timers.Front()
		if front == nil {
			break
		}
		op := front.Value.(*pendingOp)
		if op.deadline.After(now) {
			break
		}
		e.timers.Remove(front)
		e.pending--
		expired = append(expired, op)
	}
	e.mu.Unlock()

	for _, op := range expired {
		// Fire outside the lock: a timeout callback may resubmit.
		e.fire(op.cb, op.ud, 0, nil)
	}
	return len(expired)
}

func (e *epollEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *epollEngine) Close() error {
	return syscall.Close(e.epfd)
}
