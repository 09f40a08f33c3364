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

//go:build !linux

package ioeng

import (
	"sync"
	"sync/atomic"
	"time"
)

// newUringEngine never succeeds off Linux; New falls through to the portable
// backend below.
func newUringEngine() (Engine, error) {
	return nil, errUnsupported{"io_uring"}
}

// newEpollEngine on non-Linux platforms is the portable goroutine-per-op
// backend: there is no single portable readiness primitive across darwin
// (kqueue) and windows (IOCP), so each submitted operation blocks on its own
// goroutine and reports completion through the same Callback contract the
// ring and epoll backends use. This keeps Engine usable everywhere at the
// cost of one goroutine per in-flight operation, which is acceptable off the
// hot Linux path this runtime targets.
func newEpollEngine() (Engine, error) {
	return &portableEngine{}, nil
}

type errUnsupported struct{ what string }

func (e errUnsupported) Error() string { return e.what + " not supported on this platform" }

type portableEngine struct {
	mu      sync.Mutex
	pending int64
	closed  atomic.Bool
}

func (e *portableEngine) run(fn func() (int64, error), cb Callback, ud any) {
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()

	go func() {
		n, err := fn()
		e.mu.Lock()
		e.pending--
		e.mu.Unlock()
		cb(ud, n, err)
	}()
}

func (e *portableEngine) SubmitRead(fd int, buf []byte, cb Callback, ud any) {
	e.run(func() (int64, error) { return readFD(fd, buf) }, cb, ud)
}

func (e *portableEngine) SubmitWrite(fd int, buf []byte, cb Callback, ud any) {
	e.run(func() (int64, error) { return writeFD(fd, buf) }, cb, ud)
}

func (e *portableEngine) SubmitAccept(listenFD int, cb Callback, ud any) {
	e.run(func() (int64, error) { return acceptFD(listenFD) }, cb, ud)
}

func (e *portableEngine) SubmitTimeout(d time.Duration, cb Callback, ud any) {
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()
	time.AfterFunc(d, func() {
		e.mu.Lock()
		e.pending--
		e.mu.Unlock()
		cb(ud, 0, nil)
	})
}

// Poll fires no callbacks and always returns 0: completions arrive
// asynchronously on their own goroutines rather than being drained from a
// single reap point. A positive timeoutMS just sleeps for that long.
func (e *portableEngine) Poll(timeoutMS int) int {
	if timeoutMS > 0 {
		time.Sleep(time.Duration(timeoutMS) * time.Millisecond)
	}
	return 0
}

func (e *portableEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.pending)
}

func (e *portableEngine) Close() error {
	e.closed.Store(true)
	return nil
}
