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

// Package ioeng is the backend-agnostic async I/O engine for the scheduler:
// two interchangeable backends, a submission-ring (io_uring) backend and a
// readiness-poll (epoll) fallback, behind one narrow capability interface.
//
// Operations are completion-based: submit, then a callback fires once the
// operation finishes. The scheduler drives completions by calling Poll
// between task switches; Poll must never invoke a callback while holding
// any lock of the engine's own bookkeeping, since a callback is free to
// submit a new operation on the same engine.
package ioeng

import (
	"log"
	"time"
)

// Callback receives the result of a completed operation: result is bytes
// transferred (or the accepted fd, for SubmitAccept), err is non-nil on
// failure.
type Callback func(userdata any, result int64, err error)

// Engine is the narrow surface both backends implement.
type Engine interface {
	SubmitRead(fd int, buf []byte, cb Callback, userdata any)
	SubmitWrite(fd int, buf []byte, cb Callback, userdata any)
	SubmitAccept(listenFD int, cb Callback, userdata any)
	SubmitTimeout(d time.Duration, cb Callback, userdata any)

	// Poll processes ready completions. timeoutMS of 0 means a
	// non-blocking peek; -1 blocks until at least one completion (or the
	// next timer) is ready. It returns the number of callbacks fired.
	Poll(timeoutMS int) int

	// Pending returns the number of operations submitted but not yet
	// completed, for shutdown draining.
	Pending() int

	Close() error
}

// New auto-detects the best backend: it tries the submission-ring backend
// first and falls back to the readiness-poll backend on any setup error
// (including "not Linux", "kernel too old", or a disabled build tag). The
// fallback is logged so an operator can tell which backend is serving.
func New() (Engine, error) {
	eng, err := newUringEngine()
	if err == nil {
		return eng, nil
	}
	log.Printf("RASKRT: io_uring unavailable, falling back to readiness-poll backend: %v", err)
	return newEpollEngine()
}
