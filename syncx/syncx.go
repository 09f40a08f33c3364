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

// Package syncx provides the runtime's two closure-gated locks: Mutex[T]
// (exclusive) and Shared[T] (read-write). Neither ever returns a pointer to
// the protected datum to the caller directly; both only ever hand it to a
// callback for the callback's duration, so a reference to the datum cannot
// escape the critical section.
package syncx

import "sync"

// Mutex wraps a value of type T behind sync.Mutex, exposing access only
// through a callback.
type Mutex[T any] struct {
	mu   sync.Mutex
	data T
}

// NewMutex constructs a Mutex, copying initial by value (the datum is
// always owned by the Mutex from this point; the caller's copy is
// unaffected by later mutation through Lock).
func NewMutex[T any](initial T) *Mutex[T] {
	return &Mutex[T]{data: initial}
}

// Lock runs f with exclusive access to the protected datum. The pointer
// passed to f is only valid for the duration of the call; f must not store
// it anywhere that outlives the call.
func (m *Mutex[T]) Lock(f func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.data)
}

// TryLock attempts to acquire the lock without blocking. It returns false
// (without calling f) if the lock was already held.
func (m *Mutex[T]) TryLock(f func(*T)) bool {
	if !m.mu.TryLock() {
		return false
	}
	defer m.mu.Unlock()
	f(&m.data)
	return true
}

// Shared wraps a value of type T behind sync.RWMutex: multiple concurrent
// readers, or one exclusive writer, never both.
type Shared[T any] struct {
	mu   sync.RWMutex
	data T
}

// NewShared constructs a Shared, copying initial by value.
func NewShared[T any](initial T) *Shared[T] {
	return &Shared[T]{data: initial}
}

// Lock runs f with exclusive (write) access.
func (s *Shared[T]) Lock(f func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.data)
}

// TryLock is Lock's non-blocking variant.
func (s *Shared[T]) TryLock(f func(*T)) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	f(&s.data)
	return true
}

// RLock runs f with shared (read) access. f still receives a *T (not a
// const pointer — Go has no const), but f must only read through it:
// mutating under RLock while another reader is active is a data race the
// type system cannot prevent.
func (s *Shared[T]) RLock(f func(*T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(&s.data)
}

// TryRLock is RLock's non-blocking variant.
func (s *Shared[T]) TryRLock(f func(*T)) bool {
	if !s.mu.TryRLock() {
		return false
	}
	defer s.mu.RUnlock()
	f(&s.data)
	return true
}
