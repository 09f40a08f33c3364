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

// Package workdeque implements a Chase-Lev lock-free work-stealing deque.
//
// The owning worker pushes and pops from the bottom without synchronization
// with other owners; any number of other workers may concurrently steal
// from the top using a compare-and-swap. Unlike the classic fixed-capacity
// Chase-Lev deque, PushBottom grows the backing array (by doubling) instead
// of failing when full, since dropping a runnable task is never acceptable
// here.
package workdeque

import (
	"sync/atomic"
)

const defaultCapacity = 256

// Deque is a single-owner, multi-stealer double-ended queue of T.
// The zero value is not usable; construct with New.
type Deque[T any] struct {
	top    atomic.Int64
	bottom atomic.Int64
	buf    atomic.Pointer[ring[T]]
}

type ring[T any] struct {
	mask  int64
	items []T
}

func newRing[T any](capacity int64) *ring[T] {
	return &ring[T]{mask: capacity - 1, items: make([]T, capacity)}
}

func (r *ring[T]) get(i int64) T {
	return r.items[i&r.mask]
}

func (r *ring[T]) put(i int64, v T) {
	r.items[i&r.mask] = v
}

func (r *ring[T]) size() int64 {
	return int64(len(r.items))
}

// grow copies live elements [t, b) into a new, double-capacity ring.
func (r *ring[T]) grow(b, t int64) *ring[T] {
	n := newRing[T](r.size() * 2)
	for i := t; i < b; i++ {
		n.put(i, r.get(i))
	}
	return n
}

// New constructs an empty deque with the given initial capacity, rounded up
// to the next power of two (minimum defaultCapacity).
func New[T any](initialCapacity int) *Deque[T] {
	cap := int64(defaultCapacity)
	for cap < int64(initialCapacity) {
		cap *= 2
	}
	d := &Deque[T]{}
	d.buf.Store(newRing[T](cap))
	return d
}

// PushBottom is called only by the owning worker. It never blocks and never
// drops: if the ring is full it is grown first.
func (d *Deque[T]) PushBottom(v T) {
	b := d.bottom.Load()
	t := d.top.Load()
	buf := d.buf.Load()

	if size := b - t; size >= buf.size()-1 {
		buf = buf.grow(b, t)
		d.buf.Store(buf)
	}

	buf.put(b, v)
	// Release: the write of the item must be visible before bottom advances.
	d.bottom.Store(b + 1)
}

// PopBottom is called only by the owning worker.
func (d *Deque[T]) PopBottom() (v T, ok bool) {
	b := d.bottom.Load() - 1
	buf := d.buf.Load()
	d.bottom.Store(b)

	// Seq-cst fence: order this store of bottom before the load of top below.
	t := d.top.Load()

	if t > b {
		// Deque was empty before the decrement; restore bottom.
		d.bottom.Store(b + 1)
		return v, false
	}

	v = buf.get(b)
	if t == b {
		// Last element: race with stealers via CAS on top.
		if !d.top.CompareAndSwap(t, t+1) {
			d.bottom.Store(b + 1)
			var zero T
			return zero, false
		}
		d.bottom.Store(b + 1)
		return v, true
	}
	return v, true
}

// Steal is called by any worker other than the owner. It never blocks.
func (d *Deque[T]) Steal() (v T, ok bool) {
	t := d.top.Load()
	// Seq-cst fence: order the load of top before the load of bottom.
	b := d.bottom.Load()

	if t >= b {
		var zero T
		return zero, false
	}

	buf := d.buf.Load()
	v = buf.get(t)
	if !d.top.CompareAndSwap(t, t+1) {
		var zero T
		return zero, false
	}
	return v, true
}

// Len returns a racy snapshot of the number of elements in the deque. Only
// meaningful as a hint (e.g. for choosing a steal victim).
func (d *Deque[T]) Len() int {
	b := d.bottom.Load()
	t := d.top.Load()
	if b < t {
		return 0
	}
	return int(b - t)
}

// Empty reports whether the deque currently holds no elements.
func (d *Deque[T]) Empty() bool {
	return d.Len() == 0
}
