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

// Package handlepool provides generation-tagged indirection over a growable
// slot table. A Handle stays valid only for the lifetime of the value it was
// issued for; reusing a stale Handle after the slot has been recycled is
// detected and rejected rather than silently returning the wrong value.
//
// This standardizes on a single packed layout (slot index + generation +
// pool identity interleaved into one value), rather than carrying the two
// competing representations (a plain struct, and a separately packed int64)
// that earlier revisions of this scheme left unresolved.
package handlepool

import (
	"sync"
)

// Handle is an opaque reference into a Pool. The zero Handle is never valid.
type Handle uint64

const (
	indexBits = 32
	genBits   = 24
	poolBits  = 8

	indexMask = uint64(1)<<indexBits - 1
	genMask   = uint64(1)<<genBits - 1
	poolMask  = uint64(1)<<poolBits - 1
)

// Pack interleaves index, generation and poolID into one Handle.
func Pack(index, generation uint32, poolID uint8) Handle {
	return Handle(uint64(index)&indexMask |
		(uint64(generation)&genMask)<<indexBits |
		(uint64(poolID)&poolMask)<<(indexBits+genBits))
}

// Unpack reverses Pack.
func (h Handle) Unpack() (index, generation uint32, poolID uint8) {
	v := uint64(h)
	index = uint32(v & indexMask)
	generation = uint32((v >> indexBits) & genMask)
	poolID = uint8((v >> (indexBits + genBits)) & poolMask)
	return
}

type slot[T any] struct {
	value      T
	generation uint32
	next       int32 // freelist link; -1 if occupied
	occupied   bool
}

// Pool is a generation-checked slot table of T, safe for concurrent use.
type Pool[T any] struct {
	mu       sync.Mutex
	id       uint8
	slots    []slot[T]
	freeHead int32 // -1 if none free
}

// New creates an empty pool tagged with the given pool identity. poolID
// distinguishes handles minted by different pools so a handle from one pool
// is rejected by another rather than silently indexing into it.
func New[T any](poolID uint8) *Pool[T] {
	return &Pool[T]{id: poolID, freeHead: -1}
}

// Insert stores v in a free (or newly grown) slot and returns its handle.
func (p *Pool[T]) Insert(v T) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx int32
	if p.freeHead != -1 {
		idx = p.freeHead
		p.freeHead = p.slots[idx].next
	} else {
		p.slots = append(p.slots, slot[T]{generation: 0, next: -1})
		idx = int32(len(p.slots) - 1)
	}

	s := &p.slots[idx]
	s.value = v
	s.occupied = true
	return Pack(uint32(idx), s.generation, p.id)
}

// Get resolves a handle to its value. ok is false if the handle is stale
// (slot recycled), out of range, or from a different pool.
func (p *Pool[T]) Get(h Handle) (v T, ok bool) {
	index, generation, poolID := h.Unpack()
	if poolID != p.id {
		return v, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if int(index) >= len(p.slots) {
		return v, false
	}
	s := &p.slots[index]
	if !s.occupied || s.generation != generation {
		return v, false
	}
	return s.value, true
}

// Remove frees the slot referenced by h and bumps its generation, so any
// handle minted against the old generation is rejected on future lookups.
// Returns false if h was already stale.
func (p *Pool[T]) Remove(h Handle) bool {
	index, generation, poolID := h.Unpack()
	if poolID != p.id {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if int(index) >= len(p.slots) {
		return false
	}
	s := &p.slots[index]
	if !s.occupied || s.generation != generation {
		return false
	}

	var zero T
	s.value = zero
	s.occupied = false
	if s.generation < uint32(genMask) {
		s.generation++
		s.next = p.freeHead
		p.freeHead = int32(index)
	} else {
		// generation has reached the largest value Pack/Unpack can carry;
		// recycling it further would let a post-saturation handle collide
		// with one minted before saturation. Retire the slot instead: drop
		// it off the freelist for good, it is never handed out again.
		s.next = -1
	}
	return true
}

// Len reports the number of live (occupied) slots.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].occupied {
			n++
		}
	}
	return n
}
