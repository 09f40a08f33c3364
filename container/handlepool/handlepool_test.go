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

package handlepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	h := Pack(12345, 67, 3)
	idx, gen, pool := h.Unpack()
	assert.Equal(t, uint32(12345), idx)
	assert.Equal(t, uint32(67), gen)
	assert.Equal(t, uint8(3), pool)
}

func TestInsertGetRemove(t *testing.T) {
	p := New[string](1)
	h := p.Insert("hello")

	v, ok := p.Get(h)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	require.True(t, p.Remove(h))
	_, ok = p.Get(h)
	assert.False(t, ok)
}

func TestStaleHandleAfterGenerationBump(t *testing.T) {
	p := New[int](0)
	h1 := p.Insert(1)
	require.True(t, p.Remove(h1))

	h2 := p.Insert(2)
	idx1, _, _ := h1.Unpack()
	idx2, _, _ := h2.Unpack()
	require.Equal(t, idx1, idx2) // slot reused

	_, ok := p.Get(h1)
	assert.False(t, ok, "stale handle from before the generation bump must be rejected")

	v, ok := p.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestHandleFromDifferentPoolRejected(t *testing.T) {
	p1 := New[int](1)
	p2 := New[int](2)

	h := p1.Insert(42)
	_, ok := p2.Get(h)
	assert.False(t, ok)
}

func TestRemoveTwiceReturnsFalse(t *testing.T) {
	p := New[int](0)
	h := p.Insert(1)
	require.True(t, p.Remove(h))
	assert.False(t, p.Remove(h))
}

func TestGenerationSaturationRetiresSlot(t *testing.T) {
	p := New[int](0)
	h := p.Insert(1)
	idx, _, _ := h.Unpack()

	// Force the slot to the edge of what Pack/Unpack can represent (and
	// repack h to match, or Remove would reject it as stale), then remove
	// it: Remove must retire the slot rather than recycle it.
	p.slots[idx].generation = uint32(genMask)
	h = Pack(idx, uint32(genMask), 0)
	require.True(t, p.Remove(h))
	assert.Equal(t, int32(-1), p.slots[idx].next, "saturated slot must not rejoin the freelist")

	h2 := p.Insert(2)
	idx2, _, _ := h2.Unpack()
	assert.NotEqual(t, idx, idx2, "a new insert must not reuse a retired slot")

	v, ok := p.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLenTracksOccupiedSlots(t *testing.T) {
	p := New[int](0)
	assert.Equal(t, 0, p.Len())
	h1 := p.Insert(1)
	p.Insert(2)
	assert.Equal(t, 2, p.Len())
	p.Remove(h1)
	assert.Equal(t, 1, p.Len())
}
