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

package workdeque

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOwnerLIFO(t *testing.T) {
	d := New[int](4)
	d.PushBottom(1)
	d.PushBottom(2)
	d.PushBottom(3)

	v, ok := d.PopBottom()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = d.PopBottom()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPopEmptyReturnsFalse(t *testing.T) {
	d := New[int](4)
	_, ok := d.PopBottom()
	assert.False(t, ok)
	assert.True(t, d.Empty())
}

func TestStealTakesFromTop(t *testing.T) {
	d := New[int](4)
	d.PushBottom(1)
	d.PushBottom(2)
	d.PushBottom(3)

	v, ok := d.Steal()
	require.True(t, ok)
	assert.Equal(t, 1, v) // oldest pushed, taken from the top
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	d := New[int](4) // rounds up to defaultCapacity(256) minimum
	const n = 5000
	for i := 0; i < n; i++ {
		d.PushBottom(i)
	}
	assert.Equal(t, n, d.Len())

	got := 0
	for {
		_, ok := d.PopBottom()
		if !ok {
			break
		}
		got++
	}
	assert.Equal(t, n, got)
}

// TestDequeContention: one owner pushes 10,000 tasks while several
// stealers race to pop them. Exactly 10,000 total pops must happen across
// owner+stealers, with no value observed twice.
func TestDequeContention(t *testing.T) {
	const total = 10000
	const stealers = 7

	d := New[int](256)
	var seen [total]atomic.Bool
	var totalPops atomic.Int64

	var wg sync.WaitGroup
	stop := make(chan struct{})

	record := func(v int) {
		if !seen[v].CompareAndSwap(false, true) {
			t.Fatalf("value %d popped twice", v)
		}
		totalPops.Add(1)
	}

	for i := 0; i < stealers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					if v, ok := d.Steal(); ok {
						record(v)
					}
					return
				default:
					if v, ok := d.Steal(); ok {
						record(v)
					}
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		d.PushBottom(i)
	}
	for {
		v, ok := d.PopBottom()
		if !ok {
			break
		}
		record(v)
	}
	close(stop)
	wg.Wait()

	// Drain anything stealers might have missed after stop closed but
	// before the owner's final empty check raced with an in-flight steal.
	for {
		v, ok := d.Steal()
		if !ok {
			break
		}
		record(v)
	}

	assert.Equal(t, int64(total), totalPops.Load())
	for i := 0; i < total; i++ {
		assert.True(t, seen[i].Load(), "value %d never popped", i)
	}
}
