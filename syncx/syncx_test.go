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

package syncx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLockMutates(t *testing.T) {
	m := NewMutex(0)
	m.Lock(func(v *int) { *v += 1 })
	m.Lock(func(v *int) { *v += 1 })

	var got int
	m.Lock(func(v *int) { got = *v })
	assert.Equal(t, 2, got)
}

func TestMutexTryLockFailsWhenHeld(t *testing.T) {
	m := NewMutex(0)
	m.mu.Lock()
	ran := m.TryLock(func(v *int) { *v = 99 })
	m.mu.Unlock()
	assert.False(t, ran)
}

func TestMutexConcurrentIncrements(t *testing.T) {
	m := NewMutex(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	var got int
	m.Lock(func(v *int) { got = *v })
	assert.Equal(t, 100, got)
}

func TestSharedMultipleReaders(t *testing.T) {
	s := NewShared("hello")
	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RLock(func(v *string) { results[i] = *v })
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, "hello", r)
	}
}

func TestSharedWriterExcludesReaders(t *testing.T) {
	s := NewShared(0)
	s.Lock(func(v *int) { *v = 5 })

	var got int
	s.RLock(func(v *int) { got = *v })
	assert.Equal(t, 5, got)
}

func TestSharedTryLockFailsUnderReadLock(t *testing.T) {
	s := NewShared(0)
	s.mu.RLock()
	ran := s.TryLock(func(v *int) { *v = 1 })
	s.mu.RUnlock()
	require.False(t, ran)
}
