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

package chan2

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNegativeCapacityPanics(t *testing.T) {
	assert.Panics(t, func() {
		New[int](-1)
	})
}

func TestBufferedRoundTrip(t *testing.T) {
	tx, rx := New[int](4)
	for i := 0; i < 4; i++ {
		require.Equal(t, OK, tx.Send(i))
	}
	assert.Equal(t, Full, tx.TrySend(99))
	for i := 0; i < 4; i++ {
		v, st := rx.Recv()
		require.Equal(t, OK, st)
		assert.Equal(t, i, v)
	}
	_, st := rx.TryRecv()
	assert.Equal(t, Empty, st)
}

func TestBufferedClosedAfterSendersDrop(t *testing.T) {
	tx, rx := New[int](2)
	require.Equal(t, OK, tx.Send(1))
	tx.Close()

	v, st := rx.Recv()
	require.Equal(t, OK, st)
	assert.Equal(t, 1, v)

	_, st = rx.Recv()
	assert.Equal(t, Closed, st)
}

func TestBufferedSendAfterReceiversDropIsClosed(t *testing.T) {
	tx, rx := New[int](1)
	rx.Close()
	assert.Equal(t, Closed, tx.Send(7))
}

func TestRendezvousCapacityZeroBehavesAsHandoff(t *testing.T) {
	tx, rx := New[int](0)
	assert.Equal(t, 0, tx.c.Cap())

	var got []int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			v, st := rx.Recv()
			require.Equal(t, OK, st)
			got = append(got, v)
		}
	}()

	for _, v := range []int{10, 20, 30} {
		require.Equal(t, OK, tx.Send(v))
	}
	wg.Wait()
	assert.Equal(t, []int{10, 20, 30}, got)

	tx.Close()
	_, st := rx.Recv()
	assert.Equal(t, Closed, st)
}

func TestRendezvousTrySendAlwaysFullUnlessClosed(t *testing.T) {
	tx, rx := New[int](0)
	assert.Equal(t, Full, tx.TrySend(1))
	rx.Close()
	assert.Equal(t, Closed, tx.TrySend(1))
}

func TestSenderCloneIncrementsRefcount(t *testing.T) {
	tx, rx := New[int](1)
	tx2 := tx.Clone()

	tx.Close()
	// One sender remains (tx2); channel must not be closed yet.
	require.Equal(t, OK, tx2.Send(5))
	v, st := rx.Recv()
	require.Equal(t, OK, st)
	assert.Equal(t, 5, v)

	tx2.Close()
	_, st = rx.Recv()
	assert.Equal(t, Closed, st)
}

func TestFanOutFanInSum(t *testing.T) {
	tx, rx := New[int](16)
	const senders = 8
	const perSender = 1000

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		sender := tx.Clone()
		go func() {
			defer wg.Done()
			defer sender.Close()
			for i := 1; i <= perSender; i++ {
				require.Equal(t, OK, sender.Send(i))
			}
		}()
	}
	tx.Close() // drop this repo's own handle; senders clones keep it open

	sum := 0
	for {
		v, st := rx.Recv()
		if st == Closed {
			break
		}
		require.Equal(t, OK, st)
		sum += v
	}
	wg.Wait()
	assert.Equal(t, senders*500500, sum)
}
