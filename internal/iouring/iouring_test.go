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

package iouring

import (
	"runtime"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRing skips the test outright if this kernel/arch combination can't
// set up a ring at all (non-Linux, or a kernel predating
// IORING_FEAT_SINGLE_MMAP), matching how internal/ioeng's newUringEngine
// falls back to the readiness-poll backend on the same condition.
func newRing(t *testing.T, cfg *Config) *IOUring {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is only supported on Linux")
	}
	ring, err := NewIOUring(cfg)
	if err != nil {
		t.Skipf("io_uring unavailable on this kernel: %v", err)
	}
	t.Cleanup(func() { ring.Close() })
	return ring
}

func makePipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))
	t.Cleanup(func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	})
	return fds[0], fds[1]
}

// TestDefaultConfigSizesTheRing exercises NewIOUring(nil) falling back to
// DefaultConfig, and a custom queue size, proving Config actually drives
// ring construction rather than being a parallel, unused struct.
func TestDefaultConfigSizesTheRing(t *testing.T) {
	ring := newRing(t, nil)
	assert.NotNil(t, ring)
	assert.EqualValues(t, DefaultConfig().IOUringQueueSize, ring.sq.ringEntries)

	small := newRing(t, &Config{IOUringQueueSize: 4})
	assert.NotNil(t, small)
	assert.EqualValues(t, 4, small.sq.ringEntries)
}

// TestNopRoundTrip submits a no-op SQE and drains its completion: the
// smallest possible exercise of PeekSQE/AdvanceSQ/Submit/PeekCQE/WaitCQE/
// AdvanceCQ without touching a real fd.
func TestNopRoundTrip(t *testing.T) {
	ring := newRing(t, nil)

	sqe := ring.PeekSQE(true)
	require.NotNil(t, sqe)
	sqe.Opcode = IORING_OP_NOP
	sqe.UserData = 42
	ring.AdvanceSQ()

	submitted, errno := ring.Submit()
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, 1, submitted)

	cqe, err := ring.WaitCQE()
	require.NoError(t, err)
	assert.EqualValues(t, 42, cqe.UserData)
	assert.GreaterOrEqual(t, cqe.Res, int32(0))
	ring.AdvanceCQ()
}

// pipeReadBuf is TestPipeReadWrite's READV destination. It lives at package
// level rather than on the test goroutine's stack: the kernel fills it after
// Submit returns, by which time a grown stack may have been moved, and
// Iovec.Base is a plain uintptr that does not pin a stack buffer in place.
var pipeReadBuf [32]byte

// TestPipeReadWrite mirrors the shape internal/ioeng's uringEngine actually
// drives: a READV submitted against one end of a pipe, completed once the
// other end is written to with a plain syscall.Write.
func TestPipeReadWrite(t *testing.T) {
	ring := newRing(t, nil)
	r, w := makePipe(t)

	readBuf := pipeReadBuf[:]
	iov := Iovec{}
	iov.Set(readBuf)

	sqe := ring.PeekSQE(true)
	require.NotNil(t, sqe)
	sqe.Opcode = IORING_OP_READV
	sqe.Fd = int32(r)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&iov)))
	sqe.Len = 1
	sqe.UserData = 7
	ring.AdvanceSQ()

	submitted, errno := ring.Submit()
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, 1, submitted)

	_, werr := syscall.Write(w, []byte("hello"))
	require.NoError(t, werr)

	cqe, err := ring.WaitCQE()
	require.NoError(t, err)
	assert.EqualValues(t, 7, cqe.UserData)
	require.EqualValues(t, 5, cqe.Res)
	assert.Equal(t, "hello", string(readBuf[:cqe.Res]))
	ring.AdvanceCQ()
}

// TestPeekSQEFullRingReturnsNil fills the submission queue to capacity and
// confirms PeekSQE reports the ring is full rather than overrunning it.
func TestPeekSQEFullRingReturnsNil(t *testing.T) {
	ring := newRing(t, &Config{IOUringQueueSize: 2})

	for i := 0; i < 2; i++ {
		sqe := ring.PeekSQE(true)
		require.NotNil(t, sqe, "slot %d", i)
		sqe.Opcode = IORING_OP_NOP
		sqe.UserData = uint64(i)
		ring.AdvanceSQ()
	}
	assert.Nil(t, ring.PeekSQE(true), "ring should report full before the kernel ever sees these SQEs")
}

// TestPeekCQEEmptyReturnsNil confirms PeekCQE never blocks: with nothing
// submitted, there is nothing to complete.
func TestPeekCQEEmptyReturnsNil(t *testing.T) {
	ring := newRing(t, nil)
	assert.Nil(t, ring.PeekCQE())
}
