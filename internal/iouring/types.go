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

import "unsafe"

// IOUringSQE is the kernel's io_uring_sqe layout. uringEngine (in
// internal/ioeng) only ever sets Opcode/Fd/Addr/Len/OpcodeFlags/UserData;
// the rest exist because the kernel reads this struct at a fixed 64-byte
// stride and skipping a field would misalign every one after it.
type IOUringSQE struct {
	Opcode      uint8     // Operation code (IORING_OP_*)
	Flags       uint8     // Flags modifier for operation
	IoPrio      uint16    // Priority for this request
	Fd          int32     // File descriptor to operate on
	Off         uint64    // Offset for operations (or accept flags)
	Addr        uint64    // Pointer to buffer or input args
	Len         uint32    // Length of buffer or number of iovecs
	OpcodeFlags uint32    // Opcode-specific flags
	UserData    uint64    // User data (returned in CQE)
	BufIndex    uint16    // Index into registered buffer array
	Personality uint16    // Personality to use (registered credentials)
	SpliceFdIn  int32     // File descriptor for splice operations
	_           [2]uint64 // Padding to 64 bytes
}

// IOUringCQE is the kernel's io_uring_cqe layout: UserData round-trips the
// opSlot index uringEngine submitted it with, Res is bytes transferred (or
// -errno) and is what becomes the Callback's result/err pair.
type IOUringCQE struct {
	UserData uint64 // User data from submission (identifies request)
	Res      int32  // Result of operation (bytes transferred or -errno)
	Flags    uint32 // Flags about the completion
}

// Iovec is the single-buffer iovec uringEngine points a READV/WRITEV SQE's
// Addr field at; Len is always 1 on the submitting side, so this never
// needs to be part of an actual array.
type Iovec struct {
	Base uintptr // Pointer to buffer
	Len  uint64  // Length of buffer
}

// Set points the iovec at b, as uringEngine does once per submitted
// SubmitRead/SubmitWrite.
func (p *Iovec) Set(b []byte) {
	p.Len = uint64(len(b))
	if p.Len > 0 {
		p.Base = uintptr(unsafe.Pointer(&b[0]))
	}
}

// TimeSpec is the kernel's __kernel_timespec layout, used by uringEngine's
// SubmitTimeout to express a time.Duration as the seconds/nanoseconds pair
// IORING_OP_TIMEOUT expects.
type TimeSpec struct {
	TvSec  int64 // Seconds
	TvNsec int64 // Nanoseconds
}

// IsZero returns true if the timespec represents zero time.
func (p *TimeSpec) IsZero() bool {
	return *p == TimeSpec{}
}
