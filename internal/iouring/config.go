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

import "time"

// Config sizes the ring NewIOUring sets up. IOUringQueueSize is consumed
// directly by NewIOUring and, via DefaultConfig, by
// internal/ioeng's newUringEngine to size its opSlot table 1:1 with the
// ring. SQEBatchSize/SQESubmitInterval describe a batched, channel-fed
// submission loop this repo doesn't have: uringEngine pushes and submits
// one SQE per call instead, so those two fields are carried for a future
// batching submitter but read by nothing here today.
type Config struct {
	IOUringQueueSize  uint32
	SQEBatchSize      int
	SQESubmitInterval time.Duration
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		IOUringQueueSize:  256,
		SQEBatchSize:      256,
		SQESubmitInterval: 0, // 0 means disabled (submit only on batch size/channel empty)
	}
}
