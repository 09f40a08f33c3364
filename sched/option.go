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

package sched

import (
	"runtime"
	"time"
)

// Option configures a Scheduler, mirroring the Option/DefaultOption shape
// used throughout this codebase's other configurable components.
type Option struct {
	// Workers is the number of worker goroutines. Defaults
	// to runtime.NumCPU(), with a floor of 4.
	Workers int

	// DequeCapacity is the initial per-worker local deque size. It grows
	// by doubling rather than ever rejecting a push.
	DequeCapacity int

	// ParkTimeout bounds how long an idle worker sleeps before re-checking
	// the global queue and I/O engine, even absent a wakeup signal.
	ParkTimeout time.Duration

	// SpinIterations bounds how many times an idle worker calls
	// runtime.Gosched() before parking.
	SpinIterations int

	// ShutdownPoll is the polling interval used while draining active
	// tasks during Shutdown.
	ShutdownPoll time.Duration
}

// DefaultOption returns sensible defaults for Option.
func DefaultOption() *Option {
	workers := runtime.NumCPU()
	if workers < 4 {
		workers = 4
	}
	return &Option{
		Workers:        workers,
		DequeCapacity:  256,
		ParkTimeout:    time.Millisecond,
		SpinIterations: 64,
		ShutdownPoll:   10 * time.Millisecond,
	}
}
