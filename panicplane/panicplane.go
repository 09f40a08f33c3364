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

// Package panicplane is the structured panic capture boundary between a
// task's Poll call and the scheduler driving it.
//
// A panicking poll function must never unwind into the scheduler's own
// frames. Run wraps a single recover() around the call and turns a panic
// into a plain return value, so the failure can be propagated to a joiner
// instead of only logged.
package panicplane

import (
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
)

// Run invokes fn under panic recovery. If fn panics, recovered is the
// panic value formatted as a string and didPanic is true; out is the zero
// value of T in that case. Otherwise out is fn's return value.
func Run[T any](fn func() T) (out T, recovered string, didPanic bool) {
	defer func() {
		if r := recover(); r != nil {
			recovered = fmt.Sprint(r)
			didPanic = true
			var zero T
			out = zero
		}
	}()
	return fn(), "", false
}

// Panic panics with the call site's file:line prefixed onto msg, so a
// captured failure message carries its source location to the joiner.
func Panic(msg string) {
	panic(withLocation(msg, 1))
}

// Panicf is Panic with fmt.Sprintf-style formatting.
func Panicf(format string, args ...any) {
	panic(withLocation(fmt.Sprintf(format, args...), 1))
}

func withLocation(msg string, skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return msg
	}
	return fmt.Sprintf("%s:%d: %s", file, line, msg)
}

// Outside reports an unrecovered panic observed with no task driving it
// (a worker between tasks, or process main): logged with a best-effort
// stack trace. The caller is expected to re-panic immediately after and
// let the process crash; Outside only handles the diagnostic, never the
// control flow.
func Outside(r any) {
	log.Printf("RASKRT: unrecovered panic outside any task: %v\n%s", r, debug.Stack())
}
