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

//go:build windows

package ioeng

import "syscall"

func readFD(fd int, buf []byte) (int64, error) {
	n, err := syscall.Read(syscall.Handle(fd), buf)
	return int64(n), err
}

func writeFD(fd int, buf []byte) (int64, error) {
	n, err := syscall.Write(syscall.Handle(fd), buf)
	return int64(n), err
}

// acceptFD has no portable equivalent in the windows syscall package (no
// socket-layer Accept wrapper); accepting connections on windows goes
// through net.Listener at a higher layer than this engine operates at.
func acceptFD(listenFD int) (int64, error) {
	return 0, errUnsupported{"SubmitAccept"}
}
