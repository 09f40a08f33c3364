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

//go:build !linux && !windows

package ioeng

import "syscall"

func readFD(fd int, buf []byte) (int64, error) {
	n, err := syscall.Read(fd, buf)
	return int64(n), err
}

func writeFD(fd int, buf []byte) (int64, error) {
	n, err := syscall.Write(fd, buf)
	return int64(n), err
}

func acceptFD(listenFD int) (int64, error) {
	nfd, _, err := syscall.Accept(listenFD)
	return int64(nfd), err
}
