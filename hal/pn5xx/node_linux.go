// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package pn5xx

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	pn5xxSetPwr   = 0xE901
	maxBusRetries = 3
)

type fdNode struct {
	fd      int
	timeout time.Duration
}

func openNode(path string, readTimeout time.Duration) (Node, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &fdNode{fd: fd, timeout: readTimeout}, nil
}

func (n *fdNode) SetPower(mode PowerMode) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(n.fd), uintptr(pn5xxSetPwr), uintptr(mode))
	if errno != 0 {
		return fmt.Errorf("power ioctl: %w", errno)
	}
	return nil
}

// Read waits up to the read timeout for the driver to signal data and
// returns (0, nil) if none arrives.
func (n *fdNode) Read(p []byte) (int, error) {
	fds := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
	for {
		ready, err := unix.Poll(fds, int(n.timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if ready == 0 {
			return 0, nil
		}
		break
	}
	for retry := 0; ; retry++ {
		c, err := unix.Read(n.fd, p)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		case errors.Is(err, unix.ENXIO) && retry < maxBusRetries:
			time.Sleep(time.Millisecond)
		default:
			return 0, fmt.Errorf("read: %w", err)
		}
	}
}

// Write retries while the controller NACKs its address, which it does while
// waking from standby.
func (n *fdNode) Write(p []byte) (int, error) {
	for retry := 0; ; retry++ {
		c, err := unix.Write(n.fd, p)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, unix.EINTR):
		case (errors.Is(err, unix.ENXIO) || errors.Is(err, unix.EAGAIN)) && retry < maxBusRetries:
			time.Sleep(time.Millisecond)
		default:
			return 0, fmt.Errorf("write: %w", err)
		}
	}
}

func (n *fdNode) Close() error {
	return unix.Close(n.fd)
}
