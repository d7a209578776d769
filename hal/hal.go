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

// Package hal holds the pieces shared by the controller bring-up layers:
// the CORE_RESET handshake that proves a controller is alive after power
// up, and context-aware delays for power sequencing.
package hal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/frame"
)

// maxResetNotifications bounds the notifications tolerated ahead of the
// CORE_RESET response. NCI 2.0 controllers send CORE_RESET_NTF after it.
const maxResetNotifications = 2

// ErrResetRejected is returned when the controller answers CORE_RESET with
// a failure status.
var ErrResetRejected = errors.New("controller rejected core reset")

// ErrReadTimeout is returned by TimeoutReader when the port stays silent.
var ErrReadTimeout = errors.New("read timed out")

// Reset performs the CORE_RESET handshake over rw. Failures are returned as
// *nci.HALError for device.
func Reset(rw io.ReadWriter, device string) error {
	rsp, err := frame.Exchange(rw, frame.CoreReset(frame.ResetConfig), maxResetNotifications)
	if err != nil {
		errType := nci.ErrorTypeTransient
		if errors.Is(err, ErrReadTimeout) {
			errType = nci.ErrorTypeTimeout
		}
		return nci.NewHALError("core reset", device, err, errType)
	}
	st, err := rsp.Status()
	if err != nil {
		return nci.NewHALError("core reset", device, err, nci.ErrorTypeTransient)
	}
	if st != frame.StatusOK {
		return nci.NewHALError("core reset", device,
			fmt.Errorf("%w: status 0x%02X", ErrResetRejected, st), nci.ErrorTypeTransient)
	}
	return nil
}

// Sleep waits for d. It returns ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TimeoutReader adapts a port whose Read returns (0, nil) on timeout. After
// MaxEmpty consecutive empty reads it fails with ErrReadTimeout instead of
// letting io.ReadFull spin.
type TimeoutReader struct {
	io.ReadWriter
	MaxEmpty int
}

func (t *TimeoutReader) Read(p []byte) (int, error) {
	for empty := 0; ; empty++ {
		n, err := t.ReadWriter.Read(p)
		if n > 0 || err != nil || len(p) == 0 {
			return n, err
		}
		if empty >= t.MaxEmpty {
			return 0, ErrReadTimeout
		}
	}
}
