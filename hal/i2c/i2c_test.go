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

package i2c

import (
	"context"
	"errors"
	"testing"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

var resetCmd = []byte{0x20, 0x00, 0x01, 0x01}

func resetOps(status byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: DefaultAddr, W: resetCmd},
		{Addr: DefaultAddr, R: []byte{0x40, 0x00, 0x01}},
		{Addr: DefaultAddr, R: []byte{status}},
	}
}

func testConfig() Config {
	cfg := DefaultConfig("/dev/i2c-test")
	cfg.VEN = "GPIO23"
	cfg.PowerOff = 0
	cfg.PowerOn = 0
	return cfg
}

func newTestHAL(cfg Config, bus *i2ctest.Playback, ven *gpiotest.Pin) *HAL {
	return New(cfg,
		WithBusOpener(func(string) (i2c.BusCloser, error) { return bus, nil }),
		WithPinLookup(func(name string) gpio.PinIO {
			if ven != nil && name == ven.N {
				return ven
			}
			return nil
		}),
	)
}

func TestHAL_InitializeFinalize(t *testing.T) {
	t.Parallel()

	bus := &i2ctest.Playback{Ops: resetOps(0x00), DontPanic: true}
	ven := &gpiotest.Pin{N: "GPIO23"}
	h := newTestHAL(testConfig(), bus, ven)

	require.NoError(t, h.Initialize(context.Background()))
	assert.Equal(t, gpio.High, ven.Read())
	assert.NotNil(t, h.Conn())

	require.NoError(t, h.Initialize(context.Background()), "initialize is idempotent")

	// Playback.Close fails if any scripted transaction was not consumed.
	require.NoError(t, h.Finalize())
	assert.Equal(t, gpio.Low, ven.Read())
	assert.Nil(t, h.Conn())
}

func TestHAL_InitializeWithoutVEN(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VEN = ""
	bus := &i2ctest.Playback{Ops: resetOps(0x00), DontPanic: true}
	h := newTestHAL(cfg, bus, nil)

	require.NoError(t, h.Initialize(context.Background()))
	require.NoError(t, h.Finalize())
}

func TestHAL_InitializeFailures(t *testing.T) {
	t.Parallel()

	t.Run("MissingPin", func(t *testing.T) {
		t.Parallel()
		h := newTestHAL(testConfig(), &i2ctest.Playback{DontPanic: true}, nil)
		err := h.Initialize(context.Background())
		require.ErrorIs(t, err, ErrPinNotFound)
		assert.True(t, nci.IsFatal(err))
	})

	t.Run("BusOpenFails", func(t *testing.T) {
		t.Parallel()
		openErr := errors.New("no bus")
		h := New(testConfig(),
			WithBusOpener(func(string) (i2c.BusCloser, error) { return nil, openErr }),
			WithPinLookup(func(string) gpio.PinIO { return &gpiotest.Pin{N: "GPIO23"} }),
		)
		err := h.Initialize(context.Background())
		require.ErrorIs(t, err, openErr)
		assert.False(t, nci.IsRetryable(err))
	})

	t.Run("ResetRejected", func(t *testing.T) {
		t.Parallel()
		ven := &gpiotest.Pin{N: "GPIO23"}
		bus := &i2ctest.Playback{Ops: resetOps(0x03), DontPanic: true}
		h := newTestHAL(testConfig(), bus, ven)
		err := h.Initialize(context.Background())
		require.ErrorIs(t, err, hal.ErrResetRejected)
		assert.Equal(t, gpio.Low, ven.Read(), "controller powered down after failure")
		assert.Nil(t, h.Conn())
	})

	t.Run("NoAnswer", func(t *testing.T) {
		t.Parallel()
		ven := &gpiotest.Pin{N: "GPIO23"}
		bus := &i2ctest.Playback{Ops: resetOps(0x00)[:1], DontPanic: true}
		h := newTestHAL(testConfig(), bus, ven)
		err := h.Initialize(context.Background())
		var he *nci.HALError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, "/dev/i2c-test:0x28", he.Device)
	})
}

func TestHAL_Conn(t *testing.T) {
	t.Parallel()

	ops := append(resetOps(0x00),
		i2ctest.IO{Addr: DefaultAddr, W: []byte{0x20, 0x01, 0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	h := newTestHAL(testConfig(), bus, &gpiotest.Pin{N: "GPIO23"})
	require.NoError(t, h.Initialize(context.Background()))

	n, err := h.Conn().Write([]byte{0x20, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, h.Finalize())
}

func TestHAL_DownloadFirmware(t *testing.T) {
	t.Parallel()

	written, err := New(testConfig()).DownloadFirmware(context.Background())
	require.ErrorIs(t, err, nci.ErrFirmwareUnsupported)
	assert.False(t, written)
}
