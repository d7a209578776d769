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

// Package uart brings up an NCI controller attached to a serial port. The
// controller enable line (VEN) is driven from a modem control line of the
// adapter.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// VENLine selects the modem control line wired to the controller's VEN pin.
type VENLine string

const (
	VENDTR  VENLine = "dtr"
	VENRTS  VENLine = "rts"
	VENNone VENLine = "none"
)

// Config describes the serial link.
type Config struct {
	Port     string        `yaml:"port"`
	VEN      VENLine       `yaml:"ven"`
	BaudRate int           `yaml:"baud_rate"`
	PowerOff time.Duration `yaml:"power_off"`
	PowerOn  time.Duration `yaml:"power_on"`
	// ReadTimeout bounds a single port read.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultConfig returns the settings for a 115200 8N1 adapter with VEN on
// DTR.
func DefaultConfig(port string) Config {
	return Config{
		Port:        port,
		VEN:         VENDTR,
		BaudRate:    115200,
		PowerOff:    10 * time.Millisecond,
		PowerOn:     getDefaultReadTimeout(),
		ReadTimeout: getDefaultReadTimeout(),
	}
}

// getDefaultReadTimeout returns a longer timeout on Windows, whose serial
// drivers deliver bytes in coarser bursts.
func getDefaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// OpenFunc opens a serial port. serial.Open is used unless replaced.
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Option configures a HAL.
type Option func(*HAL)

// WithOpenFunc replaces the function used to open the port.
func WithOpenFunc(fn OpenFunc) Option {
	return func(h *HAL) { h.open = fn }
}

// WithLogger sets the HAL logger.
func WithLogger(log zerolog.Logger) Option {
	return func(h *HAL) { h.log = log }
}

// HAL implements nci.HAL over a serial port.
type HAL struct {
	log  zerolog.Logger
	port serial.Port
	open OpenFunc
	cfg  Config
	mu   syncutil.Mutex
}

var _ nci.HAL = (*HAL)(nil)

// New creates a HAL for cfg. The port is opened by Initialize.
func New(cfg Config, opts ...Option) *HAL {
	h := &HAL{
		cfg:  cfg,
		open: serial.Open,
		log:  nci.Logger().With().Str("component", "hal/uart").Str("port", cfg.Port).Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Initialize opens the port, power cycles the controller and checks that it
// answers CORE_RESET.
func (h *HAL) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.port != nil {
		return nil
	}

	port, err := h.open(h.cfg.Port, &serial.Mode{
		BaudRate: h.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nci.NewHALError("open", h.cfg.Port, err, classifyOpenError(err))
	}

	if err := h.bringUp(ctx, port); err != nil {
		_ = h.setVEN(port, false)
		_ = port.Close()
		return err
	}
	h.port = port
	h.log.Debug().Msg("controller powered and reset")
	return nil
}

func (h *HAL) bringUp(ctx context.Context, port serial.Port) error {
	if err := port.SetReadTimeout(h.cfg.ReadTimeout); err != nil {
		return nci.NewHALError("set read timeout", h.cfg.Port, err, nci.ErrorTypePermanent)
	}
	if err := h.setVEN(port, false); err != nil {
		return err
	}
	if err := hal.Sleep(ctx, h.cfg.PowerOff); err != nil {
		return err
	}
	if err := h.setVEN(port, true); err != nil {
		return err
	}
	if err := hal.Sleep(ctx, h.cfg.PowerOn); err != nil {
		return err
	}
	if err := port.ResetInputBuffer(); err != nil {
		h.log.Warn().Err(err).Msg("input buffer reset failed")
	}
	return hal.Reset(&hal.TimeoutReader{ReadWriter: port, MaxEmpty: 3}, h.cfg.Port)
}

func (h *HAL) setVEN(port serial.Port, on bool) error {
	var err error
	switch h.cfg.VEN {
	case VENDTR:
		err = port.SetDTR(on)
	case VENRTS:
		err = port.SetRTS(on)
	default:
		return nil
	}
	if err != nil {
		return nci.NewHALError("set ven", h.cfg.Port, err, nci.ErrorTypeTransient)
	}
	return nil
}

// Finalize powers the controller down and closes the port.
func (h *HAL) Finalize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.port == nil {
		return nil
	}
	port := h.port
	h.port = nil

	var errs []error
	if err := h.setVEN(port, false); err != nil {
		errs = append(errs, err)
	}
	if err := port.Close(); err != nil {
		errs = append(errs, fmt.Errorf("UART close failed: %w", err))
	}
	return errors.Join(errs...)
}

// DownloadFirmware is not available over a plain serial link.
func (*HAL) DownloadFirmware(context.Context) (bool, error) {
	return false, nci.ErrFirmwareUnsupported
}

// Conn returns the open port for the NCI stack, or nil before Initialize.
func (h *HAL) Conn() io.ReadWriter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.port == nil {
		return nil
	}
	return h.port
}

// classifyOpenError maps serial open failures onto retry categories. A busy
// port may free up; a missing one or a permission problem will not.
func classifyOpenError(err error) nci.ErrorType {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortBusy:
			return nci.ErrorTypeTransient
		case serial.PortNotFound, serial.PermissionDenied, serial.InvalidSerialPort:
			return nci.ErrorTypePermanent
		default:
		}
	}
	return nci.ErrorTypeTransient
}
