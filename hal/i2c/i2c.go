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

// Package i2c brings up an NCI controller on an I2C bus, such as the
// PN7150 or PN7160, with its VEN line on a GPIO.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddr is the 7-bit address of PN71xx controllers with both
	// address pins low.
	DefaultAddr = 0x28

	maxClockFreq = 400 * physic.KiloHertz
)

// ErrPinNotFound is returned when a configured GPIO does not exist.
var ErrPinNotFound = errors.New("gpio pin not found")

// Config describes the bus and control lines.
type Config struct {
	// Bus is a periph bus name such as "/dev/i2c-1" or "1".
	Bus string `yaml:"bus"`
	// VEN and IRQ are GPIO names; empty leaves the line unmanaged.
	VEN         string        `yaml:"ven"`
	IRQ         string        `yaml:"irq"`
	PowerOff    time.Duration `yaml:"power_off"`
	PowerOn     time.Duration `yaml:"power_on"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Addr        uint16        `yaml:"addr"`
}

// DefaultConfig returns the settings for a controller at DefaultAddr.
func DefaultConfig(bus string) Config {
	return Config{
		Bus:         bus,
		Addr:        DefaultAddr,
		PowerOff:    10 * time.Millisecond,
		PowerOn:     10 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Option configures a HAL.
type Option func(*HAL)

// WithBusOpener replaces the function that opens the I2C bus.
func WithBusOpener(fn func(name string) (i2c.BusCloser, error)) Option {
	return func(h *HAL) { h.openBus = fn }
}

// WithPinLookup replaces the GPIO registry lookup.
func WithPinLookup(fn func(name string) gpio.PinIO) Option {
	return func(h *HAL) { h.pinByName = fn }
}

// WithLogger sets the HAL logger.
func WithLogger(log zerolog.Logger) Option {
	return func(h *HAL) { h.log = log }
}

// HAL implements nci.HAL over I2C.
type HAL struct {
	log       zerolog.Logger
	bus       i2c.BusCloser
	ven       gpio.PinIO
	irq       gpio.PinIO
	openBus   func(name string) (i2c.BusCloser, error)
	pinByName func(name string) gpio.PinIO
	dev       *i2c.Dev
	cfg       Config
	mu        syncutil.Mutex
}

var _ nci.HAL = (*HAL)(nil)

// New creates a HAL for cfg. The bus is opened by Initialize.
func New(cfg Config, opts ...Option) *HAL {
	h := &HAL{
		cfg:       cfg,
		openBus:   openHostBus,
		pinByName: gpioreg.ByName,
		log:       nci.Logger().With().Str("component", "hal/i2c").Str("bus", cfg.Bus).Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func openHostBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", name, err)
	}
	return bus, nil
}

func (h *HAL) lookupPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	pin := h.pinByName(name)
	if pin == nil {
		return nil, nci.NewHALError("gpio", name, ErrPinNotFound, nci.ErrorTypePermanent)
	}
	return pin, nil
}

// Initialize opens the bus, power cycles the controller through VEN and
// checks that it answers CORE_RESET.
func (h *HAL) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bus != nil {
		return nil
	}

	ven, err := h.lookupPin(h.cfg.VEN)
	if err != nil {
		return err
	}
	irq, err := h.lookupPin(h.cfg.IRQ)
	if err != nil {
		return err
	}
	if irq != nil {
		if err := irq.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return nci.NewHALError("configure irq", h.cfg.IRQ, err, nci.ErrorTypePermanent)
		}
	}

	bus, err := h.openBus(h.cfg.Bus)
	if err != nil {
		return nci.NewHALError("open", h.cfg.Bus, err, nci.ErrorTypePermanent)
	}
	// Not every adapter can change speed; the default is usable.
	_ = bus.SetSpeed(maxClockFreq)

	dev := &i2c.Dev{Addr: h.cfg.Addr, Bus: bus}
	if err := h.bringUp(ctx, ven, &conn{dev: dev, irq: irq, timeout: h.cfg.ReadTimeout}); err != nil {
		if ven != nil {
			_ = ven.Out(gpio.Low)
		}
		_ = bus.Close()
		return err
	}

	h.bus, h.dev, h.ven, h.irq = bus, dev, ven, irq
	h.log.Debug().Uint16("addr", h.cfg.Addr).Msg("controller powered and reset")
	return nil
}

func (h *HAL) bringUp(ctx context.Context, ven gpio.PinIO, c *conn) error {
	if ven != nil {
		if err := ven.Out(gpio.Low); err != nil {
			return nci.NewHALError("set ven", h.cfg.VEN, err, nci.ErrorTypeTransient)
		}
		if err := hal.Sleep(ctx, h.cfg.PowerOff); err != nil {
			return err
		}
		if err := ven.Out(gpio.High); err != nil {
			return nci.NewHALError("set ven", h.cfg.VEN, err, nci.ErrorTypeTransient)
		}
		if err := hal.Sleep(ctx, h.cfg.PowerOn); err != nil {
			return err
		}
	}
	return hal.Reset(c, h.device())
}

func (h *HAL) device() string {
	return fmt.Sprintf("%s:0x%02x", h.cfg.Bus, h.cfg.Addr)
}

// Finalize powers the controller down and releases the bus.
func (h *HAL) Finalize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bus == nil {
		return nil
	}
	var errs []error
	if h.ven != nil {
		if err := h.ven.Out(gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("set ven low: %w", err))
		}
	}
	if err := h.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("I2C close failed: %w", err))
	}
	h.bus, h.dev, h.ven, h.irq = nil, nil, nil, nil
	return errors.Join(errs...)
}

// DownloadFirmware is not supported over a bare bus; vendor tools flash
// PN71xx parts through the kernel driver instead.
func (*HAL) DownloadFirmware(context.Context) (bool, error) {
	return false, nci.ErrFirmwareUnsupported
}

// Conn returns a packet stream to the controller, or nil before
// Initialize.
func (h *HAL) Conn() io.ReadWriter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return nil
	}
	return &conn{dev: h.dev, irq: h.irq, timeout: h.cfg.ReadTimeout}
}

// conn maps stream reads and writes onto I2C transactions. Each Read is one
// bus read of exactly len(p) bytes, which matches how NCI packets are read
// over I2C: the header first, then the payload it announces.
type conn struct {
	dev     *i2c.Dev
	irq     gpio.PinIO
	timeout time.Duration
}

func (c *conn) Write(p []byte) (int, error) {
	if err := c.dev.Tx(p, nil); err != nil {
		return 0, fmt.Errorf("I2C write failed: %w", err)
	}
	return len(p), nil
}

func (c *conn) Read(p []byte) (int, error) {
	if c.irq != nil && c.irq.Read() == gpio.Low && !c.irq.WaitForEdge(c.timeout) {
		return 0, hal.ErrReadTimeout
	}
	if err := c.dev.Tx(nil, p); err != nil {
		return 0, fmt.Errorf("I2C read failed: %w", err)
	}
	return len(p), nil
}
