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

// Package pn5xx drives an NCI controller through the NXP pn5xx kernel
// driver, which exposes the I2C link as a character device and switches
// the controller's power state with an ioctl.
package pn5xx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
)

// PowerMode is the argument of the driver's power ioctl.
type PowerMode uintptr

const (
	PowerOff      PowerMode = 0
	PowerOn       PowerMode = 1
	PowerDownload PowerMode = 2
)

func (m PowerMode) String() string {
	switch m {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	case PowerDownload:
		return "download"
	default:
		return fmt.Sprintf("mode(%d)", uintptr(m))
	}
}

// DefaultDevice is the node created by the driver for the first controller.
const DefaultDevice = "/dev/pn544"

const maxEmptyReads = 3

var (
	// ErrBadImage is returned when a firmware image is truncated.
	ErrBadImage = errors.New("malformed firmware image")
	// ErrDownloadRejected is returned when the controller refuses a
	// firmware frame.
	ErrDownloadRejected = errors.New("firmware frame rejected")
)

// Node is an open driver device.
type Node interface {
	io.ReadWriteCloser
	SetPower(mode PowerMode) error
}

// OpenFunc opens the driver node at path. Reads on the returned node
// return (0, nil) when nothing arrives within readTimeout.
type OpenFunc func(path string, readTimeout time.Duration) (Node, error)

// Config describes the driver node and power timing.
type Config struct {
	Device string `yaml:"device"`
	// Firmware is the path of a download-mode image. Empty disables
	// firmware download.
	Firmware    string        `yaml:"firmware"`
	PowerOff    time.Duration `yaml:"power_off"`
	PowerOn     time.Duration `yaml:"power_on"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultConfig returns the settings for DefaultDevice.
func DefaultConfig() Config {
	return Config{
		Device:      DefaultDevice,
		PowerOff:    10 * time.Millisecond,
		PowerOn:     10 * time.Millisecond,
		ReadTimeout: time.Second,
	}
}

// Option configures a HAL.
type Option func(*HAL)

// WithOpenFunc replaces the function used to open the driver node.
func WithOpenFunc(fn OpenFunc) Option {
	return func(h *HAL) { h.open = fn }
}

// WithLogger sets the HAL logger.
func WithLogger(log zerolog.Logger) Option {
	return func(h *HAL) { h.log = log }
}

// HAL implements nci.HAL over the pn5xx driver.
type HAL struct {
	log  zerolog.Logger
	node Node
	open OpenFunc
	cfg  Config
	mu   syncutil.Mutex
}

var _ nci.HAL = (*HAL)(nil)

// New creates a HAL for cfg.
func New(cfg Config, opts ...Option) *HAL {
	h := &HAL{
		cfg:  cfg,
		open: openNode,
		log:  nci.Logger().With().Str("component", "hal/pn5xx").Str("device", cfg.Device).Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Initialize opens the node, power cycles the controller and checks that
// it answers CORE_RESET.
func (h *HAL) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.node != nil {
		return nil
	}
	node, err := h.openLocked()
	if err != nil {
		return err
	}
	if err := h.powerCycle(ctx, node, PowerOn); err != nil {
		_ = node.SetPower(PowerOff)
		_ = node.Close()
		return err
	}
	if err := hal.Reset(&hal.TimeoutReader{ReadWriter: node, MaxEmpty: maxEmptyReads}, h.cfg.Device); err != nil {
		_ = node.SetPower(PowerOff)
		_ = node.Close()
		return err
	}
	h.node = node
	h.log.Debug().Msg("controller powered and reset")
	return nil
}

func (h *HAL) openLocked() (Node, error) {
	node, err := h.open(h.cfg.Device, h.cfg.ReadTimeout)
	if err != nil {
		errType := nci.ErrorTypeTransient
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) || errors.Is(err, nci.ErrDeviceNotFound) {
			errType = nci.ErrorTypePermanent
		}
		return nil, nci.NewHALError("open", h.cfg.Device, err, errType)
	}
	return node, nil
}

func (h *HAL) powerCycle(ctx context.Context, node Node, mode PowerMode) error {
	if err := h.setPower(node, PowerOff); err != nil {
		return err
	}
	if err := hal.Sleep(ctx, h.cfg.PowerOff); err != nil {
		return err
	}
	if err := h.setPower(node, mode); err != nil {
		return err
	}
	return hal.Sleep(ctx, h.cfg.PowerOn)
}

func (h *HAL) setPower(node Node, mode PowerMode) error {
	h.log.Debug().Stringer("mode", mode).Msg("set power")
	if err := node.SetPower(mode); err != nil {
		return nci.NewHALError("set power "+mode.String(), h.cfg.Device, err, nci.ErrorTypeTransient)
	}
	return nil
}

// Finalize powers the controller off and closes the node.
func (h *HAL) Finalize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.node == nil {
		return nil
	}
	var errs []error
	if err := h.node.SetPower(PowerOff); err != nil {
		errs = append(errs, fmt.Errorf("power off: %w", err))
	}
	if err := h.node.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", h.cfg.Device, err))
	}
	h.node = nil
	return errors.Join(errs...)
}

// DownloadFirmware writes the configured image with the controller in
// download mode. It reports false without error when no image is present.
//
// The image is a sequence of download-mode frames, each preceded by its
// 16-bit big-endian length. Every frame must be answered by a frame whose
// first payload byte is zero.
func (h *HAL) DownloadFirmware(ctx context.Context) (bool, error) {
	if h.cfg.Firmware == "" {
		return false, nci.ErrFirmwareUnsupported
	}
	image, err := os.ReadFile(h.cfg.Firmware)
	if errors.Is(err, os.ErrNotExist) {
		h.log.Info().Str("image", h.cfg.Firmware).Msg("no firmware image, skipping download")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read firmware image: %w", err)
	}
	frames, err := splitImage(image)
	if err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	node := h.node
	if node == nil {
		if node, err = h.openLocked(); err != nil {
			return false, err
		}
		defer func() { _ = node.Close() }()
	}
	defer func() { _ = node.SetPower(PowerOff) }()

	if err := h.powerCycle(ctx, node, PowerDownload); err != nil {
		return false, err
	}
	rw := &hal.TimeoutReader{ReadWriter: node, MaxEmpty: maxEmptyReads}
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := exchangeDownload(rw, f); err != nil {
			return false, nci.NewHALError(fmt.Sprintf("download frame %d", i), h.cfg.Device, err, nci.ErrorTypeTransient)
		}
	}
	h.log.Info().Int("frames", len(frames)).Msg("firmware downloaded")
	return true, nil
}

func splitImage(image []byte) ([][]byte, error) {
	var frames [][]byte
	for len(image) > 0 {
		if len(image) < 2 {
			return nil, ErrBadImage
		}
		n := int(image[0])<<8 | int(image[1])
		if n == 0 || len(image) < 2+n {
			return nil, fmt.Errorf("%w: frame %d", ErrBadImage, len(frames))
		}
		frames = append(frames, image[:2+n])
		image = image[2+n:]
	}
	return frames, nil
}

func exchangeDownload(rw io.ReadWriter, f []byte) error {
	if _, err := rw.Write(f); err != nil {
		return err
	}
	var hdr [2]byte
	if _, err := io.ReadFull(rw, hdr[:]); err != nil {
		return err
	}
	n := int(hdr[0]&0x03)<<8 | int(hdr[1])
	if n == 0 {
		return ErrDownloadRejected
	}
	rsp := make([]byte, n)
	if _, err := io.ReadFull(rw, rsp); err != nil {
		return err
	}
	if rsp[0] != 0 {
		return fmt.Errorf("%w: status 0x%02X", ErrDownloadRejected, rsp[0])
	}
	return nil
}

// Conn returns the packet stream, or nil before Initialize.
func (h *HAL) Conn() io.ReadWriter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.node == nil {
		return nil
	}
	return h.node
}
