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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal/i2c"
	"github.com/ZaparooProject/go-nci/hal/pn5xx"
	"github.com/ZaparooProject/go-nci/hal/uart"
	"github.com/ZaparooProject/go-nci/simulator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nfcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, halNone, cfg.HAL.Type)
		assert.Equal(t, nci.DefaultTechMask, cfg.Controller.TechMask)
		assert.Equal(t, uint8(nci.ScreenOnUnlocked), cfg.screenMask())
		assert.False(t, cfg.API.Enabled)
	})

	t.Run("File", func(t *testing.T) {
		t.Parallel()
		cfg, err := loadConfig(writeConfig(t, `
controller:
  recovery: true
  wait_timeout: 2s
hal:
  type: i2c
  i2c:
    bus: "1"
    ven: GPIO23
log:
  level: debug
  format: json
nats:
  url: nats://127.0.0.1:4222
  prefix: kiosk
api:
  enabled: true
  addr: ":8080"
discovery:
  screen: on-locked
  poll_tags: true
  reader_mode: true
simulator:
  tags: [ntag213, peer]
supervisor:
  max_attempts: 5
`))
		require.NoError(t, err)
		assert.True(t, cfg.Controller.Recovery)
		assert.Equal(t, 2*time.Second, cfg.Controller.WaitTimeout)
		assert.Equal(t, 500*time.Millisecond, cfg.Controller.DiscoveryDuration, "unset fields keep defaults")
		assert.Equal(t, "1", cfg.HAL.I2C.Bus)
		assert.Equal(t, uint16(i2c.DefaultAddr), cfg.HAL.I2C.Addr)
		assert.Equal(t, "kiosk", cfg.NATS.Prefix)
		assert.True(t, cfg.API.Enabled)
		assert.Equal(t, ":8080", cfg.API.Addr)
		assert.Equal(t, uint8(nci.ScreenOnLocked)|nci.ScreenPollingTagMask, cfg.screenMask())
		assert.True(t, cfg.discoveryParams().ReaderMode)
		assert.Equal(t, 5, cfg.Supervisor.MaxAttempts)
		assert.Equal(t, []string{"ntag213", "peer"}, cfg.Simulator.Tags)
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Parallel()
		_, err := loadConfig(writeConfig(t, `
hal:
  type: spi
discovery:
  screen: dim
log:
  format: xml
simulator:
  tags: [floppy]
`))
		require.Error(t, err)
		for _, want := range []string{"hal.type", "discovery.screen", "log.format", "floppy"} {
			assert.Contains(t, err.Error(), want)
		}
	})

	t.Run("MissingPort", func(t *testing.T) {
		t.Parallel()
		_, err := loadConfig(writeConfig(t, "hal:\n  type: uart\n"))
		require.ErrorContains(t, err, "hal.uart.port")
	})

	t.Run("MissingFile", func(t *testing.T) {
		t.Parallel()
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestNewHAL(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig().HAL
	log := zerolog.Nop()

	h, err := newHAL(cfg, log)
	require.NoError(t, err)
	assert.Nil(t, h)

	cfg.Type = halUART
	h, err = newHAL(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &uart.HAL{}, h)

	cfg.Type = halI2C
	h, err = newHAL(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &i2c.HAL{}, h)

	cfg.Type = "PN5XX"
	h, err = newHAL(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &pn5xx.HAL{}, h)

	cfg.Type = "spi"
	_, err = newHAL(cfg, log)
	require.Error(t, err)
}

func TestNewHAL_AutoPort(t *testing.T) {
	orig := detectPorts
	t.Cleanup(func() { detectPorts = orig })

	var got uart.DetectOptions
	detectPorts = func(opts uart.DetectOptions) ([]uart.Candidate, error) {
		got = opts
		return []uart.Candidate{{Path: "/dev/ttyUSB3", Bridge: "FTDI"}, {Path: "/dev/ttyS0"}}, nil
	}

	cfg := defaultConfig().HAL
	cfg.Type = halUART
	cfg.UART.Port = uart.AutoPort
	cfg.Detect.USBOnly = true
	h, err := newHAL(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &uart.HAL{}, h)
	assert.True(t, got.USBOnly)

	detectPorts = func(uart.DetectOptions) ([]uart.Candidate, error) { return nil, uart.ErrNoPorts }
	_, err = newHAL(cfg, zerolog.Nop())
	require.ErrorIs(t, err, uart.ErrNoPorts)
}

func TestNewEndpoint(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"ntag213", "mifare1k", "type4", "type5", "peer"} {
		ep, err := newEndpoint(name)
		require.NoError(t, err, name)
		assert.NotNil(t, ep)
	}
	ep, err := newEndpoint("type4")
	require.NoError(t, err)
	assert.Equal(t, []nci.Protocol{nci.ProtocolISODEP}, ep.Protocols())

	_, err = newEndpoint("barcode")
	require.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	log, err := setupLogging(logConfig{Level: "warn", Format: "json"}, false, &buf)
	require.NoError(t, err)
	t.Cleanup(func() {
		nci.SetLogOutput(os.Stderr)
		nci.SetConsoleLevel(zerolog.InfoLevel)
		nci.SetDebugEnabled(false)
	})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"nfcd"`)
	assert.False(t, nci.DebugEnabled())

	t.Run("SessionLogAfterSetup", func(t *testing.T) {
		path, err := nci.InitSessionLogIn(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = nci.CloseSessionLog() })

		log.Debug().Msg("controller detail")
		require.NoError(t, nci.CloseSessionLog())

		content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLogIn
		require.NoError(t, err)
		assert.Contains(t, string(content), "controller detail")
		assert.NotContains(t, buf.String(), "controller detail")
	})

	_, err = setupLogging(logConfig{Level: "loud"}, false, &buf)
	require.Error(t, err)
}

func newTestDaemon(t *testing.T, mutate func(cfg *config)) *daemon {
	t.Helper()
	cfg := defaultConfig()
	cfg.Controller.WaitTimeout = time.Second
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.validate())
	d, err := newDaemon(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(d.close)
	return d
}

func TestDaemon_Run(t *testing.T) {
	t.Parallel()

	d := newTestDaemon(t, func(cfg *config) {
		cfg.Simulator.Tags = []string{"ntag213"}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	require.Eventually(t, func() bool {
		return d.sim.State().Active != nil
	}, 2*time.Second, time.Millisecond, "configured tag is activated")
	assert.True(t, d.sim.State().Discovering)
	assert.Equal(t, simulator.LfT3tMaxDefault, d.mgr.LfT3tMax())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, d.mgr.Session().Enabled(), "controller disabled on shutdown")
}

func TestDaemon_FatalWithoutRecovery(t *testing.T) {
	t.Parallel()

	d := newTestDaemon(t, nil)
	done := make(chan error, 1)
	go func() { done <- d.run(context.Background()) }()

	require.Eventually(t, func() bool { return d.sim.State().Discovering }, 2*time.Second, time.Millisecond)
	d.sim.InjectTransportError()

	select {
	case err := <-done:
		var fe *nci.FatalError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, nci.FatalTransportError, fe.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after a fatal transport error")
	}
}

func TestDaemon_RecoversWithSupervisor(t *testing.T) {
	t.Parallel()

	d := newTestDaemon(t, func(cfg *config) {
		cfg.Controller.Recovery = true
		cfg.Supervisor.Backoff = time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	require.Eventually(t, func() bool { return d.sim.State().Discovering }, 2*time.Second, time.Millisecond)
	first := d.mgr.Session().Snapshot().ID
	d.sim.InjectTransportTimeout()

	require.Eventually(t, func() bool {
		snap := d.mgr.Session().Snapshot()
		return snap.ID != first && snap.DiscoveryEnabled && d.sim.State().Discovering
	}, 2*time.Second, time.Millisecond, "discovery restored after recovery")

	cancel()
	require.NoError(t, <-done)
}
