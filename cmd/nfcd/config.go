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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/api"
	"github.com/ZaparooProject/go-nci/hal/i2c"
	"github.com/ZaparooProject/go-nci/hal/pn5xx"
	"github.com/ZaparooProject/go-nci/hal/uart"
	"github.com/ZaparooProject/go-nci/hostbus"
	"github.com/ZaparooProject/go-nci/supervisor"
	"gopkg.in/yaml.v3"
)

// HAL types accepted in the hal.type setting.
const (
	halNone  = "none"
	halUART  = "uart"
	halI2C   = "i2c"
	halPN5xx = "pn5xx"
)

type halConfig struct {
	Type  string       `yaml:"type"`
	UART  uart.Config  `yaml:"uart"`
	I2C   i2c.Config   `yaml:"i2c"`
	PN5xx pn5xx.Config `yaml:"pn5xx"`
	// Detect filters the ports considered when hal.uart.port is "auto".
	Detect uart.DetectOptions `yaml:"detect"`
}

type logConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	SessionLog bool   `yaml:"session_log"`
}

type natsConfig struct {
	URL           string        `yaml:"url"`
	Prefix        string        `yaml:"prefix"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

type apiConfig struct {
	api.Config `yaml:",inline"`
	Enabled    bool `yaml:"enabled"`
}

type discoveryConfig struct {
	Screen      string `yaml:"screen"`
	PollTags    bool   `yaml:"poll_tags"`
	ReaderMode  bool   `yaml:"reader_mode"`
	PeerToPeer  bool   `yaml:"p2p"`
	HostRouting bool   `yaml:"host_routing"`
}

type simulatorConfig struct {
	// Tags lists virtual tags placed in the field at startup: ntag213,
	// mifare1k, type4, type5 or peer.
	Tags []string `yaml:"tags"`
}

// config is the daemon configuration file.
type config struct {
	Controller *nci.Config       `yaml:"controller"`
	HAL        halConfig         `yaml:"hal"`
	Log        logConfig         `yaml:"log"`
	NATS       natsConfig        `yaml:"nats"`
	Discovery  discoveryConfig   `yaml:"discovery"`
	Simulator  simulatorConfig   `yaml:"simulator"`
	API        apiConfig         `yaml:"api"`
	Supervisor supervisor.Config `yaml:"supervisor"`
}

func defaultConfig() *config {
	return &config{
		Controller: nci.DefaultConfig(),
		HAL: halConfig{
			Type:  halNone,
			UART:  uart.DefaultConfig(""),
			I2C:   i2c.DefaultConfig(""),
			PN5xx: pn5xx.DefaultConfig(),
		},
		Log: logConfig{Level: "info", Format: "console"},
		NATS: natsConfig{
			Prefix:        hostbus.DefaultPrefix,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Discovery:  discoveryConfig{Screen: nci.ScreenOnUnlocked.String()},
		API:        apiConfig{Config: api.DefaultConfig()},
		Supervisor: supervisor.DefaultConfig(),
	}
}

func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, cfg.validate()
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *config) validate() error {
	var errs []error
	if c.Controller == nil {
		c.Controller = nci.DefaultConfig()
	}
	if err := c.Controller.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.HAL.Type) {
	case halNone, "":
	case halUART:
		if c.HAL.UART.Port == "" {
			errs = append(errs, errors.New("hal.uart.port is required"))
		}
	case halI2C:
		if c.HAL.I2C.Bus == "" {
			errs = append(errs, errors.New("hal.i2c.bus is required"))
		}
	case halPN5xx:
		if c.HAL.PN5xx.Device == "" {
			errs = append(errs, errors.New("hal.pn5xx.device is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown hal.type %q", c.HAL.Type))
	}
	if _, err := nci.ParseScreenState(c.Discovery.Screen); err != nil {
		errs = append(errs, fmt.Errorf("discovery.screen: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	for _, name := range c.Simulator.Tags {
		if _, err := newEndpoint(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// screenMask is the screen state request applied at startup and after
// recovery.
func (c *config) screenMask() uint8 {
	state, _ := nci.ParseScreenState(c.Discovery.Screen)
	mask := uint8(state)
	if c.Discovery.PollTags {
		mask |= nci.ScreenPollingTagMask
	}
	return mask
}

func (c *config) discoveryParams() nci.DiscoveryParams {
	return nci.DiscoveryParams{
		UseConfiguredMask: true,
		ReaderMode:        c.Discovery.ReaderMode,
		PeerToPeer:        c.Discovery.PeerToPeer,
		HostRouting:       c.Discovery.HostRouting,
	}
}
