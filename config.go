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

package nci

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultIsoDepMaxTransceive is the ISO-DEP frame limit without extended
	// length support.
	DefaultIsoDepMaxTransceive = 261

	defaultDiscoveryDuration           = 500 * time.Millisecond
	defaultReaderModeDiscoveryDuration = 200 * time.Millisecond
	defaultWaitTimeout                 = 5 * time.Second
	defaultEventQueueSize              = 64
)

// Config holds controller session configuration.
type Config struct {
	// TransceiveTimeouts overrides DefaultTransceiveTimeouts, keyed by
	// technology name (for example "iso-dep").
	TransceiveTimeouts map[string]time.Duration `yaml:"transceive_timeouts"`
	HALRetry           *RetryConfig             `yaml:"hal_retry"`
	// DiscoveryDuration is the RF discovery period outside reader mode.
	DiscoveryDuration time.Duration `yaml:"discovery_duration"`
	// ReaderModeDiscoveryDuration replaces DiscoveryDuration while reader
	// mode is active.
	ReaderModeDiscoveryDuration time.Duration `yaml:"reader_mode_discovery_duration"`
	// WaitTimeout bounds every confirmation wait. Zero waits forever.
	WaitTimeout         time.Duration `yaml:"wait_timeout"`
	IsoDepMaxTransceive int           `yaml:"iso_dep_max_transceive"`
	EventQueueSize      int           `yaml:"event_queue_size"`
	// TechMask is the poll mask used when the host does not supply one.
	TechMask TechMask `yaml:"tech_mask"`
	// Recovery keeps the session alive across transport failures so a
	// higher layer can reinitialize. Without it a transport failure is
	// fatal.
	Recovery bool `yaml:"recovery"`
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() *Config {
	return &Config{
		TechMask:                    DefaultTechMask,
		DiscoveryDuration:           defaultDiscoveryDuration,
		ReaderModeDiscoveryDuration: defaultReaderModeDiscoveryDuration,
		WaitTimeout:                 defaultWaitTimeout,
		IsoDepMaxTransceive:         DefaultIsoDepMaxTransceive,
		EventQueueSize:              defaultEventQueueSize,
		HALRetry:                    DefaultRetryConfig(),
	}
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration document over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NCI_TECH_MASK"); v != "" {
		if mask, err := strconv.ParseUint(v, 0, 8); err == nil {
			c.TechMask = TechMask(mask)
		}
	}
	if v := os.Getenv("NCI_RECOVERY"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Recovery = on
		}
	}
}

// Validate checks the configuration for values the controller cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscoveryDuration < time.Millisecond || c.DiscoveryDuration > 0xFFFF*time.Millisecond {
		errs = append(errs, fmt.Errorf("discovery_duration %v out of range", c.DiscoveryDuration))
	}
	if c.ReaderModeDiscoveryDuration < time.Millisecond || c.ReaderModeDiscoveryDuration > 0xFFFF*time.Millisecond {
		errs = append(errs, fmt.Errorf("reader_mode_discovery_duration %v out of range", c.ReaderModeDiscoveryDuration))
	}
	if c.WaitTimeout < 0 {
		errs = append(errs, errors.New("wait_timeout must not be negative"))
	}
	if c.IsoDepMaxTransceive <= 0 {
		errs = append(errs, errors.New("iso_dep_max_transceive must be positive"))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, errors.New("event_queue_size must be positive"))
	}
	for name, d := range c.TransceiveTimeouts {
		if _, err := ParseTechnology(name); err != nil {
			errs = append(errs, err)
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("transceive timeout for %s must be positive", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, errors.Join(errs...))
	}
	return nil
}
