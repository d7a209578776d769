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
	"fmt"
	"strings"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal/i2c"
	"github.com/ZaparooProject/go-nci/hal/pn5xx"
	"github.com/ZaparooProject/go-nci/hal/uart"
	"github.com/ZaparooProject/go-nci/simulator"
	"github.com/rs/zerolog"
)

// newHAL returns the configured HAL, or nil for type none.
func newHAL(cfg halConfig, log zerolog.Logger) (nci.HAL, error) {
	switch strings.ToLower(cfg.Type) {
	case halNone, "":
		return nil, nil
	case halUART:
		ucfg := cfg.UART
		if ucfg.Port == uart.AutoPort {
			port, err := detectPort(cfg.Detect, log)
			if err != nil {
				return nil, err
			}
			ucfg.Port = port
		}
		return uart.New(ucfg, uart.WithLogger(log.With().Str("component", "hal/uart").Logger())), nil
	case halI2C:
		return i2c.New(cfg.I2C, i2c.WithLogger(log.With().Str("component", "hal/i2c").Logger())), nil
	case halPN5xx:
		return pn5xx.New(cfg.PN5xx, pn5xx.WithLogger(log.With().Str("component", "hal/pn5xx").Logger())), nil
	default:
		return nil, fmt.Errorf("unsupported HAL type: %s", cfg.Type)
	}
}

var detectPorts = uart.Detect

func detectPort(opts uart.DetectOptions, log zerolog.Logger) (string, error) {
	found, err := detectPorts(opts)
	if err != nil {
		return "", fmt.Errorf("detect serial port: %w", err)
	}
	for _, c := range found[1:] {
		log.Debug().Str("path", c.Path).Str("vid_pid", c.VIDPID).Msg("skipping additional serial port")
	}
	log.Info().Str("path", found[0].Path).Str("bridge", found[0].Bridge).Msg("detected serial port")
	return found[0].Path, nil
}

// newEndpoint builds a virtual endpoint by name.
func newEndpoint(name string) (simulator.Endpoint, error) {
	switch strings.ToLower(name) {
	case "ntag213":
		return simulator.NewVirtualNTAG213(nil), nil
	case "mifare1k":
		return simulator.NewVirtualMIFARE1K(nil), nil
	case "type4":
		return simulator.NewVirtualType4(nil), nil
	case "type5":
		return simulator.NewVirtualType5(nil), nil
	case "peer":
		return simulator.NewVirtualPeer(), nil
	default:
		return nil, fmt.Errorf("unknown simulator tag %q", name)
	}
}
