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

package uart

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// AutoPort in Config.Port asks the daemon to pick the first detected port.
const AutoPort = "auto"

// ErrNoPorts is returned by Detect when no serial port survives filtering.
var ErrNoPorts = errors.New("no candidate serial ports found")

// USB-serial bridges commonly found on controller breakout boards, by VID.
var knownBridges = map[string]string{
	"0403": "FTDI",
	"10C4": "Silicon Labs",
	"067B": "Prolific",
	"1A86": "WCH",
	"1FC9": "NXP",
}

// Candidate is a serial port that may host a controller.
type Candidate struct {
	Path   string `json:"path"`
	VIDPID string `json:"vid_pid,omitempty"`
	Serial string `json:"serial,omitempty"`
	Bridge string `json:"bridge,omitempty"`
}

// DetectOptions filters the enumerated ports.
type DetectOptions struct {
	// Blocklist holds VID:PID pairs that are never returned.
	Blocklist []string `yaml:"blocklist"`
	// IgnorePaths holds device paths, or glob patterns, to skip.
	IgnorePaths []string `yaml:"ignore_paths"`
	// USBOnly drops ports that are not USB devices.
	USBOnly bool `yaml:"usb_only"`
}

type listFunc func() ([]*enumerator.PortDetails, error)

// Detect lists serial ports that could host a controller. Ports behind a
// known USB-serial bridge come first.
func Detect(opts DetectOptions) ([]Candidate, error) {
	return detect(enumerator.GetDetailedPortsList, opts)
}

func detect(list listFunc, opts DetectOptions) ([]Candidate, error) {
	ports, err := list()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var found []Candidate
	for _, p := range ports {
		if p == nil || isIgnored(p.Name, opts.IgnorePaths) {
			continue
		}
		if !p.IsUSB {
			if !opts.USBOnly {
				found = append(found, Candidate{Path: p.Name})
			}
			continue
		}
		vidpid := strings.ToUpper(p.VID + ":" + p.PID)
		if isBlocked(vidpid, opts.Blocklist) {
			continue
		}
		found = append(found, Candidate{
			Path:   p.Name,
			VIDPID: vidpid,
			Serial: p.SerialNumber,
			Bridge: knownBridges[strings.ToUpper(p.VID)],
		})
	}
	if len(found) == 0 {
		return nil, ErrNoPorts
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Bridge != "" && found[j].Bridge == ""
	})
	return found, nil
}

func isBlocked(vidpid string, blocklist []string) bool {
	for _, b := range blocklist {
		if strings.EqualFold(strings.TrimSpace(b), vidpid) {
			return true
		}
	}
	return false
}

func isIgnored(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == path {
			return true
		}
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
