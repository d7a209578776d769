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
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// maxConfigTLV is the largest get-config result that is cached.
const maxConfigTLV = 256

// DefaultTransceiveTimeouts are the per-technology transceive timeouts used
// until the host overrides them.
var DefaultTransceiveTimeouts = map[Technology]time.Duration{
	TechnologyNfcA:             618 * time.Millisecond,
	TechnologyNfcB:             1000 * time.Millisecond,
	TechnologyNfcF:             255 * time.Millisecond,
	TechnologyNfcV:             1000 * time.Millisecond,
	TechnologyIsoDep:           618 * time.Millisecond,
	TechnologyNdef:             1000 * time.Millisecond,
	TechnologyMifareClassic:    618 * time.Millisecond,
	TechnologyMifareUltralight: 618 * time.Millisecond,
	TechnologyNfcBarcode:       1000 * time.Millisecond,
}

// stateCache keeps the values fetched from or pushed to the controller so
// that reconfiguration can be skipped when nothing changed.
type stateCache struct {
	timeouts          map[Technology]time.Duration
	defaults          map[Technology]time.Duration
	configTLV         []byte
	mu                syncutil.RWMutex
	screen            ScreenState
	techMask          TechMask
	discoveryDuration uint16
}

func newStateCache(cfg *Config) *stateCache {
	c := &stateCache{
		defaults: make(map[Technology]time.Duration, len(DefaultTransceiveTimeouts)),
	}
	for tech, d := range DefaultTransceiveTimeouts {
		c.defaults[tech] = d
	}
	for name, d := range cfg.TransceiveTimeouts {
		if tech, err := ParseTechnology(name); err == nil && d > 0 {
			c.defaults[tech] = d
		}
	}
	c.resetTimeouts()
	c.techMask = cfg.TechMask
	c.discoveryDuration = uint16(cfg.DiscoveryDuration / time.Millisecond)
	return c
}

// storeConfig caches a get-config TLV list. Oversized results clear the cache.
func (c *stateCache) storeConfig(tlv []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tlv) > maxConfigTLV {
		c.configTLV = nil
		return
	}
	c.configTLV = append([]byte(nil), tlv...)
}

// configValue returns the value of param from the cached TLV list.
func (c *stateCache) configValue(param ParamID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tlv := c.configTLV
	for len(tlv) >= 2 {
		id, n := ParamID(tlv[0]), int(tlv[1])
		if len(tlv) < 2+n {
			return nil, false
		}
		if id == param {
			return append([]byte(nil), tlv[2:2+n]...), true
		}
		tlv = tlv[2+n:]
	}
	return nil, false
}

// lfT3tMax returns the number of T3T identifiers the controller can listen for.
func (c *stateCache) lfT3tMax() int {
	v, ok := c.configValue(ParamLfT3tMax)
	if !ok || len(v) == 0 {
		return 0
	}
	return int(v[0])
}

func (c *stateCache) screenState() ScreenState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.screen
}

func (c *stateCache) setScreenState(s ScreenState) {
	c.mu.Lock()
	c.screen = s
	c.mu.Unlock()
}

func (c *stateCache) configuredTechMask() TechMask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.techMask
}

func (c *stateCache) setTechMask(m TechMask) {
	c.mu.Lock()
	c.techMask = m
	c.mu.Unlock()
}

func (c *stateCache) configuredDiscoveryDuration() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discoveryDuration
}

func (c *stateCache) timeout(tech Technology) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.timeouts[tech]
	return d, ok
}

func (c *stateCache) setTimeout(tech Technology, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defaults[tech]; !ok {
		return false
	}
	c.timeouts[tech] = d
	return true
}

func (c *stateCache) resetTimeouts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeouts = make(map[Technology]time.Duration, len(c.defaults))
	for tech, d := range c.defaults {
		c.timeouts[tech] = d
	}
}
