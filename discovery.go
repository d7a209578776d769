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

import "github.com/ZaparooProject/go-nci/internal/syncutil"

// discoveryController starts and stops RF discovery and polling. Each
// command and its confirmation wait run under rfMu so a confirmation cannot
// be credited to another caller's command.
type discoveryController struct {
	*core
	rfMu syncutil.Mutex
}

func (d *discoveryController) startDiscovery() error {
	return d.setDiscovery(true)
}

func (d *discoveryController) stopDiscovery() error {
	return d.setDiscovery(false)
}

// setDiscovery issues the start or stop command. The running flag follows
// the confirmation, never the request.
func (d *discoveryController) setDiscovery(start bool) error {
	d.rfMu.Lock()
	defer d.rfMu.Unlock()

	op, cmd := "start rf discovery", d.stack.StartRFDiscovery
	if !start {
		op, cmd = "stop rf discovery", d.stack.StopRFDiscovery
	}
	if err := d.issueAndWait(waitDiscovery, op, cmd); err != nil {
		d.log.Error().Err(err).Bool("start", start).Msg("rf discovery change failed")
		return err
	}
	d.log.Debug().Bool("running", d.session.RFDiscoveryRunning()).Msg("rf discovery changed")
	return nil
}

// enablePolling enables polling for mask. A zero mask selects the
// configured technologies.
func (d *discoveryController) enablePolling(mask TechMask) error {
	if mask == TechNone {
		mask = d.cache.configuredTechMask()
	}

	d.rfMu.Lock()
	defer d.rfMu.Unlock()

	err := d.issueAndWait(waitPolling, "enable polling", func() Status {
		return d.stack.EnablePolling(mask)
	})
	if err != nil {
		d.log.Error().Err(err).Stringer("mask", mask).Msg("enable polling failed")
		return err
	}
	d.log.Debug().Stringer("mask", mask).Msg("polling enabled")
	return nil
}

func (d *discoveryController) disablePolling() error {
	d.rfMu.Lock()
	defer d.rfMu.Unlock()

	if err := d.issueAndWait(waitPolling, "disable polling", d.stack.DisablePolling); err != nil {
		d.log.Error().Err(err).Msg("disable polling failed")
		return err
	}
	return nil
}
