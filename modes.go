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
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// ErrRoutingCommit is returned when the router refuses to commit its table.
var ErrRoutingCommit = errors.New("routing commit failed")

// DiscoveryParams selects what RF discovery should do.
type DiscoveryParams struct {
	// TechMask is the poll mask. Zero disables polling and leaves only
	// peer-to-peer listening.
	TechMask TechMask `json:"tech_mask"`
	// UseConfiguredMask replaces TechMask with the configured mask.
	UseConfiguredMask bool `json:"use_configured_mask"`
	// LowPowerPoll is accepted for compatibility; low power tag detection
	// is configured on the controller itself.
	LowPowerPoll bool `json:"low_power_poll"`
	ReaderMode   bool `json:"reader_mode"`
	HostRouting  bool `json:"host_routing"`
	PeerToPeer   bool `json:"p2p"`
	// Restart reapplies the configuration when discovery is already on.
	Restart bool `json:"restart"`
}

// modeCoordinator applies reconfiguration sequences. mu serializes whole
// sequences; the discovery controller serializes the individual commands.
type modeCoordinator struct {
	*core
	dc *discoveryController
	mu syncutil.Mutex
}

func (m *modeCoordinator) applyDiscoveryConfiguration(p DiscoveryParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.session.Snapshot()
	if !snap.Enabled {
		return ErrNotEnabled
	}
	if snap.DiscoveryEnabled && !p.Restart {
		m.log.Debug().Msg("discovery already enabled")
		return nil
	}

	mask := p.TechMask
	if p.UseConfiguredMask {
		mask = m.cache.configuredTechMask()
	}
	m.log.Info().
		Stringer("mask", mask).
		Bool("reader_mode", p.ReaderMode).
		Bool("host_routing", p.HostRouting).
		Bool("p2p", p.PeerToPeer).
		Msg("applying discovery configuration")

	var errs []error
	if snap.RFDiscoveryRunning {
		errs = append(errs, m.dc.stopDiscovery())
	}

	if mask != TechNone {
		if m.session.PollingEnabled() {
			errs = append(errs, m.dc.disablePolling())
		}
		errs = append(errs, m.dc.enablePolling(mask))
		if m.session.PollingEnabled() {
			errs = append(errs, m.setPeerToPeer(p.PeerToPeer), m.setReaderMode(p.ReaderMode))
		}
	} else {
		errs = append(errs, m.setPeerToPeer(p.PeerToPeer))
		if m.session.PollingEnabled() {
			errs = append(errs, m.dc.disablePolling())
		}
	}

	if p.HostRouting {
		m.router.EnableRoutingToHost()
	} else {
		m.router.DisableRoutingToHost()
	}
	if !m.router.Commit() {
		errs = append(errs, ErrRoutingCommit)
	}

	if err := m.dc.startDiscovery(); err != nil {
		errs = append(errs, err)
	} else {
		m.session.Update(func(st *SessionState) { st.DiscoveryEnabled = true })
	}
	return errors.Join(errs...)
}

func (m *modeCoordinator) disableDiscovery() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.session.Snapshot()
	if !snap.DiscoveryEnabled {
		return nil
	}

	var errs []error
	if snap.RFDiscoveryRunning {
		errs = append(errs, m.dc.stopDiscovery())
	}
	if m.session.PollingEnabled() {
		errs = append(errs, m.dc.disablePolling())
	}
	m.p2p.EnableListening(false)
	m.session.Update(func(st *SessionState) {
		st.PeerToPeerEnabled = false
		st.DiscoveryEnabled = false
	})
	return errors.Join(errs...)
}

// setPeerToPeer toggles peer-to-peer listening when the flag changes.
func (m *modeCoordinator) setPeerToPeer(enable bool) error {
	if m.session.Snapshot().PeerToPeerEnabled == enable {
		return nil
	}
	m.session.Update(func(st *SessionState) { st.PeerToPeerEnabled = enable })
	m.p2p.EnableListening(enable)

	op, cmd := "resume p2p", m.stack.ResumeP2P
	if !enable {
		op, cmd = "pause p2p", m.stack.PauseP2P
	}
	if st := cmd(); st != StatusOK {
		return &CommandError{Op: op, Status: st}
	}
	return nil
}

// setReaderMode toggles reader mode when the flag changes. Entering reader
// mode stops listening, takes RF configuration away from the controller and
// shortens the discovery period; leaving it restores all three.
func (m *modeCoordinator) setReaderMode(enable bool) error {
	if m.session.Snapshot().ReaderModeEnabled == enable {
		return nil
	}
	m.session.Update(func(st *SessionState) { st.ReaderModeEnabled = enable })

	var errs []error
	duration := m.cache.configuredDiscoveryDuration()
	if enable {
		if st := m.stack.DisableListening(); st != StatusOK {
			errs = append(errs, &CommandError{Op: "disable listening", Status: st})
		}
		errs = append(errs, m.configureNfccControl(false))
		duration = uint16(m.cfg.ReaderModeDiscoveryDuration / time.Millisecond)
	} else {
		if st := m.stack.EnableListening(); st != StatusOK {
			errs = append(errs, &CommandError{Op: "enable listening", Status: st})
		}
		errs = append(errs, m.configureNfccControl(true))
	}
	if st := m.stack.SetRFDiscoveryDuration(duration); st != StatusOK {
		errs = append(errs, &CommandError{Op: "set discovery duration", Status: st})
	}
	return errors.Join(errs...)
}

// configureNfccControl grants or revokes the controller's own management of
// RF parameters. NCI 1.0 controllers have no such control.
func (m *modeCoordinator) configureNfccControl(controllerManaged bool) error {
	if m.nciVersion() == NCIVersion1_0 {
		return nil
	}
	var value byte
	if controllerManaged {
		value = 0x01
	}
	return m.issueAndWait(waitSetConfig, "set nfcc config control", func() Status {
		return m.stack.SetConfig(ParamNFCCConfigControl, []byte{value})
	})
}

// setScreenState reconfigures polling and listening for a screen state
// request. The low nibble of mask is the state; ScreenPollingTagMask allows
// tag polling while locked.
func (m *modeCoordinator) setScreenState(mask uint8) error {
	state := ScreenState(mask & ScreenStateMask)
	tagPollAllowed := mask&ScreenPollingTagMask != 0

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.cache.screenState()
	if state == prev {
		return nil
	}

	snap := m.session.Snapshot()
	if snap.Disabling || !snap.Enabled || snap.NCIVersion != NCIVersion2_0 || snap.Recovering {
		m.cache.setScreenState(state)
		return nil
	}

	log := m.log.With().Stringer("from", prev).Stringer("to", state).Logger()
	log.Debug().Msg("screen state change")

	if prev == ScreenOffLocked || prev == ScreenOffUnlocked || prev == ScreenOnLocked {
		if done, err := m.screenStep(state, m.powerSubState(state)); done {
			return err
		}
	}

	param := discoveryParamFor(state, tagPollAllowed)
	err := m.issueAndWait(waitSetConfig, "set discovery param", func() Status {
		return m.stack.SetConfig(ParamConDiscoveryParam, []byte{byte(param)})
	})
	if done, err := m.screenStep(state, err); done {
		return err
	}

	// The discovery parameter is already applied, so a failed sub-state
	// update leaving on-unlocked does not stop the sequence.
	if prev == ScreenOnUnlocked {
		err := m.powerSubState(state)
		if m.session.Recovering() {
			m.cache.setScreenState(state)
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("power substate update failed")
		}
	}

	if state.IsOff() && prev.IsOn() {
		cur := m.session.Snapshot()
		if !cur.PeerToPeerActive && !cur.SecureElementRFActive {
			log.Debug().Msg("disconnecting tag for screen off")
			m.tag.Disconnect()
		}
	}

	m.cache.setScreenState(state)
	return nil
}

// screenStep decides whether a screen state sequence stops after a step.
// Once a recovery starts the target state is recorded and the sequence
// ends without error; other failures leave the recorded state unchanged.
func (m *modeCoordinator) screenStep(state ScreenState, err error) (bool, error) {
	if m.session.Recovering() {
		m.cache.setScreenState(state)
		return true, nil
	}
	if err != nil {
		m.log.Error().Err(err).Stringer("state", state).Msg("screen state change failed")
		return true, err
	}
	return false, nil
}

func (m *modeCoordinator) powerSubState(state ScreenState) error {
	return m.issueAndWait(waitPowerSubState, "set power substate", func() Status {
		return m.stack.SetPowerSubState(state)
	})
}

// startStopPolling pauses or resumes polling without touching listening.
func (m *modeCoordinator) startStopPolling(start bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.Enabled() {
		return ErrNotEnabled
	}

	if m.nciVersion() >= NCIVersion2_0 {
		param := DiscoveryPollListenEnable
		if !start {
			param = DiscoveryPollDisable
		}
		return m.issueAndWait(waitSetConfig, "set discovery param", func() Status {
			return m.stack.SetConfig(ParamConDiscoveryParam, []byte{byte(param)})
		})
	}

	var errs []error
	if m.session.RFDiscoveryRunning() {
		errs = append(errs, m.dc.stopDiscovery())
	}
	if start {
		errs = append(errs, m.dc.enablePolling(TechNone))
	} else {
		errs = append(errs, m.dc.disablePolling())
	}
	errs = append(errs, m.dc.startDiscovery())
	return errors.Join(errs...)
}

// withDiscoveryStopped runs fn with RF discovery stopped, restarting it
// afterwards if it was running.
func (m *modeCoordinator) withDiscoveryStopped(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.session.RFDiscoveryRunning()
	if running {
		if err := m.dc.stopDiscovery(); err != nil {
			return fmt.Errorf("suspend discovery: %w", err)
		}
	}
	err := fn()
	if running {
		if serr := m.dc.startDiscovery(); serr != nil {
			err = errors.Join(err, fmt.Errorf("resume discovery: %w", serr))
		}
	}
	return err
}

func (m *modeCoordinator) commitRouting() error {
	return m.withDiscoveryStopped(func() error {
		if !m.router.Commit() {
			return ErrRoutingCommit
		}
		return nil
	})
}
