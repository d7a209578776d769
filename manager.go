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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ManagerState is a point-in-time view of the controller.
type ManagerState struct {
	Activation *ActivationRecord `json:"activation,omitempty"`
	Candidates CandidateSet      `json:"candidates"`
	Session    SessionState      `json:"session"`
	Arbiter    string            `json:"arbiter"`
	Screen     string            `json:"screen"`
}

// Manager coordinates one NFC controller. Host commands run on the calling
// goroutine and block until the controller confirms them. Hardware events
// are delivered through Deliver and processed in order on a single event
// goroutine owned by the Manager.
type Manager struct {
	core     *core
	hal      HAL
	dc       *discoveryController
	arbiter  *arbiter
	modes    *modeCoordinator
	recovery *recoveryCoordinator
	queue    chan Event
	stopChan chan struct{}
	wg       sync.WaitGroup
	// lifecycle serializes initialize, deinitialize and firmware download.
	lifecycle syncutil.Mutex
	closeOnce sync.Once

	// deactivateMu serializes full deactivations, which share one event.
	deactivateMu syncutil.Mutex
}

// NewManager creates a manager for stack and starts its event goroutine.
// Call Close to stop it.
func NewManager(stack Stack, opts ...Option) (*Manager, error) {
	if stack == nil {
		return nil, fmt.Errorf("%w: nil stack", ErrInvalidParameter)
	}
	o := options{
		cfg:    DefaultConfig(),
		hal:    nopHAL{},
		tag:    NopTagHandler{},
		p2p:    NopPeerToPeer{},
		router: NopRouter{},
		host:   NopHostListener{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = DefaultConfig()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	logger := Logger()
	if o.logger != nil {
		logger = *o.logger
	}

	c := &core{
		stack:   stack,
		tag:     o.tag,
		p2p:     o.p2p,
		router:  o.router,
		host:    o.host,
		session: NewControllerSession(),
		events:  newRendezvous(),
		cache:   newStateCache(o.cfg),
		cfg:     o.cfg,
		log:     logger.With().Str("component", "nci").Logger(),
	}
	dc := &discoveryController{core: c}
	m := &Manager{
		core:     c,
		hal:      o.hal,
		dc:       dc,
		arbiter:  &arbiter{core: c},
		modes:    &modeCoordinator{core: c, dc: dc},
		recovery: &recoveryCoordinator{core: c, fatal: make(chan *FatalError, 1)},
		queue:    make(chan Event, o.cfg.EventQueueSize),
		stopChan: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.eventLoop()
	return m, nil
}

// Deliver queues a hardware event. It implements EventSink.
func (m *Manager) Deliver(ev Event) {
	select {
	case m.queue <- ev:
	case <-m.stopChan:
	}
}

func (m *Manager) eventLoop() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.dispatch(ev)
		case <-m.stopChan:
			return
		}
	}
}

// Close stops the event goroutine. Blocked callers are aborted.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.core.events.abortAll()
		m.wg.Wait()
	})
	return nil
}

// Fatal delivers transport failures. Without a recovery policy the session
// has already been torn down and the owner should shut down; with one, the
// owner should Deinitialize and Initialize again.
func (m *Manager) Fatal() <-chan *FatalError {
	return m.recovery.fatal
}

// Session returns the shared controller session.
func (m *Manager) Session() *ControllerSession {
	return m.core.session
}

// State returns a snapshot of the controller.
func (m *Manager) State() ManagerState {
	st, round, cur := m.arbiter.snapshot()
	return ManagerState{
		Session:    m.core.session.Snapshot(),
		Arbiter:    st.String(),
		Candidates: round,
		Activation: cur,
		Screen:     m.core.cache.screenState().String(),
	}
}

// fail records err as the last error and returns it.
func (m *Manager) fail(err error) error {
	return m.core.session.recordError(err)
}

// Initialize brings the hardware up and enables the controller session.
func (m *Manager) Initialize(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	c := m.core
	c.session.Update(func(st *SessionState) { st.Recovering = false })
	if c.session.Enabled() {
		c.log.Debug().Msg("already enabled")
		return nil
	}

	err := RetryWithConfig(ctx, c.cfg.HALRetry, func() error {
		return m.hal.Initialize(ctx)
	})
	if err != nil {
		return m.fail(fmt.Errorf("%w: %w", ErrHALInit, err))
	}

	err = c.issueAndWait(waitEnable, "enable", func() Status {
		return c.stack.Enable(m)
	})
	if err != nil {
		c.log.Error().Err(err).Msg("enable failed")
		if c.session.Enabled() {
			c.stack.Close()
			c.stack.Disable(false)
		}
		if ferr := m.hal.Finalize(); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return m.fail(err)
	}

	id := uuid.New()
	version := c.stack.NCIVersion()
	routing := c.router.Initialize()
	c.session.Update(func(st *SessionState) {
		st.ID = id
		st.NCIVersion = version
		st.RoutingInitialized = routing
		st.LastError = ErrorSuccess
	})
	c.tag.Initialize()
	c.p2p.Initialize()
	c.p2p.HandleNfcOnOff(true)

	if st := c.stack.SetRFDiscoveryDuration(c.cache.configuredDiscoveryDuration()); st != StatusOK {
		c.log.Warn().Stringer("status", st).Msg("set discovery duration refused")
	}
	err = c.issueAndWait(waitGetConfig, "get config", func() Status {
		return c.stack.GetConfig(ParamLfT3tMax)
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("reading LF_T3T_MAX failed")
	}
	c.cache.setScreenState(ScreenOffLocked)
	if err := m.modes.configureNfccControl(true); err != nil {
		c.log.Warn().Err(err).Msg("startup config failed")
	}

	c.log.Info().
		Str("session", id.String()).
		Stringer("nci", version).
		Bool("routing", routing).
		Int("lf_t3t_max", c.cache.lfT3tMax()).
		Msg("controller enabled")
	return nil
}

// Deinitialize disables the controller session and powers the hardware
// down.
func (m *Manager) Deinitialize(_ context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	c := m.core
	snap := c.session.Snapshot()
	c.session.Update(func(st *SessionState) { st.Disabling = true })

	if !c.cfg.Recovery || !snap.Recovering {
		c.router.OnShutdown()
	}

	var errs []error
	if snap.Enabled {
		c.stack.Close()
		errs = append(errs, c.issueAndWaitAlways(waitDisable, "disable", func() Status {
			return c.stack.Disable(true)
		}))
		c.p2p.HandleNfcOnOff(false)
	}

	c.tag.AbortWaits()
	c.p2p.AbortWaits()
	c.session.Reset()
	c.events.abortAll()
	m.arbiter.reset()
	errs = append(errs, m.hal.Finalize())

	c.log.Info().Msg("controller disabled")
	return m.fail(errors.Join(errs...))
}

// Download runs a firmware update with the hardware powered on only for
// its duration.
func (m *Manager) Download(ctx context.Context) (bool, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.hal.Initialize(ctx); err != nil {
		return false, m.fail(fmt.Errorf("%w: %w", ErrHALInit, err))
	}
	written, err := m.hal.DownloadFirmware(ctx)
	if ferr := m.hal.Finalize(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	return written, m.fail(err)
}

// StartDiscovery starts RF discovery.
func (m *Manager) StartDiscovery() error {
	return m.fail(m.dc.startDiscovery())
}

// StopDiscovery stops RF discovery.
func (m *Manager) StopDiscovery() error {
	return m.fail(m.dc.stopDiscovery())
}

// EnablePolling enables polling for mask; RF discovery must be stopped.
func (m *Manager) EnablePolling(mask TechMask) error {
	return m.fail(m.dc.enablePolling(mask))
}

// DisablePolling disables polling; RF discovery must be stopped.
func (m *Manager) DisablePolling() error {
	return m.fail(m.dc.disablePolling())
}

// EnableDiscovery applies a discovery configuration and (re)starts RF
// discovery.
func (m *Manager) EnableDiscovery(p DiscoveryParams) error {
	return m.fail(m.modes.applyDiscoveryConfiguration(p))
}

// DisableDiscovery stops RF discovery and polling.
func (m *Manager) DisableDiscovery() error {
	return m.fail(m.modes.disableDiscovery())
}

// SetScreenState applies a screen state request: the state in the low
// nibble, ScreenPollingTagMask to keep polling tags while locked.
func (m *Manager) SetScreenState(mask uint8) error {
	return m.fail(m.modes.setScreenState(mask))
}

// StartStopPolling pauses or resumes polling while discovery runs.
func (m *Manager) StartStopPolling(start bool) error {
	return m.fail(m.modes.startStopPolling(start))
}

// RouteAid adds an AID route. The table takes effect on CommitRouting.
func (m *Manager) RouteAid(aid []byte, route, aidInfo, power int) bool {
	return m.core.router.AddAid(aid, route, aidInfo, power)
}

// UnrouteAid removes an AID route.
func (m *Manager) UnrouteAid(aid []byte) bool {
	return m.core.router.RemoveAid(aid)
}

// CommitRouting pushes the routing table to the controller with discovery
// suspended.
func (m *Manager) CommitRouting() error {
	return m.fail(m.modes.commitRouting())
}

// RegisterT3tIdentifier adds a T3T identifier to the routing table and
// returns its handle, or -1.
func (m *Manager) RegisterT3tIdentifier(id []byte) int {
	handle := -1
	err := m.modes.withDiscoveryStopped(func() error {
		handle = m.core.router.RegisterT3tIdentifier(id)
		return nil
	})
	if err != nil {
		_ = m.fail(err)
	}
	return handle
}

// DeregisterT3tIdentifier removes a T3T identifier registration.
func (m *Manager) DeregisterT3tIdentifier(handle int) {
	err := m.modes.withDiscoveryStopped(func() error {
		m.core.router.DeregisterT3tIdentifier(handle)
		return nil
	})
	if err != nil {
		_ = m.fail(err)
	}
}

// LfT3tMax is the number of T3T identifiers the controller can emulate.
func (m *Manager) LfT3tMax() int {
	return m.core.cache.lfT3tMax()
}

// SendRawFrame transmits data on the active RF link.
func (m *Manager) SendRawFrame(data []byte) error {
	if st := m.core.stack.SendRawFrame(data); st != StatusOK {
		return m.fail(&CommandError{Op: "send raw frame", Status: st})
	}
	return nil
}

// DeactivateLink releases the active link. A full release waits for the
// controller to confirm it; a sleep deactivation returns once issued.
func (m *Manager) DeactivateLink(sleep bool) error {
	c := m.core
	if sleep {
		if st := c.stack.Deactivate(true); st != StatusOK {
			return m.fail(&CommandError{Op: "deactivate", Status: st})
		}
		return nil
	}
	m.deactivateMu.Lock()
	defer m.deactivateMu.Unlock()
	return m.fail(c.issueAndWait(waitDeactivated, "deactivate", func() Status {
		return c.stack.Deactivate(false)
	}))
}

// LockRFInterface holds the RF interface lock, excluding discovery and
// polling changes. It is not reentrant.
func (m *Manager) LockRFInterface() {
	m.dc.rfMu.Lock()
}

// UnlockRFInterface releases the RF interface lock.
func (m *Manager) UnlockRFInterface() {
	m.dc.rfMu.Unlock()
}

// SetTimeout sets the transceive timeout for tech.
func (m *Manager) SetTimeout(tech Technology, d time.Duration) error {
	if d <= 0 {
		return m.fail(ErrInvalidTimeout)
	}
	if !m.core.cache.setTimeout(tech, d) {
		return m.fail(fmt.Errorf("%w: %s", ErrInvalidParameter, tech))
	}
	return nil
}

// GetTimeout returns the transceive timeout for tech.
func (m *Manager) GetTimeout(tech Technology) (time.Duration, error) {
	d, ok := m.core.cache.timeout(tech)
	if !ok {
		return 0, m.fail(fmt.Errorf("%w: %s", ErrInvalidParameter, tech))
	}
	return d, nil
}

// ResetTimeouts restores the default transceive timeouts.
func (m *Manager) ResetTimeouts() {
	m.core.cache.resetTimeouts()
}

// LastError returns the last recorded error code.
func (m *Manager) LastError() ErrorCode {
	return m.core.session.LastError()
}

// SetP2PInitiatorModes sets the poll mask used by discovery from
// peer-to-peer initiator mode bits.
func (m *Manager) SetP2PInitiatorModes(modes uint8) {
	m.core.cache.setTechMask(initiatorTechMask(modes))
}

// SetP2PTargetModes sets the peer-to-peer listen mask from target mode bits.
func (m *Manager) SetP2PTargetModes(modes uint8) {
	m.core.p2p.SetListenMask(targetTechMask(modes))
}

// IsoDepMaxTransceiveLength is the largest ISO-DEP frame the host may send.
func (m *Manager) IsoDepMaxTransceiveLength() int {
	return m.core.cfg.IsoDepMaxTransceive
}

// NCIVersion is the NCI version reported by the stack at enable.
func (m *Manager) NCIVersion() NCIVersion {
	return m.core.nciVersion()
}

// Logger returns the manager's logger.
func (m *Manager) Logger() zerolog.Logger {
	return m.core.log
}

func initiatorTechMask(modes uint8) TechMask {
	var mask TechMask
	if modes&0x01 != 0 {
		mask |= TechA
	}
	if modes&0x06 != 0 {
		mask |= TechF
	}
	if modes&0x08 != 0 {
		mask |= TechAActive
	}
	if modes&0x30 != 0 {
		mask |= TechFActive
	}
	return mask
}

// targetTechMask only enables the active target modes; passive target
// modes are left to card emulation.
func targetTechMask(modes uint8) TechMask {
	if modes&0x08 != 0 {
		return TechAActive | TechFActive
	}
	return TechNone
}
