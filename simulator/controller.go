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

// Package simulator provides a virtual NCI controller with an RF field
// that tags, cards and peers can be placed in. It implements nci.Stack so
// a Manager can be driven end to end without hardware.
package simulator

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
)

const (
	eventBuffer = 1024
	llcpVersion = 0x11
	// LfT3tMaxDefault is the T3T identifier capacity reported by GetConfig.
	LfT3tMaxDefault = 16
)

type delivery struct {
	sink nci.EventSink
	ev   nci.Event
}

type roundEntry struct {
	endpoint  Endpoint
	candidate nci.Candidate
}

// Option configures a Controller.
type Option func(*Controller)

// WithVersion sets the NCI version reported after enable.
func WithVersion(v nci.NCIVersion) Option {
	return func(c *Controller) { c.version = v }
}

// WithLogger sets the simulator logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithJitter delays every delivered event by a random duration up to max.
// A non-zero seed makes the delays reproducible.
func WithJitter(maxDelay time.Duration, seed uint64) Option {
	return func(c *Controller) {
		c.jitter = maxDelay
		if seed == 0 {
			seed = rand.Uint64()
		}
		c.rng = rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)) //nolint:gosec // test timing only
	}
}

// Controller is a simulated NFC controller.
type Controller struct {
	log        zerolog.Logger
	sink       nci.EventSink
	rng        *rand.Rand
	active     *roundEntry
	seen       map[Endpoint]bool
	config     map[nci.ParamID][]byte
	overrides  map[nci.StackCommand]nci.Status
	events     chan delivery
	done       chan struct{}
	field      []Endpoint
	round      []roundEntry
	calls      []nci.StackCommand
	wg         sync.WaitGroup
	jitter     time.Duration
	mu         syncutil.Mutex
	stopOnce   sync.Once
	version    nci.NCIVersion
	pollMask   nci.TechMask
	screen     nci.ScreenState
	duration   uint16
	enabled    bool
	discovery  bool
	polling    bool
	listening  bool
	p2pPaused  bool
	sleeping   bool
	readerOn   bool
	readerMode nci.RFMode

	reader        *ExternalReader
	fieldReported bool
}

// New creates a powered-off controller and starts its delivery goroutine.
func New(opts ...Option) *Controller {
	c := &Controller{
		log:       zerolog.Nop(),
		version:   nci.NCIVersion2_0,
		seen:      make(map[Endpoint]bool),
		config:    make(map[nci.ParamID][]byte),
		overrides: make(map[nci.StackCommand]nci.Status),
		events:    make(chan delivery, eventBuffer),
		done:      make(chan struct{}),
	}
	c.config[nci.ParamLfT3tMax] = []byte{LfT3tMaxDefault}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.pump()
	return c
}

// Stop ends event delivery. The controller must not be used afterwards.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Controller) pump() {
	defer c.wg.Done()
	for {
		select {
		case d := <-c.events:
			if c.jitter > 0 {
				time.Sleep(time.Duration(c.rng.Int64N(int64(c.jitter))))
			}
			d.sink.Deliver(d.ev)
		case <-c.done:
			return
		}
	}
}

// emitLocked queues ev for delivery. Must be called with c.mu held.
func (c *Controller) emitLocked(ev nci.Event) {
	if c.sink == nil {
		return
	}
	c.log.Trace().Stringer("event", ev.Kind()).Msg("simulator event")
	select {
	case c.events <- delivery{sink: c.sink, ev: ev}:
	case <-c.done:
	}
}

// begin records cmd and returns a forced status, if one was set.
func (c *Controller) begin(cmd nci.StackCommand) (nci.Status, bool) {
	c.calls = append(c.calls, cmd)
	if st, ok := c.overrides[cmd]; ok {
		return st, true
	}
	if cmd != nci.CmdEnable && !c.enabled {
		return nci.StatusNotInitialized, true
	}
	return nci.StatusOK, false
}

// Enable implements nci.Stack.
func (c *Controller) Enable(sink nci.EventSink) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdEnable); forced {
		return st
	}
	if c.enabled {
		return nci.StatusRejected
	}
	c.sink = sink
	c.enabled = true
	c.listening = true
	c.emitLocked(nci.EnableResult{Status: nci.StatusOK})
	c.log.Debug().Stringer("version", c.version).Msg("simulated controller enabled")
	return nci.StatusOK
}

// Disable implements nci.Stack.
func (c *Controller) Disable(bool) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdDisable); forced {
		return st
	}
	if c.active != nil {
		c.endLinkLocked(nci.DeactivateIdle)
	}
	c.enabled = false
	c.discovery = false
	c.polling = false
	c.round = nil
	c.emitLocked(nci.DisableResult{Status: nci.StatusOK})
	return nci.StatusOK
}

// Close implements nci.Stack.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, nci.CmdClose)
}

// NCIVersion implements nci.Stack.
func (c *Controller) NCIVersion() nci.NCIVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nci.NCIVersionUnknown
	}
	return c.version
}

// StartRFDiscovery implements nci.Stack.
func (c *Controller) StartRFDiscovery() nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdStartRFDiscovery); forced {
		return st
	}
	if c.discovery {
		return nci.StatusRejected
	}
	c.discovery = true
	c.emitLocked(nci.DiscoveryStarted{Status: nci.StatusOK})
	c.pollLocked()
	c.listenLocked()
	return nci.StatusOK
}

// StopRFDiscovery implements nci.Stack. An active link is released to idle
// first.
func (c *Controller) StopRFDiscovery() nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdStopRFDiscovery); forced {
		return st
	}
	if !c.discovery {
		return nci.StatusRejected
	}
	if c.active != nil {
		c.endLinkLocked(nci.DeactivateIdle)
	}
	c.round = nil
	c.discovery = false
	c.emitLocked(nci.DiscoveryStopped{Status: nci.StatusOK})
	return nci.StatusOK
}

// EnablePolling implements nci.Stack. Polling cannot change while
// discovery runs.
func (c *Controller) EnablePolling(mask nci.TechMask) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdEnablePolling); forced {
		return st
	}
	if c.discovery || c.polling {
		return nci.StatusRejected
	}
	c.polling = true
	c.pollMask = mask
	c.emitLocked(nci.PollingEnabled{Status: nci.StatusOK})
	return nci.StatusOK
}

// DisablePolling implements nci.Stack.
func (c *Controller) DisablePolling() nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdDisablePolling); forced {
		return st
	}
	if c.discovery || !c.polling {
		return nci.StatusRejected
	}
	c.polling = false
	c.pollMask = nci.TechNone
	c.emitLocked(nci.PollingDisabled{Status: nci.StatusOK})
	return nci.StatusOK
}

// EnableListening implements nci.Stack.
func (c *Controller) EnableListening() nci.Status {
	return c.toggle(nci.CmdEnableListening, &c.listening, true)
}

// DisableListening implements nci.Stack.
func (c *Controller) DisableListening() nci.Status {
	return c.toggle(nci.CmdDisableListening, &c.listening, false)
}

// PauseP2P implements nci.Stack.
func (c *Controller) PauseP2P() nci.Status {
	return c.toggle(nci.CmdPauseP2P, &c.p2pPaused, true)
}

// ResumeP2P implements nci.Stack.
func (c *Controller) ResumeP2P() nci.Status {
	return c.toggle(nci.CmdResumeP2P, &c.p2pPaused, false)
}

func (c *Controller) toggle(cmd nci.StackCommand, flag *bool, value bool) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(cmd); forced {
		return st
	}
	*flag = value
	return nci.StatusOK
}

// SetRFDiscoveryDuration implements nci.Stack.
func (c *Controller) SetRFDiscoveryDuration(ms uint16) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdSetDiscoveryDuration); forced {
		return st
	}
	c.duration = ms
	return nci.StatusOK
}

// SetConfig implements nci.Stack.
func (c *Controller) SetConfig(param nci.ParamID, value []byte) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdSetConfig); forced {
		return st
	}
	c.config[param] = append([]byte(nil), value...)
	c.emitLocked(nci.SetConfigResult{Status: nci.StatusOK})
	if param == nci.ParamConDiscoveryParam {
		c.pollLocked()
	}
	return nci.StatusOK
}

// GetConfig implements nci.Stack. The result lists the known parameters as
// id, length, value triples in request order.
func (c *Controller) GetConfig(params ...nci.ParamID) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdGetConfig); forced {
		return st
	}
	if len(params) == 0 {
		return nci.StatusInvalidParam
	}
	var tlv []byte
	status := nci.StatusOK
	for _, p := range params {
		value, ok := c.config[p]
		if !ok {
			status = nci.StatusInvalidParam
			continue
		}
		tlv = append(tlv, byte(p), byte(len(value)))
		tlv = append(tlv, value...)
	}
	c.emitLocked(nci.GetConfigResult{Status: status, TLV: tlv})
	return nci.StatusOK
}

// SetPowerSubState implements nci.Stack.
func (c *Controller) SetPowerSubState(state nci.ScreenState) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdSetPowerSubState); forced {
		return st
	}
	if c.version < nci.NCIVersion2_0 {
		return nci.StatusRejected
	}
	c.screen = state
	c.emitLocked(nci.PowerSubStateResult{Status: nci.StatusOK})
	return nci.StatusOK
}

// Select implements nci.Stack. It activates one candidate of the pending
// round, including one whose endpoint was put to sleep.
func (c *Controller) Select(id uint8, protocol nci.Protocol, _ nci.InterfaceType) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdSelect); forced {
		return st
	}
	if len(c.round) == 0 || (c.active != nil && !c.sleeping) {
		return nci.StatusSemanticError
	}
	idx := slices.IndexFunc(c.round, func(e roundEntry) bool {
		return e.candidate.ID == id && e.candidate.Protocol == protocol
	})
	if idx < 0 {
		return nci.StatusInvalidParam
	}
	c.emitLocked(nci.SelectResult{Status: nci.StatusOK})
	c.activateLocked(c.round[idx])
	return nci.StatusOK
}

// Deactivate implements nci.Stack. Sleep keeps the round so another of its
// candidates can be selected; otherwise the controller returns to
// discovery and polls again.
func (c *Controller) Deactivate(sleep bool) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdDeactivate); forced {
		return st
	}
	if sleep {
		if c.active == nil || c.sleeping {
			return nci.StatusSemanticError
		}
		c.sleeping = true
		c.emitLocked(nci.Deactivated{Type: nci.DeactivateSleep})
		return nci.StatusOK
	}
	if c.active == nil && len(c.round) == 0 {
		return nci.StatusSemanticError
	}
	c.endLinkLocked(nci.DeactivateDiscovery)
	c.pollLocked()
	return nci.StatusOK
}

// SendRawFrame implements nci.Stack. The active endpoint's answer is
// delivered as DataReceived.
func (c *Controller) SendRawFrame(data []byte) nci.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, forced := c.begin(nci.CmdSendRawFrame); forced {
		return st
	}
	if c.active == nil || c.sleeping {
		return nci.StatusSemanticError
	}
	resp, err := c.active.endpoint.Transceive(c.active.candidate.Protocol, data)
	if c.active.candidate.Mode.IsListen() {
		return nci.StatusOK
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("endpoint refused frame")
		c.emitLocked(nci.DataReceived{Status: nci.StatusFailed})
		return nci.StatusOK
	}
	c.emitLocked(nci.DataReceived{Status: nci.StatusOK, Data: resp})
	return nci.StatusOK
}

// pollAllowedLocked reports whether a poll phase can run now.
func (c *Controller) pollAllowedLocked() bool {
	if !c.discovery || !c.polling || c.active != nil || len(c.round) > 0 {
		return false
	}
	param := nci.DiscoveryParam(0)
	if v := c.config[nci.ParamConDiscoveryParam]; len(v) == 1 {
		param = nci.DiscoveryParam(v[0])
	}
	return param.PollEnabled()
}

// pollLocked runs one poll phase over the endpoints in the field that have
// not been activated since they were placed.
func (c *Controller) pollLocked() {
	if !c.pollAllowedLocked() {
		return
	}
	var round []roundEntry
	id := uint8(1)
	for _, ep := range c.field {
		if c.seen[ep] || !c.pollMask.Has(techFor(ep.Mode())) {
			continue
		}
		if c.p2pPaused && slices.Contains(ep.Protocols(), nci.ProtocolNFCDEP) {
			continue
		}
		for _, p := range ep.Protocols() {
			round = append(round, roundEntry{
				endpoint:  ep,
				candidate: nci.Candidate{ID: id, Protocol: p, Mode: ep.Mode()},
			})
			id++
		}
		c.seen[ep] = true
	}
	if len(round) == 0 {
		return
	}
	c.round = round
	if len(round) == 1 {
		c.activateLocked(round[0])
		return
	}
	for i, e := range round {
		c.emitLocked(nci.DiscoveryResult{
			Status:    nci.StatusOK,
			Candidate: e.candidate,
			More:      i < len(round)-1,
		})
	}
}

func (c *Controller) activateLocked(e roundEntry) {
	c.active = &e
	c.sleeping = false
	c.emitLocked(nci.Activated{
		DiscoveryID: e.candidate.ID,
		Protocol:    e.candidate.Protocol,
		Mode:        e.candidate.Mode,
		Interface:   nci.InterfaceFor(e.candidate.Protocol),
	})
	if peer, ok := e.endpoint.(*VirtualPeer); ok {
		c.emitLocked(nci.LLCPActivated{
			Status: nci.StatusOK,
			Link:   nci.LinkInfo{RemoteMIU: peer.MIU, RemoteVersion: llcpVersion, Initiator: true},
		})
	}
}

func (c *Controller) endLinkLocked(typ nci.DeactivationType) {
	if c.active != nil && !c.sleeping && c.active.candidate.Protocol == nci.ProtocolNFCDEP {
		c.emitLocked(nci.LLCPDeactivated{})
	}
	if c.readerOn && c.active != nil && c.active.candidate.Mode.IsListen() {
		c.emitLocked(nci.CEDeactivated{Tech: techFor(c.readerMode)})
	}
	c.active = nil
	c.round = nil
	c.sleeping = false
	c.emitLocked(nci.Deactivated{Type: typ})
}

func techFor(mode nci.RFMode) nci.TechMask {
	switch mode {
	case nci.ModePollA, nci.ModeListenA:
		return nci.TechA
	case nci.ModePollB, nci.ModeListenB:
		return nci.TechB
	case nci.ModePollF, nci.ModeListenF:
		return nci.TechF
	case nci.ModePollV, nci.ModeListenV:
		return nci.TechV
	case nci.ModePollAActive, nci.ModeListenAActive:
		return nci.TechAActive
	case nci.ModePollFActive, nci.ModeListenFActive:
		return nci.TechFActive
	default:
		return nci.TechNone
	}
}
