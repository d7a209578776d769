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

package simulator

import (
	"slices"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// Place puts ep in the RF field. It is discovered on the next poll phase.
func (c *Controller) Place(ep Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.field, ep) {
		return
	}
	c.field = append(c.field, ep)
	c.pollLocked()
}

// Remove takes ep out of the field. A link to it is lost and the controller
// returns to discovery.
func (c *Controller) Remove(ep Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.field = slices.DeleteFunc(c.field, func(e Endpoint) bool { return e == ep })
	delete(c.seen, ep)
	inRound := slices.ContainsFunc(c.round, func(e roundEntry) bool { return e.endpoint == ep })
	if inRound || (c.active != nil && c.active.endpoint == ep) {
		c.endLinkLocked(nci.DeactivateDiscovery)
	}
	c.pollLocked()
}

// ExternalReader is a remote reader that brings its own field and talks to
// the controller in listen mode.
type ExternalReader struct {
	responses [][]byte
	mu        syncutil.Mutex
	mode      nci.RFMode
}

// NewExternalReader creates a reader polling with NFC-A.
func NewExternalReader() *ExternalReader {
	return &ExternalReader{mode: nci.ModeListenA}
}

// Protocols implements Endpoint.
func (*ExternalReader) Protocols() []nci.Protocol {
	return []nci.Protocol{nci.ProtocolISODEP}
}

// Mode implements Endpoint.
func (r *ExternalReader) Mode() nci.RFMode {
	return r.mode
}

// Transceive implements Endpoint. The frame is the host's answer to the
// reader and is only recorded.
func (r *ExternalReader) Transceive(_ nci.Protocol, frame []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, append([]byte(nil), frame...))
	return nil, nil
}

// Responses returns the frames the host sent back.
func (r *ExternalReader) Responses() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.responses...)
}

// ReaderEnter brings reader's field near the controller. If listening is
// enabled the controller reports the field and activates in listen mode.
func (c *Controller) ReaderEnter(reader *ExternalReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readerOn = true
	c.readerMode = reader.Mode()
	c.reader = reader
	c.listenLocked()
}

// ReaderSend delivers an APDU from the external reader to the host.
func (c *Controller) ReaderSend(apdu []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.candidate.Mode.IsListen() {
		return false
	}
	c.emitLocked(nci.CEData{Tech: techFor(c.readerMode), Data: append([]byte(nil), apdu...)})
	return true
}

// ReaderLeave removes the external reader's field.
func (c *Controller) ReaderLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readerOn {
		return
	}
	wasListening := c.active != nil && c.active.candidate.Mode.IsListen()
	if wasListening {
		c.endLinkLocked(nci.DeactivateDiscovery)
	}
	if c.fieldReported {
		c.emitLocked(nci.RFField{Status: nci.StatusOK, On: false})
	}
	c.readerOn = false
	c.fieldReported = false
	c.reader = nil
	c.pollLocked()
}

func (c *Controller) listenAllowedLocked() bool {
	if !c.discovery || !c.listening || !c.readerOn || c.active != nil {
		return false
	}
	if v := c.config[nci.ParamConDiscoveryParam]; len(v) == 1 {
		return nci.DiscoveryParam(v[0]).ListenEnabled()
	}
	return true
}

func (c *Controller) listenLocked() {
	if !c.listenAllowedLocked() {
		return
	}
	c.emitLocked(nci.RFField{Status: nci.StatusOK, On: true})
	c.fieldReported = true
	c.activateLocked(roundEntry{
		endpoint:  c.reader,
		candidate: nci.Candidate{ID: 1, Protocol: nci.ProtocolISODEP, Mode: c.readerMode},
	})
	c.emitLocked(nci.CEActivated{Tech: techFor(c.readerMode)})
}

// InjectTransaction reports an off-host transaction from a secure element.
func (c *Controller) InjectTransaction(aid, data []byte, origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(nci.Transaction{AID: aid, Data: data, Origin: origin})
}

// InjectTransportTimeout reports that the controller stopped answering.
func (c *Controller) InjectTransportTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(nci.TransportTimeout{})
}

// InjectTransportError reports a broken transport.
func (c *Controller) InjectTransportError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(nci.TransportError{})
}

// SetStatus forces the immediate status returned for cmd. StatusOK
// removes the override.
func (c *Controller) SetStatus(cmd nci.StackCommand, st nci.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st == nci.StatusOK {
		delete(c.overrides, cmd)
		return
	}
	c.overrides[cmd] = st
}

// Calls returns every command received, in order.
func (c *Controller) Calls() []nci.StackCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]nci.StackCommand(nil), c.calls...)
}

// CallCount returns how many times cmd was received.
func (c *Controller) CallCount(cmd nci.StackCommand) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == cmd {
			n++
		}
	}
	return n
}

// Config returns the stored value of param.
func (c *Controller) Config(param nci.ParamID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.config[param]
	return append([]byte(nil), v...), ok
}

// State is a point-in-time view of the simulated controller.
type State struct {
	Active         *nci.Candidate
	PollMask       nci.TechMask
	PowerSubState  nci.ScreenState
	Duration       uint16
	Enabled        bool
	Discovering    bool
	Polling        bool
	Listening      bool
	P2PPaused      bool
	Sleeping       bool
	FieldEndpoints int
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		PollMask:       c.pollMask,
		PowerSubState:  c.screen,
		Duration:       c.duration,
		Enabled:        c.enabled,
		Discovering:    c.discovery,
		Polling:        c.polling,
		Listening:      c.listening,
		P2PPaused:      c.p2pPaused,
		Sleeping:       c.sleeping,
		FieldEndpoints: len(c.field),
	}
	if c.active != nil {
		cand := c.active.candidate
		st.Active = &cand
	}
	return st
}
