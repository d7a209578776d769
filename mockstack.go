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
	"sync"
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// StackCommand names a Stack method for MockStack bookkeeping.
type StackCommand string

// Stack commands recorded by MockStack.
const (
	CmdEnable               StackCommand = "enable"
	CmdDisable              StackCommand = "disable"
	CmdClose                StackCommand = "close"
	CmdStartRFDiscovery     StackCommand = "start-rf-discovery"
	CmdStopRFDiscovery      StackCommand = "stop-rf-discovery"
	CmdEnablePolling        StackCommand = "enable-polling"
	CmdDisablePolling       StackCommand = "disable-polling"
	CmdEnableListening      StackCommand = "enable-listening"
	CmdDisableListening     StackCommand = "disable-listening"
	CmdPauseP2P             StackCommand = "pause-p2p"
	CmdResumeP2P            StackCommand = "resume-p2p"
	CmdSetDiscoveryDuration StackCommand = "set-discovery-duration"
	CmdSetConfig            StackCommand = "set-config"
	CmdGetConfig            StackCommand = "get-config"
	CmdSetPowerSubState     StackCommand = "set-power-substate"
	CmdSelect               StackCommand = "select"
	CmdDeactivate           StackCommand = "deactivate"
	CmdSendRawFrame         StackCommand = "send-raw-frame"
)

// ConfigWrite is one SetConfig call seen by MockStack.
type ConfigWrite struct {
	Value []byte
	Param ParamID
}

// SelectCall is one Select call seen by MockStack.
type SelectCall struct {
	ID        uint8
	Protocol  Protocol
	Interface InterfaceType
}

// MockStack provides a scriptable implementation of Stack for testing.
// Accepted commands are confirmed asynchronously, in order, on a delivery
// goroutine. Statuses and confirmations can be overridden per command.
type MockStack struct {
	sink       EventSink
	statuses   map[StackCommand]Status
	confirms   map[StackCommand]Status
	silent     map[StackCommand]bool
	callCount  map[StackCommand]int
	pending    chan Event
	done       chan struct{}
	calls      []StackCommand
	configs    []ConfigWrite
	durations  []uint16
	selects    []SelectCall
	frames     [][]byte
	configTLV  []byte
	delay      time.Duration
	mu         syncutil.RWMutex
	stopOnce   sync.Once
	version    NCIVersion
	pollMask   TechMask
	powerState ScreenState
}

// NewMockStack creates a mock stack reporting NCI 2.0.
func NewMockStack() *MockStack {
	m := &MockStack{
		statuses:  make(map[StackCommand]Status),
		confirms:  make(map[StackCommand]Status),
		silent:    make(map[StackCommand]bool),
		callCount: make(map[StackCommand]int),
		pending:   make(chan Event, 256),
		done:      make(chan struct{}),
		version:   NCIVersion2_0,
	}
	go m.pump()
	return m
}

func (m *MockStack) pump() {
	for {
		select {
		case ev := <-m.pending:
			m.mu.RLock()
			sink, delay := m.sink, m.delay
			m.mu.RUnlock()
			if delay > 0 {
				time.Sleep(delay)
			}
			if sink != nil {
				sink.Deliver(ev)
			}
		case <-m.done:
			return
		}
	}
}

// Stop ends the delivery goroutine. Later events are dropped.
func (m *MockStack) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// command records cmd and returns its immediate status. When the status is
// OK and the command is not silenced, confirm builds the confirmation from
// the configured confirmation status.
func (m *MockStack) command(cmd StackCommand, confirm func(Status) Event) Status {
	m.mu.Lock()
	m.callCount[cmd]++
	m.calls = append(m.calls, cmd)
	st := m.statuses[cmd]
	cst := m.confirms[cmd]
	silent := m.silent[cmd]
	m.mu.Unlock()

	if st == StatusOK && confirm != nil && !silent {
		if ev := confirm(cst); ev != nil {
			m.Inject(ev)
		}
	}
	return st
}

// Inject queues ev behind any pending confirmations.
func (m *MockStack) Inject(ev Event) {
	select {
	case m.pending <- ev:
	case <-m.done:
	}
}

// Enable implements Stack.
func (m *MockStack) Enable(sink EventSink) Status {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
	return m.command(CmdEnable, func(st Status) Event { return EnableResult{Status: st} })
}

// Disable implements Stack.
func (m *MockStack) Disable(bool) Status {
	return m.command(CmdDisable, func(st Status) Event { return DisableResult{Status: st} })
}

// Close implements Stack.
func (m *MockStack) Close() {
	m.command(CmdClose, nil)
}

// NCIVersion implements Stack.
func (m *MockStack) NCIVersion() NCIVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// StartRFDiscovery implements Stack.
func (m *MockStack) StartRFDiscovery() Status {
	return m.command(CmdStartRFDiscovery, func(st Status) Event { return DiscoveryStarted{Status: st} })
}

// StopRFDiscovery implements Stack.
func (m *MockStack) StopRFDiscovery() Status {
	return m.command(CmdStopRFDiscovery, func(st Status) Event { return DiscoveryStopped{Status: st} })
}

// EnablePolling implements Stack.
func (m *MockStack) EnablePolling(mask TechMask) Status {
	m.mu.Lock()
	m.pollMask = mask
	m.mu.Unlock()
	return m.command(CmdEnablePolling, func(st Status) Event { return PollingEnabled{Status: st} })
}

// DisablePolling implements Stack.
func (m *MockStack) DisablePolling() Status {
	return m.command(CmdDisablePolling, func(st Status) Event { return PollingDisabled{Status: st} })
}

// EnableListening implements Stack.
func (m *MockStack) EnableListening() Status {
	return m.command(CmdEnableListening, nil)
}

// DisableListening implements Stack.
func (m *MockStack) DisableListening() Status {
	return m.command(CmdDisableListening, nil)
}

// PauseP2P implements Stack.
func (m *MockStack) PauseP2P() Status {
	return m.command(CmdPauseP2P, nil)
}

// ResumeP2P implements Stack.
func (m *MockStack) ResumeP2P() Status {
	return m.command(CmdResumeP2P, nil)
}

// SetRFDiscoveryDuration implements Stack.
func (m *MockStack) SetRFDiscoveryDuration(ms uint16) Status {
	m.mu.Lock()
	m.durations = append(m.durations, ms)
	m.mu.Unlock()
	return m.command(CmdSetDiscoveryDuration, nil)
}

// SetConfig implements Stack.
func (m *MockStack) SetConfig(param ParamID, value []byte) Status {
	m.mu.Lock()
	m.configs = append(m.configs, ConfigWrite{Param: param, Value: append([]byte(nil), value...)})
	m.mu.Unlock()
	return m.command(CmdSetConfig, func(st Status) Event { return SetConfigResult{Status: st} })
}

// GetConfig implements Stack. The confirmation carries the TLV list set
// with SetConfigTLV.
func (m *MockStack) GetConfig(...ParamID) Status {
	return m.command(CmdGetConfig, func(st Status) Event {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return GetConfigResult{Status: st, TLV: append([]byte(nil), m.configTLV...)}
	})
}

// SetPowerSubState implements Stack.
func (m *MockStack) SetPowerSubState(state ScreenState) Status {
	m.mu.Lock()
	m.powerState = state
	m.mu.Unlock()
	return m.command(CmdSetPowerSubState, func(st Status) Event { return PowerSubStateResult{Status: st} })
}

// Select implements Stack. Only the select response is confirmed; tests
// inject the activation.
func (m *MockStack) Select(id uint8, protocol Protocol, iface InterfaceType) Status {
	m.mu.Lock()
	m.selects = append(m.selects, SelectCall{ID: id, Protocol: protocol, Interface: iface})
	m.mu.Unlock()
	return m.command(CmdSelect, func(st Status) Event { return SelectResult{Status: st} })
}

// Deactivate implements Stack. A sleep request is confirmed with a sleep
// deactivation, anything else with a return to discovery.
func (m *MockStack) Deactivate(sleep bool) Status {
	return m.command(CmdDeactivate, func(Status) Event {
		if sleep {
			return Deactivated{Type: DeactivateSleep}
		}
		return Deactivated{Type: DeactivateDiscovery}
	})
}

// SendRawFrame implements Stack.
func (m *MockStack) SendRawFrame(data []byte) Status {
	m.mu.Lock()
	m.frames = append(m.frames, append([]byte(nil), data...))
	m.mu.Unlock()
	return m.command(CmdSendRawFrame, nil)
}

// Test helper methods

// SetStatus configures the immediate status returned for cmd.
func (m *MockStack) SetStatus(cmd StackCommand, st Status) {
	m.mu.Lock()
	m.statuses[cmd] = st
	m.mu.Unlock()
}

// SetConfirmStatus configures the status carried by the confirmation of cmd.
func (m *MockStack) SetConfirmStatus(cmd StackCommand, st Status) {
	m.mu.Lock()
	m.confirms[cmd] = st
	m.mu.Unlock()
}

// Silence stops confirmations for cmd, so waiters time out.
func (m *MockStack) Silence(cmd StackCommand, silent bool) {
	m.mu.Lock()
	m.silent[cmd] = silent
	m.mu.Unlock()
}

// SetVersion sets the NCI version reported to the manager.
func (m *MockStack) SetVersion(v NCIVersion) {
	m.mu.Lock()
	m.version = v
	m.mu.Unlock()
}

// SetConfigTLV sets the TLV list returned by get-config confirmations.
func (m *MockStack) SetConfigTLV(tlv []byte) {
	m.mu.Lock()
	m.configTLV = append([]byte(nil), tlv...)
	m.mu.Unlock()
}

// SetDelay delays every delivered event to simulate controller latency.
func (m *MockStack) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times cmd was called.
func (m *MockStack) GetCallCount(cmd StackCommand) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[cmd]
}

// Calls returns the commands received, in order.
func (m *MockStack) Calls() []StackCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StackCommand(nil), m.calls...)
}

// ConfigWrites returns the SetConfig calls received, in order.
func (m *MockStack) ConfigWrites() []ConfigWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ConfigWrite(nil), m.configs...)
}

// Durations returns the discovery durations set, in order.
func (m *MockStack) Durations() []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uint16(nil), m.durations...)
}

// Selects returns the Select calls received, in order.
func (m *MockStack) Selects() []SelectCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SelectCall(nil), m.selects...)
}

// Frames returns the raw frames sent.
func (m *MockStack) Frames() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.frames...)
}

// PollMask returns the last mask passed to EnablePolling.
func (m *MockStack) PollMask() TechMask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pollMask
}

// PowerSubState returns the last power sub-state requested.
func (m *MockStack) PowerSubState() ScreenState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.powerState
}

// ResetCalls clears the recorded calls.
func (m *MockStack) ResetCalls() {
	m.mu.Lock()
	m.callCount = make(map[StackCommand]int)
	m.calls = nil
	m.configs = nil
	m.durations = nil
	m.selects = nil
	m.frames = nil
	m.mu.Unlock()
}
