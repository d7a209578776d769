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

//go:build !prod

package nci

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingTag is a TagHandler that records every callback.
type recordingTag struct {
	activations   []ActivationRecord
	deactivations []DeactivationType
	connects      []bool
	data          [][]byte
	mu            sync.Mutex
	initialized   int
	disconnects   int
	aborts        int
	interfaceErrs int
	selecting     bool
}

func (r *recordingTag) Initialize() {
	r.mu.Lock()
	r.initialized++
	r.mu.Unlock()
}

func (r *recordingTag) OnActivated(rec ActivationRecord) {
	r.mu.Lock()
	r.activations = append(r.activations, rec)
	r.mu.Unlock()
}

func (r *recordingTag) OnDeactivated(t DeactivationType) {
	r.mu.Lock()
	r.deactivations = append(r.deactivations, t)
	r.mu.Unlock()
}

func (r *recordingTag) OnData(_ Status, data []byte) {
	r.mu.Lock()
	r.data = append(r.data, data)
	r.mu.Unlock()
}

func (*recordingTag) OnReadComplete(Status)           {}
func (*recordingTag) OnWriteComplete(Status)          {}
func (*recordingTag) OnFormatComplete(Status)         {}
func (*recordingTag) OnPresenceCheck(Status)          {}
func (*recordingTag) OnNdefDetected(Status, NdefInfo) {}
func (*recordingTag) OnReadOnlyComplete(Status)       {}
func (*recordingTag) Deactivating() bool              { return false }
func (*recordingTag) DeactivateStatus(bool)           {}

func (r *recordingTag) OnRFInterfaceError() {
	r.mu.Lock()
	r.interfaceErrs++
	r.mu.Unlock()
}

func (r *recordingTag) SelectingInterface() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selecting
}

func (r *recordingTag) ConnectStatus(ok bool) {
	r.mu.Lock()
	r.connects = append(r.connects, ok)
	r.mu.Unlock()
}

func (r *recordingTag) Disconnect() {
	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()
}

func (r *recordingTag) AbortWaits() {
	r.mu.Lock()
	r.aborts++
	r.mu.Unlock()
}

func (r *recordingTag) Activations() []ActivationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActivationRecord(nil), r.activations...)
}

func (r *recordingTag) Deactivations() []DeactivationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeactivationType(nil), r.deactivations...)
}

func (r *recordingTag) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

// recordingHost is a HostListener that counts notifications.
type recordingHost struct {
	transactions  [][]byte
	mu            sync.Mutex
	fieldOn       int
	fieldOff      int
	hwErrors      int
	tagActivated  int
	tagDeactivate int
	ceActivated   int
	ceData        int
}

func (h *recordingHost) OnRemoteFieldActivated()                  { h.inc(&h.fieldOn) }
func (h *recordingHost) OnRemoteFieldDeactivated()                { h.inc(&h.fieldOff) }
func (h *recordingHost) OnHWErrorReported()                       { h.inc(&h.hwErrors) }
func (h *recordingHost) OnTagActivated(ActivationRecord)          { h.inc(&h.tagActivated) }
func (h *recordingHost) OnTagDeactivated()                        { h.inc(&h.tagDeactivate) }
func (h *recordingHost) OnHostCardEmulationActivated(TechMask)    { h.inc(&h.ceActivated) }
func (h *recordingHost) OnHostCardEmulationData(TechMask, []byte) { h.inc(&h.ceData) }
func (*recordingHost) OnHostCardEmulationDeactivated(TechMask)    {}

func (h *recordingHost) OnTransaction(aid, _ []byte, _ string) {
	h.mu.Lock()
	h.transactions = append(h.transactions, aid)
	h.mu.Unlock()
}

func (h *recordingHost) inc(n *int) {
	h.mu.Lock()
	*n++
	h.mu.Unlock()
}

func (h *recordingHost) count(n *int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *n
}

// recordingP2P is a PeerToPeer that records listening changes.
type recordingP2P struct {
	listening []bool
	nfcOnOff  []bool
	mu        sync.Mutex
	links     int
	aborts    int
	mask      TechMask
}

func (*recordingP2P) Initialize()        {}
func (*recordingP2P) OnFirstPacket()     {}
func (*recordingP2P) OnListenTechSet()   {}
func (*recordingP2P) OnLinkDeactivated() {}

func (p *recordingP2P) HandleNfcOnOff(on bool) {
	p.mu.Lock()
	p.nfcOnOff = append(p.nfcOnOff, on)
	p.mu.Unlock()
}

func (p *recordingP2P) EnableListening(on bool) {
	p.mu.Lock()
	p.listening = append(p.listening, on)
	p.mu.Unlock()
}

func (p *recordingP2P) SetListenMask(mask TechMask) {
	p.mu.Lock()
	p.mask = mask
	p.mu.Unlock()
}

func (p *recordingP2P) OnLinkActivated(LinkInfo) {
	p.mu.Lock()
	p.links++
	p.mu.Unlock()
}

func (p *recordingP2P) AbortWaits() {
	p.mu.Lock()
	p.aborts++
	p.mu.Unlock()
}

func (p *recordingP2P) Listening() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.listening...)
}

// recordingRouter is a Router that counts commits.
type recordingRouter struct {
	mu          sync.Mutex
	commits     int
	shutdowns   int
	nextHandle  int
	hostRouting bool
	refuse      bool
}

func (*recordingRouter) Initialize() bool                  { return true }
func (*recordingRouter) AddAid(_ []byte, _, _, _ int) bool { return true }
func (*recordingRouter) RemoveAid([]byte) bool             { return true }
func (*recordingRouter) DeregisterT3tIdentifier(int)       {}

func (r *recordingRouter) EnableRoutingToHost() {
	r.mu.Lock()
	r.hostRouting = true
	r.mu.Unlock()
}

func (r *recordingRouter) DisableRoutingToHost() {
	r.mu.Lock()
	r.hostRouting = false
	r.mu.Unlock()
}

func (r *recordingRouter) RegisterT3tIdentifier([]byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHandle++
	return r.nextHandle
}

func (r *recordingRouter) Commit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
	return !r.refuse
}

func (r *recordingRouter) OnShutdown() {
	r.mu.Lock()
	r.shutdowns++
	r.mu.Unlock()
}

func (r *recordingRouter) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

// testHarness bundles a manager with its mock stack and recording
// collaborators.
type testHarness struct {
	m      *Manager
	stack  *MockStack
	tag    *recordingTag
	host   *recordingHost
	p2p    *recordingP2P
	router *recordingRouter
}

// newTestHarness creates a manager over a MockStack. Configuration tweaks
// are applied to a copy of the defaults with a short wait timeout.
func newTestHarness(t *testing.T, tweaks ...func(*Config)) *testHarness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.WaitTimeout = time.Second
	cfg.HALRetry = &RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	h := &testHarness{
		stack:  NewMockStack(),
		tag:    &recordingTag{},
		host:   &recordingHost{},
		p2p:    &recordingP2P{},
		router: &recordingRouter{},
	}
	h.stack.SetConfigTLV([]byte{byte(ParamLfT3tMax), 0x01, 0x10})

	m, err := NewManager(h.stack,
		WithConfig(cfg),
		WithTagHandler(h.tag),
		WithHostListener(h.host),
		WithPeerToPeer(h.p2p),
		WithRouter(h.router),
	)
	require.NoError(t, err)
	h.m = m
	t.Cleanup(func() {
		_ = m.Close()
		h.stack.Stop()
	})
	return h
}

// enabled initializes the manager and checks it came up.
func (h *testHarness) enabled(t *testing.T) *testHarness {
	t.Helper()
	require.NoError(t, h.m.Initialize(context.Background()))
	require.True(t, h.m.Session().Enabled())
	return h
}

// discovering enables discovery with the configured mask and turns the
// screen on so poll activations are reported.
func (h *testHarness) discovering(t *testing.T, p DiscoveryParams) *testHarness {
	t.Helper()
	require.NoError(t, h.m.SetScreenState(uint8(ScreenOnUnlocked)))
	require.NoError(t, h.m.EnableDiscovery(p))
	require.True(t, h.m.Session().RFDiscoveryRunning())
	return h
}

// waitFor blocks until cond holds or fails the test.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond, msg)
}
