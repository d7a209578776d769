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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModes_EnableDiscoveryRequiresEnabled(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	require.ErrorIs(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true}), ErrNotEnabled)
	assert.Equal(t, ErrorNotInitialized, h.m.LastError())
	assert.Zero(t, h.stack.GetCallCount(CmdStartRFDiscovery))
}

func TestModes_EnableDiscovery(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	h.stack.ResetCalls()

	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true, HostRouting: true}))

	snap := h.m.Session().Snapshot()
	assert.True(t, snap.DiscoveryEnabled)
	assert.True(t, snap.RFDiscoveryRunning)
	assert.True(t, snap.PollingEnabled)
	assert.Equal(t, DefaultTechMask, h.stack.PollMask())
	assert.Equal(t, []StackCommand{CmdEnablePolling, CmdStartRFDiscovery}, h.stack.Calls())
	assert.Equal(t, 1, h.router.Commits())
	assert.True(t, h.router.hostRouting)

	t.Run("AlreadyEnabled", func(t *testing.T) {
		require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true}))
		assert.Equal(t, 1, h.stack.GetCallCount(CmdStartRFDiscovery))
	})

	t.Run("Restart", func(t *testing.T) {
		h.stack.ResetCalls()
		require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{TechMask: TechA, Restart: true}))
		assert.Equal(t, []StackCommand{
			CmdStopRFDiscovery, CmdDisablePolling, CmdEnablePolling, CmdStartRFDiscovery,
		}, h.stack.Calls())
		assert.Equal(t, TechA, h.stack.PollMask())
		assert.False(t, h.router.hostRouting)
	})
}

func TestModes_ReaderMode(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	h.stack.ResetCalls()

	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true, ReaderMode: true}))
	assert.True(t, h.m.Session().Snapshot().ReaderModeEnabled)
	assert.Equal(t, 1, h.stack.GetCallCount(CmdDisableListening))
	assert.Equal(t, []ConfigWrite{{Param: ParamNFCCConfigControl, Value: []byte{0x00}}}, h.stack.ConfigWrites())
	assert.Equal(t, []uint16{200}, h.stack.Durations())

	h.stack.ResetCalls()
	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true, Restart: true}))
	assert.False(t, h.m.Session().Snapshot().ReaderModeEnabled)
	assert.Equal(t, 1, h.stack.GetCallCount(CmdEnableListening))
	assert.Equal(t, []ConfigWrite{{Param: ParamNFCCConfigControl, Value: []byte{0x01}}}, h.stack.ConfigWrites())
	assert.Equal(t, []uint16{500}, h.stack.Durations())
}

func TestModes_ListenOnlyPeerToPeer(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true}))
	require.True(t, h.m.Session().PollingEnabled())
	h.stack.ResetCalls()

	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{TechMask: TechNone, PeerToPeer: true, Restart: true}))

	snap := h.m.Session().Snapshot()
	assert.False(t, snap.PollingEnabled)
	assert.True(t, snap.PeerToPeerEnabled)
	assert.True(t, snap.RFDiscoveryRunning)
	assert.Equal(t, []bool{true}, h.p2p.Listening())
	assert.Equal(t, []StackCommand{
		CmdStopRFDiscovery, CmdResumeP2P, CmdDisablePolling, CmdStartRFDiscovery,
	}, h.stack.Calls())
}

func TestModes_DisableDiscovery(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	require.NoError(t, h.m.DisableDiscovery())
	assert.Zero(t, h.stack.GetCallCount(CmdStopRFDiscovery))

	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true, PeerToPeer: true}))
	require.NoError(t, h.m.DisableDiscovery())

	snap := h.m.Session().Snapshot()
	assert.False(t, snap.DiscoveryEnabled)
	assert.False(t, snap.RFDiscoveryRunning)
	assert.False(t, snap.PollingEnabled)
	assert.False(t, snap.PeerToPeerEnabled)
	assert.Equal(t, []bool{true, false}, h.p2p.Listening())
}

func TestModes_ScreenState(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	h.stack.ResetCalls()

	t.Run("SameStateIsNoop", func(t *testing.T) {
		require.NoError(t, h.m.SetScreenState(uint8(ScreenOffLocked)))
		assert.Empty(t, h.stack.Calls())
	})

	t.Run("OffToOnUnlocked", func(t *testing.T) {
		require.NoError(t, h.m.SetScreenState(uint8(ScreenOnUnlocked)))
		assert.Equal(t, []StackCommand{CmdSetPowerSubState, CmdSetConfig}, h.stack.Calls())
		assert.Equal(t, []ConfigWrite{{Param: ParamConDiscoveryParam, Value: []byte{0x00}}}, h.stack.ConfigWrites())
		assert.Equal(t, "on-unlocked", h.m.State().Screen)
	})

	t.Run("OnUnlockedToOffLocked", func(t *testing.T) {
		h.stack.ResetCalls()
		require.NoError(t, h.m.SetScreenState(uint8(ScreenOffLocked)))
		assert.Equal(t, []StackCommand{CmdSetConfig, CmdSetPowerSubState}, h.stack.Calls())
		assert.Equal(t, []ConfigWrite{{Param: ParamConDiscoveryParam, Value: []byte{0x02}}}, h.stack.ConfigWrites())
		assert.Equal(t, ScreenOffLocked, h.stack.PowerSubState())
		assert.Equal(t, 1, h.tag.Disconnects())
	})

	t.Run("LockedWithTagPolling", func(t *testing.T) {
		h.stack.ResetCalls()
		require.NoError(t, h.m.SetScreenState(uint8(ScreenOnLocked)|ScreenPollingTagMask))
		assert.Equal(t, []ConfigWrite{{Param: ParamConDiscoveryParam, Value: []byte{0x00}}}, h.stack.ConfigWrites())
	})
}

func TestModes_ScreenStateFailureKeepsState(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	h.stack.SetConfirmStatus(CmdSetConfig, StatusFailed)

	err := h.m.SetScreenState(uint8(ScreenOnUnlocked))
	require.ErrorIs(t, err, ErrCommandRejected)
	assert.Equal(t, "off-locked", h.m.State().Screen)
	assert.Zero(t, h.tag.Disconnects())
}

func TestModes_ScreenStateRecordedWithoutNCI2(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.stack.SetVersion(NCIVersion1_0)
	h.enabled(t)
	h.stack.ResetCalls()

	require.NoError(t, h.m.SetScreenState(uint8(ScreenOnUnlocked)))
	assert.Equal(t, "on-unlocked", h.m.State().Screen)
	assert.Empty(t, h.stack.Calls())
}

func TestModes_ScreenStateDuringRecovery(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, func(c *Config) { c.Recovery = true }).enabled(t)
	h.m.Session().Update(func(st *SessionState) { st.Recovering = true })
	h.stack.ResetCalls()

	require.NoError(t, h.m.SetScreenState(uint8(ScreenOnUnlocked)))
	assert.Equal(t, "on-unlocked", h.m.State().Screen)
	assert.Empty(t, h.stack.Calls())
}

func TestModes_ScreenStateRecoveryAfterPowerSubState(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, func(c *Config) { c.Recovery = true }).enabled(t)
	h.stack.Silence(CmdSetPowerSubState, true)
	h.stack.ResetCalls()

	done := make(chan error, 1)
	go func() { done <- h.m.SetScreenState(uint8(ScreenOnUnlocked)) }()

	waitFor(t, func() bool { return h.stack.GetCallCount(CmdSetPowerSubState) == 1 }, "power substate not requested")
	h.m.Session().Update(func(st *SessionState) { st.Recovering = true })
	h.stack.Inject(PowerSubStateResult{Status: StatusOK})

	require.NoError(t, <-done)
	assert.Equal(t, "on-unlocked", h.m.State().Screen)
	assert.Zero(t, h.stack.GetCallCount(CmdSetConfig))
}

func TestModes_ScreenStateLeavingUnlockedSubStateFails(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)
	require.NoError(t, h.m.SetScreenState(uint8(ScreenOnUnlocked)))
	h.stack.SetStatus(CmdSetPowerSubState, StatusRejected)
	h.stack.ResetCalls()

	require.NoError(t, h.m.SetScreenState(uint8(ScreenOffLocked)))
	assert.Equal(t, []StackCommand{CmdSetConfig, CmdSetPowerSubState}, h.stack.Calls())
	assert.Equal(t, "off-locked", h.m.State().Screen)
	assert.Equal(t, 1, h.tag.Disconnects())
}

func TestModes_StartStopPolling(t *testing.T) {
	t.Parallel()

	t.Run("NCI2UsesDiscoveryParam", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t).enabled(t)
		h.stack.ResetCalls()

		require.NoError(t, h.m.StartStopPolling(false))
		require.NoError(t, h.m.StartStopPolling(true))
		assert.Equal(t, []ConfigWrite{
			{Param: ParamConDiscoveryParam, Value: []byte{0x02}},
			{Param: ParamConDiscoveryParam, Value: []byte{0x00}},
		}, h.stack.ConfigWrites())
	})

	t.Run("NCI1RestartsDiscovery", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		h.stack.SetVersion(NCIVersion1_0)
		h.enabled(t)
		require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true}))
		h.stack.ResetCalls()

		require.NoError(t, h.m.StartStopPolling(false))
		assert.Equal(t, []StackCommand{CmdStopRFDiscovery, CmdDisablePolling, CmdStartRFDiscovery}, h.stack.Calls())
		assert.False(t, h.m.Session().PollingEnabled())
		assert.True(t, h.m.Session().RFDiscoveryRunning())
	})

	t.Run("NotEnabled", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		require.ErrorIs(t, h.m.StartStopPolling(true), ErrNotEnabled)
	})
}

func TestModes_CommitRouting(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t).enabled(t)

	t.Run("DiscoveryStopped", func(t *testing.T) {
		require.NoError(t, h.m.CommitRouting())
		assert.Zero(t, h.stack.GetCallCount(CmdStopRFDiscovery))
		assert.Equal(t, 1, h.router.Commits())
	})

	require.NoError(t, h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true}))

	t.Run("DiscoverySuspended", func(t *testing.T) {
		h.stack.ResetCalls()
		require.NoError(t, h.m.CommitRouting())
		assert.Equal(t, []StackCommand{CmdStopRFDiscovery, CmdStartRFDiscovery}, h.stack.Calls())
		assert.True(t, h.m.Session().RFDiscoveryRunning())
	})

	t.Run("Refused", func(t *testing.T) {
		h.router.mu.Lock()
		h.router.refuse = true
		h.router.mu.Unlock()
		require.ErrorIs(t, h.m.CommitRouting(), ErrRoutingCommit)
		assert.True(t, h.m.Session().RFDiscoveryRunning())
	})

	t.Run("T3tIdentifier", func(t *testing.T) {
		h.stack.ResetCalls()
		assert.Equal(t, 1, h.m.RegisterT3tIdentifier([]byte{0x02, 0xFE}))
		h.m.DeregisterT3tIdentifier(1)
		assert.Equal(t, 2, h.stack.GetCallCount(CmdStopRFDiscovery))
		assert.Equal(t, 2, h.stack.GetCallCount(CmdStartRFDiscovery))
	})
}

func TestModes_ConfirmationTimeoutLeavesFlags(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, func(c *Config) { c.WaitTimeout = 50 * time.Millisecond }).enabled(t)
	h.stack.Silence(CmdEnablePolling, true)

	err := h.m.EnableDiscovery(DiscoveryParams{UseConfiguredMask: true})
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.False(t, h.m.Session().PollingEnabled())
}
