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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerSession_Reset(t *testing.T) {
	t.Parallel()

	s := NewControllerSession()
	id := uuid.New()
	s.Update(func(st *SessionState) {
		st.ID = id
		st.Enabled = true
		st.RFDiscoveryRunning = true
		st.PollingEnabled = true
		st.Recovering = true
		st.NCIVersion = NCIVersion2_0
		st.LastError = ErrorTimeout
	})

	s.Reset()

	snap := s.Snapshot()
	assert.False(t, snap.Enabled)
	assert.False(t, snap.RFDiscoveryRunning)
	assert.False(t, snap.PollingEnabled)
	assert.False(t, snap.Recovering)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, NCIVersion2_0, snap.NCIVersion)
	assert.Equal(t, ErrorTimeout, snap.LastError)
}

func TestControllerSession_RecordError(t *testing.T) {
	t.Parallel()

	s := NewControllerSession()
	require.NoError(t, s.recordError(nil))
	assert.Equal(t, ErrorSuccess, s.LastError())

	err := s.recordError(ErrNotEnabled)
	require.ErrorIs(t, err, ErrNotEnabled)
	assert.Equal(t, ErrorNotInitialized, s.LastError())

	require.NoError(t, s.recordError(nil))
	assert.Equal(t, ErrorNotInitialized, s.LastError(), "success does not clear the last error")

	_ = s.recordError(errors.New("io"))
	assert.Equal(t, ErrorIO, s.LastError())
}

func TestControllerSession_Getters(t *testing.T) {
	t.Parallel()

	s := NewControllerSession()
	s.Update(func(st *SessionState) {
		st.Enabled = true
		st.Disabling = true
		st.RFDiscoveryRunning = true
	})
	assert.True(t, s.Enabled())
	assert.True(t, s.Disabling())
	assert.True(t, s.RFDiscoveryRunning())
	assert.False(t, s.PollingEnabled())
	assert.False(t, s.Recovering())
}

func TestSessionState_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(SessionState{Enabled: true, NCIVersion: NCIVersion2_0})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, true, fields["enabled"])
	assert.InDelta(t, 0x20, fields["nci_version"], 0)
	assert.Contains(t, fields, "rf_discovery_running")
}

func TestRendezvous(t *testing.T) {
	t.Parallel()

	t.Run("Names", func(t *testing.T) {
		t.Parallel()
		r := newRendezvous()
		for k := waitKind(0); k < waitKindCount; k++ {
			assert.Equal(t, k.String(), r.get(k).Name())
		}
		assert.Equal(t, "wait 42", waitKind(42).String())
	})

	t.Run("NotifyWithoutWaiter", func(t *testing.T) {
		t.Parallel()
		r := newRendezvous()
		assert.False(t, r.notify(waitEnable, StatusOK))
		assert.Zero(t, r.abortAll())
	})

	t.Run("FailureStatusBecomesCommandError", func(t *testing.T) {
		t.Parallel()
		r := newRendezvous()
		ev := r.get(waitSetConfig)
		done := make(chan error, 1)
		ev.Lock()
		go func() {
			for !ev.Waiting() {
				time.Sleep(time.Millisecond)
			}
			r.notify(waitSetConfig, StatusInvalidParam)
		}()
		done <- ev.Wait(0)
		ev.Unlock()

		err := <-done
		var ce *CommandError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, StatusInvalidParam, ce.Status)
		assert.Equal(t, "set-config confirmation", ce.Op)
	})
}

func TestWaitError(t *testing.T) {
	t.Parallel()

	r := newRendezvous()
	ev := r.get(waitGetConfig)
	ev.Lock()
	err := ev.Wait(1)
	ev.Unlock()

	assert.ErrorIs(t, waitError(err), ErrWaitTimeout)
	other := errors.New("other")
	assert.Equal(t, other, waitError(other))
}
