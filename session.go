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
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/google/uuid"
)

// SessionState is a copy of the controller session flags.
type SessionState struct {
	ID                    uuid.UUID  `json:"id"`
	Enabled               bool       `json:"enabled"`
	Disabling             bool       `json:"disabling"`
	Recovering            bool       `json:"recovering"`
	DiscoveryEnabled      bool       `json:"discovery_enabled"`
	RFDiscoveryRunning    bool       `json:"rf_discovery_running"`
	PollingEnabled        bool       `json:"polling_enabled"`
	PeerToPeerEnabled     bool       `json:"p2p_enabled"`
	PeerToPeerActive      bool       `json:"p2p_active"`
	ReaderModeEnabled     bool       `json:"reader_mode_enabled"`
	SecureElementRFActive bool       `json:"se_rf_active"`
	Activated             bool       `json:"activated"`
	RoutingInitialized    bool       `json:"routing_initialized"`
	NCIVersion            NCIVersion `json:"nci_version"`
	LastError             ErrorCode  `json:"last_error"`
}

// ControllerSession holds the state of one enable/disable cycle. Every
// component shares the same session; fields change only under its lock.
type ControllerSession struct {
	state SessionState
	mu    syncutil.RWMutex
}

// NewControllerSession returns an empty session.
func NewControllerSession() *ControllerSession {
	return &ControllerSession{}
}

// Snapshot returns a copy of the session state.
func (s *ControllerSession) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update applies fn to the session state under the write lock.
func (s *ControllerSession) Update(fn func(st *SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Reset clears every flag. The last error and ID survive.
func (s *ControllerSession) Reset() {
	s.Update(func(st *SessionState) {
		*st = SessionState{ID: st.ID, LastError: st.LastError, NCIVersion: st.NCIVersion}
	})
}

func (s *ControllerSession) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Enabled
}

func (s *ControllerSession) Disabling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Disabling
}

func (s *ControllerSession) Recovering() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Recovering
}

func (s *ControllerSession) RFDiscoveryRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RFDiscoveryRunning
}

func (s *ControllerSession) PollingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.PollingEnabled
}

// LastError returns the last recorded error code.
func (s *ControllerSession) LastError() ErrorCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastError
}

// recordError stores the error code for err and returns err unchanged.
func (s *ControllerSession) recordError(err error) error {
	if err == nil {
		return nil
	}
	code := errorCodeFor(err)
	s.Update(func(st *SessionState) { st.LastError = code })
	return err
}
