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

// ArbiterState is the position of the activation state machine within one
// RF field lifecycle.
type ArbiterState int

const (
	StateIdle ArbiterState = iota
	StateDiscovering
	StateSelecting
	StateActivated
	StateDeactivating
)

func (s ArbiterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateSelecting:
		return "selecting"
	case StateActivated:
		return "activated"
	case StateDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// CandidateSet is the bookkeeping of one discovery round. Count is the
// number of tag candidates still awaiting activation once the round has
// completed.
type CandidateSet struct {
	Candidates            []Candidate `json:"candidates"`
	Count                 int         `json:"count"`
	ContainsPeerToPeer    bool        `json:"contains_p2p"`
	MultiProtocolDetected bool        `json:"multi_protocol"`
}

// ActivationRecord describes the currently activated link.
type ActivationRecord struct {
	Kind        ProtocolKind  `json:"kind"`
	Protocol    Protocol      `json:"protocol"`
	Mode        RFMode        `json:"mode"`
	Interface   InterfaceType `json:"interface"`
	DiscoveryID uint8         `json:"discovery_id"`
	IsListen    bool          `json:"is_listen"`
	// MoreCandidates is set when other endpoints of the same round will be
	// activated after this one.
	MoreCandidates bool `json:"more_candidates"`
}

func classify(ev Activated) ActivationRecord {
	rec := ActivationRecord{
		Protocol:    ev.Protocol,
		Mode:        ev.Mode,
		Interface:   ev.Interface,
		DiscoveryID: ev.DiscoveryID,
		IsListen:    ev.Mode.IsListen(),
	}
	switch {
	case ev.Protocol == ProtocolNFCDEP:
		rec.Kind = KindPeerToPeer
	case rec.IsListen:
		rec.Kind = KindListenOther
	default:
		rec.Kind = KindTag
	}
	return rec
}

// arbiter consumes RF connection events on the event goroutine. mu guards
// the round and activation bookkeeping for readers on other goroutines; it
// is never held across stack or collaborator calls.
type arbiter struct {
	*core
	current   *ActivationRecord
	selected  []bool
	round     CandidateSet
	mu        syncutil.Mutex
	state     ArbiterState
	roundDone bool
}

func (a *arbiter) snapshot() (ArbiterState, CandidateSet, *ActivationRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	round := a.round
	round.Candidates = append([]Candidate(nil), a.round.Candidates...)
	var cur *ActivationRecord
	if a.current != nil {
		rec := *a.current
		cur = &rec
	}
	return a.state, round, cur
}

func (a *arbiter) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
	a.current = nil
	a.state = StateIdle
}

func (a *arbiter) resetLocked() {
	a.round = CandidateSet{}
	a.selected = nil
	a.roundDone = false
}

func (a *arbiter) onDiscoveryResult(ev DiscoveryResult) {
	if ev.Status != StatusOK {
		a.log.Warn().Stringer("status", ev.Status).Msg("discovery round failed, abandoning")
		a.mu.Lock()
		a.resetLocked()
		a.state = StateIdle
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	if a.roundDone {
		a.resetLocked()
	}
	a.round.Candidates = append(a.round.Candidates, ev.Candidate)
	a.selected = append(a.selected, false)
	a.round.Count++
	if ev.Candidate.IsPeerToPeer() {
		a.round.ContainsPeerToPeer = true
	}
	a.state = StateDiscovering
	if ev.More {
		a.mu.Unlock()
		return
	}

	a.roundDone = true
	a.state = StateSelecting
	if a.round.Count > 1 {
		a.round.MultiProtocolDetected = true
		if a.round.ContainsPeerToPeer {
			a.round.Count--
		}
	}

	snap := a.session.Snapshot()
	wantP2P := snap.PeerToPeerEnabled && !snap.ReaderModeEnabled && a.round.ContainsPeerToPeer
	if !wantP2P && a.round.Count > 0 {
		a.round.Count--
	}
	idx := a.firstUnselected(wantP2P)
	var target Candidate
	if idx >= 0 {
		a.selected[idx] = true
		target = a.round.Candidates[idx]
	}
	count := a.round.Count
	a.mu.Unlock()

	if idx < 0 {
		a.log.Warn().Msg("no selectable candidate in discovery round")
		a.deactivate(false)
		return
	}
	a.log.Debug().
		Uint8("id", target.ID).
		Stringer("protocol", target.Protocol).
		Int("pending", count).
		Msg("selecting candidate")
	a.selectCandidate(target)
}

// firstUnselected returns the index of the first candidate not yet
// selected, restricted to peer-to-peer or non-peer-to-peer candidates.
func (a *arbiter) firstUnselected(p2p bool) int {
	for i, c := range a.round.Candidates {
		if !a.selected[i] && c.IsPeerToPeer() == p2p {
			return i
		}
	}
	return -1
}

func (a *arbiter) selectCandidate(c Candidate) {
	if st := a.stack.Select(c.ID, c.Protocol, InterfaceFor(c.Protocol)); st != StatusOK {
		a.log.Error().Stringer("status", st).Uint8("id", c.ID).Msg("select refused")
		a.deactivate(false)
	}
}

// deactivate asks the controller to release the link without waiting.
func (a *arbiter) deactivate(sleep bool) {
	a.mu.Lock()
	a.state = StateDeactivating
	a.mu.Unlock()
	if st := a.stack.Deactivate(sleep); st != StatusOK {
		a.log.Error().Stringer("status", st).Bool("sleep", sleep).Msg("deactivate refused")
	}
}

func (a *arbiter) onSelectResult(ev SelectResult) {
	if a.session.Disabling() {
		return
	}
	if ev.Status == StatusOK {
		return
	}
	a.log.Error().Stringer("status", ev.Status).Msg("select failed")
	if a.tag.SelectingInterface() {
		a.tag.ConnectStatus(false)
	}
	a.deactivate(false)
}

func (a *arbiter) onActivated(ev Activated) {
	rec := classify(ev)

	a.mu.Lock()
	// Type 5 tags never carry a second protocol.
	if ev.Protocol == ProtocolT5T {
		a.round.Count = 0
	}
	pending := a.round.Count > 0
	rec.MoreCandidates = pending
	a.mu.Unlock()

	snap := a.session.Snapshot()
	if snap.Disabling || !snap.Enabled {
		return
	}

	a.setActivated(true)
	a.mu.Lock()
	a.state = StateActivated
	a.current = &rec
	a.mu.Unlock()

	if a.tag.SelectingInterface() {
		a.tag.ConnectStatus(true)
		return
	}

	if !rec.IsListen && a.cache.screenState().IsOff() {
		a.log.Debug().Msg("screen off, dropping poll activation")
		a.deactivate(false)
		return
	}

	if rec.Kind == KindPeerToPeer {
		if snap.ReaderModeEnabled {
			a.log.Debug().Msg("peer-to-peer activation in reader mode, deactivating")
			a.deactivate(false)
			return
		}
		a.session.Update(func(st *SessionState) { st.PeerToPeerActive = true })
		if snap.NCIVersion == NCIVersion1_0 {
			a.setConfigUnawaited(ParamRFFieldInfo, []byte{0x00})
		}
		return
	}

	a.tag.OnActivated(rec)
	if rec.Kind == KindTag {
		a.host.OnTagActivated(rec)
	}
	if pending {
		a.deactivate(true)
	}
	if rec.IsListen {
		a.session.Update(func(st *SessionState) { st.SecureElementRFActive = true })
	}
}

func (a *arbiter) onDeactivated(ev Deactivated) {
	a.mu.Lock()
	var next Candidate
	reselect := false
	if ev.Type.IsSleep() && a.round.MultiProtocolDetected && a.round.Count > 0 {
		if idx := a.firstUnselected(false); idx >= 0 {
			a.selected[idx] = true
			a.round.Count--
			next = a.round.Candidates[idx]
			reselect = true
			a.state = StateSelecting
		}
	}
	prev := a.current
	a.mu.Unlock()

	if reselect {
		a.log.Debug().Uint8("id", next.ID).Stringer("protocol", next.Protocol).Msg("selecting next candidate")
		a.selectCandidate(next)
		return
	}

	switch {
	case !ev.Type.IsSleep():
		a.setActivated(false)
		a.events.notify(waitDeactivated, StatusOK)
		a.tag.OnDeactivated(ev.Type)
		if prev != nil && prev.Kind == KindTag {
			a.host.OnTagDeactivated()
		}
		a.tag.AbortWaits()
		a.reset()
	case a.tag.Deactivating():
		a.tag.DeactivateStatus(true)
	}

	if ev.Type != DeactivateIdle && ev.Type != DeactivateDiscovery {
		return
	}
	snap := a.session.Snapshot()
	switch {
	case snap.SecureElementRFActive:
		a.session.Update(func(st *SessionState) { st.SecureElementRFActive = false })
	case snap.PeerToPeerActive:
		a.session.Update(func(st *SessionState) { st.PeerToPeerActive = false })
		if snap.NCIVersion == NCIVersion1_0 && !snap.Disabling && snap.Enabled {
			a.setConfigUnawaited(ParamRFFieldInfo, []byte{0x01})
		}
	}
}

// discoveryStopped ends any activation when RF discovery stops.
func (a *arbiter) discoveryStopped() {
	a.setActivated(false)
	a.reset()
}

// setActivated updates the active flag under the deactivation event lock,
// which also serializes explicit deactivation requests.
func (a *arbiter) setActivated(on bool) {
	ev := a.events.get(waitDeactivated)
	ev.Lock()
	a.session.Update(func(st *SessionState) { st.Activated = on })
	ev.Unlock()
}
