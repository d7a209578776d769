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

// recoveryCoordinator handles transport failures reported by the stack. It
// runs on the event goroutine and never waits for a confirmation.
type recoveryCoordinator struct {
	*core
	fatal chan *FatalError
}

func (r *recoveryCoordinator) onTransportFailure(kind FatalKind) {
	r.log.Error().Stringer("kind", kind).Bool("recovery", r.cfg.Recovery).Msg("transport failure")

	if r.cfg.Recovery {
		r.session.Update(func(st *SessionState) { st.Recovering = true })
		r.host.OnHWErrorReported()
		woken := r.events.abortAll()
		r.log.Warn().Int("woken", woken).Msg("waiters aborted, awaiting reinitialize")
		r.raise(&FatalError{Kind: kind, Recovering: true})
		return
	}

	r.tag.AbortWaits()
	r.p2p.AbortWaits()
	r.events.abortAll()

	snap := r.session.Snapshot()
	r.session.Update(func(st *SessionState) {
		st.DiscoveryEnabled = false
		st.PollingEnabled = false
	})
	if snap.Enabled && !snap.Disabling {
		r.stack.Close()
		if st := r.stack.Disable(false); st != StatusOK {
			r.log.Error().Stringer("status", st).Msg("disable after transport failure refused")
		}
	}
	r.session.Reset()
	r.raise(&FatalError{Kind: kind})
}

// raise hands err to the owner of the manager. Only the first pending
// failure is kept.
func (r *recoveryCoordinator) raise(err *FatalError) {
	select {
	case r.fatal <- err:
	default:
		r.log.Warn().Err(err).Msg("fatal error already pending")
	}
}
