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

// dispatch handles one hardware event on the event goroutine. Session
// flags are updated before the matching waiter is released so a woken
// caller always observes the confirmed state.
func (m *Manager) dispatch(ev Event) {
	c := m.core
	if c.log.Trace().Enabled() {
		c.log.Trace().Stringer("event", ev.Kind()).Msg("event")
	}

	switch e := ev.(type) {
	case DiscoveryStarted:
		if e.Status == StatusOK {
			c.session.Update(func(st *SessionState) { st.RFDiscoveryRunning = true })
		}
		c.events.notify(waitDiscovery, e.Status)
	case DiscoveryStopped:
		if e.Status == StatusOK {
			c.session.Update(func(st *SessionState) { st.RFDiscoveryRunning = false })
			m.arbiter.discoveryStopped()
		}
		c.events.notify(waitDiscovery, e.Status)
	case PollingEnabled:
		if e.Status == StatusOK {
			c.session.Update(func(st *SessionState) { st.PollingEnabled = true })
		}
		c.events.notify(waitPolling, e.Status)
	case PollingDisabled:
		if e.Status == StatusOK {
			c.session.Update(func(st *SessionState) { st.PollingEnabled = false })
		}
		c.events.notify(waitPolling, e.Status)

	case DiscoveryResult:
		m.arbiter.onDiscoveryResult(e)
	case SelectResult:
		m.arbiter.onSelectResult(e)
	case Activated:
		m.arbiter.onActivated(e)
	case Deactivated:
		m.arbiter.onDeactivated(e)

	case DataReceived:
		c.tag.OnData(e.Status, e.Data)
	case ReadComplete:
		c.tag.OnReadComplete(e.Status)
	case WriteComplete:
		c.tag.OnWriteComplete(e.Status)
	case FormatComplete:
		c.tag.OnFormatComplete(e.Status)
	case PresenceCheck:
		c.tag.OnPresenceCheck(e.Status)
	case NdefDetected:
		c.tag.OnNdefDetected(e.Status, e.Info)
	case ReadOnlyComplete:
		c.tag.OnReadOnlyComplete(e.Status)
	case RFInterfaceError:
		c.tag.OnRFInterfaceError()

	case RFField:
		if e.Status != StatusOK || c.session.Snapshot().PeerToPeerActive {
			return
		}
		if e.On {
			c.host.OnRemoteFieldActivated()
		} else {
			c.host.OnRemoteFieldDeactivated()
		}

	case EnableResult:
		c.session.Update(func(st *SessionState) {
			st.Enabled = e.Status == StatusOK
			st.Disabling = false
		})
		c.events.notify(waitEnable, e.Status)
	case DisableResult:
		c.session.Update(func(st *SessionState) {
			st.Enabled = false
			st.Disabling = false
		})
		c.events.notify(waitDisable, e.Status)
	case SetConfigResult:
		c.events.notify(waitSetConfig, e.Status)
	case GetConfigResult:
		if e.Status == StatusOK {
			c.cache.storeConfig(e.TLV)
		}
		c.events.notify(waitGetConfig, e.Status)
	case PowerSubStateResult:
		c.events.notify(waitPowerSubState, e.Status)
	case PowerModeChanged:
		c.log.Debug().Stringer("status", e.Status).Msg("power mode changed")

	case TransportTimeout:
		m.recovery.onTransportFailure(FatalTransportTimeout)
	case TransportError:
		m.recovery.onTransportFailure(FatalTransportError)

	case LLCPActivated:
		if e.Status == StatusOK {
			c.p2p.OnLinkActivated(e.Link)
		}
	case LLCPDeactivated:
		c.p2p.OnLinkDeactivated()
	case LLCPFirstPacket:
		c.p2p.OnFirstPacket()
	case P2PListenTechSet:
		c.p2p.OnListenTechSet()

	case CEActivated:
		c.host.OnHostCardEmulationActivated(e.Tech)
	case CEData:
		c.host.OnHostCardEmulationData(e.Tech, e.Data)
	case CEDeactivated:
		c.host.OnHostCardEmulationDeactivated(e.Tech)
	case Transaction:
		c.host.OnTransaction(e.AID, e.Data, e.Origin)

	default:
		c.log.Warn().Stringer("event", ev.Kind()).Msg("unhandled event")
	}
}
