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

import "fmt"

// EventKind identifies the variant of a hardware Event.
type EventKind int

// Event kinds delivered by the stack.
const (
	EventDiscoveryStarted EventKind = iota + 1
	EventDiscoveryStopped
	EventPollingEnabled
	EventPollingDisabled
	EventDiscoveryResult
	EventSelectResult
	EventActivated
	EventDeactivated
	EventDataReceived
	EventReadComplete
	EventWriteComplete
	EventFormatComplete
	EventPresenceCheck
	EventNdefDetected
	EventReadOnlyComplete
	EventRFInterfaceError
	EventRFField
	EventEnableResult
	EventDisableResult
	EventSetConfigResult
	EventGetConfigResult
	EventPowerSubStateResult
	EventPowerModeChanged
	EventTransportTimeout
	EventTransportError
	EventLLCPActivated
	EventLLCPDeactivated
	EventLLCPFirstPacket
	EventP2PListenTechSet
	EventCEActivated
	EventCEData
	EventCEDeactivated
	EventTransaction
)

var eventKindNames = map[EventKind]string{
	EventDiscoveryStarted:    "discovery-started",
	EventDiscoveryStopped:    "discovery-stopped",
	EventPollingEnabled:      "polling-enabled",
	EventPollingDisabled:     "polling-disabled",
	EventDiscoveryResult:     "discovery-result",
	EventSelectResult:        "select-result",
	EventActivated:           "activated",
	EventDeactivated:         "deactivated",
	EventDataReceived:        "data-received",
	EventReadComplete:        "read-complete",
	EventWriteComplete:       "write-complete",
	EventFormatComplete:      "format-complete",
	EventPresenceCheck:       "presence-check",
	EventNdefDetected:        "ndef-detected",
	EventReadOnlyComplete:    "read-only-complete",
	EventRFInterfaceError:    "rf-interface-error",
	EventRFField:             "rf-field",
	EventEnableResult:        "enable-result",
	EventDisableResult:       "disable-result",
	EventSetConfigResult:     "set-config-result",
	EventGetConfigResult:     "get-config-result",
	EventPowerSubStateResult: "power-substate-result",
	EventPowerModeChanged:    "power-mode-changed",
	EventTransportTimeout:    "transport-timeout",
	EventTransportError:      "transport-error",
	EventLLCPActivated:       "llcp-activated",
	EventLLCPDeactivated:     "llcp-deactivated",
	EventLLCPFirstPacket:     "llcp-first-packet",
	EventP2PListenTechSet:    "p2p-listen-tech-set",
	EventCEActivated:         "ce-activated",
	EventCEData:              "ce-data",
	EventCEDeactivated:       "ce-deactivated",
	EventTransaction:         "transaction",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event %d", int(k))
}

// Event is a hardware notification delivered by the stack. The concrete
// types below are the only implementations.
type Event interface {
	Kind() EventKind
}

// EventSink receives hardware events from the stack. Deliver must be safe to
// call from any goroutine; events are processed in the order delivered.
type EventSink interface {
	Deliver(ev Event)
}

// Candidate is one endpoint reported in a discovery round.
type Candidate struct {
	ID       uint8
	Protocol Protocol
	Mode     RFMode
}

// IsPeerToPeer reports whether the candidate speaks NFC-DEP.
func (c Candidate) IsPeerToPeer() bool {
	return c.Protocol == ProtocolNFCDEP
}

// NdefInfo describes the NDEF capability of an activated tag.
type NdefInfo struct {
	Protocol    Protocol
	MaxSize     uint32
	CurrentSize uint32
	ReadOnly    bool
}

// LinkInfo describes an activated LLCP link.
type LinkInfo struct {
	RemoteMIU     uint16
	RemoteVersion uint8
	Initiator     bool
}

type (
	DiscoveryStarted struct{ Status Status }
	DiscoveryStopped struct{ Status Status }
	PollingEnabled   struct{ Status Status }
	PollingDisabled  struct{ Status Status }

	// DiscoveryResult reports one candidate. More is set while further
	// candidates of the same round follow.
	DiscoveryResult struct {
		Status    Status
		Candidate Candidate
		More      bool
	}

	SelectResult struct{ Status Status }

	Activated struct {
		DiscoveryID uint8
		Protocol    Protocol
		Mode        RFMode
		Interface   InterfaceType
	}

	Deactivated struct{ Type DeactivationType }

	DataReceived struct {
		Status Status
		Data   []byte
	}

	ReadComplete     struct{ Status Status }
	WriteComplete    struct{ Status Status }
	FormatComplete   struct{ Status Status }
	PresenceCheck    struct{ Status Status }
	ReadOnlyComplete struct{ Status Status }

	NdefDetected struct {
		Status Status
		Info   NdefInfo
	}

	RFInterfaceError struct{}

	RFField struct {
		Status Status
		On     bool
	}

	EnableResult        struct{ Status Status }
	DisableResult       struct{ Status Status }
	SetConfigResult     struct{ Status Status }
	PowerSubStateResult struct{ Status Status }
	PowerModeChanged    struct{ Status Status }

	// GetConfigResult carries the raw TLV list of the requested parameters.
	GetConfigResult struct {
		Status Status
		TLV    []byte
	}

	TransportTimeout struct{}
	TransportError   struct{}

	LLCPActivated struct {
		Status Status
		Link   LinkInfo
	}
	LLCPDeactivated  struct{}
	LLCPFirstPacket  struct{}
	P2PListenTechSet struct{}

	CEActivated struct{ Tech TechMask }
	CEData      struct {
		Tech TechMask
		Data []byte
	}
	CEDeactivated struct{ Tech TechMask }

	// Transaction is an off-host transaction reported by a secure element.
	Transaction struct {
		AID    []byte
		Data   []byte
		Origin string
	}
)

func (DiscoveryStarted) Kind() EventKind    { return EventDiscoveryStarted }
func (DiscoveryStopped) Kind() EventKind    { return EventDiscoveryStopped }
func (PollingEnabled) Kind() EventKind      { return EventPollingEnabled }
func (PollingDisabled) Kind() EventKind     { return EventPollingDisabled }
func (DiscoveryResult) Kind() EventKind     { return EventDiscoveryResult }
func (SelectResult) Kind() EventKind        { return EventSelectResult }
func (Activated) Kind() EventKind           { return EventActivated }
func (Deactivated) Kind() EventKind         { return EventDeactivated }
func (DataReceived) Kind() EventKind        { return EventDataReceived }
func (ReadComplete) Kind() EventKind        { return EventReadComplete }
func (WriteComplete) Kind() EventKind       { return EventWriteComplete }
func (FormatComplete) Kind() EventKind      { return EventFormatComplete }
func (PresenceCheck) Kind() EventKind       { return EventPresenceCheck }
func (NdefDetected) Kind() EventKind        { return EventNdefDetected }
func (ReadOnlyComplete) Kind() EventKind    { return EventReadOnlyComplete }
func (RFInterfaceError) Kind() EventKind    { return EventRFInterfaceError }
func (RFField) Kind() EventKind             { return EventRFField }
func (EnableResult) Kind() EventKind        { return EventEnableResult }
func (DisableResult) Kind() EventKind       { return EventDisableResult }
func (SetConfigResult) Kind() EventKind     { return EventSetConfigResult }
func (GetConfigResult) Kind() EventKind     { return EventGetConfigResult }
func (PowerSubStateResult) Kind() EventKind { return EventPowerSubStateResult }
func (PowerModeChanged) Kind() EventKind    { return EventPowerModeChanged }
func (TransportTimeout) Kind() EventKind    { return EventTransportTimeout }
func (TransportError) Kind() EventKind      { return EventTransportError }
func (LLCPActivated) Kind() EventKind       { return EventLLCPActivated }
func (LLCPDeactivated) Kind() EventKind     { return EventLLCPDeactivated }
func (LLCPFirstPacket) Kind() EventKind     { return EventLLCPFirstPacket }
func (P2PListenTechSet) Kind() EventKind    { return EventP2PListenTechSet }
func (CEActivated) Kind() EventKind         { return EventCEActivated }
func (CEData) Kind() EventKind              { return EventCEData }
func (CEDeactivated) Kind() EventKind       { return EventCEDeactivated }
func (Transaction) Kind() EventKind         { return EventTransaction }
