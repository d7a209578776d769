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

// Status is the immediate result of a stack command, and the status carried
// by asynchronous confirmations.
type Status uint8

// Stack status values.
const (
	StatusOK             Status = 0x00
	StatusRejected       Status = 0x01
	StatusMsgCorrupted   Status = 0x02
	StatusFailed         Status = 0x03
	StatusNotInitialized Status = 0x04
	StatusSyntaxError    Status = 0x05
	StatusSemanticError  Status = 0x06
	StatusInvalidParam   Status = 0x09
	StatusBusy           Status = 0x0A
	StatusTimeout        Status = 0xB2
	StatusBufferFull     Status = 0xE0
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRejected:
		return "rejected"
	case StatusMsgCorrupted:
		return "message corrupted"
	case StatusFailed:
		return "failed"
	case StatusNotInitialized:
		return "not initialized"
	case StatusSyntaxError:
		return "syntax error"
	case StatusSemanticError:
		return "semantic error"
	case StatusInvalidParam:
		return "invalid parameter"
	case StatusBusy:
		return "busy"
	case StatusTimeout:
		return "timeout"
	case StatusBufferFull:
		return "buffer full"
	default:
		return fmt.Sprintf("status 0x%02X", uint8(s))
	}
}

// TechMask is a bitset of RF technologies to poll for.
type TechMask uint8

// Technology bits.
const (
	TechA       TechMask = 0x01
	TechB       TechMask = 0x02
	TechF       TechMask = 0x04
	TechV       TechMask = 0x08
	TechBPrime  TechMask = 0x10
	TechKovio   TechMask = 0x20
	TechAActive TechMask = 0x40
	TechFActive TechMask = 0x80

	TechNone TechMask = 0x00
	TechAll  TechMask = 0xFF
)

// DefaultTechMask polls every passive and active technology.
const DefaultTechMask = TechA | TechB | TechF | TechV | TechBPrime | TechKovio | TechAActive | TechFActive

// Has reports whether all bits of t are set in m.
func (m TechMask) Has(t TechMask) bool {
	return m&t == t
}

func (m TechMask) String() string {
	return fmt.Sprintf("0x%02X", uint8(m))
}

// Protocol is the RF protocol of a discovered or activated endpoint.
type Protocol uint8

// RF protocols.
const (
	ProtocolUnknown       Protocol = 0x00
	ProtocolT1T           Protocol = 0x01
	ProtocolT2T           Protocol = 0x02
	ProtocolT3T           Protocol = 0x03
	ProtocolISODEP        Protocol = 0x04
	ProtocolNFCDEP        Protocol = 0x05
	ProtocolT5T           Protocol = 0x06
	ProtocolMifareClassic Protocol = 0x80
)

func (p Protocol) String() string {
	switch p {
	case ProtocolT1T:
		return "T1T"
	case ProtocolT2T:
		return "T2T"
	case ProtocolT3T:
		return "T3T"
	case ProtocolISODEP:
		return "ISO-DEP"
	case ProtocolNFCDEP:
		return "NFC-DEP"
	case ProtocolT5T:
		return "T5T"
	case ProtocolMifareClassic:
		return "MIFARE Classic"
	default:
		return fmt.Sprintf("protocol 0x%02X", uint8(p))
	}
}

// RFMode is the discovery mode an endpoint was found or activated in.
type RFMode uint8

// RF modes. Listen modes have the high bit set.
const (
	ModePollA       RFMode = 0x00
	ModePollB       RFMode = 0x01
	ModePollF       RFMode = 0x02
	ModePollAActive RFMode = 0x03
	ModePollFActive RFMode = 0x05
	ModePollV       RFMode = 0x06

	ModeListenA       RFMode = 0x80
	ModeListenB       RFMode = 0x81
	ModeListenF       RFMode = 0x82
	ModeListenAActive RFMode = 0x83
	ModeListenFActive RFMode = 0x85
	ModeListenV       RFMode = 0x86
)

// IsListen reports whether the mode is a listen (card emulation or target) mode.
func (m RFMode) IsListen() bool {
	return m&0x80 != 0
}

// InterfaceType is the RF interface the controller activated.
type InterfaceType uint8

// RF interfaces.
const (
	InterfaceEEDirect InterfaceType = 0x00
	InterfaceFrame    InterfaceType = 0x01
	InterfaceISODEP   InterfaceType = 0x02
	InterfaceNFCDEP   InterfaceType = 0x03
	InterfaceMifare   InterfaceType = 0x80
)

// InterfaceFor returns the interface used to select a candidate of protocol p.
func InterfaceFor(p Protocol) InterfaceType {
	switch p {
	case ProtocolISODEP:
		return InterfaceISODEP
	case ProtocolNFCDEP:
		return InterfaceNFCDEP
	case ProtocolMifareClassic:
		return InterfaceMifare
	default:
		return InterfaceFrame
	}
}

// DeactivationType is the target state of a deactivation.
type DeactivationType uint8

// Deactivation types.
const (
	DeactivateIdle      DeactivationType = 0x00
	DeactivateSleep     DeactivationType = 0x01
	DeactivateSleepAF   DeactivationType = 0x02
	DeactivateDiscovery DeactivationType = 0x03
)

func (d DeactivationType) String() string {
	switch d {
	case DeactivateIdle:
		return "idle"
	case DeactivateSleep:
		return "sleep"
	case DeactivateSleepAF:
		return "sleep-af"
	case DeactivateDiscovery:
		return "discovery"
	default:
		return fmt.Sprintf("deactivation 0x%02X", uint8(d))
	}
}

// IsSleep reports whether the endpoint was put to sleep rather than released.
func (d DeactivationType) IsSleep() bool {
	return d == DeactivateSleep || d == DeactivateSleepAF
}

// ProtocolKind classifies an activation.
type ProtocolKind int

const (
	KindTag ProtocolKind = iota
	KindPeerToPeer
	KindListenOther
)

func (k ProtocolKind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindPeerToPeer:
		return "peer-to-peer"
	case KindListenOther:
		return "listen"
	default:
		return "unknown"
	}
}

// ScreenState is the host display/lock state. The low nibble of a screen
// state request carries the state, bit 4 allows tag polling while locked.
type ScreenState uint8

// Screen states.
const (
	ScreenUnknown     ScreenState = 0x00
	ScreenOffUnlocked ScreenState = 0x01
	ScreenOffLocked   ScreenState = 0x02
	ScreenOnLocked    ScreenState = 0x04
	ScreenOnUnlocked  ScreenState = 0x08

	ScreenStateMask      uint8 = 0x0F
	ScreenPollingTagMask uint8 = 0x10
)

func (s ScreenState) String() string {
	switch s {
	case ScreenOffUnlocked:
		return "off-unlocked"
	case ScreenOffLocked:
		return "off-locked"
	case ScreenOnLocked:
		return "on-locked"
	case ScreenOnUnlocked:
		return "on-unlocked"
	default:
		return "unknown"
	}
}

// ParseScreenState parses the name produced by ScreenState.String.
func ParseScreenState(name string) (ScreenState, error) {
	for _, s := range []ScreenState{ScreenOffUnlocked, ScreenOffLocked, ScreenOnLocked, ScreenOnUnlocked} {
		if s.String() == name {
			return s, nil
		}
	}
	return ScreenUnknown, fmt.Errorf("%w: unknown screen state %q", ErrInvalidParameter, name)
}

// IsOff reports whether the screen is off.
func (s ScreenState) IsOff() bool {
	return s == ScreenOffLocked || s == ScreenOffUnlocked
}

// IsOn reports whether the screen is on.
func (s ScreenState) IsOn() bool {
	return s == ScreenOnLocked || s == ScreenOnUnlocked
}

// DiscoveryParam is the value of the CON_DISCOVERY_PARAM configuration. A set
// bit disables the corresponding function.
type DiscoveryParam uint8

const (
	DiscoveryListenDisable DiscoveryParam = 0x01
	DiscoveryPollDisable   DiscoveryParam = 0x02

	DiscoveryPollListenEnable DiscoveryParam = 0x00
)

// PollEnabled reports whether polling is enabled by the parameter.
func (p DiscoveryParam) PollEnabled() bool {
	return p&DiscoveryPollDisable == 0
}

// ListenEnabled reports whether listening is enabled by the parameter.
func (p DiscoveryParam) ListenEnabled() bool {
	return p&DiscoveryListenDisable == 0
}

// discoveryParamFor returns the discovery parameter for a screen state.
func discoveryParamFor(state ScreenState, tagPollAllowed bool) DiscoveryParam {
	switch state {
	case ScreenOnUnlocked:
		return DiscoveryPollListenEnable
	case ScreenOnLocked:
		if tagPollAllowed {
			return DiscoveryPollListenEnable
		}
		return DiscoveryPollDisable
	default:
		return DiscoveryPollDisable
	}
}

// ParamID identifies a controller configuration parameter.
type ParamID uint8

// Configuration parameters.
const (
	ParamConDiscoveryParam ParamID = 0x02
	ParamLfT3tMax          ParamID = 0x52
	ParamRFFieldInfo       ParamID = 0x80
	ParamNFCCConfigControl ParamID = 0x85
)

// NCIVersion is the NCI version negotiated with the controller.
type NCIVersion uint8

const (
	NCIVersionUnknown NCIVersion = 0x00
	NCIVersion1_0     NCIVersion = 0x10
	NCIVersion2_0     NCIVersion = 0x20
)

func (v NCIVersion) String() string {
	if v == NCIVersionUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d", uint8(v)>>4, uint8(v)&0x0F)
}

// Technology identifies a tag technology for transceive timeouts.
type Technology int

// Tag technologies with individually configurable timeouts.
const (
	TechnologyNfcA Technology = iota + 1
	TechnologyNfcB
	TechnologyNfcF
	TechnologyNfcV
	TechnologyIsoDep
	TechnologyNdef
	TechnologyMifareClassic
	TechnologyMifareUltralight
	TechnologyNfcBarcode
)

func (t Technology) String() string {
	switch t {
	case TechnologyNfcA:
		return "nfc-a"
	case TechnologyNfcB:
		return "nfc-b"
	case TechnologyNfcF:
		return "nfc-f"
	case TechnologyNfcV:
		return "nfc-v"
	case TechnologyIsoDep:
		return "iso-dep"
	case TechnologyNdef:
		return "ndef"
	case TechnologyMifareClassic:
		return "mifare-classic"
	case TechnologyMifareUltralight:
		return "mifare-ultralight"
	case TechnologyNfcBarcode:
		return "nfc-barcode"
	default:
		return fmt.Sprintf("technology %d", int(t))
	}
}

// ParseTechnology parses the name produced by Technology.String.
func ParseTechnology(name string) (Technology, error) {
	for t := TechnologyNfcA; t <= TechnologyNfcBarcode; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown technology %q", ErrInvalidParameter, name)
}
