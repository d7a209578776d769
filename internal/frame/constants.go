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

package frame

// MessageType is the MT field of an NCI packet header.
type MessageType uint8

// Message types.
const (
	TypeData         MessageType = 0x00
	TypeCommand      MessageType = 0x01
	TypeResponse     MessageType = 0x02
	TypeNotification MessageType = 0x03
)

func (t MessageType) String() string {
	switch t {
	case TypeData:
		return "data"
	case TypeCommand:
		return "command"
	case TypeResponse:
		return "response"
	case TypeNotification:
		return "notification"
	default:
		return "reserved"
	}
}

// Header layout
const (
	HeaderSize    = 3
	MaxPayload    = 255
	MaxPacketSize = HeaderSize + MaxPayload

	mtShift  = 5
	mtMask   = 0x07
	pbfBit   = 0x10
	gidMask  = 0x0F
	oidMask  = 0x3F
	connMask = 0x0F
)

// Group and opcode identifiers used during bring-up.
const (
	GIDCore = 0x00

	OIDCoreReset = 0x00
	OIDCoreInit  = 0x01
)

// CORE_RESET reset types.
const (
	KeepConfig  = 0x00
	ResetConfig = 0x01
)

// StatusOK is the NCI success status.
const StatusOK = 0x00
