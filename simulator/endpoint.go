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

package simulator

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// Endpoint is something that can be placed in the simulated RF field.
// Each protocol it speaks is reported as a separate discovery candidate.
type Endpoint interface {
	Protocols() []nci.Protocol
	Mode() nci.RFMode
	// Transceive answers one frame sent over the activated protocol.
	Transceive(protocol nci.Protocol, frame []byte) ([]byte, error)
}

// Tag command bytes understood by VirtualTag.
const (
	cmdRead      = 0x30
	cmdWrite     = 0xA2
	cmdMfWrite   = 0xA0
	cmdAuthA     = 0x60
	cmdAuthB     = 0x61
	cmdT5TRead   = 0x20
	isoSelectINS = 0xA4
)

var (
	errNotAuthenticated = errors.New("sector not authenticated")
	errBlockRange       = errors.New("block out of range")
	errWriteProtected   = errors.New("block is write protected")
	errUnsupported      = errors.New("unsupported command")
)

// ISO 7816 status words returned by the ISO-DEP personality.
var (
	swOK       = []byte{0x90, 0x00}
	swNotFound = []byte{0x6A, 0x82}
	swBadINS   = []byte{0x6D, 0x00}
)

// Sample UIDs for virtual tags.
var (
	NTAG213UID  = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}
	MIFARE1KUID = []byte{0x12, 0x34, 0x56, 0x78}
	Type4UID    = []byte{0x08, 0x11, 0x22, 0x33}
	Type5UID    = []byte{0xE0, 0x04, 0x01, 0x50, 0x11, 0x22, 0x33, 0x44}
)

// VirtualTag is a simulated card with block memory. A card may speak more
// than one protocol, in which case each is discovered separately.
type VirtualTag struct {
	sectorKeys          map[int][]byte
	Type                string
	UID                 []byte
	Memory              [][]byte
	aids                [][]byte
	protocols           []nci.Protocol
	mu                  syncutil.Mutex
	authenticatedSector int
	blockSize           int
	mode                nci.RFMode
}

// NewVirtualNTAG213 creates a Type 2 tag with the NTAG213 memory layout.
func NewVirtualNTAG213(uid []byte) *VirtualTag {
	if uid == nil {
		uid = NTAG213UID
	}
	tag := newTag("NTAG213", uid, nci.ModePollA, 45, 4, nci.ProtocolT2T)
	copy(tag.Memory[0], uid)
	// Capability container: NDEF mapping 1.0, 144 byte data area.
	tag.Memory[3] = []byte{0xE1, 0x10, 0x12, 0x00}
	tag.Memory[4] = []byte{0x03, 0x00, 0xFE, 0x00}
	return tag
}

// NewVirtualMIFARE1K creates a MIFARE Classic 1K card with default keys.
func NewVirtualMIFARE1K(uid []byte) *VirtualTag {
	if uid == nil {
		uid = MIFARE1KUID
	}
	tag := newTag("MIFARE1K", uid, nci.ModePollA, 64, 16, nci.ProtocolMifareClassic)
	tag.initMIFARE(16)
	return tag
}

// NewVirtualType4 creates an ISO-DEP card answering SELECT for aids.
func NewVirtualType4(uid []byte, aids ...[]byte) *VirtualTag {
	if uid == nil {
		uid = Type4UID
	}
	tag := newTag("Type4", uid, nci.ModePollA, 0, 0, nci.ProtocolISODEP)
	tag.aids = aids
	return tag
}

// NewVirtualType5 creates an ISO 15693 tag.
func NewVirtualType5(uid []byte) *VirtualTag {
	if uid == nil {
		uid = Type5UID
	}
	return newTag("Type5", uid, nci.ModePollV, 28, 4, nci.ProtocolT5T)
}

// NewMultiProtocolCard creates a card exposing both an ISO-DEP and a
// MIFARE Classic personality, like a MIFARE Plus in security level 1.
func NewMultiProtocolCard(uid []byte, aids ...[]byte) *VirtualTag {
	if uid == nil {
		uid = MIFARE1KUID
	}
	tag := newTag("MultiProtocol", uid, nci.ModePollA, 64, 16, nci.ProtocolISODEP, nci.ProtocolMifareClassic)
	tag.aids = aids
	tag.initMIFARE(16)
	return tag
}

func newTag(typ string, uid []byte, mode nci.RFMode, blocks, blockSize int, protocols ...nci.Protocol) *VirtualTag {
	tag := &VirtualTag{
		Type:                typ,
		UID:                 append([]byte(nil), uid...),
		Memory:              make([][]byte, blocks),
		protocols:           protocols,
		mode:                mode,
		blockSize:           blockSize,
		authenticatedSector: -1,
		sectorKeys:          make(map[int][]byte),
	}
	for i := range tag.Memory {
		tag.Memory[i] = make([]byte, blockSize)
	}
	return tag
}

func (v *VirtualTag) initMIFARE(sectors int) {
	copy(v.Memory[0], v.UID)
	defaultKey := bytes.Repeat([]byte{0xFF}, 6)
	for sector := range sectors {
		v.Memory[sector*4+3] = []byte{
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // Key A
			0xFF, 0x07, 0x80, 0x69, // Access bits
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // Key B
		}
		v.sectorKeys[sector] = defaultKey
	}
}

// Protocols implements Endpoint.
func (v *VirtualTag) Protocols() []nci.Protocol {
	return v.protocols
}

// Mode implements Endpoint.
func (v *VirtualTag) Mode() nci.RFMode {
	return v.mode
}

// UIDString returns the UID as a hex string.
func (v *VirtualTag) UIDString() string {
	return hex.EncodeToString(v.UID)
}

// ReadBlock returns a copy of block.
func (v *VirtualTag) ReadBlock(block int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readBlockLocked(block)
}

func (v *VirtualTag) readBlockLocked(block int) ([]byte, error) {
	if block < 0 || block >= len(v.Memory) {
		return nil, fmt.Errorf("%w: %d", errBlockRange, block)
	}
	return append([]byte(nil), v.Memory[block]...), nil
}

// WriteBlock replaces block with data.
func (v *VirtualTag) WriteBlock(block int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writeBlockLocked(block, data)
}

func (v *VirtualTag) writeBlockLocked(block int, data []byte) error {
	if block < 0 || block >= len(v.Memory) {
		return fmt.Errorf("%w: %d", errBlockRange, block)
	}
	if v.isBlockWriteProtected(block) {
		return fmt.Errorf("%w: %d", errWriteProtected, block)
	}
	if len(data) != v.blockSize {
		return fmt.Errorf("data must be exactly %d bytes, got %d", v.blockSize, len(data))
	}
	copy(v.Memory[block], data)
	return nil
}

func (v *VirtualTag) isBlockWriteProtected(block int) bool {
	switch v.Type {
	case "NTAG213":
		return block < 3 || block >= 40
	case "MIFARE1K", "MultiProtocol":
		return block == 0 || (block+1)%4 == 0
	default:
		return false
	}
}

// Transceive implements Endpoint.
func (v *VirtualTag) Transceive(protocol nci.Protocol, frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errUnsupported
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	switch protocol {
	case nci.ProtocolT2T:
		return v.type2(frame)
	case nci.ProtocolMifareClassic:
		return v.mifare(frame)
	case nci.ProtocolISODEP:
		return v.isoDep(frame), nil
	case nci.ProtocolT5T:
		return v.type5(frame)
	default:
		return nil, fmt.Errorf("%w: protocol %s", errUnsupported, protocol)
	}
}

// type2 answers READ with four pages and WRITE with an ACK.
func (v *VirtualTag) type2(frame []byte) ([]byte, error) {
	switch {
	case frame[0] == cmdRead && len(frame) == 2:
		out := make([]byte, 0, 16)
		for i := range 4 {
			page := (int(frame[1]) + i) % len(v.Memory)
			out = append(out, v.Memory[page]...)
		}
		return out, nil
	case frame[0] == cmdWrite && len(frame) == 6:
		if err := v.writeBlockLocked(int(frame[1]), frame[2:6]); err != nil {
			return []byte{0x00}, nil //nolint:nilerr // NAK is the wire answer
		}
		return []byte{0x0A}, nil
	default:
		return nil, errUnsupported
	}
}

func (v *VirtualTag) mifare(frame []byte) ([]byte, error) {
	switch frame[0] {
	case cmdAuthA, cmdAuthB:
		if len(frame) < 8 {
			return nil, errUnsupported
		}
		sector := int(frame[1]) / 4
		if !bytes.Equal(v.sectorKeys[sector], frame[2:8]) {
			v.authenticatedSector = -1
			return nil, errNotAuthenticated
		}
		v.authenticatedSector = sector
		return []byte{}, nil
	case cmdRead:
		if len(frame) != 2 {
			return nil, errUnsupported
		}
		if v.authenticatedSector != int(frame[1])/4 {
			return nil, errNotAuthenticated
		}
		return v.readBlockLocked(int(frame[1]))
	case cmdMfWrite:
		if len(frame) != 2+v.blockSize {
			return nil, errUnsupported
		}
		if v.authenticatedSector != int(frame[1])/4 {
			return nil, errNotAuthenticated
		}
		if err := v.writeBlockLocked(int(frame[1]), frame[2:]); err != nil {
			return nil, err
		}
		return []byte{0x0A}, nil
	default:
		return nil, errUnsupported
	}
}

func (v *VirtualTag) isoDep(apdu []byte) []byte {
	if len(apdu) < 4 {
		return swBadINS
	}
	if apdu[1] != isoSelectINS {
		return swBadINS
	}
	if len(apdu) < 5 || len(apdu) < 5+int(apdu[4]) {
		return swNotFound
	}
	aid := apdu[5 : 5+int(apdu[4])]
	for _, known := range v.aids {
		if bytes.Equal(known, aid) {
			return swOK
		}
	}
	return swNotFound
}

// type5 answers READ SINGLE BLOCK: flags, command, block number.
func (v *VirtualTag) type5(frame []byte) ([]byte, error) {
	if len(frame) < 3 || frame[1] != cmdT5TRead {
		return nil, errUnsupported
	}
	block, err := v.readBlockLocked(int(frame[len(frame)-1]))
	if err != nil {
		return []byte{0x01, 0x10}, nil //nolint:nilerr // error flag answer
	}
	return append([]byte{0x00}, block...), nil
}

// VirtualPeer is an NFC-DEP device that echoes every frame it receives.
type VirtualPeer struct {
	received [][]byte
	mu       syncutil.Mutex
	mode     nci.RFMode
	// MIU is the link MIU advertised on LLCP activation.
	MIU uint16
}

// NewVirtualPeer creates a passive NFC-F peer.
func NewVirtualPeer() *VirtualPeer {
	return &VirtualPeer{mode: nci.ModePollF, MIU: 248}
}

// Protocols implements Endpoint.
func (*VirtualPeer) Protocols() []nci.Protocol {
	return []nci.Protocol{nci.ProtocolNFCDEP}
}

// Mode implements Endpoint.
func (p *VirtualPeer) Mode() nci.RFMode {
	return p.mode
}

// Transceive implements Endpoint.
func (p *VirtualPeer) Transceive(_ nci.Protocol, frame []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, append([]byte(nil), frame...))
	return append([]byte(nil), frame...), nil
}

// Received returns the frames the peer has seen.
func (p *VirtualPeer) Received() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.received...)
}
