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

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrShortPacket is returned when a buffer ends inside a packet.
	ErrShortPacket = errors.New("nci packet truncated")
	// ErrPayloadTooLong is returned when a payload does not fit one packet.
	ErrPayloadTooLong = errors.New("nci payload exceeds 255 bytes")
	// ErrUnexpectedPacket is returned when a reply does not match its command.
	ErrUnexpectedPacket = errors.New("unexpected nci packet")
)

// Packet is one NCI control or data packet. For data packets GID carries
// the connection identifier and OID is unused.
type Packet struct {
	Payload   []byte
	Type      MessageType
	GID       uint8
	OID       uint8
	Segmented bool
}

// CoreReset returns a CORE_RESET_CMD with the given reset type.
func CoreReset(resetType byte) Packet {
	return Packet{Type: TypeCommand, GID: GIDCore, OID: OIDCoreReset, Payload: []byte{resetType}}
}

// Encode serializes p.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLong, len(p.Payload))
	}
	b0 := byte(p.Type&mtMask) << mtShift
	if p.Segmented {
		b0 |= pbfBit
	}
	b1 := p.OID & oidMask
	if p.Type == TypeData {
		b0 |= p.GID & connMask
		b1 = 0
	} else {
		b0 |= p.GID & gidMask
	}
	out := make([]byte, 0, HeaderSize+len(p.Payload))
	out = append(out, b0, b1, byte(len(p.Payload)))
	return append(out, p.Payload...), nil
}

// parseHeader fills the header fields of a packet and returns the payload
// length.
func parseHeader(h []byte) (Packet, int) {
	p := Packet{
		Type:      MessageType(h[0]>>mtShift) & mtMask,
		Segmented: h[0]&pbfBit != 0,
		GID:       h[0] & gidMask,
		OID:       h[1] & oidMask,
	}
	return p, int(h[2])
}

// Decode parses one packet from the front of buf and reports how many
// bytes it used. The payload aliases buf.
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) < HeaderSize {
		return Packet{}, 0, ErrShortPacket
	}
	p, n := parseHeader(buf)
	end := HeaderSize + n
	if len(buf) < end {
		return Packet{}, 0, fmt.Errorf("%w: want %d bytes, have %d", ErrShortPacket, end, len(buf))
	}
	p.Payload = buf[HeaderSize:end]
	return p, end, nil
}

// Read reads exactly one packet from r: the header first, then the
// payload it announces.
func Read(r io.Reader) (Packet, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, fmt.Errorf("read nci header: %w", err)
	}
	p, n := parseHeader(hdr[:])
	p.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, p.Payload); err != nil {
		return Packet{}, fmt.Errorf("read nci payload: %w", err)
	}
	return p, nil
}

// Write encodes p and writes it to w in a single call.
func Write(w io.Writer, p Packet) error {
	buf, err := p.Encode()
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write nci packet: %w", err)
	}
	return nil
}

// IsResponseTo reports whether p answers cmd.
func (p Packet) IsResponseTo(cmd Packet) bool {
	return p.Type == TypeResponse && p.GID == cmd.GID && p.OID == cmd.OID
}

// Status returns the status byte that leads a response payload.
func (p Packet) Status() (byte, error) {
	if p.Type != TypeResponse || len(p.Payload) == 0 {
		return 0, fmt.Errorf("%w: %s without status", ErrUnexpectedPacket, p.Type)
	}
	return p.Payload[0], nil
}

// Exchange writes cmd to rw and reads packets until its response arrives.
// Notifications received first are skipped; at most maxSkip are tolerated.
func Exchange(rw io.ReadWriter, cmd Packet, maxSkip int) (Packet, error) {
	if err := Write(rw, cmd); err != nil {
		return Packet{}, err
	}
	for range maxSkip + 1 {
		p, err := Read(rw)
		if err != nil {
			return Packet{}, err
		}
		if p.IsResponseTo(cmd) {
			return p, nil
		}
		if p.Type != TypeNotification {
			return Packet{}, fmt.Errorf("%w: %s gid=%d oid=%d", ErrUnexpectedPacket, p.Type, p.GID, p.OID)
		}
	}
	return Packet{}, fmt.Errorf("%w: no response after %d notifications", ErrUnexpectedPacket, maxSkip)
}
