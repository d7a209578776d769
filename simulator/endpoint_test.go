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
	"testing"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualTag_Creation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag       *VirtualTag
		name      string
		uid       string
		protocols []nci.Protocol
		mode      nci.RFMode
		blocks    int
	}{
		{
			name:      "NTAG213",
			tag:       NewVirtualNTAG213(nil),
			uid:       "04abcdef123456",
			protocols: []nci.Protocol{nci.ProtocolT2T},
			mode:      nci.ModePollA,
			blocks:    45,
		},
		{
			name:      "MIFARE1K",
			tag:       NewVirtualMIFARE1K(nil),
			uid:       "12345678",
			protocols: []nci.Protocol{nci.ProtocolMifareClassic},
			mode:      nci.ModePollA,
			blocks:    64,
		},
		{
			name:      "Type4",
			tag:       NewVirtualType4(nil),
			uid:       "08112233",
			protocols: []nci.Protocol{nci.ProtocolISODEP},
			mode:      nci.ModePollA,
		},
		{
			name:      "Type5",
			tag:       NewVirtualType5(nil),
			uid:       "e004015011223344",
			protocols: []nci.Protocol{nci.ProtocolT5T},
			mode:      nci.ModePollV,
			blocks:    28,
		},
		{
			name:      "MultiProtocol",
			tag:       NewMultiProtocolCard(nil),
			uid:       "12345678",
			protocols: []nci.Protocol{nci.ProtocolISODEP, nci.ProtocolMifareClassic},
			mode:      nci.ModePollA,
			blocks:    64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.uid, tt.tag.UIDString())
			assert.Equal(t, tt.protocols, tt.tag.Protocols())
			assert.Equal(t, tt.mode, tt.tag.Mode())
			assert.Len(t, tt.tag.Memory, tt.blocks)
		})
	}
}

func TestVirtualTag_CustomUIDIsCopied(t *testing.T) {
	t.Parallel()

	uid := []byte{0x04, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	tag := NewVirtualNTAG213(uid)
	uid[0] = 0xFF

	assert.Equal(t, byte(0x04), tag.UID[0])
	block, err := tag.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x01, 0x02, 0x03}, block)
}

func TestVirtualTag_Type2(t *testing.T) {
	t.Parallel()

	t.Run("ReadReturnsFourPages", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualNTAG213(nil)
		resp, err := tag.Transceive(nci.ProtocolT2T, []byte{cmdRead, 0x00})
		require.NoError(t, err)
		require.Len(t, resp, 16)
		assert.Equal(t, NTAG213UID[:4], resp[:4])
		assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00}, resp[12:16])
	})

	t.Run("ReadWrapsAtEnd", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualNTAG213(nil)
		resp, err := tag.Transceive(nci.ProtocolT2T, []byte{cmdRead, 44})
		require.NoError(t, err)
		assert.Equal(t, NTAG213UID[:4], resp[4:8])
	})

	t.Run("WriteAck", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualNTAG213(nil)
		resp, err := tag.Transceive(nci.ProtocolT2T, []byte{cmdWrite, 5, 1, 2, 3, 4})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x0A}, resp)
		block, err := tag.ReadBlock(5)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, block)
	})

	t.Run("WriteProtectedNak", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualNTAG213(nil)
		resp, err := tag.Transceive(nci.ProtocolT2T, []byte{cmdWrite, 2, 1, 2, 3, 4})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00}, resp)
	})

	t.Run("Unsupported", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualNTAG213(nil)
		_, err := tag.Transceive(nci.ProtocolT2T, []byte{0x1B})
		assert.ErrorIs(t, err, errUnsupported)
	})
}

func TestVirtualTag_MIFARE(t *testing.T) {
	t.Parallel()

	key := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	t.Run("ReadRequiresAuth", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualMIFARE1K(nil)
		_, err := tag.Transceive(nci.ProtocolMifareClassic, []byte{cmdRead, 4})
		assert.ErrorIs(t, err, errNotAuthenticated)
	})

	t.Run("AuthThenRead", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualMIFARE1K(nil)
		_, err := tag.Transceive(nci.ProtocolMifareClassic, append([]byte{cmdAuthA, 4}, key...))
		require.NoError(t, err)
		resp, err := tag.Transceive(nci.ProtocolMifareClassic, []byte{cmdRead, 4})
		require.NoError(t, err)
		assert.Len(t, resp, 16)

		// Other sectors stay locked.
		_, err = tag.Transceive(nci.ProtocolMifareClassic, []byte{cmdRead, 8})
		assert.ErrorIs(t, err, errNotAuthenticated)
	})

	t.Run("WrongKey", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualMIFARE1K(nil)
		_, err := tag.Transceive(nci.ProtocolMifareClassic, []byte{cmdAuthB, 4, 1, 2, 3, 4, 5, 6})
		assert.ErrorIs(t, err, errNotAuthenticated)
	})

	t.Run("WriteTrailerRejected", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualMIFARE1K(nil)
		_, err := tag.Transceive(nci.ProtocolMifareClassic, append([]byte{cmdAuthA, 7}, key...))
		require.NoError(t, err)
		frame := append([]byte{cmdMfWrite, 7}, make([]byte, 16)...)
		_, err = tag.Transceive(nci.ProtocolMifareClassic, frame)
		assert.ErrorIs(t, err, errWriteProtected)
	})

	t.Run("WriteData", func(t *testing.T) {
		t.Parallel()
		tag := NewVirtualMIFARE1K(nil)
		_, err := tag.Transceive(nci.ProtocolMifareClassic, append([]byte{cmdAuthA, 5}, key...))
		require.NoError(t, err)
		data := []byte("0123456789abcdef")
		_, err = tag.Transceive(nci.ProtocolMifareClassic, append([]byte{cmdMfWrite, 5}, data...))
		require.NoError(t, err)
		block, err := tag.ReadBlock(5)
		require.NoError(t, err)
		assert.Equal(t, data, block)
	})
}

func TestVirtualTag_ISODEPSelect(t *testing.T) {
	t.Parallel()

	aid := []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	tag := NewVirtualType4(nil, aid)

	tests := []struct {
		name string
		apdu []byte
		want []byte
	}{
		{name: "KnownAID", apdu: append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(aid))}, aid...), want: swOK},
		{name: "UnknownAID", apdu: []byte{0x00, 0xA4, 0x04, 0x00, 0x02, 0xA0, 0x00}, want: swNotFound},
		{name: "Truncated", apdu: []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xD2}, want: swNotFound},
		{name: "OtherINS", apdu: []byte{0x00, 0xB0, 0x00, 0x00}, want: swBadINS},
		{name: "Short", apdu: []byte{0x00}, want: swBadINS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := tag.Transceive(nci.ProtocolISODEP, tt.apdu)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp)
		})
	}
}

func TestVirtualTag_Type5Read(t *testing.T) {
	t.Parallel()

	tag := NewVirtualType5(nil)
	require.NoError(t, tag.WriteBlock(3, []byte{9, 8, 7, 6}))

	resp, err := tag.Transceive(nci.ProtocolT5T, []byte{0x02, cmdT5TRead, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 9, 8, 7, 6}, resp)

	resp, err = tag.Transceive(nci.ProtocolT5T, []byte{0x02, cmdT5TRead, 200})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x10}, resp)
}

func TestVirtualTag_WrongProtocol(t *testing.T) {
	t.Parallel()

	_, err := NewVirtualNTAG213(nil).Transceive(nci.ProtocolNFCDEP, []byte{0x00})
	assert.ErrorIs(t, err, errUnsupported)
}

func TestVirtualPeer_Echo(t *testing.T) {
	t.Parallel()

	peer := NewVirtualPeer()
	resp, err := peer.Transceive(nci.ProtocolNFCDEP, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, resp)
	assert.Equal(t, [][]byte{{1, 2, 3}}, peer.Received())
	assert.Equal(t, nci.ModePollF, peer.Mode())
}
