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

package hal

import (
	"bytes"
	"context"
	"testing"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers the first write with reply and reads from it afterwards.
type scripted struct {
	reply   []byte
	written bytes.Buffer
	pending bytes.Buffer
	empty   int
}

func (s *scripted) Write(p []byte) (int, error) {
	s.written.Write(p)
	s.pending.Write(s.reply)
	s.reply = nil
	return len(p), nil
}

func (s *scripted) Read(p []byte) (int, error) {
	if s.pending.Len() == 0 {
		s.empty++
		return 0, nil
	}
	return s.pending.Read(p)
}

func TestReset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reply     []byte
		errType   nci.ErrorType
		wantErr   bool
		retryable bool
	}{
		{
			name:  "NCI1",
			reply: []byte{0x40, 0x00, 0x03, 0x00, 0x10, 0x01},
		},
		{
			name:  "NCI2WithNotification",
			reply: []byte{0x40, 0x00, 0x01, 0x00, 0x60, 0x00, 0x02, 0x02, 0x20},
		},
		{
			name:      "Rejected",
			reply:     []byte{0x40, 0x00, 0x01, 0x03},
			wantErr:   true,
			errType:   nci.ErrorTypeTransient,
			retryable: true,
		},
		{
			name:      "Silent",
			wantErr:   true,
			errType:   nci.ErrorTypeTimeout,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			port := &scripted{reply: tt.reply}
			err := Reset(&TimeoutReader{ReadWriter: port, MaxEmpty: 3}, "/dev/test")
			assert.Equal(t, []byte{0x20, 0x00, 0x01, 0x01}, port.written.Bytes())
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var he *nci.HALError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, "core reset", he.Op)
			assert.Equal(t, "/dev/test", he.Device)
			assert.Equal(t, tt.errType, he.Type)
			assert.Equal(t, tt.retryable, nci.IsRetryable(err))
		})
	}
}

func TestReset_RejectedWrapsSentinel(t *testing.T) {
	t.Parallel()

	port := &scripted{reply: []byte{0x40, 0x00, 0x01, 0x06}}
	err := Reset(&TimeoutReader{ReadWriter: port, MaxEmpty: 1}, "bus")
	require.ErrorIs(t, err, ErrResetRejected)
	assert.Contains(t, err.Error(), "0x06")
}

func TestTimeoutReader(t *testing.T) {
	t.Parallel()

	port := &scripted{}
	r := &TimeoutReader{ReadWriter: port, MaxEmpty: 4}
	n, err := r.Read(make([]byte, 3))
	require.ErrorIs(t, err, ErrReadTimeout)
	assert.Zero(t, n)
	assert.Equal(t, 5, port.empty)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
