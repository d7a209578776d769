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

package uart

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func portList(ports ...*enumerator.PortDetails) listFunc {
	return func() ([]*enumerator.PortDetails, error) { return ports, nil }
}

func TestDetect(t *testing.T) {
	t.Parallel()

	builtin := &enumerator.PortDetails{Name: "/dev/ttyS0"}
	unknown := &enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"}
	ftdi := &enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A50285BI"}
	ch340 := &enumerator.PortDetails{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1a86", PID: "7523"}

	tests := []struct {
		name    string
		ports   []*enumerator.PortDetails
		opts    DetectOptions
		want    []string
		wantErr error
	}{
		{
			name:  "BridgesFirst",
			ports: []*enumerator.PortDetails{builtin, unknown, ftdi, ch340},
			want:  []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyS0", "/dev/ttyACM0"},
		},
		{
			name:  "USBOnly",
			ports: []*enumerator.PortDetails{builtin, unknown},
			opts:  DetectOptions{USBOnly: true},
			want:  []string{"/dev/ttyACM0"},
		},
		{
			name:  "Blocklist",
			ports: []*enumerator.PortDetails{ftdi, ch340},
			opts:  DetectOptions{Blocklist: []string{" 0403:6001 "}},
			want:  []string{"/dev/ttyUSB1"},
		},
		{
			name:  "IgnorePaths",
			ports: []*enumerator.PortDetails{builtin, ftdi, ch340},
			opts:  DetectOptions{IgnorePaths: []string{"/dev/ttyS*", "/dev/ttyUSB1"}},
			want:  []string{"/dev/ttyUSB0"},
		},
		{
			name:    "NothingLeft",
			ports:   []*enumerator.PortDetails{builtin},
			opts:    DetectOptions{USBOnly: true},
			wantErr: ErrNoPorts,
		},
		{
			name:    "Empty",
			wantErr: ErrNoPorts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := detect(portList(tt.ports...), tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			paths := make([]string, 0, len(got))
			for _, c := range got {
				paths = append(paths, c.Path)
			}
			assert.Equal(t, tt.want, paths)
		})
	}
}

func TestDetect_Candidate(t *testing.T) {
	t.Parallel()

	got, err := detect(portList(&enumerator.PortDetails{
		Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A50285BI",
	}), DetectOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{
		Path:   "/dev/ttyUSB0",
		VIDPID: "0403:6001",
		Serial: "A50285BI",
		Bridge: "FTDI",
	}}, got)
}

func TestDetect_EnumerationFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("no sysfs")
	_, err := detect(func() ([]*enumerator.PortDetails, error) { return nil, boom }, DetectOptions{})
	require.ErrorIs(t, err, boom)
}
