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

package pn5xx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resetCmd = []byte{0x20, 0x00, 0x01, 0x01}

// fakeNode answers writes from a script keyed by the exact bytes written.
type fakeNode struct {
	replies map[string][]byte
	rx      bytes.Buffer
	powers  []PowerMode
	written [][]byte
	mu      sync.Mutex
	closed  bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{replies: map[string][]byte{
		string(resetCmd): {0x40, 0x00, 0x01, 0x00},
	}}
}

func (n *fakeNode) Read(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rx.Len() == 0 {
		return 0, nil
	}
	return n.rx.Read(p)
}

func (n *fakeNode) Write(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.written = append(n.written, append([]byte(nil), p...))
	if rsp, ok := n.replies[string(p)]; ok && n.powered() {
		n.rx.Write(rsp)
	}
	return len(p), nil
}

func (n *fakeNode) powered() bool {
	return len(n.powers) > 0 && n.powers[len(n.powers)-1] != PowerOff
}

func (n *fakeNode) SetPower(mode PowerMode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.powers = append(n.powers, mode)
	return nil
}

func (n *fakeNode) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *fakeNode) snapshot() ([]PowerMode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]PowerMode(nil), n.powers...), n.closed
}

func testConfig() Config {
	return Config{Device: "/dev/pn544-test"}
}

func newTestHAL(cfg Config, node *fakeNode) *HAL {
	return New(cfg, WithOpenFunc(func(string, time.Duration) (Node, error) {
		return node, nil
	}))
}

func TestHAL_InitializeFinalize(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	h := newTestHAL(testConfig(), node)

	require.NoError(t, h.Initialize(context.Background()))
	assert.Same(t, node, h.Conn())
	require.NoError(t, h.Initialize(context.Background()))

	require.NoError(t, h.Finalize())
	powers, closed := node.snapshot()
	assert.Equal(t, []PowerMode{PowerOff, PowerOn, PowerOff}, powers)
	assert.True(t, closed)
	assert.Nil(t, h.Conn())
	require.NoError(t, h.Finalize())
}

func TestHAL_InitializeFailures(t *testing.T) {
	t.Parallel()

	t.Run("MissingNode", func(t *testing.T) {
		t.Parallel()
		h := New(testConfig(), WithOpenFunc(func(string, time.Duration) (Node, error) {
			return nil, &os.PathError{Op: "open", Path: "/dev/pn544-test", Err: os.ErrNotExist}
		}))
		err := h.Initialize(context.Background())
		require.ErrorIs(t, err, os.ErrNotExist)
		assert.True(t, nci.IsFatal(err))
	})

	t.Run("Busy", func(t *testing.T) {
		t.Parallel()
		h := New(testConfig(), WithOpenFunc(func(string, time.Duration) (Node, error) {
			return nil, errors.New("device busy")
		}))
		assert.True(t, nci.IsRetryable(h.Initialize(context.Background())))
	})

	t.Run("Silent", func(t *testing.T) {
		t.Parallel()
		node := newFakeNode()
		node.replies = map[string][]byte{}
		h := newTestHAL(testConfig(), node)

		err := h.Initialize(context.Background())
		require.ErrorIs(t, err, hal.ErrReadTimeout)
		powers, closed := node.snapshot()
		assert.Equal(t, PowerOff, powers[len(powers)-1])
		assert.True(t, closed)
	})

	t.Run("Cancelled", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.PowerOff = time.Hour
		h := newTestHAL(cfg, newFakeNode())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, h.Initialize(ctx), context.Canceled)
	})
}

func writeImage(t *testing.T, frames ...[]byte) string {
	t.Helper()
	var image []byte
	for _, f := range frames {
		image = append(image, byte(len(f)>>8), byte(len(f)))
		image = append(image, f...)
	}
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, image, 0o600))
	return path
}

func TestHAL_DownloadFirmware(t *testing.T) {
	t.Parallel()

	t.Run("NotConfigured", func(t *testing.T) {
		t.Parallel()
		written, err := newTestHAL(testConfig(), newFakeNode()).DownloadFirmware(context.Background())
		require.ErrorIs(t, err, nci.ErrFirmwareUnsupported)
		assert.False(t, written)
	})

	t.Run("MissingImage", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Firmware = filepath.Join(t.TempDir(), "absent.bin")
		written, err := newTestHAL(cfg, newFakeNode()).DownloadFirmware(context.Background())
		require.NoError(t, err)
		assert.False(t, written)
	})

	t.Run("Written", func(t *testing.T) {
		t.Parallel()
		first := []byte{0xA0, 0x01}
		second := []byte{0xA0, 0x02, 0x03}
		cfg := testConfig()
		cfg.Firmware = writeImage(t, first, second)

		node := newFakeNode()
		node.replies[string(append([]byte{0x00, 0x02}, first...))] = []byte{0x00, 0x01, 0x00}
		node.replies[string(append([]byte{0x00, 0x03}, second...))] = []byte{0x00, 0x01, 0x00}
		h := newTestHAL(cfg, node)

		written, err := h.DownloadFirmware(context.Background())
		require.NoError(t, err)
		assert.True(t, written)
		powers, closed := node.snapshot()
		assert.Equal(t, []PowerMode{PowerOff, PowerDownload, PowerOff}, powers)
		assert.True(t, closed, "node opened for the download is closed again")
	})

	t.Run("Rejected", func(t *testing.T) {
		t.Parallel()
		f := []byte{0xA0, 0x01}
		cfg := testConfig()
		cfg.Firmware = writeImage(t, f)

		node := newFakeNode()
		node.replies[string(append([]byte{0x00, 0x02}, f...))] = []byte{0x00, 0x01, 0x0B}
		written, err := newTestHAL(cfg, node).DownloadFirmware(context.Background())
		require.ErrorIs(t, err, ErrDownloadRejected)
		assert.False(t, written)
	})

	t.Run("Truncated", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "fw.bin")
		require.NoError(t, os.WriteFile(path, []byte{0x00, 0x05, 0x01}, 0o600))
		cfg := testConfig()
		cfg.Firmware = path
		_, err := newTestHAL(cfg, newFakeNode()).DownloadFirmware(context.Background())
		require.ErrorIs(t, err, ErrBadImage)
	})
}

func TestPowerMode_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "off", PowerOff.String())
	assert.Equal(t, "on", PowerOn.String())
	assert.Equal(t, "download", PowerDownload.String())
	assert.Equal(t, "mode(7)", PowerMode(7).String())
}
