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

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanupSessionLog ensures session log state is clean after tests.
func cleanupSessionLog(t *testing.T) {
	t.Helper()
	_ = CloseSessionLog()
}

func TestInitSessionLogIn_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { cleanupSessionLog(t) })

	path, err := InitSessionLogIn(dir)
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())

	_, err = os.Stat(path)
	require.NoError(t, err, "Log file should exist")

	matched, err := regexp.MatchString(`^nci_\d{8}_\d{6}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected file name %s", path)
}

func TestSessionLog_HeaderRecordsAndFooter(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { cleanupSessionLog(t) })
	swapLogState(t, os.Stderr, nil, false)

	path, err := InitSessionLogIn(dir)
	require.NoError(t, err)

	Debugf("select candidate %d", 3)
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLogIn
	require.NoError(t, err)
	s := string(content)

	assert.Contains(t, s, "=== NCI Debug Session Log ===")
	assert.Contains(t, s, "PID:")
	assert.Contains(t, s, "select candidate 3")
	assert.Contains(t, s, "=== Session ended ===")
}

func TestCloseSessionLog_NotOpen(t *testing.T) {
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLogIn_BadDirectory(t *testing.T) {
	_, err := InitSessionLogIn(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
}

func TestSessionLog_ReceivesEarlierLoggers(t *testing.T) {
	var console bytes.Buffer
	t.Cleanup(func() { cleanupSessionLog(t) })
	swapLogState(t, &console, nil, false)

	manager := Logger().With().Str("component", "manager").Logger()

	path, err := InitSessionLogIn(t.TempDir())
	require.NoError(t, err)
	manager.Debug().Msg("start discovery confirmed")
	manager.Info().Msg("controller enabled")
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLogIn
	require.NoError(t, err)
	assert.Contains(t, string(content), "start discovery confirmed")
	assert.Contains(t, string(content), `"component":"manager"`)
	assert.Contains(t, string(content), "controller enabled")
	assert.NotContains(t, console.String(), "start discovery confirmed")
	assert.Contains(t, console.String(), "controller enabled")
}
