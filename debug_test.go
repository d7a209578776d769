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
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swapLogState replaces the logging globals for one test and restores them
// on cleanup. Tests using it must not run in parallel.
func swapLogState(t *testing.T, console io.Writer, session io.Writer, debug bool) {
	t.Helper()
	logMu.Lock()
	origOut, origSession, origDebug, origLevel := logOutput, sessionLogWriter, debugEnabled, consoleLevel
	logOutput, sessionLogWriter, debugEnabled, consoleLevel = console, session, debug, zerolog.InfoLevel
	logMu.Unlock()
	t.Cleanup(func() {
		logMu.Lock()
		logOutput, sessionLogWriter, debugEnabled, consoleLevel = origOut, origSession, origDebug, origLevel
		logMu.Unlock()
	})
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	var console, session bytes.Buffer
	swapLogState(t, &console, &session, false)

	Debugf("test message %d", 42)

	assert.Contains(t, session.String(), "test message 42")
	assert.Empty(t, console.String(), "console must not receive debug records when debug is off")
}

func TestDebugf_ConsoleWhenEnabled(t *testing.T) {
	var console bytes.Buffer
	swapLogState(t, &console, nil, true)

	Debugf("visible %s", "record")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(console.Bytes(), &rec))
	assert.Equal(t, "debug", rec["level"])
	assert.Equal(t, "visible record", rec["message"])
	assert.Contains(t, rec, "time")
}

func TestDebugln(t *testing.T) {
	var console bytes.Buffer
	swapLogState(t, &console, nil, true)

	Debugln("a", 1)
	assert.Contains(t, console.String(), "a1")
}

func TestLogger_InfoAlwaysReachesConsole(t *testing.T) {
	var console bytes.Buffer
	swapLogState(t, &console, nil, false)

	l := Logger()
	l.Info().Msg("controller enabled")
	l.Debug().Msg("hidden")

	assert.Contains(t, console.String(), "controller enabled")
	assert.NotContains(t, console.String(), "hidden")
}

func TestSetDebugEnabled(t *testing.T) {
	swapLogState(t, io.Discard, nil, false)

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
}

func TestSetLogOutput(t *testing.T) {
	swapLogState(t, os.Stderr, nil, false)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	l := Logger()
	l.Warn().Msg("redirected")
	assert.Contains(t, buf.String(), "redirected")
}

func TestSetConsoleLevel(t *testing.T) {
	var console bytes.Buffer
	swapLogState(t, &console, nil, false)

	l := Logger()
	SetConsoleLevel(zerolog.WarnLevel)
	l.Info().Msg("quiet")
	l.Warn().Msg("loud")
	assert.NotContains(t, console.String(), "quiet")
	assert.Contains(t, console.String(), "loud")

	SetDebugEnabled(true)
	l.Debug().Msg("traced")
	assert.Contains(t, console.String(), "traced", "debug mode lowers the console level")
}

func TestLogger_BuiltBeforeDebugEnabled(t *testing.T) {
	var console bytes.Buffer
	swapLogState(t, &console, nil, false)

	l := Logger().With().Str("component", "manager").Logger()
	SetDebugEnabled(true)
	l.Debug().Msg("late debug")
	assert.Contains(t, console.String(), "late debug")
}
