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
	"fmt"
	"io"
	"os"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
)

var (
	logMu        syncutil.RWMutex
	logOutput    io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	debugEnabled bool
)

// consoleLevel is the lowest level written to the console outside debug mode.
var consoleLevel = zerolog.InfoLevel

func init() {
	// Enable debug logging if DEBUG environment variable is set
	if os.Getenv("NCI_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// logSink routes every record at write time: the console receives records
// at or above the console level, an open session log receives all of them.
// Loggers built before a session log is opened still reach it.
type logSink struct{}

func (s logSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

func (logSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	logMu.RLock()
	defer logMu.RUnlock()

	if sessionLogWriter != nil {
		_, _ = sessionLogWriter.Write(p)
	}
	minLevel := consoleLevel
	if debugEnabled && minLevel > zerolog.DebugLevel {
		minLevel = zerolog.DebugLevel
	}
	if level < minLevel {
		return len(p), nil
	}
	return logOutput.Write(p)
}

// Logger returns the package logger. The console receives debug records
// only when debug mode is enabled; an open session log receives all of them.
func Logger() zerolog.Logger {
	return zerolog.New(logSink{}).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// SetLogOutput replaces the console destination of the package logger.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	logOutput = w
	logMu.Unlock()
}

// SetConsoleLevel sets the lowest level written to the console. Debug mode
// lowers it to debug.
func SetConsoleLevel(level zerolog.Level) {
	logMu.Lock()
	consoleLevel = level
	logMu.Unlock()
}

// Debugf logs a formatted debug message through the package logger.
func Debugf(format string, args ...any) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// Debugln logs its operands, formatted like fmt.Sprint, at debug level.
func Debugln(args ...any) {
	l := Logger()
	l.Debug().Msg(fmt.Sprint(args...))
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	debugEnabled = enabled
	logMu.Unlock()
}

// DebugEnabled reports whether debug records reach the console.
func DebugEnabled() bool {
	logMu.RLock()
	defer logMu.RUnlock()
	return debugEnabled
}
