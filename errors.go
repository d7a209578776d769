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
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

var (
	// Controller command errors
	ErrCommandRejected  = errors.New("command rejected by controller")
	ErrWaitTimeout      = fmt.Errorf("confirmation: %w", syncutil.ErrWaitTimeout)
	ErrAborted          = fmt.Errorf("confirmation: %w", syncutil.ErrWaitAborted)
	ErrRecovering       = errors.New("controller recovery in progress")
	ErrNotEnabled       = errors.New("controller not enabled")
	ErrAlreadyEnabled   = errors.New("controller already enabled")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidTimeout   = errors.New("timeout must be positive")

	// Transport and bring-up errors
	ErrTransportFatal      = errors.New("transport failure")
	ErrHALInit             = errors.New("hardware initialization failed")
	ErrHALClosed           = errors.New("hardware interface is closed")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrFirmwareUnsupported = errors.New("firmware download not supported")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// CommandError is returned when the stack refuses a command outright. No
// confirmation follows a refused command.
type CommandError struct {
	Op     string
	Status Status
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

func (e *CommandError) Unwrap() error {
	return ErrCommandRejected
}

// FatalKind is the kind of transport failure reported by the stack.
type FatalKind int

const (
	FatalTransportTimeout FatalKind = iota
	FatalTransportError
)

func (k FatalKind) String() string {
	if k == FatalTransportTimeout {
		return "transport timeout"
	}
	return "transport error"
}

// FatalError reports an unrecoverable transport failure. It is delivered on
// Manager.Fatal instead of terminating the process in place.
type FatalError struct {
	Kind FatalKind
	// Recovering is set when a recovery policy is configured and the
	// session was kept for a reinitialize.
	Recovering bool
}

func (e *FatalError) Error() string {
	if e.Recovering {
		return fmt.Sprintf("%s (recovering)", e.Kind)
	}
	return e.Kind.String()
}

func (e *FatalError) Unwrap() error {
	return ErrTransportFatal
}

// HALError wraps hardware bring-up errors with additional context
type HALError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Device    string    // Device path or bus identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *HALError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HALError) Unwrap() error {
	return e.Err
}

// NewHALError creates a HAL error with consistent formatting
func NewHALError(op, device string, err error, errType ErrorType) *HALError {
	return &HALError{
		Op:        op,
		Device:    device,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var he *HALError
	if errors.As(err, &he) {
		return he.Retryable
	}

	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Status == StatusBusy || ce.Status == StatusTimeout
	}

	return errors.Is(err, ErrWaitTimeout)
}

// IsFatal returns true if the error indicates the controller or its
// transport is gone and the session cannot continue.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var he *HALError
	if errors.As(err, &he) {
		return he.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportFatal),
		errors.Is(err, ErrHALClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// isDeviceGoneError checks for OS-level errors indicating device disconnection.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}
	return runtime.GOOS == "windows" && (errno == 31 || errno == 433)
}

// ErrorCode is the last-error code reported to the host layer.
type ErrorCode int

// Error codes, numbered the way host NFC services expect them.
const (
	ErrorSuccess        ErrorCode = 0
	ErrorIO             ErrorCode = -1
	ErrorCancelled      ErrorCode = -2
	ErrorTimeout        ErrorCode = -3
	ErrorBusy           ErrorCode = -4
	ErrorInvalidParam   ErrorCode = -8
	ErrorBufferTooSmall ErrorCode = -12
	ErrorNfcOn          ErrorCode = -16
	ErrorNotInitialized ErrorCode = -17
	ErrorNotSupported   ErrorCode = -21
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorSuccess:
		return "success"
	case ErrorIO:
		return "io"
	case ErrorCancelled:
		return "cancelled"
	case ErrorTimeout:
		return "timeout"
	case ErrorBusy:
		return "busy"
	case ErrorInvalidParam:
		return "invalid parameter"
	case ErrorBufferTooSmall:
		return "buffer too small"
	case ErrorNfcOn:
		return "nfc on"
	case ErrorNotInitialized:
		return "not initialized"
	case ErrorNotSupported:
		return "not supported"
	default:
		return fmt.Sprintf("error %d", int(c))
	}
}

// errorCodeFor maps a caller-visible failure to its last-error code.
func errorCodeFor(err error) ErrorCode {
	var ce *CommandError
	switch {
	case err == nil:
		return ErrorSuccess
	case errors.Is(err, ErrAborted), errors.Is(err, ErrRecovering):
		return ErrorCancelled
	case errors.Is(err, ErrWaitTimeout):
		return ErrorTimeout
	case errors.Is(err, ErrNotEnabled):
		return ErrorNotInitialized
	case errors.Is(err, ErrAlreadyEnabled):
		return ErrorNfcOn
	case errors.Is(err, ErrInvalidParameter), errors.Is(err, ErrInvalidTimeout):
		return ErrorInvalidParam
	case errors.Is(err, ErrFirmwareUnsupported):
		return ErrorNotSupported
	case errors.As(err, &ce) && ce.Status == StatusBusy:
		return ErrorBusy
	default:
		return ErrorIO
	}
}
