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

import "context"

// Stack is the command surface of the vendor NCI stack. Every command
// returns an immediate Status. When the status is StatusOK the matching
// confirmation is delivered later, in order, to the EventSink registered by
// Enable. A non-OK status means no confirmation will follow. Confirmations
// must not be delivered from inside the command call itself.
type Stack interface {
	Enable(sink EventSink) Status
	Disable(graceful bool) Status
	// Close releases vendor extensions before Disable.
	Close()
	NCIVersion() NCIVersion

	StartRFDiscovery() Status
	StopRFDiscovery() Status
	EnablePolling(mask TechMask) Status
	DisablePolling() Status
	EnableListening() Status
	DisableListening() Status
	PauseP2P() Status
	ResumeP2P() Status
	SetRFDiscoveryDuration(ms uint16) Status

	SetConfig(param ParamID, value []byte) Status
	GetConfig(params ...ParamID) Status
	SetPowerSubState(state ScreenState) Status

	Select(discoveryID uint8, protocol Protocol, iface InterfaceType) Status
	Deactivate(sleep bool) Status
	SendRawFrame(data []byte) Status
}

// HAL brings the controller hardware up and down. It owns power sequencing
// and firmware download; the NCI session runs on top of it.
type HAL interface {
	Initialize(ctx context.Context) error
	Finalize() error
	// DownloadFirmware updates the controller firmware. It reports whether
	// an image was written.
	DownloadFirmware(ctx context.Context) (bool, error)
}

type nopHAL struct{}

func (nopHAL) Initialize(context.Context) error { return nil }
func (nopHAL) Finalize() error                  { return nil }
func (nopHAL) DownloadFirmware(context.Context) (bool, error) {
	return false, ErrFirmwareUnsupported
}
