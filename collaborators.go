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

// TagHandler drives the tag read/write sub-protocol for activated tags.
// Methods are called on the event goroutine and must not block on a
// Manager command.
type TagHandler interface {
	Initialize()
	OnActivated(rec ActivationRecord)
	OnDeactivated(t DeactivationType)
	OnData(status Status, data []byte)
	OnReadComplete(status Status)
	OnWriteComplete(status Status)
	OnFormatComplete(status Status)
	OnPresenceCheck(status Status)
	OnNdefDetected(status Status, info NdefInfo)
	OnReadOnlyComplete(status Status)
	OnRFInterfaceError()

	// SelectingInterface reports whether an explicit connect is waiting for
	// the next activation. ConnectStatus resolves it.
	SelectingInterface() bool
	ConnectStatus(ok bool)
	// Deactivating reports whether an explicit sleep deactivation is in
	// flight. DeactivateStatus resolves it.
	Deactivating() bool
	DeactivateStatus(ok bool)

	// Disconnect drops the connected tag, if any.
	Disconnect()
	// AbortWaits releases every pending tag operation with a failure.
	AbortWaits()
}

// PeerToPeer manages the LLCP link layer.
type PeerToPeer interface {
	Initialize()
	HandleNfcOnOff(on bool)
	EnableListening(enable bool)
	SetListenMask(mask TechMask)
	OnLinkActivated(link LinkInfo)
	OnLinkDeactivated()
	OnFirstPacket()
	OnListenTechSet()
	AbortWaits()
}

// Router builds the AID and T3T identifier routing table.
type Router interface {
	Initialize() bool
	EnableRoutingToHost()
	DisableRoutingToHost()
	AddAid(aid []byte, route, aidInfo, power int) bool
	RemoveAid(aid []byte) bool
	// RegisterT3tIdentifier returns a handle, or -1 on failure.
	RegisterT3tIdentifier(id []byte) int
	DeregisterT3tIdentifier(handle int)
	Commit() bool
	OnShutdown()
}

// HostListener receives notifications for the host layer.
type HostListener interface {
	OnRemoteFieldActivated()
	OnRemoteFieldDeactivated()
	OnHWErrorReported()
	OnTagActivated(rec ActivationRecord)
	OnTagDeactivated()
	OnHostCardEmulationActivated(tech TechMask)
	OnHostCardEmulationData(tech TechMask, data []byte)
	OnHostCardEmulationDeactivated(tech TechMask)
	OnTransaction(aid, data []byte, origin string)
}

// NopTagHandler ignores every notification.
type NopTagHandler struct{}

func (NopTagHandler) Initialize()                     {}
func (NopTagHandler) OnActivated(ActivationRecord)    {}
func (NopTagHandler) OnDeactivated(DeactivationType)  {}
func (NopTagHandler) OnData(Status, []byte)           {}
func (NopTagHandler) OnReadComplete(Status)           {}
func (NopTagHandler) OnWriteComplete(Status)          {}
func (NopTagHandler) OnFormatComplete(Status)         {}
func (NopTagHandler) OnPresenceCheck(Status)          {}
func (NopTagHandler) OnNdefDetected(Status, NdefInfo) {}
func (NopTagHandler) OnReadOnlyComplete(Status)       {}
func (NopTagHandler) OnRFInterfaceError()             {}
func (NopTagHandler) SelectingInterface() bool        { return false }
func (NopTagHandler) ConnectStatus(bool)              {}
func (NopTagHandler) Deactivating() bool              { return false }
func (NopTagHandler) DeactivateStatus(bool)           {}
func (NopTagHandler) Disconnect()                     {}
func (NopTagHandler) AbortWaits()                     {}

// NopPeerToPeer ignores every notification.
type NopPeerToPeer struct{}

func (NopPeerToPeer) Initialize()              {}
func (NopPeerToPeer) HandleNfcOnOff(bool)      {}
func (NopPeerToPeer) EnableListening(bool)     {}
func (NopPeerToPeer) SetListenMask(TechMask)   {}
func (NopPeerToPeer) OnLinkActivated(LinkInfo) {}
func (NopPeerToPeer) OnLinkDeactivated()       {}
func (NopPeerToPeer) OnFirstPacket()           {}
func (NopPeerToPeer) OnListenTechSet()         {}
func (NopPeerToPeer) AbortWaits()              {}

// NopHostListener ignores every notification.
type NopHostListener struct{}

func (NopHostListener) OnRemoteFieldActivated()                  {}
func (NopHostListener) OnRemoteFieldDeactivated()                {}
func (NopHostListener) OnHWErrorReported()                       {}
func (NopHostListener) OnTagActivated(ActivationRecord)          {}
func (NopHostListener) OnTagDeactivated()                        {}
func (NopHostListener) OnHostCardEmulationActivated(TechMask)    {}
func (NopHostListener) OnHostCardEmulationData(TechMask, []byte) {}
func (NopHostListener) OnHostCardEmulationDeactivated(TechMask)  {}
func (NopHostListener) OnTransaction(_, _ []byte, _ string)      {}

// NopRouter accepts every routing command and keeps nothing.
type NopRouter struct{}

func (NopRouter) Initialize() bool                  { return true }
func (NopRouter) EnableRoutingToHost()              {}
func (NopRouter) DisableRoutingToHost()             {}
func (NopRouter) AddAid(_ []byte, _, _, _ int) bool { return true }
func (NopRouter) RemoveAid([]byte) bool             { return true }
func (NopRouter) RegisterT3tIdentifier([]byte) int  { return -1 }
func (NopRouter) DeregisterT3tIdentifier(int)       {}
func (NopRouter) Commit() bool                      { return true }
func (NopRouter) OnShutdown()                       {}
