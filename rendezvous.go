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

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

type waitKind int

const (
	waitEnable waitKind = iota
	waitDisable
	waitDiscovery
	waitPolling
	waitSetConfig
	waitGetConfig
	waitPowerSubState
	waitDeactivated
	waitKindCount
)

var waitKindNames = [waitKindCount]string{
	"enable",
	"disable",
	"discovery",
	"polling",
	"set-config",
	"get-config",
	"power-substate",
	"deactivated",
}

func (k waitKind) String() string {
	if k >= 0 && k < waitKindCount {
		return waitKindNames[k]
	}
	return fmt.Sprintf("wait %d", int(k))
}

// rendezvous is the fixed registry of sync events, one per confirmation type.
type rendezvous struct {
	events [waitKindCount]*syncutil.Event
}

func newRendezvous() *rendezvous {
	r := &rendezvous{}
	for k := range waitKindCount {
		r.events[k] = syncutil.NewEvent(k.String())
	}
	return r
}

func (r *rendezvous) get(k waitKind) *syncutil.Event {
	return r.events[k]
}

// notify wakes the waiter of k. A non-OK status is passed to the waiter as a
// failed confirmation.
func (r *rendezvous) notify(k waitKind, status Status) bool {
	var result error
	if status != StatusOK {
		result = &CommandError{Op: k.String() + " confirmation", Status: status}
	}
	return r.events[k].Notify(result)
}

// abortAll wakes every blocked waiter with an abort and returns how many
// were woken.
func (r *rendezvous) abortAll() int {
	woken := 0
	for _, ev := range r.events {
		if ev.Abort() {
			woken++
		}
	}
	return woken
}

// waitError maps rendezvous failures onto the package errors.
func waitError(err error) error {
	switch {
	case errors.Is(err, syncutil.ErrWaitTimeout):
		return ErrWaitTimeout
	case errors.Is(err, syncutil.ErrWaitAborted):
		return ErrAborted
	default:
		return err
	}
}
