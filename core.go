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

	"github.com/rs/zerolog"
)

// core is the state every component shares: the stack, the session, the
// rendezvous registry, the cache and the collaborators.
type core struct {
	stack   Stack
	tag     TagHandler
	p2p     PeerToPeer
	router  Router
	host    HostListener
	session *ControllerSession
	events  *rendezvous
	cache   *stateCache
	cfg     *Config
	log     zerolog.Logger
}

// issueAndWait runs cmd with the event of kind locked and waits for its
// confirmation. A refused command returns at once. Nothing is issued while
// a recovery is in progress.
func (c *core) issueAndWait(kind waitKind, op string, cmd func() Status) error {
	return c.issue(kind, op, cmd, true)
}

// issueAndWaitAlways is issueAndWait without the recovery check, for
// teardown commands that must be attempted regardless.
func (c *core) issueAndWaitAlways(kind waitKind, op string, cmd func() Status) error {
	return c.issue(kind, op, cmd, false)
}

// issue checks for a recovery under the event lock. The recovery flag is
// set before events are aborted, so a caller either sees the flag or is
// already waiting when the abort arrives.
func (c *core) issue(kind waitKind, op string, cmd func() Status, guard bool) error {
	ev := c.events.get(kind)
	ev.Lock()
	defer ev.Unlock()

	if guard && c.session.Recovering() {
		return fmt.Errorf("%s: %w", op, ErrRecovering)
	}
	if st := cmd(); st != StatusOK {
		return &CommandError{Op: op, Status: st}
	}
	if err := ev.Wait(c.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("%s: %w", op, waitError(err))
	}
	return nil
}

// setConfigUnawaited pushes a parameter without waiting for the
// confirmation. Only the event goroutine may call it.
func (c *core) setConfigUnawaited(param ParamID, value []byte) {
	if st := c.stack.SetConfig(param, value); st != StatusOK {
		c.log.Warn().Stringer("status", st).Uint8("param", uint8(param)).Msg("set config refused")
		return
	}
	c.events.get(waitSetConfig).SkipNext()
}

func (c *core) nciVersion() NCIVersion {
	return c.session.Snapshot().NCIVersion
}
