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

// Package hostbus bridges host notifications onto NATS. A Bridge is an
// nci.HostListener that publishes every notification as JSON under a
// subject prefix, and it accepts screen-state requests from the bus.
//
// Subjects, relative to the prefix:
//
//	field              remote field on/off
//	hw_error           controller hardware error
//	tag.discovered     tag activated
//	tag.lost           tag deactivated
//	hce.activated      host card emulation started
//	hce.data           APDU from the remote reader
//	hce.deactivated    host card emulation ended
//	transaction        secure element transaction
//	screen             (subscribed) screen state requests
package hostbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "nfc"

// ErrBadScreenRequest is returned for screen requests that cannot be parsed.
var ErrBadScreenRequest = errors.New("bad screen request")

// Conn is the part of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// ScreenSetter applies screen state requests. *nci.Manager implements it.
type ScreenSetter interface {
	SetScreenState(mask uint8) error
}

// Notification is the JSON body of every published message.
type Notification struct {
	Time    time.Time             `json:"time"`
	Tag     *nci.ActivationRecord `json:"tag,omitempty"`
	Type    string                `json:"type"`
	Tech    string                `json:"tech,omitempty"`
	Origin  string                `json:"origin,omitempty"`
	Data    []byte                `json:"data,omitempty"`
	AID     []byte                `json:"aid,omitempty"`
	Seq     uint64                `json:"seq"`
	FieldOn bool                  `json:"field_on,omitempty"`
}

// ScreenRequest is the body of a screen state request. State takes the
// names used by nci.ScreenState; Mask, when non-zero, is used as is.
type ScreenRequest struct {
	State    string `json:"state"`
	Mask     uint8  `json:"mask"`
	PollTags bool   `json:"poll_tags"`
}

// ScreenReply answers a screen request that carried a reply subject.
type ScreenReply struct {
	Error string `json:"error,omitempty"`
	OK    bool   `json:"ok"`
}

// Bridge publishes host notifications to NATS.
type Bridge struct {
	log    zerolog.Logger
	conn   Conn
	sub    *nats.Subscription
	now    func() time.Time
	prefix string
	seq    atomic.Uint64
	failed atomic.Uint64
}

var _ nci.HostListener = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(b *Bridge) { b.prefix = strings.TrimSuffix(prefix, ".") }
}

// WithLogger sets the bridge logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// New creates a bridge publishing on conn.
func New(conn Conn, opts ...Option) *Bridge {
	b := &Bridge{
		conn:   conn,
		prefix: DefaultPrefix,
		now:    time.Now,
		log:    nci.Logger().With().Str("component", "hostbus").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subject returns the full subject for name.
func (b *Bridge) Subject(name string) string {
	return b.prefix + "." + name
}

// Failed is the number of notifications that could not be published.
func (b *Bridge) Failed() uint64 {
	return b.failed.Load()
}

// ServeScreen subscribes to screen requests and applies them through
// setter. Stop ends the subscription.
func (b *Bridge) ServeScreen(setter ScreenSetter) error {
	sub, err := b.conn.Subscribe(b.Subject("screen"), func(msg *nats.Msg) {
		b.handleScreen(setter, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.Subject("screen"), err)
	}
	b.sub = sub
	b.log.Info().Str("subject", b.Subject("screen")).Msg("listening for screen requests")
	return nil
}

// Stop ends the screen subscription.
func (b *Bridge) Stop() {
	if b.sub == nil {
		return
	}
	if err := b.sub.Unsubscribe(); err != nil {
		b.log.Debug().Err(err).Msg("unsubscribe screen")
	}
	b.sub = nil
}

func (b *Bridge) handleScreen(setter ScreenSetter, msg *nats.Msg) {
	var err error
	mask, perr := ParseScreenRequest(msg.Data)
	if perr != nil {
		err = perr
	} else {
		err = setter.SetScreenState(mask)
	}
	if err != nil {
		b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("screen request failed")
	} else {
		b.log.Debug().Uint8("mask", mask).Msg("screen state applied")
	}

	if msg.Reply == "" {
		return
	}
	reply := ScreenReply{OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
	}
	data, _ := json.Marshal(reply)
	if perr := b.conn.Publish(msg.Reply, data); perr != nil {
		b.log.Warn().Err(perr).Msg("screen reply failed")
	}
}

// ParseScreenRequest decodes a screen request into a screen state mask.
func ParseScreenRequest(data []byte) (uint8, error) {
	var req ScreenRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadScreenRequest, err)
	}
	mask := req.Mask
	if mask == 0 {
		state, err := nci.ParseScreenState(req.State)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrBadScreenRequest, err)
		}
		mask = uint8(state)
	}
	if s := nci.ScreenState(mask & nci.ScreenStateMask); !s.IsOn() && !s.IsOff() {
		return 0, fmt.Errorf("%w: mask 0x%02X", ErrBadScreenRequest, mask)
	}
	if req.PollTags {
		mask |= nci.ScreenPollingTagMask
	}
	return mask, nil
}

func (b *Bridge) publish(name string, n Notification) {
	n.Type = name
	n.Time = b.now()
	n.Seq = b.seq.Add(1)
	data, err := json.Marshal(n)
	if err != nil {
		b.failed.Add(1)
		b.log.Error().Err(err).Str("type", name).Msg("encode notification")
		return
	}
	if err := b.conn.Publish(b.Subject(name), data); err != nil {
		b.failed.Add(1)
		b.log.Warn().Err(err).Str("subject", b.Subject(name)).Msg("publish failed")
	}
}

func (b *Bridge) OnRemoteFieldActivated() {
	b.publish("field", Notification{FieldOn: true})
}

func (b *Bridge) OnRemoteFieldDeactivated() {
	b.publish("field", Notification{})
}

func (b *Bridge) OnHWErrorReported() {
	b.publish("hw_error", Notification{})
}

func (b *Bridge) OnTagActivated(rec nci.ActivationRecord) {
	b.publish("tag.discovered", Notification{Tag: &rec})
}

func (b *Bridge) OnTagDeactivated() {
	b.publish("tag.lost", Notification{})
}

func (b *Bridge) OnHostCardEmulationActivated(tech nci.TechMask) {
	b.publish("hce.activated", Notification{Tech: tech.String()})
}

func (b *Bridge) OnHostCardEmulationData(tech nci.TechMask, data []byte) {
	b.publish("hce.data", Notification{Tech: tech.String(), Data: data})
}

func (b *Bridge) OnHostCardEmulationDeactivated(tech nci.TechMask) {
	b.publish("hce.deactivated", Notification{Tech: tech.String()})
}

func (b *Bridge) OnTransaction(aid, data []byte, origin string) {
	b.publish("transaction", Notification{AID: aid, Data: data, Origin: origin})
}
