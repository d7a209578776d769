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

// Package routing keeps the listen-mode routing table: AID routes, the
// default routes toward the host and the registered T3T identifiers. It
// implements nci.Router.
package routing

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
)

// RouteHost is the route identifier of the device host.
const RouteHost = 0x00

// Entry types of a listen-mode routing entry.
const (
	entryTech     = 0x00
	entryProtocol = 0x01
	entryAID      = 0x02
)

// AID qualifiers carried in aidInfo.
const (
	AIDPrefix = 0x10
	AIDSubset = 0x20
)

// Power states for a route.
const (
	PowerSwitchedOn  = 0x01
	PowerSwitchedOff = 0x02
	PowerBatteryOff  = 0x04
	PowerScreenOff   = 0x10
)

const (
	minAIDLen = 5
	maxAIDLen = 16
	// T3T identifiers are a 2-byte system code followed by an 8-byte NFCID2.
	t3tIDLen = 10

	// DefaultMaxSize is the routing table capacity of PN71xx controllers.
	DefaultMaxSize = 400
	// DefaultT3tMax is used until the controller reports LF_T3T_MAX.
	DefaultT3tMax = 16
)

// ErrTableFull is returned by Encode when the entries exceed the capacity.
var ErrTableFull = errors.New("routing table full")

// AIDRoute is one AID entry.
type AIDRoute struct {
	AID   []byte `json:"aid"`
	Route int    `json:"route"`
	Info  int    `json:"info"`
	Power int    `json:"power"`
}

// T3tIdentifier is one registered T3T identifier.
type T3tIdentifier struct {
	ID     []byte `json:"id"`
	Handle int    `json:"handle"`
}

// Snapshot is a copy of the table.
type Snapshot struct {
	AIDs          []AIDRoute      `json:"aids"`
	T3t           []T3tIdentifier `json:"t3t"`
	Committed     []byte          `json:"committed,omitempty"`
	HostRouting   bool            `json:"host_routing"`
	Initialized   bool            `json:"initialized"`
	CommitCounter int             `json:"commits"`
}

// Option configures a Table.
type Option func(*Table)

// WithMaxSize sets the encoded table capacity in bytes.
func WithMaxSize(n int) Option {
	return func(t *Table) { t.maxSize = n }
}

// WithT3tMax sets how many T3T identifiers can be registered.
func WithT3tMax(n int) Option {
	return func(t *Table) { t.t3tMax = n }
}

// WithLogger sets the table logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Table) { t.log = log }
}

// Table is an in-memory routing table. Changes take effect on Commit.
type Table struct {
	log         zerolog.Logger
	t3t         map[int][]byte
	aids        []AIDRoute
	committed   []byte
	maxSize     int
	t3tMax      int
	nextHandle  int
	commits     int
	mu          syncutil.Mutex
	hostRouting bool
	initialized bool
}

var _ nci.Router = (*Table)(nil)

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		log:     nci.Logger().With().Str("component", "routing").Logger(),
		t3t:     make(map[int][]byte),
		maxSize: DefaultMaxSize,
		t3tMax:  DefaultT3tMax,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize clears the table and routes to the host by default.
func (t *Table) Initialize() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
	t.hostRouting = true
	t.initialized = true
	return true
}

// SetT3tMax updates the identifier capacity, usually from LF_T3T_MAX.
func (t *Table) SetT3tMax(n int) {
	t.mu.Lock()
	t.t3tMax = n
	t.mu.Unlock()
}

// EnableRoutingToHost adds the default ISO-DEP and NFC-F routes to the host.
func (t *Table) EnableRoutingToHost() {
	t.mu.Lock()
	t.hostRouting = true
	t.mu.Unlock()
}

// DisableRoutingToHost removes the default host routes.
func (t *Table) DisableRoutingToHost() {
	t.mu.Lock()
	t.hostRouting = false
	t.mu.Unlock()
}

// AddAid adds or replaces the route for aid.
func (t *Table) AddAid(aid []byte, route, aidInfo, power int) bool {
	if len(aid) < minAIDLen || len(aid) > maxAIDLen {
		t.log.Warn().Str("aid", hex.EncodeToString(aid)).Msg("AID length out of range")
		return false
	}
	if route < 0 || route > 0xFF || power < 0 || power > 0xFF || aidInfo&^(AIDPrefix|AIDSubset) != 0 {
		return false
	}
	entry := AIDRoute{AID: bytes.Clone(aid), Route: route, Info: aidInfo, Power: power}

	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(aid); i >= 0 {
		t.aids[i] = entry
		return true
	}
	t.aids = append(t.aids, entry)
	return true
}

// RemoveAid removes the route for aid. It reports false if there was none.
func (t *Table) RemoveAid(aid []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(aid)
	if i < 0 {
		return false
	}
	t.aids = slices.Delete(t.aids, i, i+1)
	return true
}

func (t *Table) indexLocked(aid []byte) int {
	return slices.IndexFunc(t.aids, func(r AIDRoute) bool { return bytes.Equal(r.AID, aid) })
}

// RegisterT3tIdentifier stores id and returns its handle, or -1 if id is
// malformed, already registered or the table is at capacity.
func (t *Table) RegisterT3tIdentifier(id []byte) int {
	if len(id) != t3tIDLen {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.t3t) >= t.t3tMax {
		t.log.Warn().Int("max", t.t3tMax).Msg("no room for another T3T identifier")
		return -1
	}
	for _, existing := range t.t3t {
		if bytes.Equal(existing, id) {
			return -1
		}
	}
	t.nextHandle++
	t.t3t[t.nextHandle] = bytes.Clone(id)
	return t.nextHandle
}

// DeregisterT3tIdentifier drops the identifier registered under handle.
func (t *Table) DeregisterT3tIdentifier(handle int) {
	t.mu.Lock()
	delete(t.t3t, handle)
	t.mu.Unlock()
}

// Commit encodes the table. It fails if the entries do not fit.
func (t *Table) Commit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf, err := t.encodeLocked()
	if err != nil {
		t.log.Error().Err(err).Msg("routing commit failed")
		return false
	}
	t.committed = buf
	t.commits++
	t.log.Debug().Int("aids", len(t.aids)).Int("t3t", len(t.t3t)).Int("bytes", len(buf)).Msg("routing committed")
	return true
}

// OnShutdown forgets everything.
func (t *Table) OnShutdown() {
	t.mu.Lock()
	t.resetLocked()
	t.mu.Unlock()
}

func (t *Table) resetLocked() {
	t.aids = nil
	t.t3t = make(map[int][]byte)
	t.committed = nil
	t.hostRouting = false
	t.initialized = false
}

// Encode returns the listen-mode routing entries the table would commit.
func (t *Table) Encode() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encodeLocked()
}

// encodeLocked lays out AID entries first, then protocol and technology
// routes, so the most specific match wins on controllers that search in
// order.
func (t *Table) encodeLocked() ([]byte, error) {
	var buf []byte
	for _, r := range t.aids {
		qualified := byte(entryAID) | byte(r.Info)
		buf = append(buf, qualified, byte(2+len(r.AID)), byte(r.Route), byte(r.Power))
		buf = append(buf, r.AID...)
	}
	if t.hostRouting {
		buf = append(buf,
			entryProtocol, 3, RouteHost, PowerSwitchedOn, byte(nci.ProtocolISODEP),
			entryTech, 3, RouteHost, PowerSwitchedOn, byte(techNFCF),
		)
	}
	if len(buf) > t.maxSize {
		return nil, fmt.Errorf("%w: %d bytes, capacity %d", ErrTableFull, len(buf), t.maxSize)
	}
	return buf, nil
}

// RF technology value of NFC-F in routing entries.
const techNFCF = 0x02

// T3tIdentifiers returns the registered identifiers ordered by handle.
func (t *Table) T3tIdentifiers() []T3tIdentifier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t3tLocked()
}

func (t *Table) t3tLocked() []T3tIdentifier {
	out := make([]T3tIdentifier, 0, len(t.t3t))
	for h, id := range t.t3t {
		out = append(out, T3tIdentifier{Handle: h, ID: bytes.Clone(id)})
	}
	slices.SortFunc(out, func(a, b T3tIdentifier) int { return a.Handle - b.Handle })
	return out
}

// Snapshot returns a copy of the table.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	aids := make([]AIDRoute, len(t.aids))
	for i, r := range t.aids {
		r.AID = bytes.Clone(r.AID)
		aids[i] = r
	}
	return Snapshot{
		AIDs:          aids,
		T3t:           t.t3tLocked(),
		Committed:     bytes.Clone(t.committed),
		HostRouting:   t.hostRouting,
		Initialized:   t.initialized,
		CommitCounter: t.commits,
	}
}
