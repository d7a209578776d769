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

// Package supervisor keeps a controller running across transport
// failures. It waits for the Manager to report a fatal condition and
// reinitializes it, first in place and then by reopening the hardware.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
	"github.com/rs/zerolog"
)

// ErrRecoveryFailed is returned by Run when every recovery attempt failed.
var ErrRecoveryFailed = errors.New("controller recovery failed")

// Target is the supervised controller. *nci.Manager implements it.
type Target interface {
	Initialize(ctx context.Context) error
	Deinitialize(ctx context.Context) error
	Fatal() <-chan *nci.FatalError
}

// ReopenFunc replaces the target with one built on freshly opened
// hardware. It is responsible for releasing the old target.
type ReopenFunc func(ctx context.Context, old Target) (Target, error)

// RecoveredFunc runs after a successful recovery, typically to restore the
// screen state and discovery configuration.
type RecoveredFunc func(ctx context.Context, t Target) error

// Config bounds the recovery loop.
type Config struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	Multiplier  float64       `yaml:"multiplier"`
}

// DefaultConfig returns three attempts starting half a second apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		Multiplier:  2,
	}
}

// Stats counts supervisor activity.
type Stats struct {
	Failures   int64 `json:"failures"`
	Recoveries int64 `json:"recoveries"`
	SoftResets int64 `json:"soft_resets"`
	Reopens    int64 `json:"reopens"`
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithReopen enables the hard recovery tier.
func WithReopen(fn ReopenFunc) Option {
	return func(s *Supervisor) { s.reopen = fn }
}

// WithOnRecovered sets the hook run after each recovery.
func WithOnRecovered(fn RecoveredFunc) Option {
	return func(s *Supervisor) { s.onRecovered = fn }
}

// WithLogger sets the supervisor logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// Supervisor watches one Target.
type Supervisor struct {
	log         zerolog.Logger
	target      Target
	reopen      ReopenFunc
	onRecovered RecoveredFunc
	cfg         Config
	failures    atomic.Int64
	recoveries  atomic.Int64
	softResets  atomic.Int64
	reopens     atomic.Int64
	mu          syncutil.Mutex
}

// New creates a supervisor for target. Zero config fields take their
// defaults.
func New(target Target, cfg Config, opts ...Option) *Supervisor {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = cfg.Backoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	s := &Supervisor{
		target: target,
		cfg:    cfg,
		log:    nci.Logger().With().Str("component", "supervisor").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the current target, which changes after a reopen.
func (s *Supervisor) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Stats returns a snapshot of the counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Failures:   s.failures.Load(),
		Recoveries: s.recoveries.Load(),
		SoftResets: s.softResets.Load(),
		Reopens:    s.reopens.Load(),
	}
}

// Run supervises until ctx ends, a failure arrives that the target did not
// mark as recoverable, or recovery gives up. It returns nil when ctx ends.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fe := <-s.Target().Fatal():
			s.failures.Add(1)
			if !fe.Recovering {
				s.log.Error().Err(fe).Msg("controller failed without recovery")
				return fe
			}
			s.log.Warn().Err(fe).Msg("controller failed, recovering")
			if err := s.Recover(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
			}
		}
	}
}

// Recover reinitializes the target. Each attempt tries a soft reset
// (deinitialize then initialize) and, if that fails and a ReopenFunc is
// set, a reopen. Attempts are spaced by a growing backoff.
func (s *Supervisor) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	backoff := s.cfg.Backoff

	for attempt := range s.cfg.MaxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(time.Duration(float64(backoff)*s.cfg.Multiplier), s.cfg.MaxBackoff)
		}

		err := s.softReset(ctx)
		if err == nil {
			return s.recovered(ctx, "soft")
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("soft reset failed")

		if s.reopen == nil {
			continue
		}
		next, err := s.reopen(ctx, s.target)
		if err == nil {
			s.target = next
			s.reopens.Add(1)
			if err = next.Initialize(ctx); err == nil {
				return s.recovered(ctx, "reopen")
			}
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reopen failed")
	}

	return lastErr
}

func (s *Supervisor) softReset(ctx context.Context) error {
	s.softResets.Add(1)
	if err := s.target.Deinitialize(ctx); err != nil {
		s.log.Debug().Err(err).Msg("deinitialize during recovery")
	}
	return s.target.Initialize(ctx)
}

func (s *Supervisor) recovered(ctx context.Context, tier string) error {
	s.recoveries.Add(1)
	s.log.Info().Str("tier", tier).Msg("controller recovered")
	if s.onRecovered != nil {
		if err := s.onRecovered(ctx, s.target); err != nil {
			s.log.Warn().Err(err).Msg("post-recovery setup failed")
		}
	}
	return nil
}
