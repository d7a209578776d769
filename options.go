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

import "github.com/rs/zerolog"

type options struct {
	cfg    *Config
	logger *zerolog.Logger
	hal    HAL
	tag    TagHandler
	p2p    PeerToPeer
	router Router
	host   HostListener
}

// Option configures a Manager.
type Option func(*options)

// WithConfig sets the controller configuration.
func WithConfig(cfg *Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. The package logger is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithHAL sets the hardware bring-up layer.
func WithHAL(h HAL) Option {
	return func(o *options) { o.hal = h }
}

// WithTagHandler sets the tag protocol collaborator.
func WithTagHandler(t TagHandler) Option {
	return func(o *options) { o.tag = t }
}

// WithPeerToPeer sets the LLCP collaborator.
func WithPeerToPeer(p PeerToPeer) Option {
	return func(o *options) { o.p2p = p }
}

// WithRouter sets the routing table collaborator.
func WithRouter(r Router) Option {
	return func(o *options) { o.router = r }
}

// WithHostListener sets the receiver of host notifications.
func WithHostListener(h HostListener) Option {
	return func(o *options) { o.host = h }
}
