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

// Package api exposes the controller's host commands over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Controller is the command surface served by the API. *nci.Manager
// implements it.
type Controller interface {
	State() nci.ManagerState
	NCIVersion() nci.NCIVersion
	LastError() nci.ErrorCode
	EnableDiscovery(p nci.DiscoveryParams) error
	DisableDiscovery() error
	SetScreenState(mask uint8) error
	RouteAid(aid []byte, route, aidInfo, power int) bool
	UnrouteAid(aid []byte) bool
	CommitRouting() error
	SendRawFrame(data []byte) error
	SetTimeout(tech nci.Technology, d time.Duration) error
	GetTimeout(tech nci.Technology) (time.Duration, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig listens on localhost only.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:7480",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 30 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server is the HTTP control surface.
type Server struct {
	log    zerolog.Logger
	ctrl   Controller
	router chi.Router
	server *http.Server
	cfg    Config
}

// NewServer creates a server for ctrl.
func NewServer(ctrl Controller, cfg Config, opts ...Option) *Server {
	s := &Server{
		ctrl:   ctrl,
		cfg:    cfg,
		router: chi.NewRouter(),
		log:    nci.Logger().With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)
		r.Get("/status", s.HandleStatus)
		r.Get("/last-error", s.HandleLastError)

		r.Post("/discovery", s.HandleEnableDiscovery)
		r.Delete("/discovery", s.HandleDisableDiscovery)
		r.Put("/screen", s.HandleScreen)
		r.Post("/raw", s.HandleRaw)

		r.Route("/routing", func(r chi.Router) {
			r.Post("/aids", s.HandleAddAid)
			r.Delete("/aids/{aid}", s.HandleRemoveAid)
			r.Post("/commit", s.HandleCommit)
		})

		r.Get("/timeouts/{tech}", s.HandleGetTimeout)
		r.Put("/timeouts/{tech}", s.HandleSetTimeout)
	})
}

// requestLogger logs one line per request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting HTTP API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
