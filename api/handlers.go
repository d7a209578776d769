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

package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/go-chi/chi/v5"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	nci.ManagerState
	NCIVersion string `json:"nci_version"`
}

// LastErrorResponse is the body of GET /last-error.
type LastErrorResponse struct {
	Name string `json:"name"`
	Code int    `json:"code"`
}

// ScreenRequest is the body of PUT /screen.
type ScreenRequest struct {
	State    string `json:"state"`
	PollTags bool   `json:"poll_tags"`
}

// RawRequest is the body of POST /raw. Data is hex encoded.
type RawRequest struct {
	Data string `json:"data"`
}

// AidRequest is the body of POST /routing/aids. AID is hex encoded.
type AidRequest struct {
	AID   string `json:"aid"`
	Route int    `json:"route"`
	Info  int    `json:"info"`
	Power int    `json:"power"`
}

// TimeoutBody is the body of GET and PUT /timeouts/{tech}.
type TimeoutBody struct {
	Tech      string `json:"tech,omitempty"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, StatusResponse{
		ManagerState: s.ctrl.State(),
		NCIVersion:   s.ctrl.NCIVersion().String(),
	})
}

func (s *Server) HandleLastError(w http.ResponseWriter, _ *http.Request) {
	code := s.ctrl.LastError()
	s.respondJSON(w, http.StatusOK, LastErrorResponse{Code: int(code), Name: code.String()})
}

// HandleEnableDiscovery starts discovery. An empty body uses the
// configured poll mask.
func (s *Server) HandleEnableDiscovery(w http.ResponseWriter, r *http.Request) {
	p := nci.DiscoveryParams{UseConfiguredMask: true}
	if r.ContentLength != 0 {
		p.UseConfiguredMask = false
		if !s.decode(w, r, &p) {
			return
		}
	}
	if err := s.ctrl.EnableDiscovery(p); err != nil {
		s.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleDisableDiscovery(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.DisableDiscovery(); err != nil {
		s.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleScreen(w http.ResponseWriter, r *http.Request) {
	var req ScreenRequest
	if !s.decode(w, r, &req) {
		return
	}
	state, err := nci.ParseScreenState(req.State)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	mask := uint8(state)
	if req.PollTags {
		mask |= nci.ScreenPollingTagMask
	}
	if err := s.ctrl.SetScreenState(mask); err != nil {
		s.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleRaw(w http.ResponseWriter, r *http.Request) {
	var req RawRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := hex.DecodeString(req.Data)
	if err != nil || len(data) == 0 {
		s.respondError(w, http.StatusBadRequest, "data must be non-empty hex")
		return
	}
	if err := s.ctrl.SendRawFrame(data); err != nil {
		s.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) HandleAddAid(w http.ResponseWriter, r *http.Request) {
	var req AidRequest
	if !s.decode(w, r, &req) {
		return
	}
	aid, err := hex.DecodeString(req.AID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "aid must be hex")
		return
	}
	if !s.ctrl.RouteAid(aid, req.Route, req.Info, req.Power) {
		s.respondError(w, http.StatusUnprocessableEntity, "route rejected")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) HandleRemoveAid(w http.ResponseWriter, r *http.Request) {
	aid, err := hex.DecodeString(chi.URLParam(r, "aid"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "aid must be hex")
		return
	}
	if !s.ctrl.UnrouteAid(aid) {
		s.respondError(w, http.StatusNotFound, "no route for aid")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleCommit(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.CommitRouting(); err != nil {
		s.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleGetTimeout(w http.ResponseWriter, r *http.Request) {
	tech, ok := s.technology(w, r)
	if !ok {
		return
	}
	d, err := s.ctrl.GetTimeout(tech)
	if err != nil {
		s.respondCommandError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TimeoutBody{Tech: tech.String(), TimeoutMS: d.Milliseconds()})
}

func (s *Server) HandleSetTimeout(w http.ResponseWriter, r *http.Request) {
	tech, ok := s.technology(w, r)
	if !ok {
		return
	}
	var body TimeoutBody
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.ctrl.SetTimeout(tech, time.Duration(body.TimeoutMS)*time.Millisecond); err != nil {
		s.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) technology(w http.ResponseWriter, r *http.Request) (nci.Technology, bool) {
	tech, err := nci.ParseTechnology(chi.URLParam(r, "tech"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return 0, false
	}
	return tech, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps a command failure to an HTTP status.
func statusFor(err error) int {
	var ce *nci.CommandError
	switch {
	case errors.Is(err, nci.ErrInvalidParameter), errors.Is(err, nci.ErrInvalidTimeout):
		return http.StatusBadRequest
	case errors.Is(err, nci.ErrNotEnabled), errors.Is(err, nci.ErrAlreadyEnabled):
		return http.StatusConflict
	case errors.Is(err, nci.ErrRecovering), errors.Is(err, nci.ErrTransportFatal):
		return http.StatusServiceUnavailable
	case errors.Is(err, nci.ErrWaitTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, nci.ErrRoutingCommit):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondCommandError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	s.log.Warn().Err(err).Int("status", status).Msg("command failed")
	s.respondJSON(w, status, errorResponse{Error: err.Error(), Code: int(s.ctrl.LastError())})
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}
