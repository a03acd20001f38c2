// Copyright (C) 2025 koi-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package server binds the five wire-protocol paths of §6 to
// rpc.ResponseHandler over net/http + gorilla/mux, and exposes the
// ambient /healthz and /metrics endpoints a FULL node runs alongside
// them. Only FULL nodes run this server; PARTIAL nodes rely on
// poller.Loop instead.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/koi-net/koi-net/health"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/internal/metrics"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/koierr"
	"github.com/koi-net/koi-net/rid"
	"github.com/koi-net/koi-net/rpc"
	"github.com/koi-net/koi-net/secure"
)

const (
	pathEventsBroadcast = "/events/broadcast"
	pathEventsPoll      = "/events/poll"
	pathRIDsFetch       = "/rids/fetch"
	pathManifestsFetch  = "/manifests/fetch"
	pathBundlesFetch    = "/bundles/fetch"
)

// Server is the HTTP front door for a FULL node: it verifies every
// inbound signed envelope before handing the payload to
// rpc.ResponseHandler, then signs and returns the response envelope.
type Server struct {
	Response  *rpc.ResponseHandler
	ClockSkew time.Duration
	Logger    logger.Logger
	Health    *health.HealthChecker

	router *mux.Router
}

// New builds the router. Call Handler (or ListenAndServe) to run it.
func New(resp *rpc.ResponseHandler, clockSkew time.Duration, log logger.Logger, checker *health.HealthChecker) *Server {
	s := &Server{Response: resp, ClockSkew: clockSkew, Logger: log, Health: checker}
	s.router = mux.NewRouter()
	s.router.Use(requestIDMiddleware)
	s.router.HandleFunc(pathEventsBroadcast, s.handleBroadcast).Methods(http.MethodPost)
	s.router.HandleFunc(pathEventsPoll, s.handlePoll).Methods(http.MethodPost)
	s.router.HandleFunc(pathRIDsFetch, s.handleFetchRIDs).Methods(http.MethodPost)
	s.router.HandleFunc(pathManifestsFetch, s.handleFetchManifests).Methods(http.MethodPost)
	s.router.HandleFunc(pathBundlesFetch, s.handleFetchBundles).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return s
}

// Handler returns the net/http handler, for embedding in a caller's
// own http.Server (e.g. to share a listener with other routes).
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the HTTP listener until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// verify decodes a signed envelope from the request body, verifies it,
// and returns the decoded envelope (its source RID is the verified
// caller) with ok=true. On failure it writes the matching §7 error
// response and returns ok=false; the handler must return immediately.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) (secure.Envelope, bool) {
	var env secure.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode envelope: %v", koierr.ErrUnknownSourceNode, err))
		return secure.Envelope{}, false
	}

	verifier := s.Response.Verifier(s.ClockSkew)
	if _, err := verifier.Verify(env); err != nil {
		metrics.EnvelopeVerifications.WithLabelValues(koierr.Kind(err)).Inc()
		s.writeError(w, r, err)
		return secure.Envelope{}, false
	}
	metrics.EnvelopeVerifications.WithLabelValues("ok").Inc()
	return env, true
}

// requestIDMiddleware stamps every inbound request with a fresh
// correlation id, so a node's logs can tie a rejected envelope back to
// one HTTP request even under concurrent peers.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	metrics.InboundRequests.WithLabelValues(r.URL.Path, koierr.Kind(err)).Inc()
	if s.Logger != nil {
		s.Logger.WithContext(r.Context()).Warn("inbound request rejected",
			logger.String("path", r.URL.Path), logger.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": koierr.Kind(err)})
}

// writeSigned signs payload addressed to source (the envelope's
// sender) and writes it as the response body.
func (s *Server) writeSigned(w http.ResponseWriter, target rid.RID, payload any) {
	env, err := s.Response.SignResponse(target, payload)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("failed to sign response", logger.Error(err))
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	env, ok := s.verify(w, r)
	if !ok {
		return
	}
	var body struct {
		Events []koi.Event `json:"events"`
	}
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode payload: %v", koierr.ErrUnknownSourceNode, err))
		return
	}
	s.Response.Broadcast(env.SourceNode, body.Events)

	env2, err := s.Response.EmptyResponse(env.SourceNode)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env2)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	env, ok := s.verify(w, r)
	if !ok {
		return
	}
	var body struct {
		RID   rid.RID `json:"rid"`
		Limit int     `json:"limit"`
	}
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode payload: %v", koierr.ErrUnknownSourceNode, err))
		return
	}
	events := s.Response.Poll(env.SourceNode, body.Limit)
	s.writeSigned(w, env.SourceNode, struct {
		Events []koi.Event `json:"events"`
	}{Events: events})
}

func (s *Server) handleFetchRIDs(w http.ResponseWriter, r *http.Request) {
	env, ok := s.verify(w, r)
	if !ok {
		return
	}
	var body struct {
		RIDTypes []rid.Type `json:"rid_types"`
	}
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode payload: %v", koierr.ErrUnknownSourceNode, err))
		return
	}
	rids, err := s.Response.FetchRIDs(body.RIDTypes)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeSigned(w, env.SourceNode, struct {
		RIDs []rid.RID `json:"rids"`
	}{RIDs: rids})
}

func (s *Server) handleFetchManifests(w http.ResponseWriter, r *http.Request) {
	env, ok := s.verify(w, r)
	if !ok {
		return
	}
	var body struct {
		RIDTypes []rid.Type `json:"rid_types"`
		RIDs     []rid.RID  `json:"rids"`
	}
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode payload: %v", koierr.ErrUnknownSourceNode, err))
		return
	}
	manifests, notFound, err := s.Response.FetchManifests(body.RIDTypes, body.RIDs)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeSigned(w, env.SourceNode, struct {
		Manifests []koi.Manifest `json:"manifests"`
		NotFound  []rid.RID      `json:"not_found"`
	}{Manifests: manifests, NotFound: notFound})
}

func (s *Server) handleFetchBundles(w http.ResponseWriter, r *http.Request) {
	env, ok := s.verify(w, r)
	if !ok {
		return
	}
	var body struct {
		RIDs []rid.RID `json:"rids"`
	}
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode payload: %v", koierr.ErrUnknownSourceNode, err))
		return
	}
	bundles, notFound, err := s.Response.FetchBundles(body.RIDs)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeSigned(w, env.SourceNode, struct {
		Bundles  []koi.Bundle `json:"bundles"`
		NotFound []rid.RID    `json:"not_found"`
	}{Bundles: bundles, NotFound: notFound})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.Health == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	sys := s.Health.GetSystemHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if sys.Status != health.StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(sys)
}
