// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wingedpig/claude-bridge/internal/api/handlers"
	"github.com/wingedpig/claude-bridge/internal/api/middleware"
	"github.com/wingedpig/claude-bridge/internal/api/version"
	"github.com/wingedpig/claude-bridge/internal/bridge"
	"github.com/wingedpig/claude-bridge/internal/catalog"
	"github.com/wingedpig/claude-bridge/internal/process"
	"github.com/wingedpig/claude-bridge/internal/transport"
)

// Dependencies holds every dependency the router wires into handlers.
type Dependencies struct {
	Registry   *bridge.Registry
	Supervisor *process.Supervisor
	Catalog    *catalog.Catalog
	Transport  *transport.Endpoints

	// BindAddr is embedded in the callback URL handed to launched
	// assistant processes (spec.md §6).
	BindAddr string

	// AuthToken, if non-empty, gates /ws/session/* upgrades (spec.md §6,
	// §7 "AuthRejected"). Empty disables auth.
	AuthToken string
}

// NewRouter wires the five spec.md §4.6 endpoints, the supplemented
// diagnostics endpoint, and the two WebSocket transport endpoints.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(version.Middleware)

	sessions := handlers.NewSessionHandler(deps.Registry, deps.Supervisor, deps.Catalog, deps.BindAddr)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/sessions", sessions.Create).Methods(http.MethodPost)
	api.HandleFunc("/sessions", sessions.List).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", sessions.Get).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", sessions.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/diagnostics", sessions.Diagnostics).Methods(http.MethodGet)
	api.HandleFunc("/models", sessions.Models).Methods(http.MethodGet)

	// The upstream callback route is never token-gated (spec.md §6); only
	// the subscriber route accepts the optional bearer token.
	r.HandleFunc("/ws/cli/{id}", func(w http.ResponseWriter, req *http.Request) {
		deps.Transport.ServeUpstream(w, req, mux.Vars(req)["id"])
	}).Methods(http.MethodGet)

	subscriberAuth := middleware.RequireBearerToken(deps.AuthToken)
	r.Handle("/ws/session/{id}", subscriberAuth(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		deps.Transport.ServeSubscriber(w, req, mux.Vars(req)["id"])
	}))).Methods(http.MethodGet)

	return r
}
