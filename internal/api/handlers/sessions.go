// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wingedpig/claude-bridge/internal/bridge"
	"github.com/wingedpig/claude-bridge/internal/catalog"
	"github.com/wingedpig/claude-bridge/internal/process"
)

// SessionHandler implements the five spec.md §4.6 endpoints plus the
// supplemented diagnostics endpoint.
type SessionHandler struct {
	registry   *bridge.Registry
	supervisor *process.Supervisor
	catalog    *catalog.Catalog
	bindAddr   string // host:port the assistant's callback URL points at
}

// NewSessionHandler constructs a SessionHandler. bindAddr is the address
// embedded in the callback URL handed to the launched assistant process
// (spec.md §6 "Upstream callback URL").
func NewSessionHandler(registry *bridge.Registry, supervisor *process.Supervisor, cat *catalog.Catalog, bindAddr string) *SessionHandler {
	return &SessionHandler{registry: registry, supervisor: supervisor, catalog: cat, bindAddr: bindAddr}
}

type createSessionRequest struct {
	Model          string   `json:"model,omitempty"`
	Cwd            string   `json:"cwd,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	AllowedTools   []string `json:"allowed_tools,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
}

// Create handles POST /v1/sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			// An empty body is valid — every field is optional.
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
			return
		}
	}

	s := h.registry.Create()

	callbackURL := fmt.Sprintf("ws://%s/ws/cli/%s", h.bindAddr, s.ID)
	_, err := h.supervisor.Launch(r.Context(), s.ID, callbackURL, process.Options{
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		Cwd:            req.Cwd,
	})
	if err != nil {
		h.registry.Destroy(s.ID)
		WriteError(w, http.StatusInternalServerError, ErrProcessSpawn, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: s.ID,
		WSURL:     fmt.Sprintf("/ws/session/%s", s.ID),
	})
}

// List handles GET /v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshots := h.registry.List()
	for id, snap := range snapshots {
		snapshots[id] = h.reconcileCLIConnected(id, snap)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": snapshots})
}

// Get handles GET /v1/sessions/:id.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := h.registry.Snapshot(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrSessionNotFound, "session not found")
		return
	}
	WriteJSON(w, http.StatusOK, h.reconcileCLIConnected(id, snap))
}

// reconcileCLIConnected downgrades a snapshot's CLIConnected flag to
// false when the supervisor's own process-table check (IsAlive) finds
// the assistant process gone — the registry only knows whether an
// upstream sink is attached, not whether the process behind it is
// still alive, so a process that dies without a clean upstream detach
// (e.g. SIGKILL from outside the supervisor) would otherwise still
// read as connected.
func (h *SessionHandler) reconcileCLIConnected(id string, snap bridge.Snapshot) bridge.Snapshot {
	if snap.CLIConnected && !h.supervisor.IsAlive(id) {
		snap.CLIConnected = false
	}
	return snap
}

// Delete handles DELETE /v1/sessions/:id.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.supervisor.Kill(id)
	h.supervisor.Forget(id)

	if !h.registry.Destroy(id) {
		WriteError(w, http.StatusNotFound, ErrSessionNotFound, "session not found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "session_id": id})
}

// Diagnostics handles GET /v1/sessions/:id/diagnostics?n=<int> (supplemented).
func (h *SessionHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.registry.Get(id); err != nil {
		WriteError(w, http.StatusNotFound, ErrSessionNotFound, "session not found")
		return
	}

	n := 200
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}

	lines, err := h.supervisor.Diagnostics(id, n)
	if err != nil {
		lines = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "lines": lines})
}

// Models handles GET /v1/models.
func (h *SessionHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.catalog.List()
	data := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]interface{}{
			"id":       m.ID,
			"object":   m.Object,
			"owned_by": m.OwnedBy,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"object": "list", "data": data})
}
