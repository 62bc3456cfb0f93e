// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge implements the session registry and the bidirectional
// NDJSON router that together form the core of the multiplexing bridge.
package bridge

import (
	"encoding/json"
	"errors"
	"sort"
)

// Errors returned by Registry and Router operations. Callers at the
// transport and HTTP layers map these to wire-level responses.
var (
	ErrSessionNotFound  = errors.New("bridge: session not found")
	ErrAlreadyAttached  = errors.New("bridge: upstream already attached")
	ErrAlreadyDetached  = errors.New("bridge: upstream already detached")
	ErrSinkFull         = errors.New("bridge: sink full")
	ErrSinkClosed       = errors.New("bridge: sink closed")
	ErrMissingType      = errors.New("bridge: frame missing type")
	ErrUnknownFrameType = errors.New("bridge: unrecognized frame type")
)

// Sink is a bounded outbound channel feeding one endpoint's writer
// goroutine. The router only ever performs non-blocking sends to it.
type Sink chan json.RawMessage

// Metadata mirrors spec.md §3 "metadata": everything the bridge learns
// about the assistant side of a session plus whatever cumulative
// counters the result frames report.
type Metadata struct {
	SessionID         string   `json:"session_id"`
	CLISessionID      string   `json:"cli_session_id,omitempty"`
	Model             string   `json:"model,omitempty"`
	Cwd               string   `json:"cwd,omitempty"`
	Tools             []string `json:"tools,omitempty"`
	PermissionMode    string   `json:"permission_mode,omitempty"`
	AssistantVersion  string   `json:"assistant_version,omitempty"`
	MCPServers        []json.RawMessage `json:"mcp_servers,omitempty"`
	TotalCostUSD      float64  `json:"total_cost_usd"`
	NumTurns          int      `json:"num_turns"`
	IsCompacting      bool     `json:"is_compacting"`
}

// PendingPermission is a process-originated tool-use request awaiting a
// subscriber's allow/deny decision. See spec.md §3.
type PendingPermission struct {
	RequestID     string          `json:"request_id"`
	ToolName      string          `json:"tool_name"`
	Input         json.RawMessage `json:"input"`
	Description   string          `json:"description,omitempty"`
	TimestampUnix int64           `json:"timestamp"`
}

// Session is the bridge's in-memory record for one logical pairing of an
// assistant process and its subscribers. Every field is mutated only by
// Registry methods, which hold the registry-wide lock for the duration;
// Session itself carries no lock (see DESIGN.md and spec.md §9).
type Session struct {
	ID       string
	Metadata Metadata

	Upstream    Sink
	Subscribers map[Sink]struct{}

	PendingPermissions map[string]PendingPermission

	// ReplayHistory holds only frames of kind {assistant, result} per
	// invariant I3; stream_event deltas are broadcast but never recorded.
	ReplayHistory []json.RawMessage

	// PendingUpstream queues downstream-originated frames translated for
	// the process but arriving before it has attached (invariant I5).
	PendingUpstream []json.RawMessage

	upstreamEverAttached bool
}

// Snapshot is the value-copied view handed to a newly attaching
// subscriber (and to the HTTP surface), matching spec.md §4.6's
// per-session shape.
type Snapshot struct {
	Metadata           Metadata                     `json:"state"`
	SubscriberCount    int                          `json:"subscriber_count"`
	CLIConnected       bool                         `json:"cli_connected"`
	PendingPermissions map[string]PendingPermission `json:"pending_permissions,omitempty"`
}

func newSession(id string) *Session {
	return &Session{
		ID:                 id,
		Metadata:           Metadata{SessionID: id},
		Subscribers:        make(map[Sink]struct{}),
		PendingPermissions: make(map[string]PendingPermission),
	}
}

func (s *Session) snapshot() Snapshot {
	pending := make(map[string]PendingPermission, len(s.PendingPermissions))
	for k, v := range s.PendingPermissions {
		pending[k] = v
	}
	return Snapshot{
		Metadata:           s.Metadata,
		SubscriberCount:    len(s.Subscribers),
		CLIConnected:       s.Upstream != nil,
		PendingPermissions: pending,
	}
}

// pendingPermissionsOrdered returns the session's outstanding
// permissions in a stable order, used when replaying to a newly
// attached subscriber.
func (s *Session) pendingPermissionsOrdered() []PendingPermission {
	out := make([]PendingPermission, 0, len(s.PendingPermissions))
	for _, p := range s.PendingPermissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimestampUnix != out[j].TimestampUnix {
			return out[i].TimestampUnix < out[j].TimestampUnix
		}
		return out[i].RequestID < out[j].RequestID
	})
	return out
}
