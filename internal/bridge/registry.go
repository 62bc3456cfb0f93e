// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// defaultSinkCapacity is the suggested bound from spec.md §4.4 for both
// the upstream sink and each subscriber sink.
const defaultSinkCapacity = 256

// defaultPendingUpstreamCapacity bounds the queue of downstream frames
// waiting for the process to attach (spec.md §3 "pending_upstream").
const defaultPendingUpstreamCapacity = 256

// Registry owns every Session. It is protected by a single
// reader-writer lock spanning the whole map, per spec.md §9's explicit
// design note: write-lock hold time per frame is small, so the lock is
// not split per session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	upstreamSinkCapacity    int
	subscriberSinkCapacity  int
	pendingUpstreamCapacity int
}

// NewRegistry constructs an empty Registry. upstreamSinkCapacity bounds
// the single upstream sink installed per session (spec.md §4.4
// "upstream_sink"); subscriberSinkCapacity bounds each subscriber's own
// sink. pendingUpstreamCapacity bounds the pending_upstream queue. Zero
// selects the spec's suggested defaults for any of the three.
func NewRegistry(upstreamSinkCapacity, subscriberSinkCapacity, pendingUpstreamCapacity int) *Registry {
	if upstreamSinkCapacity <= 0 {
		upstreamSinkCapacity = defaultSinkCapacity
	}
	if subscriberSinkCapacity <= 0 {
		subscriberSinkCapacity = defaultSinkCapacity
	}
	if pendingUpstreamCapacity <= 0 {
		pendingUpstreamCapacity = defaultPendingUpstreamCapacity
	}
	return &Registry{
		sessions:                make(map[string]*Session),
		upstreamSinkCapacity:    upstreamSinkCapacity,
		subscriberSinkCapacity:  subscriberSinkCapacity,
		pendingUpstreamCapacity: pendingUpstreamCapacity,
	}
}

// Create allocates a fresh session with a new id and no sinks attached.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()

	s := newSession(id)
	r.sessions[id] = s
	return s
}

// Get returns the session for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns a snapshot of every session, keyed by id.
func (r *Registry) List() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s.snapshot()
	}
	return out
}

// Snapshot returns one session's point-in-time view, or ErrSessionNotFound.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return s.snapshot(), nil
}

// NewUpstreamSink allocates the bounded channel installed as a
// session's upstream sink. Transport's upstream endpoint uses this
// instead of a bare make(chan ...) so capacity stays centrally
// configurable and distinct from subscriber sink capacity.
func (r *Registry) NewUpstreamSink() Sink {
	return make(Sink, r.upstreamSinkCapacity)
}

// NewSubscriberSink allocates a bounded channel sized per the
// registry's configured subscriber sink capacity. Transport's
// subscriber endpoint uses this instead of a bare make(chan ...) so
// capacity stays centrally configurable.
func (r *Registry) NewSubscriberSink() Sink {
	return make(Sink, r.subscriberSinkCapacity)
}

// AttachUpstream installs sink as the session's upstream and drains any
// queued pending_upstream frames into it in arrival order (invariant
// I5). A session may only ever transition None→Some once in its
// lifetime (invariant I2); a second attach attempt returns
// ErrAlreadyAttached.
func (r *Registry) AttachUpstream(id string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.upstreamEverAttached {
		return ErrAlreadyAttached
	}

	s.Upstream = sink
	s.upstreamEverAttached = true

	for _, f := range s.PendingUpstream {
		select {
		case sink <- f:
		default:
			log.Printf("bridge: dropping queued upstream frame for session %s, sink full on attach", id)
		}
	}
	s.PendingUpstream = nil
	return nil
}

// DetachUpstream clears the session's upstream sink and, per invariant
// I4's corollary, clears pending_permissions — a process that is no
// longer attached cannot honor outstanding permission prompts. Absence
// of the session is not an error: detach can race a concurrent destroy.
func (r *Registry) DetachUpstream(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.Upstream = nil
	s.PendingPermissions = make(map[string]PendingPermission)
}

// AttachSubscriber registers sink and returns the replay tuple the
// transport endpoint must write, in order: metadata snapshot, recorded
// history, outstanding pending permissions.
func (r *Registry) AttachSubscriber(id string, sink Sink) (Snapshot, []json.RawMessage, []PendingPermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, nil, nil, ErrSessionNotFound
	}

	s.Subscribers[sink] = struct{}{}

	history := make([]json.RawMessage, len(s.ReplayHistory))
	copy(history, s.ReplayHistory)

	return s.snapshot(), history, s.pendingPermissionsOrdered(), nil
}

// AttachSubscriberFrames registers sink and returns the exact ordered
// sequence of wire frames the transport endpoint must write on attach:
// a synthesized session_init, then the recorded history, then one
// synthesized permission_request per outstanding pending permission
// (spec.md §4.3 "Synthesis").
func (r *Registry) AttachSubscriberFrames(id string, sink Sink) ([]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.Subscribers[sink] = struct{}{}

	out := make([]json.RawMessage, 0, 2+len(s.ReplayHistory)+len(s.PendingPermissions))
	out = append(out, sessionInitFrame(s))
	out = append(out, s.ReplayHistory...)
	for _, pp := range s.pendingPermissionsOrdered() {
		req := &requestEnvelope{
			Subtype:     "can_use_tool",
			ToolName:    pp.ToolName,
			Input:       pp.Input,
			Description: pp.Description,
		}
		out = append(out, permissionRequestFrame(pp.RequestID, req))
	}
	return out, nil
}

// DetachSubscriber removes sink from the session's subscriber set by
// channel identity. Absence of the session or the sink is a no-op.
func (r *Registry) DetachSubscriber(id string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(s.Subscribers, sink)
}

// Destroy removes the session entirely. It reports whether a session
// existed to remove.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}
