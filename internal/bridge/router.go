// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// envelope is the generic shape the router inspects to classify an
// upstream (process-originated) frame. Fields not relevant to a given
// type are simply left zero; the router never fails to parse a frame
// for having extra or missing fields, matching spec.md §9's "polymorphic
// frames" note — we do not statically type every variant.
type envelope struct {
	Type    string           `json:"type"`
	Subtype string           `json:"subtype,omitempty"`
	Request *requestEnvelope `json:"request,omitempty"`

	SessionID         string            `json:"session_id,omitempty"`
	Model             string            `json:"model,omitempty"`
	Cwd               string            `json:"cwd,omitempty"`
	Tools             []string          `json:"tools,omitempty"`
	PermissionMode    string            `json:"permissionMode,omitempty"`
	ClaudeCodeVersion string            `json:"claude_code_version,omitempty"`
	MCPServers        []json.RawMessage `json:"mcp_servers,omitempty"`

	Status string `json:"status,omitempty"`

	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`
	NumTurns     *int     `json:"num_turns,omitempty"`
}

type requestEnvelope struct {
	Subtype     string          `json:"subtype,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Description string          `json:"description,omitempty"`
}

// clientEnvelope is the generic shape for a downstream (subscriber-
// originated) frame.
type clientEnvelope struct {
	Type         string          `json:"type"`
	Content      json.RawMessage `json:"content,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	Behavior     string          `json:"behavior,omitempty"`
	UpdatedInput json.RawMessage `json:"updated_input,omitempty"`
	Message      string          `json:"message,omitempty"`
	Model        string          `json:"model,omitempty"`
	Mode         string          `json:"mode,omitempty"`
}

// RouteUpstream classifies one frame received from the assistant
// process, applies the state mutation in spec.md §4.3's
// upstream-to-downstream table, and broadcasts the result (or a
// synthesized frame) to every attached subscriber. The registry's write
// lock is held for the whole call.
func (r *Registry) RouteUpstream(id string, raw json.RawMessage) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("bridge: malformed upstream frame for session %s: %v", id, err)
		return ErrMissingType
	}
	if env.Type == "" {
		log.Printf("bridge: upstream frame missing type for session %s", id)
		return ErrMissingType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	switch env.Type {
	case "system":
		switch env.Subtype {
		case "init":
			s.Metadata.CLISessionID = env.SessionID
			s.Metadata.Model = env.Model
			s.Metadata.Cwd = env.Cwd
			s.Metadata.Tools = env.Tools
			s.Metadata.PermissionMode = env.PermissionMode
			s.Metadata.AssistantVersion = env.ClaudeCodeVersion
			s.Metadata.MCPServers = env.MCPServers
			r.broadcastLocked(s, sessionInitFrame(s))
		case "status":
			s.Metadata.IsCompacting = env.Status == "compacting"
			r.broadcastLocked(s, raw)
		default:
			r.broadcastLocked(s, raw)
		}

	case "assistant":
		s.ReplayHistory = append(s.ReplayHistory, raw)
		r.broadcastLocked(s, raw)

	case "result":
		if env.TotalCostUSD != nil {
			s.Metadata.TotalCostUSD = *env.TotalCostUSD
		}
		if env.NumTurns != nil {
			s.Metadata.NumTurns = *env.NumTurns
		}
		s.ReplayHistory = append(s.ReplayHistory, raw)
		r.broadcastLocked(s, raw)

	case "stream_event":
		r.broadcastLocked(s, raw)

	case "control_request":
		subtype := ""
		if env.Request != nil {
			subtype = env.Request.Subtype
		}
		if subtype == "can_use_tool" {
			requestID := ""
			// request_id lives at the top level of the frame per
			// scenario 3; re-decode just that field.
			var top struct {
				RequestID string `json:"request_id"`
			}
			_ = json.Unmarshal(raw, &top)
			requestID = top.RequestID

			pp := PendingPermission{
				RequestID:     requestID,
				ToolName:      env.Request.ToolName,
				Input:         env.Request.Input,
				Description:   env.Request.Description,
				TimestampUnix: time.Now().UnixMilli(),
			}
			s.PendingPermissions[requestID] = pp
			r.broadcastLocked(s, permissionRequestFrame(requestID, env.Request))
		} else {
			r.broadcastLocked(s, raw)
		}

	case "tool_progress", "tool_use_summary":
		r.broadcastLocked(s, raw)

	case "keep_alive":
		// silently consumed

	default:
		r.broadcastLocked(s, raw)
	}

	return nil
}

// RouteDownstream classifies one frame received from a subscriber,
// transforms it per spec.md §4.3's downstream-to-upstream table, and
// either enqueues it to the upstream sink or buffers it in
// pending_upstream if the process has not attached yet.
func (r *Registry) RouteDownstream(id string, raw json.RawMessage) error {
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("bridge: malformed downstream frame for session %s: %v", id, err)
		return ErrMissingType
	}
	if env.Type == "" {
		log.Printf("bridge: downstream frame missing type for session %s", id)
		return ErrMissingType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	var out json.RawMessage
	switch env.Type {
	case "user_message":
		out = mustEncode(userFrame(s.Metadata.CLISessionID, env.Content))

	case "permission_response":
		delete(s.PendingPermissions, env.RequestID)
		out = mustEncode(controlResponseFrame(env))

	case "interrupt":
		out = mustEncode(controlRequestFrame(uuid.NewString(), map[string]string{"subtype": "interrupt"}))

	case "set_model":
		out = mustEncode(controlRequestFrame(uuid.NewString(), map[string]string{"subtype": "set_model", "model": env.Model}))

	case "set_permission_mode":
		out = mustEncode(controlRequestFrame(uuid.NewString(), map[string]string{"subtype": "set_permission_mode", "mode": env.Mode}))

	default:
		log.Printf("bridge: unknown downstream frame type %q for session %s", env.Type, id)
		return ErrUnknownFrameType
	}

	return r.deliverUpstreamLocked(s, out)
}

// broadcastLocked performs a non-blocking send to every subscriber sink.
// Caller must hold r.mu. A full sink is logged and left in place; the
// transport layer removes it when its own write fails.
func (r *Registry) broadcastLocked(s *Session, raw json.RawMessage) {
	for sink := range s.Subscribers {
		select {
		case sink <- raw:
		default:
			log.Printf("bridge: subscriber sink full for session %s, dropping frame", s.ID)
		}
	}
}

// deliverUpstreamLocked sends raw to the upstream sink if attached, or
// appends it to pending_upstream (bounded) otherwise. Caller must hold
// r.mu.
func (r *Registry) deliverUpstreamLocked(s *Session, raw json.RawMessage) error {
	if s.Upstream == nil {
		if len(s.PendingUpstream) >= r.pendingUpstreamCapacity {
			log.Printf("bridge: pending_upstream full for session %s, dropping frame", s.ID)
			return ErrSinkFull
		}
		s.PendingUpstream = append(s.PendingUpstream, raw)
		return nil
	}

	select {
	case s.Upstream <- raw:
		return nil
	default:
		log.Printf("bridge: upstream sink full for session %s, dropping frame", s.ID)
		return ErrSinkFull
	}
}

func mustEncode(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Every caller passes a value built from fields we control;
		// a marshal failure here means a programming error.
		panic(err)
	}
	return json.RawMessage(b)
}

func sessionInitFrame(s *Session) json.RawMessage {
	return mustEncode(struct {
		Type      string   `json:"type"`
		SessionID string   `json:"session_id"`
		State     Metadata `json:"state"`
	}{Type: "session_init", SessionID: s.ID, State: s.Metadata})
}

func permissionRequestFrame(requestID string, req *requestEnvelope) json.RawMessage {
	return mustEncode(struct {
		Type      string           `json:"type"`
		RequestID string           `json:"request_id"`
		Request   *requestEnvelope `json:"request"`
	}{Type: "permission_request", RequestID: requestID, Request: req})
}

func userFrame(cliSessionID string, content json.RawMessage) interface{} {
	return struct {
		Type            string          `json:"type"`
		Message         userMessage     `json:"message"`
		ParentToolUseID *string         `json:"parent_tool_use_id"`
		SessionID       string          `json:"session_id"`
	}{
		Type:            "user",
		Message:         userMessage{Role: "user", Content: content},
		ParentToolUseID: nil,
		SessionID:       cliSessionID,
	}
}

type userMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func controlResponseFrame(env clientEnvelope) interface{} {
	var payload interface{}
	if env.Behavior == "deny" {
		payload = map[string]interface{}{"behavior": "deny", "message": env.Message}
	} else {
		payload = map[string]interface{}{"behavior": "allow", "updatedInput": json.RawMessage(nonNilRaw(env.UpdatedInput))}
	}
	return struct {
		Type     string `json:"type"`
		Response struct {
			Subtype   string      `json:"subtype"`
			RequestID string      `json:"request_id"`
			Response  interface{} `json:"response"`
		} `json:"response"`
	}{
		Type: "control_response",
		Response: struct {
			Subtype   string      `json:"subtype"`
			RequestID string      `json:"request_id"`
			Response  interface{} `json:"response"`
		}{Subtype: "success", RequestID: env.RequestID, Response: payload},
	}
}

func controlRequestFrame(requestID string, request interface{}) interface{} {
	return struct {
		Type      string      `json:"type"`
		RequestID string      `json:"request_id"`
		Request   interface{} `json:"request"`
	}{Type: "control_request", RequestID: requestID, Request: request}
}

func nonNilRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return raw
}
