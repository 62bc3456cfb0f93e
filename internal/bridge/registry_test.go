// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(4, 4, 4)
}

func TestCreateThenGet(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()
	require.NotEmpty(t, s.ID)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestGetUnknownSessionFails(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttachUpstreamDrainsPendingInOrder(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	require.NoError(t, r.RouteDownstream(s.ID, json.RawMessage(`{"type":"user_message","content":"a"}`)))
	require.NoError(t, r.RouteDownstream(s.ID, json.RawMessage(`{"type":"interrupt"}`)))

	sink := r.NewUpstreamSink()
	require.NoError(t, r.AttachUpstream(s.ID, sink))

	first := <-sink
	second := <-sink

	assert.Contains(t, string(first), `"content":"a"`)
	assert.Contains(t, string(second), `"subtype":"interrupt"`)

	snap, err := r.Snapshot(s.ID)
	require.NoError(t, err)
	assert.True(t, snap.CLIConnected)
}

func TestAttachUpstreamTwiceFails(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	require.NoError(t, r.AttachUpstream(s.ID, r.NewUpstreamSink()))
	err := r.AttachUpstream(s.ID, r.NewUpstreamSink())
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestDetachUpstreamClearsPendingPermissions(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()
	require.NoError(t, r.AttachUpstream(s.ID, r.NewUpstreamSink()))

	require.NoError(t, r.RouteUpstream(s.ID, json.RawMessage(`{"type":"control_request","request_id":"r1","request":{"subtype":"can_use_tool","tool_name":"shell","input":{"cmd":"ls"}}}`)))

	snap, err := r.Snapshot(s.ID)
	require.NoError(t, err)
	assert.Len(t, snap.PendingPermissions, 1)

	r.DetachUpstream(s.ID)

	snap, err = r.Snapshot(s.ID)
	require.NoError(t, err)
	assert.False(t, snap.CLIConnected)
	assert.Empty(t, snap.PendingPermissions)
}

func TestDestroy(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	assert.True(t, r.Destroy(s.ID))
	assert.False(t, r.Destroy(s.ID))

	_, err := r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttachSubscriberFramesOrdersSessionInitHistoryThenPending(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	require.NoError(t, r.RouteUpstream(s.ID, json.RawMessage(`{"type":"system","subtype":"init","session_id":"CLI1","model":"M1","cwd":"/tmp","tools":["t"],"permissionMode":"default"}`)))
	require.NoError(t, r.RouteUpstream(s.ID, json.RawMessage(`{"type":"assistant","message":{"x":1}}`)))
	require.NoError(t, r.RouteUpstream(s.ID, json.RawMessage(`{"type":"result","total_cost_usd":0.01,"num_turns":1}`)))
	require.NoError(t, r.RouteUpstream(s.ID, json.RawMessage(`{"type":"control_request","request_id":"r1","request":{"subtype":"can_use_tool","tool_name":"shell","input":{"cmd":"ls"}}}`)))

	sink := r.NewSubscriberSink()
	frames, err := r.AttachSubscriberFrames(s.ID, sink)
	require.NoError(t, err)
	require.Len(t, frames, 4)

	assert.Contains(t, string(frames[0]), `"type":"session_init"`)
	assert.Contains(t, string(frames[1]), `"type":"assistant"`)
	assert.Contains(t, string(frames[2]), `"type":"result"`)
	assert.Contains(t, string(frames[3]), `"type":"permission_request"`)
}
