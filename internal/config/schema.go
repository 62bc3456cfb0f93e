// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading for the bridge.
package config

// Config is the root configuration structure for the bridge.
type Config struct {
	Server Server `json:"server"`
	Bridge Bridge `json:"bridge"`
	Models Models `json:"models"`
}

// Server configures the HTTP/WebSocket listener. TLS termination is out
// of scope (spec.md §6): the bridge always serves plaintext; put a
// reverse proxy in front of it for TLS.
type Server struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// Bridge configures the core routing/process-supervision behavior.
type Bridge struct {
	// AssistantBinary is the path to the assistant executable the
	// supervisor launches for each session (spec.md §6 "Environment").
	AssistantBinary string `json:"assistant_binary"`

	// KeepaliveIntervalSeconds is how often a subscriber endpoint emits
	// a keep_alive frame (spec.md §4.4, default ~10s).
	KeepaliveIntervalSeconds int `json:"keepalive_interval_seconds"`

	// UpstreamChannelCapacity and SubscriberChannelCapacity bound the
	// sinks installed for each attachment (spec.md §4.4, default 256).
	UpstreamChannelCapacity   int `json:"upstream_channel_capacity"`
	SubscriberChannelCapacity int `json:"subscriber_channel_capacity"`

	// PendingUpstreamCapacity bounds the queue of downstream frames
	// buffered before the process attaches (spec.md §3).
	PendingUpstreamCapacity int `json:"pending_upstream_capacity"`

	// ProcessGraceSeconds is how long the supervisor waits after SIGTERM
	// before escalating to SIGKILL (spec.md §4.5).
	ProcessGraceSeconds int `json:"process_grace_seconds"`

	// AuthToken, if set, is required as a bearer token on subscriber
	// upgrades (spec.md §6, §7 "AuthRejected"). The upstream callback
	// route is never token-gated.
	AuthToken string `json:"auth_token"`

	// WatchBinary enables an fsnotify watch on AssistantBinary so a
	// replaced binary is logged (SPEC_FULL.md §4.5 supplement).
	WatchBinary bool `json:"watch_binary"`

	// DiagnosticsBufferLines bounds the per-session captured
	// stdout/stderr ring buffer (SPEC_FULL.md §4.5 supplement).
	DiagnosticsBufferLines int `json:"diagnostics_buffer_lines"`
}

// Models configures the static model catalog backing GET /v1/models.
type Models struct {
	CatalogPath string `json:"catalog_path"` // empty selects the built-in catalog
}
