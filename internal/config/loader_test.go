// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_ValidConfig(t *testing.T) {
	configContent := `{
		server: {
			port: 8080
			host: "127.0.0.1"
		}
		bridge: {
			assistant_binary: "/usr/local/bin/claude"
			keepalive_interval_seconds: 15
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Bridge.AssistantBinary)
	assert.Equal(t, 15, cfg.Bridge.KeepaliveIntervalSeconds)
}

func TestLoader_Load_HJSONFeatures(t *testing.T) {
	// Comments, unquoted keys, trailing commas.
	configContent := `{
		// This is a comment
		server: {
			port: 8080,
			host: "127.0.0.1",
		}

		# Hash comment
		bridge: {
			assistant_binary: "claude",
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.Bridge.AssistantBinary)
}

func TestLoader_Load_AllSections(t *testing.T) {
	configContent := `{
		server: {
			port: 8700
			host: "0.0.0.0"
		}

		bridge: {
			assistant_binary: "claude"
			keepalive_interval_seconds: 20
			upstream_channel_capacity: 512
			subscriber_channel_capacity: 512
			pending_upstream_capacity: 128
			process_grace_seconds: 5
			auth_token: "s3cr3t"
			watch_binary: true
			diagnostics_buffer_lines: 2000
		}

		models: {
			catalog_path: "/etc/bridge/models.yaml"
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, 8700, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "claude", cfg.Bridge.AssistantBinary)
	assert.Equal(t, 20, cfg.Bridge.KeepaliveIntervalSeconds)
	assert.Equal(t, 512, cfg.Bridge.UpstreamChannelCapacity)
	assert.Equal(t, 512, cfg.Bridge.SubscriberChannelCapacity)
	assert.Equal(t, 128, cfg.Bridge.PendingUpstreamCapacity)
	assert.Equal(t, 5, cfg.Bridge.ProcessGraceSeconds)
	assert.Equal(t, "s3cr3t", cfg.Bridge.AuthToken)
	assert.True(t, cfg.Bridge.WatchBinary)
	assert.Equal(t, 2000, cfg.Bridge.DiagnosticsBufferLines)

	assert.Equal(t, "/etc/bridge/models.yaml", cfg.Models.CatalogPath)
}

func TestLoader_Load_Defaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), writeTestConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, 8700, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "claude", cfg.Bridge.AssistantBinary)
	assert.Equal(t, 10, cfg.Bridge.KeepaliveIntervalSeconds)
	assert.Equal(t, 256, cfg.Bridge.UpstreamChannelCapacity)
	assert.Equal(t, 256, cfg.Bridge.SubscriberChannelCapacity)
	assert.Equal(t, 256, cfg.Bridge.PendingUpstreamCapacity)
	assert.Equal(t, 1000, cfg.Bridge.DiagnosticsBufferLines)
	assert.Equal(t, 0, cfg.Bridge.ProcessGraceSeconds)
}

func TestLoader_Load_DefaultsDoNotOverrideExplicitValues(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), writeTestConfig(t, `{server: {port: 9000}}`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host) // still defaulted
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load(context.Background(), "/nonexistent/path/config.hjson")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoader_Load_InvalidHJSON(t *testing.T) {
	configContent := `{
		invalid json here {{{
	}`

	loader := NewLoader()
	path := writeTestConfig(t, configContent)
	_, err := loader.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestLoader_Load_ConfigPaths(t *testing.T) {
	dir := t.TempDir()

	hjsonPath := filepath.Join(dir, "bridge.hjson")
	require.NoError(t, os.WriteFile(hjsonPath, []byte(`{bridge: {assistant_binary: "hjson"}}`), 0644))

	jsonPath := filepath.Join(dir, "bridge.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"bridge": {"assistant_binary": "json"}}`), 0644))

	loader := NewLoader()

	cfg, err := loader.Load(context.Background(), hjsonPath)
	require.NoError(t, err)
	assert.Equal(t, "hjson", cfg.Bridge.AssistantBinary)

	cfg, err = loader.Load(context.Background(), jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Bridge.AssistantBinary)
}

func TestLoader_FindConfig(t *testing.T) {
	dir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(originalWd)
	require.NoError(t, os.Chdir(dir))

	loader := NewLoader()

	_, err = loader.FindConfig()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bridge.hjson"), []byte(`{}`), 0644))
	path, err := loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "bridge.hjson")

	require.NoError(t, os.Remove(filepath.Join(dir, "bridge.hjson")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bridge.json"), []byte(`{}`), 0644))
	path, err = loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "bridge.json")
}

// Helper functions

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := writeTestConfig(t, content)
	loader := NewLoader()
	cfg, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	return cfg
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
