// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := map[string]interface{}{"type": "assistant", "n": float64(3)}
	b, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), b[len(b)-1])

	d := NewDecoder()
	lines := d.Feed(b)
	require.Len(t, lines, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &got))
	assert.Equal(t, v, got)
}

func TestDecoderSplitsMultipleLinesFromOneRead(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("{\"a\":1}\n{\"a\":2}\n"))
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"a":1}`, string(lines[0]))
	assert.JSONEq(t, `{"a":2}`, string(lines[1]))
}

func TestDecoderBuffersPartialLineAcrossFeeds(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("{\"a\":"))
	assert.Empty(t, lines)

	lines = d.Feed([]byte("1}\n"))
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"a":1}`, string(lines[0]))
}

func TestDecoderSkipsEmptyLines(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("\n\n{\"a\":1}\n\n"))
	require.Len(t, lines, 1)
}

func TestDecoderDropsMalformedLinesButContinues(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("not json\n{\"a\":1}\n"))
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"a":1}`, string(lines[0]))
}

func TestDecoderHandlesCRLF(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("{\"a\":1}\r\n"))
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"a":1}`, string(lines[0]))
}
