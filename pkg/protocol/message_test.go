package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffsync/pkg/document"
	"diffsync/pkg/textdiff"
)

// TestMessageWireForms tests the variant-as-key encoding of every message kind
func TestMessageWireForms(t *testing.T) {
	edits := textdiff.Diff("Hello world", "Hello brave world")
	doc := document.NewWithVersion("Hello world", 7)

	cases := []struct {
		name string
		msg  Message
	}{
		{"connect", NewConnect("alice")},
		{"connect_ok", NewConnectOk(3, doc)},
		{"client_sync", NewClientSync("alice", edits, 7)},
		{"server_sync", NewServerSync(edits, 4)},
		{"disconnect", NewDisconnect("alice")},
		{"ping", NewPing()},
		{"pong", NewPong()},
		{"error", NewError("something broke")},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.msg)
		require.NoError(t, err, "Marshal should not fail for %s", tc.name)

		var decoded Message
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err, "Unmarshal should not fail for %s", tc.name)
		assert.Equal(t, tc.msg, decoded, "Round trip should preserve %s", tc.name)
	}
}

// TestMessageExactShapes tests a few wire strings against the canonical form
func TestMessageExactShapes(t *testing.T) {
	data, err := json.Marshal(NewConnect("alice"))
	require.NoError(t, err, "Marshal should not return an error")
	assert.JSONEq(t, `{"Connect":{"client_id":"alice"}}`, string(data), "Connect wire shape should match")

	data, err = json.Marshal(NewPing())
	require.NoError(t, err, "Marshal should not return an error")
	assert.Equal(t, `"Ping"`, string(data), "Ping should encode as a bare string")

	data, err = json.Marshal(NewError("boom"))
	require.NoError(t, err, "Marshal should not return an error")
	assert.JSONEq(t, `{"Error":{"message":"boom"}}`, string(data), "Error wire shape should match")
}

// TestMessageDecodeRejectsUnknown tests decoding failures for malformed input
func TestMessageDecodeRejectsUnknown(t *testing.T) {
	var msg Message

	err := json.Unmarshal([]byte(`{"Teleport":{"to":"mars"}}`), &msg)
	assert.Error(t, err, "Unknown variant key should fail to decode")

	err = json.Unmarshal([]byte(`"Teleport"`), &msg)
	assert.Error(t, err, "Unknown unit variant should fail to decode")

	err = json.Unmarshal([]byte(`{"Connect":{"client_id":"a"},"Ping":{}}`), &msg)
	assert.Error(t, err, "Multiple variant keys should fail to decode")

	err = json.Unmarshal([]byte(`not json at all`), &msg)
	assert.Error(t, err, "Invalid JSON should fail to decode")
}

// TestClientSyncCarriesEdits tests that edit payloads survive the wire intact
func TestClientSyncCarriesEdits(t *testing.T) {
	edits := textdiff.Diff("The quick brown fox", "The quick red fox jumps")
	msg := NewClientSync("bob", edits, 12)

	data, err := json.Marshal(msg)
	require.NoError(t, err, "Marshal should not return an error")

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded), "Unmarshal should not return an error")
	require.Equal(t, KindClientSync, decoded.Kind, "Kind should survive the wire")

	patched, err := textdiff.Patch("The quick brown fox", decoded.ClientSync.Edits)
	require.NoError(t, err, "Patch should not return an error")
	assert.Equal(t, "The quick red fox jumps", patched, "Edits should apply after the round trip")
}
