package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWriterReaderRoundTrip tests that messages written to a stream come back
// in order
func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteMessage(NewConnect("alice")), "Write should not return an error")
	require.NoError(t, w.WriteMessage(NewPing()), "Write should not return an error")
	require.NoError(t, w.WriteMessage(NewDisconnect("alice")), "Write should not return an error")

	// One JSON object per line
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3, "Each message should occupy one line")

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err, "Read should not return an error")
	assert.Equal(t, KindConnect, msg.Kind, "First message should be the connect")

	msg, err = r.ReadMessage()
	require.NoError(t, err, "Read should not return an error")
	assert.Equal(t, KindPing, msg.Kind, "Second message should be the ping")

	msg, err = r.ReadMessage()
	require.NoError(t, err, "Read should not return an error")
	assert.Equal(t, KindDisconnect, msg.Kind, "Third message should be the disconnect")

	_, err = r.ReadMessage()
	assert.Equal(t, io.EOF, err, "Exhausted stream should return EOF")
}

// TestReaderSkipsEmptyLines tests that blank lines between messages are
// ignored
func TestReaderSkipsEmptyLines(t *testing.T) {
	input := "\n\n" + `{"Connect":{"client_id":"a"}}` + "\n\n  \n" + `"Pong"` + "\n"
	r := NewReader(strings.NewReader(input))

	msg, err := r.ReadMessage()
	require.NoError(t, err, "Read should not return an error")
	assert.Equal(t, KindConnect, msg.Kind, "Blank lines before a message should be skipped")

	msg, err = r.ReadMessage()
	require.NoError(t, err, "Read should not return an error")
	assert.Equal(t, KindPong, msg.Kind, "Blank lines between messages should be skipped")
}

// TestReaderDeliversFinalUnterminatedLine tests that a message without a
// trailing newline still parses
func TestReaderDeliversFinalUnterminatedLine(t *testing.T) {
	r := NewReader(strings.NewReader(`"Ping"`))

	msg, err := r.ReadMessage()
	require.NoError(t, err, "Unterminated final line should still decode")
	assert.Equal(t, KindPing, msg.Kind, "Message should be the ping")

	_, err = r.ReadMessage()
	assert.Equal(t, io.EOF, err, "Stream should then report EOF")
}

// TestEncodeDecode tests the standalone line codec used by frame transports
func TestEncodeDecode(t *testing.T) {
	data, err := Encode(NewError("oops"))
	require.NoError(t, err, "Encode should not return an error")
	assert.True(t, bytes.HasSuffix(data, []byte("\n")), "Encoded line should end with a newline")

	msg, err := Decode(data)
	require.NoError(t, err, "Decode should not return an error")
	require.Equal(t, KindError, msg.Kind, "Kind should survive the codec")
	assert.Equal(t, "oops", msg.Error.Message, "Payload should survive the codec")

	_, err = Decode([]byte("{broken"))
	assert.ErrorIs(t, err, ErrMalformed, "Malformed line should decode to ErrMalformed")

	_, err = Decode([]byte(`{"Connect":{},"Ping":{}}`))
	assert.ErrorIs(t, err, ErrMalformed, "Multi-variant object should decode to ErrMalformed")
}
