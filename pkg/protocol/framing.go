package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed marks input that decoded as no known message. Transports
// check for it to answer with an Error message and keep reading, instead of
// treating the line like a broken connection.
var ErrMalformed = errors.New("malformed message")

// Encode serializes a message as a single JSON line, newline included. This
// is the canonical framing for stream transports; frame-based transports
// (WebSocket) use Marshal/Unmarshal on whole frames instead.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses one message from a line or frame, tolerating surrounding
// whitespace. Failures wrap ErrMalformed.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(bytes.TrimSpace(data), &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// Writer frames messages as newline-delimited JSON on an underlying stream.
// It is not goroutine safe; callers serialize writes themselves.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

// NewWriter wraps w in a message writer.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: json.NewEncoder(bw)}
}

// WriteMessage encodes msg followed by a newline and flushes.
func (w *Writer) WriteMessage(msg Message) error {
	// json.Encoder.Encode appends the newline itself
	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}
	return nil
}

// Reader reads newline-delimited JSON messages from an underlying stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r in a message reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadMessage returns the next message on the stream, skipping empty lines.
// It returns io.EOF once the stream is exhausted; a final unterminated line
// is still delivered before EOF surfaces.
func (r *Reader) ReadMessage() (Message, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
				return Decode(line)
			}
			return Message{}, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return Decode(line)
	}
}
