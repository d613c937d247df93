package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Limits bounds the size of a decoded event to protect against hostile or
// buggy peers.
type Limits struct {
	MaxHeaderBytes  int
	MaxPayloadBytes int
}

// DefaultLimits returns the default codec limits.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  DefaultMaxHeaderBytes,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
	}
}

// Encode serializes an event into its wire form: one newline-terminated JSON
// header followed by the raw payload bytes, if any.
func Encode(event *Event) ([]byte, error) {
	if !IsValidType(event.Type) {
		return nil, fmt.Errorf("cannot encode unknown event type %q", event.Type)
	}

	header := wireHeader{
		Type:          event.Type,
		Data:          event.Data,
		PayloadLength: len(event.Payload),
	}

	line, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event header: %w", err)
	}

	buf := make([]byte, 0, len(line)+1+len(event.Payload))
	buf = append(buf, line...)
	buf = append(buf, '\n')
	buf = append(buf, event.Payload...)

	return buf, nil
}

// Decoder is a resumable event decoder. Input bytes are accumulated with
// Feed; Next returns the next complete event, or ErrShortInput when more
// bytes are required. A rolling cursor guarantees bytes consumed by a partial
// decode are never lost.
type Decoder struct {
	limits Limits
	buf    []byte
	off    int
}

// NewDecoder creates a decoder with the given limits. Zero limit fields fall
// back to the defaults.
func NewDecoder(limits Limits) *Decoder {
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if limits.MaxPayloadBytes <= 0 {
		limits.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Decoder{limits: limits}
}

// Feed appends input bytes to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	// Compact consumed input before growing the buffer
	if d.off > 0 {
		d.buf = append(d.buf[:0], d.buf[d.off:]...)
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of unconsumed bytes held by the decoder.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Next decodes the next complete event from the accumulated input. It
// returns ErrShortInput when the input ends mid-event, or a *DecodeError when
// the stream is malformed.
func (d *Decoder) Next() (*Event, error) {
	pending := d.buf[d.off:]

	nl := bytes.IndexByte(pending, '\n')
	if nl < 0 {
		if len(pending) > d.limits.MaxHeaderBytes {
			return nil, &DecodeError{Reason: fmt.Sprintf(
				"header exceeds %d bytes without terminator", d.limits.MaxHeaderBytes)}
		}
		return nil, ErrShortInput
	}
	if nl > d.limits.MaxHeaderBytes {
		return nil, &DecodeError{Reason: fmt.Sprintf(
			"header length %d exceeds maximum %d", nl, d.limits.MaxHeaderBytes)}
	}

	var header wireHeader
	if err := json.Unmarshal(pending[:nl], &header); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("malformed header: %v", err)}
	}

	if header.Type == "" {
		return nil, &DecodeError{Reason: "header missing event type"}
	}
	if !IsValidType(header.Type) {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown event type %q", header.Type)}
	}
	if header.PayloadLength < 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf(
			"negative payload length %d", header.PayloadLength)}
	}
	if header.PayloadLength > d.limits.MaxPayloadBytes {
		return nil, &DecodeError{Reason: fmt.Sprintf(
			"payload length %d exceeds maximum %d",
			header.PayloadLength, d.limits.MaxPayloadBytes)}
	}
	if header.PayloadLength > 0 && header.Type != TypeAudioChunk {
		return nil, &DecodeError{Reason: fmt.Sprintf(
			"event type %q must not carry a payload", header.Type)}
	}

	total := nl + 1 + header.PayloadLength
	if len(pending) < total {
		return nil, ErrShortInput
	}

	event := &Event{Type: header.Type, Data: header.Data}
	if header.PayloadLength > 0 {
		event.Payload = make([]byte, header.PayloadLength)
		copy(event.Payload, pending[nl+1:total])
	}

	d.off += total
	return event, nil
}

// Reader reads events from an io.Reader, resuming partial decodes across
// short reads.
type Reader struct {
	src     *bufio.Reader
	decoder *Decoder
	chunk   []byte
}

// NewReader creates an event reader over src.
func NewReader(src io.Reader, limits Limits) *Reader {
	return &Reader{
		src:     bufio.NewReader(src),
		decoder: NewDecoder(limits),
		chunk:   make([]byte, 4096),
	}
}

// ReadEvent returns the next event from the stream. It blocks until a
// complete event arrives, the stream ends (io.EOF) or a decode error occurs.
func (r *Reader) ReadEvent() (*Event, error) {
	for {
		event, err := r.decoder.Next()
		if err == nil {
			return event, nil
		}
		if err != ErrShortInput {
			return nil, err
		}

		n, readErr := r.src.Read(r.chunk)
		if n > 0 {
			r.decoder.Feed(r.chunk[:n])
			continue
		}
		if readErr != nil {
			if readErr == io.EOF && r.decoder.Buffered() > 0 {
				return nil, &DecodeError{Reason: "stream ended mid-event"}
			}
			return nil, readErr
		}
	}
}

// Writer writes events to an io.Writer.
type Writer struct {
	dst io.Writer
}

// NewWriter creates an event writer over dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// WriteEvent encodes and writes one event.
func (w *Writer) WriteEvent(event *Event) error {
	encoded, err := Encode(event)
	if err != nil {
		return err
	}
	if _, err := w.dst.Write(encoded); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
