package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func mustEvent(t *testing.T) func(event *Event, err error) *Event {
	return func(event *Event, err error) *Event {
		t.Helper()
		if err != nil {
			t.Fatalf("failed to build event: %v", err)
		}
		return event
	}
}

func sampleEvents(t *testing.T) []*Event {
	t.Helper()

	format := AudioFormat{Rate: 16000, Width: 2, Channels: 1}
	info := Info{
		ASR: []Program{{
			Name:        "giga-am-ctc",
			Attribution: Attribution{Name: "SberDevices"},
			Installed:   true,
			Models: []Model{{
				Name:      "gigaAM-CTC",
				Installed: true,
				Languages: []string{"ru"},
				Version:   "1",
			}},
		}},
	}

	return []*Event{
		NewDescribe(),
		mustEvent(t)(NewInfo(info)),
		mustEvent(t)(NewTranscribe("gigaAM-CTC", "ru")),
		mustEvent(t)(NewAudioStart(format)),
		mustEvent(t)(NewAudioChunk(format, []byte{0x01, 0x02, 0x03, 0x04})),
		mustEvent(t)(NewAudioChunk(format, nil)), // zero-length payload
		NewAudioStop(),
		mustEvent(t)(NewTranscript(TranscriptData{Text: "квартирка выключи весь свет"})),
		mustEvent(t)(NewError(ErrorCodeProtocol, "unexpected audio-chunk")),
	}
}

func eventsEqual(a, b *Event) bool {
	if a.Type != b.Type {
		return false
	}
	if !bytes.Equal(a.Payload, b.Payload) {
		return false
	}
	// Data is JSON; compare canonicalized forms
	var av, bv interface{}
	if len(a.Data) > 0 {
		if err := json.Unmarshal(a.Data, &av); err != nil {
			return false
		}
	}
	if len(b.Data) > 0 {
		if err := json.Unmarshal(b.Data, &bv); err != nil {
			return false
		}
	}
	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return bytes.Equal(aj, bj)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, event := range sampleEvents(t) {
		t.Run(event.Type, func(t *testing.T) {
			encoded, err := Encode(event)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoder := NewDecoder(DefaultLimits())
			decoder.Feed(encoded)

			decoded, err := decoder.Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}

			if !eventsEqual(event, decoded) {
				t.Errorf("round trip mismatch: sent %v, got %v", event, decoded)
			}

			if decoder.Buffered() != 0 {
				t.Errorf("expected all input consumed, %d bytes left", decoder.Buffered())
			}
		})
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	// Feeding one byte at a time must yield the same events as one feed
	var stream []byte
	events := sampleEvents(t)
	for _, event := range events {
		encoded, err := Encode(event)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		stream = append(stream, encoded...)
	}

	decoder := NewDecoder(DefaultLimits())
	var decoded []*Event

	for _, b := range stream {
		decoder.Feed([]byte{b})
		for {
			event, err := decoder.Next()
			if err == ErrShortInput {
				break
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			decoded = append(decoded, event)
		}
	}

	if len(decoded) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(decoded))
	}
	for i := range events {
		if !eventsEqual(events[i], decoded[i]) {
			t.Errorf("event %d mismatch: sent %v, got %v", i, events[i], decoded[i])
		}
	}
}

func TestDecoderShortInput(t *testing.T) {
	format := AudioFormat{Rate: 16000, Width: 2, Channels: 1}
	event := mustEvent(t)(NewAudioChunk(format, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	encoded, err := Encode(event)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoder := NewDecoder(DefaultLimits())

	// Header only, payload missing
	nl := bytes.IndexByte(encoded, '\n')
	decoder.Feed(encoded[:nl+3])

	if _, err := decoder.Next(); err != ErrShortInput {
		t.Fatalf("expected ErrShortInput with partial payload, got %v", err)
	}

	// Remainder arrives; partially consumed input must not be lost
	decoder.Feed(encoded[nl+3:])
	decoded, err := decoder.Next()
	if err != nil {
		t.Fatalf("Next failed after completing input: %v", err)
	}
	if !bytes.Equal(decoded.Payload, event.Payload) {
		t.Errorf("payload mismatch: expected %v, got %v", event.Payload, decoded.Payload)
	}
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{
			name:   "malformed header json",
			input:  "{not json}\n",
			reason: "malformed header",
		},
		{
			name:   "missing event type",
			input:  "{\"data\":{}}\n",
			reason: "missing event type",
		},
		{
			name:   "unknown event type",
			input:  "{\"type\":\"reticulate\"}\n",
			reason: "unknown event type",
		},
		{
			name:   "negative payload length",
			input:  "{\"type\":\"audio-chunk\",\"payload_length\":-4}\n",
			reason: "negative payload length",
		},
		{
			name:   "payload exceeds maximum",
			input:  "{\"type\":\"audio-chunk\",\"payload_length\":99999999}\n",
			reason: "exceeds maximum",
		},
		{
			name:   "payload on payload-free event",
			input:  "{\"type\":\"describe\",\"payload_length\":8}\n",
			reason: "must not carry a payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := NewDecoder(DefaultLimits())
			decoder.Feed([]byte(tt.input))

			_, err := decoder.Next()
			decodeErr, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
			if !strings.Contains(decodeErr.Reason, tt.reason) {
				t.Errorf("expected reason to contain %q, got %q", tt.reason, decodeErr.Reason)
			}
		})
	}
}

func TestDecoderHeaderLimit(t *testing.T) {
	decoder := NewDecoder(Limits{MaxHeaderBytes: 64, MaxPayloadBytes: 1024})

	// Unterminated garbage beyond the header limit is rejected, not buffered forever
	decoder.Feed(bytes.Repeat([]byte{'x'}, 80))

	if _, err := decoder.Next(); err == ErrShortInput || err == nil {
		t.Fatalf("expected decode error for oversized unterminated header, got %v", err)
	}
}

func TestReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)

	events := sampleEvents(t)
	for _, event := range events {
		if err := writer.WriteEvent(event); err != nil {
			t.Fatalf("WriteEvent failed: %v", err)
		}
	}

	reader := NewReader(&buf, DefaultLimits())
	for i, want := range events {
		got, err := reader.ReadEvent()
		if err != nil {
			t.Fatalf("ReadEvent %d failed: %v", i, err)
		}
		if !eventsEqual(want, got) {
			t.Errorf("event %d mismatch: sent %v, got %v", i, want, got)
		}
	}
}

func TestParseAudioFormat(t *testing.T) {
	format := AudioFormat{Rate: 8000, Width: 2, Channels: 1, Timestamp: 1701234567}
	event := mustEvent(t)(NewAudioStart(format))

	parsed, err := ParseAudioFormat(event)
	if err != nil {
		t.Fatalf("ParseAudioFormat failed: %v", err)
	}
	if *parsed != format {
		t.Errorf("expected %+v, got %+v", format, *parsed)
	}

	if _, err := ParseAudioFormat(NewAudioStop()); err == nil {
		t.Error("expected error parsing format from audio-stop")
	}
}

func TestParseTranscript(t *testing.T) {
	want := TranscriptData{
		Text: "hello world",
		Segments: []Segment{
			{Start: 0, End: 0.5, Text: "hello", Confidence: 0.91},
			{Start: 0.5, End: 1.0, Text: "world", Confidence: 0.88},
		},
	}
	event := mustEvent(t)(NewTranscript(want))

	got, err := ParseTranscript(event)
	if err != nil {
		t.Fatalf("ParseTranscript failed: %v", err)
	}
	if got.Text != want.Text || len(got.Segments) != len(want.Segments) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestParseInfo(t *testing.T) {
	info := Info{
		ASR: []Program{{
			Name:      "giga-am-ctc",
			Installed: true,
			Models: []Model{{
				Name:      "gigaAM-CTC",
				Installed: true,
				Languages: []string{"ru"},
			}},
		}},
	}
	event := mustEvent(t)(NewInfo(info))

	parsed, err := ParseInfo(event)
	if err != nil {
		t.Fatalf("ParseInfo failed: %v", err)
	}
	if len(parsed.ASR) != 1 || len(parsed.ASR[0].Models) != 1 {
		t.Fatalf("unexpected info shape: %+v", parsed)
	}
	if parsed.ASR[0].Models[0].Languages[0] != "ru" {
		t.Errorf("expected language ru, got %v", parsed.ASR[0].Models[0].Languages)
	}
}
