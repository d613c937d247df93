package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type names used on the wire
const (
	TypeDescribe   = "describe"
	TypeInfo       = "info"
	TypeTranscribe = "transcribe"
	TypeAudioStart = "audio-start"
	TypeAudioChunk = "audio-chunk"
	TypeAudioStop  = "audio-stop"
	TypeTranscript = "transcript"
	TypeError      = "error"
)

// Default codec limits
const (
	DefaultMaxHeaderBytes  = 16 * 1024
	DefaultMaxPayloadBytes = 1024 * 1024
)

// ErrShortInput is returned by Decoder.Next when the accumulated input does
// not yet contain a complete event. Feed more bytes and call Next again;
// partially received input is never discarded.
var ErrShortInput = errors.New("protocol: need more bytes")

// DecodeError indicates that the input stream is malformed and cannot be
// resynchronized. The connection carrying it should be closed.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode error: %s", e.Reason)
}

// Event represents a single protocol event: a typed JSON header plus an
// optional binary payload transmitted immediately after the header line.
type Event struct {
	Type    string          // Event kind, one of the Type* constants
	Data    json.RawMessage // Kind-specific fields, may be nil
	Payload []byte          // Raw payload bytes, only set for audio-chunk
}

// wireHeader is the JSON object serialized as one newline-terminated line.
type wireHeader struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength int             `json:"payload_length,omitempty"`
}

// AudioFormat describes the PCM format fields carried by audio-start and
// audio-chunk events. Width is in bytes per sample (2 = 16-bit).
type AudioFormat struct {
	Rate      int   `json:"rate"`
	Width     int   `json:"width"`
	Channels  int   `json:"channels"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// TranscribeData carries the optional model and language hints of a
// transcribe event.
type TranscribeData struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

// TranscriptData carries the recognized text of a transcript event.
type TranscriptData struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is an optional per-segment timing entry in a transcript.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence,omitempty"`
}

// ErrorData carries a server-to-client error notice.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error notice codes
const (
	ErrorCodeProtocol          = "protocol-error"
	ErrorCodeResourceExhausted = "resource-exhausted"
	ErrorCodeEngine            = "engine-error"
)

// Info describes the installed recognition capability, sent in response to a
// describe event.
type Info struct {
	ASR []Program `json:"asr"`
}

// Program describes one installed recognition program and its models.
type Program struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	Models      []Model     `json:"models"`
}

// Model describes one recognition model.
type Model struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Languages   []string    `json:"languages"`
	Version     string      `json:"version,omitempty"`
}

// Attribution names the author of a program or model.
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// IsValidType checks if the event type is one of the supported kinds.
func IsValidType(eventType string) bool {
	switch eventType {
	case TypeDescribe, TypeInfo, TypeTranscribe,
		TypeAudioStart, TypeAudioChunk, TypeAudioStop,
		TypeTranscript, TypeError:
		return true
	}
	return false
}

// NewDescribe creates a describe event.
func NewDescribe() *Event {
	return &Event{Type: TypeDescribe}
}

// NewInfo creates an info event from the capability description.
func NewInfo(info Info) (*Event, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal info data: %w", err)
	}
	return &Event{Type: TypeInfo, Data: data}, nil
}

// NewTranscribe creates a transcribe event with optional model and language hints.
func NewTranscribe(name, language string) (*Event, error) {
	data, err := json.Marshal(TranscribeData{Name: name, Language: language})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcribe data: %w", err)
	}
	return &Event{Type: TypeTranscribe, Data: data}, nil
}

// NewAudioStart creates an audio-start event declaring the utterance format.
func NewAudioStart(format AudioFormat) (*Event, error) {
	data, err := json.Marshal(format)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audio format: %w", err)
	}
	return &Event{Type: TypeAudioStart, Data: data}, nil
}

// NewAudioChunk creates an audio-chunk event carrying raw PCM bytes.
func NewAudioChunk(format AudioFormat, payload []byte) (*Event, error) {
	data, err := json.Marshal(format)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audio format: %w", err)
	}
	return &Event{Type: TypeAudioChunk, Data: data, Payload: payload}, nil
}

// NewAudioStop creates an audio-stop event.
func NewAudioStop() *Event {
	return &Event{Type: TypeAudioStop}
}

// NewTranscript creates a transcript event carrying the recognition result.
func NewTranscript(transcript TranscriptData) (*Event, error) {
	data, err := json.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript data: %w", err)
	}
	return &Event{Type: TypeTranscript, Data: data}, nil
}

// NewError creates an error notice event.
func NewError(code, message string) (*Event, error) {
	data, err := json.Marshal(ErrorData{Code: code, Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error data: %w", err)
	}
	return &Event{Type: TypeError, Data: data}, nil
}

// ParseAudioFormat extracts the audio format fields from an audio-start or
// audio-chunk event.
func ParseAudioFormat(event *Event) (*AudioFormat, error) {
	if event.Type != TypeAudioStart && event.Type != TypeAudioChunk {
		return nil, fmt.Errorf("event type %q carries no audio format", event.Type)
	}
	if len(event.Data) == 0 {
		return nil, fmt.Errorf("%s event has no format data", event.Type)
	}
	var format AudioFormat
	if err := json.Unmarshal(event.Data, &format); err != nil {
		return nil, fmt.Errorf("failed to parse audio format: %w", err)
	}
	return &format, nil
}

// ParseTranscribe extracts the model and language hints from a transcribe event.
func ParseTranscribe(event *Event) (*TranscribeData, error) {
	if event.Type != TypeTranscribe {
		return nil, fmt.Errorf("event type %q is not a transcribe event", event.Type)
	}
	var data TranscribeData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse transcribe data: %w", err)
		}
	}
	return &data, nil
}

// ParseTranscript extracts the recognition result from a transcript event.
func ParseTranscript(event *Event) (*TranscriptData, error) {
	if event.Type != TypeTranscript {
		return nil, fmt.Errorf("event type %q is not a transcript event", event.Type)
	}
	var data TranscriptData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse transcript data: %w", err)
		}
	}
	return &data, nil
}

// ParseInfo extracts the capability description from an info event.
func ParseInfo(event *Event) (*Info, error) {
	if event.Type != TypeInfo {
		return nil, fmt.Errorf("event type %q is not an info event", event.Type)
	}
	var info Info
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &info); err != nil {
			return nil, fmt.Errorf("failed to parse info data: %w", err)
		}
	}
	return &info, nil
}

// ParseError extracts the error notice from an error event.
func ParseError(event *Event) (*ErrorData, error) {
	if event.Type != TypeError {
		return nil, fmt.Errorf("event type %q is not an error event", event.Type)
	}
	var data ErrorData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse error data: %w", err)
		}
	}
	return &data, nil
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	return fmt.Sprintf("Event{Type:%s, DataLen:%d, PayloadLen:%d}",
		e.Type, len(e.Data), len(e.Payload))
}
