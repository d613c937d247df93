package asr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/audio"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/protocol"
)

// Engine error taxonomy. Engine failures are non-retriable for the utterance
// that produced them; the same audio is never re-driven through the engine.
var (
	ErrUnsupportedFormat = errors.New("asr: unsupported sample format")
	ErrAudioTooLong      = errors.New("asr: audio exceeds the engine's maximum context")
)

// EngineError wraps an internal recognition failure.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("asr: engine failure: %v", e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Result is the outcome of transcribing one utterance. It is immutable once
// produced.
type Result struct {
	Text       string
	Language   string
	Confidence float32
	Segments   []Segment
	Duration   time.Duration // Engine processing time
}

// Segment is an optional per-segment timing entry.
type Segment struct {
	Start      float64
	End        float64
	Text       string
	Confidence float32
}

// Transcriber is the boundary to the recognition engine. Transcribe may block
// for the full inference latency; implementations own their concurrency
// discipline (internal serialization or a bounded pool) so callers may issue
// calls concurrently from many sessions. Empty input must yield an empty-text
// result, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (*Result, error)
	Capabilities() Capabilities
	Close() error
}

// Capabilities describes the installed recognition program and models,
// reported to clients that send a describe event.
type Capabilities struct {
	Program     string
	Description string
	Version     string
	Attribution string
	URL         string
	Models      []ModelInfo
}

// ModelInfo describes one installed model.
type ModelInfo struct {
	Name        string
	Description string
	Languages   []string
	Version     string
}

// WireInfo converts the capability description to its wire representation,
// sent in response to a describe event.
func (c Capabilities) WireInfo() protocol.Info {
	program := protocol.Program{
		Name:        c.Program,
		Description: c.Description,
		Version:     c.Version,
		Installed:   true,
		Attribution: protocol.Attribution{Name: c.Attribution, URL: c.URL},
	}
	for _, model := range c.Models {
		program.Models = append(program.Models, protocol.Model{
			Name:        model.Name,
			Description: model.Description,
			Version:     model.Version,
			Installed:   true,
			Languages:   model.Languages,
			Attribution: program.Attribution,
		})
	}
	return protocol.Info{ASR: []protocol.Program{program}}
}

// Languages returns the union of languages across all installed models.
func (c Capabilities) Languages() []string {
	seen := make(map[string]bool)
	var languages []string
	for _, model := range c.Models {
		for _, lang := range model.Languages {
			if !seen[lang] {
				seen[lang] = true
				languages = append(languages, lang)
			}
		}
	}
	return languages
}
