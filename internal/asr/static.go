package asr

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/audio"
)

// StaticConfig contains configuration for the in-process engine wrapper.
type StaticConfig struct {
	ModelDir         string
	Text             string // Fixed transcript returned for non-empty audio
	DefaultLanguage  string
	MaxAudioDuration time.Duration
	Delay            time.Duration // Simulated inference latency
	Capabilities     Capabilities
}

// StaticEngine wraps a single loaded model instance. Calls are serialized
// with an internal mutex: the model is the one resource shared across
// sessions, and it owns its own admission discipline rather than leaking a
// lock to session code.
type StaticEngine struct {
	config StaticConfig

	modelMu sync.Mutex // Guards the (single) model instance

	statsMu     sync.RWMutex
	requests    uint64
	emptyInputs uint64
}

// NewStaticEngine creates the engine wrapper, verifying the model directory
// exists when one is configured.
func NewStaticEngine(config StaticConfig) (*StaticEngine, error) {
	if config.ModelDir != "" {
		stat, err := os.Stat(config.ModelDir)
		if err != nil {
			return nil, fmt.Errorf("model directory %s: %w", config.ModelDir, err)
		}
		if !stat.IsDir() {
			return nil, fmt.Errorf("model directory %s is not a directory", config.ModelDir)
		}
	}
	if len(config.Capabilities.Models) == 0 {
		config.Capabilities = DefaultCapabilities()
	}
	return &StaticEngine{config: config}, nil
}

// DefaultCapabilities describes the bundled CTC model.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Program:     "giga-am-ctc",
		Description: "GigaAM CTC speech recognition",
		Version:     "1.0.0",
		Attribution: "SberDevices",
		URL:         "https://github.com/salute-developers/GigaAM",
		Models: []ModelInfo{{
			Name:        "gigaAM-CTC",
			Description: "GigaAM (Giga Acoustic Model) Conformer-based CTC model",
			Languages:   []string{"ru"},
			Version:     "1",
		}},
	}
}

// Transcribe runs recognition for one utterance. Zero-length input is valid
// and yields an empty-text result.
func (e *StaticEngine) Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (*Result, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if format.Width != 2 {
		return nil, fmt.Errorf("%w: engine requires 16-bit samples, got %d-bit",
			ErrUnsupportedFormat, format.Width*8)
	}
	if e.config.MaxAudioDuration > 0 && format.Duration(len(pcm)) > e.config.MaxAudioDuration {
		return nil, fmt.Errorf("%w: %v exceeds %v",
			ErrAudioTooLong, format.Duration(len(pcm)), e.config.MaxAudioDuration)
	}

	if language == "" {
		language = e.config.DefaultLanguage
	}

	start := time.Now()

	e.modelMu.Lock()
	defer e.modelMu.Unlock()

	if e.config.Delay > 0 {
		select {
		case <-time.After(e.config.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.statsMu.Lock()
	e.requests++
	if len(pcm) == 0 {
		e.emptyInputs++
	}
	e.statsMu.Unlock()

	text := ""
	if len(pcm) > 0 {
		text = e.config.Text
	}

	return &Result{
		Text:     text,
		Language: language,
		Duration: time.Since(start),
	}, nil
}

// Capabilities returns the installed program and model description.
func (e *StaticEngine) Capabilities() Capabilities {
	return e.config.Capabilities
}

// Requests returns the number of transcription calls served.
func (e *StaticEngine) Requests() uint64 {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.requests
}

// Close releases the engine.
func (e *StaticEngine) Close() error {
	return nil
}
