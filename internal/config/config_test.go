package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return *Default()
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid defaults",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "empty listen uri",
			mutate: func(c *Config) {
				c.Server.ListenURI = ""
			},
			expectError: true,
			errorMsg:    "listen_uri cannot be empty",
		},
		{
			name: "zero concurrent sessions",
			mutate: func(c *Config) {
				c.Server.MaxConcurrentSessions = 0
			},
			expectError: true,
			errorMsg:    "max_concurrent_sessions",
		},
		{
			name: "tiny header cap",
			mutate: func(c *Config) {
				c.Server.MaxHeaderBytes = 10
			},
			expectError: true,
			errorMsg:    "max_header_bytes",
		},
		{
			name: "http enabled without address",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Address = ""
			},
			expectError: true,
			errorMsg:    "http address cannot be empty",
		},
		{
			name: "negative utterance duration",
			mutate: func(c *Config) {
				c.Audio.MaxUtteranceDuration = -1
			},
			expectError: true,
			errorMsg:    "max_utterance_duration",
		},
		{
			name: "chunk cap too small",
			mutate: func(c *Config) {
				c.Audio.MaxChunkBytes = 100
			},
			expectError: true,
			errorMsg:    "max_chunk_bytes",
		},
		{
			name: "unknown engine mode",
			mutate: func(c *Config) {
				c.Engine.Mode = "quantum"
			},
			expectError: true,
			errorMsg:    "mode must be 'static' or 'http'",
		},
		{
			name: "http mode without endpoint",
			mutate: func(c *Config) {
				c.Engine.Mode = "http"
				c.Engine.Endpoint = ""
			},
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name: "http mode with endpoint",
			mutate: func(c *Config) {
				c.Engine.Mode = "http"
				c.Engine.Endpoint = "http://localhost:9000/transcribe"
			},
			expectError: false,
		},
		{
			name: "bad log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name: "bad log format",
			mutate: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectError: true,
			errorMsg:    "format must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Error("expected validation error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error to contain %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  listen_uri: tcp://127.0.0.1:10300
  max_concurrent_sessions: 8
  session_idle_timeout: 60
audio:
  max_utterance_duration: 30
engine:
  mode: http
  endpoint: http://localhost:9000/transcribe
  language: ru
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Server.MaxConcurrentSessions != 8 {
		t.Errorf("expected 8 sessions, got %d", config.Server.MaxConcurrentSessions)
	}
	if config.Server.GetSessionIdleTimeout() != time.Minute {
		t.Errorf("expected 60s idle timeout, got %v", config.Server.GetSessionIdleTimeout())
	}
	if config.Audio.GetMaxUtteranceDuration() != 30*time.Second {
		t.Errorf("expected 30s utterance cap, got %v", config.Audio.GetMaxUtteranceDuration())
	}
	if config.Engine.Mode != "http" {
		t.Errorf("expected http mode, got %q", config.Engine.Mode)
	}

	// Unspecified fields keep their defaults
	if config.Audio.MaxChunkBytes != Default().Audio.MaxChunkBytes {
		t.Errorf("expected default chunk cap, got %d", config.Audio.MaxChunkBytes)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}

	path = filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_uri: \"\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for empty listen_uri")
	}
}
