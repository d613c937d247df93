package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Audio   AudioConfig   `yaml:"audio"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains event server configuration
type ServerConfig struct {
	ListenURI             string `yaml:"listen_uri"`              // tcp://host:port or unix:///path
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"` // admission bound
	SessionIdleTimeout    int    `yaml:"session_idle_timeout"`    // seconds, 0 disables
	MaxHeaderBytes        int    `yaml:"max_header_bytes"`        // event header size cap
}

// HTTPConfig contains the monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AudioConfig contains audio acceptance parameters
type AudioConfig struct {
	MaxUtteranceDuration float64 `yaml:"max_utterance_duration"` // seconds
	MaxChunkBytes        int     `yaml:"max_chunk_bytes"`        // single chunk payload cap
}

// EngineConfig contains recognition engine configuration
type EngineConfig struct {
	Mode             string  `yaml:"mode"`     // "static" or "http"
	Endpoint         string  `yaml:"endpoint"` // http mode only
	APIKey           string  `yaml:"api_key"`
	Model            string  `yaml:"model"`
	ModelDir         string  `yaml:"model_dir"`
	Language         string  `yaml:"language"` // default language hint
	Timeout          int     `yaml:"timeout"`  // seconds
	MaxRetries       int     `yaml:"max_retries"`
	MaxConcurrent    int     `yaml:"max_concurrent"`
	MaxAudioDuration float64 `yaml:"max_audio_duration"` // engine context limit, seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenURI:             "tcp://0.0.0.0:10300",
			MaxConcurrentSessions: 64,
			SessionIdleTimeout:    300,
			MaxHeaderBytes:        16 * 1024,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Audio: AudioConfig{
			MaxUtteranceDuration: 120,
			MaxChunkBytes:        1024 * 1024,
		},
		Engine: EngineConfig{
			Mode:             "static",
			Language:         "ru",
			Timeout:          60,
			MaxRetries:       3,
			MaxConcurrent:    4,
			MaxAudioDuration: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.ListenURI == "" {
		return fmt.Errorf("listen_uri cannot be empty")
	}

	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", s.MaxConcurrentSessions)
	}

	if s.SessionIdleTimeout < 0 {
		return fmt.Errorf("session_idle_timeout cannot be negative, got %d", s.SessionIdleTimeout)
	}

	if s.MaxHeaderBytes < 256 {
		return fmt.Errorf("max_header_bytes must be at least 256, got %d", s.MaxHeaderBytes)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MaxUtteranceDuration <= 0 {
		return fmt.Errorf("max_utterance_duration must be positive, got %f", a.MaxUtteranceDuration)
	}

	if a.MaxChunkBytes < 1024 {
		return fmt.Errorf("max_chunk_bytes must be at least 1024, got %d", a.MaxChunkBytes)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	switch e.Mode {
	case "static":
		// model_dir is optional for the static engine
	case "http":
		if e.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty in http mode")
		}
	default:
		return fmt.Errorf("mode must be 'static' or 'http', got '%s'", e.Mode)
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	if e.MaxAudioDuration <= 0 {
		return fmt.Errorf("max_audio_duration must be positive, got %f", e.MaxAudioDuration)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSessionIdleTimeout returns the session idle timeout as a time.Duration
func (s *ServerConfig) GetSessionIdleTimeout() time.Duration {
	return time.Duration(s.SessionIdleTimeout) * time.Second
}

// GetMaxUtteranceDuration returns the utterance cap as a time.Duration
func (a *AudioConfig) GetMaxUtteranceDuration() time.Duration {
	return time.Duration(a.MaxUtteranceDuration * float64(time.Second))
}

// GetTimeoutDuration returns the engine timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// GetMaxAudioDuration returns the engine context limit as a time.Duration
func (e *EngineConfig) GetMaxAudioDuration() time.Duration {
	return time.Duration(e.MaxAudioDuration * float64(time.Second))
}
