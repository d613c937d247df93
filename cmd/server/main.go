package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/asr"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/config"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/metrics"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "wyoming-giga-am-ctc"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	uri := flag.String("uri", "", "Listen URI, overrides configuration (tcp://host:port or unix:///path)")
	dataDir := flag.String("data-dir", "", "Model data directory, overrides configuration")
	language := flag.String("language", "", "Default transcription language, overrides configuration")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// A missing default config file is not an error; explicit paths are
		if *configPath != defaultConfigPath || !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	// Apply flag overrides
	if *uri != "" {
		cfg.Server.ListenURI = *uri
	}
	if *dataDir != "" {
		cfg.Engine.ModelDir = *dataDir
	}
	if *language != "" {
		cfg.Engine.Language = *language
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("listen_uri", cfg.Server.ListenURI),
		slog.Int("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
		slog.String("engine_mode", cfg.Engine.Mode),
		slog.String("language", cfg.Engine.Language),
		slog.Float64("max_utterance_duration", cfg.Audio.MaxUtteranceDuration),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the recognition engine
	engine, err := newEngine(cfg)
	if err != nil {
		logger.Error("Failed to create recognition engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()
	logger.Info("Recognition engine initialized",
		slog.String("mode", cfg.Engine.Mode),
		slog.String("program", engine.Capabilities().Program),
	)

	// Initialize TCP server
	tcpServer := server.NewTCPServer(cfg, logger, engine, engine.Capabilities().WireInfo(), appMetrics)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, tcpServer, engine, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start TCP server
	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_uri", cfg.Server.ListenURI),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop TCP server (closes listener, waits for sessions)
	if err := tcpServer.Stop(); err != nil {
		logger.Error("Error stopping server", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := tcpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("connections_accepted", stats.ConnectionsAccepted),
		slog.Uint64("connections_rejected", stats.ConnectionsRejected),
		slog.Uint64("sessions_completed", stats.SessionsCompleted),
		slog.Uint64("session_errors", stats.SessionErrors),
	)

	logger.Info("Service stopped")
}

// newEngine constructs the recognition engine selected by configuration
func newEngine(cfg *config.Config) (asr.Transcriber, error) {
	switch cfg.Engine.Mode {
	case "static":
		return asr.NewStaticEngine(asr.StaticConfig{
			ModelDir:         cfg.Engine.ModelDir,
			DefaultLanguage:  cfg.Engine.Language,
			MaxAudioDuration: cfg.Engine.GetMaxAudioDuration(),
		})
	case "http":
		return asr.NewHTTPEngine(asr.HTTPConfig{
			Endpoint:         cfg.Engine.Endpoint,
			APIKey:           cfg.Engine.APIKey,
			Model:            cfg.Engine.Model,
			DefaultLanguage:  cfg.Engine.Language,
			Timeout:          cfg.Engine.GetTimeoutDuration(),
			MaxRetries:       cfg.Engine.MaxRetries,
			MaxConcurrent:    cfg.Engine.MaxConcurrent,
			MaxAudioDuration: cfg.Engine.GetMaxAudioDuration(),
		})
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Engine.Mode)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
