package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/asr"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/config"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/metrics"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/protocol"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/session"
)

// TCPServer accepts client connections and runs one session per connection
type TCPServer struct {
	config  *config.Config
	logger  *slog.Logger
	engine  asr.Transcriber
	info    protocol.Info
	metrics *metrics.Metrics

	listener net.Listener

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Admission bound: one slot per active session
	slots chan struct{}

	// Active session registry, for the monitoring API and for closing
	// connections on shutdown
	mu       sync.RWMutex
	sessions map[string]*activeSession

	// Basic counters
	connectionsAccepted uint64
	connectionsRejected uint64
	sessionsCompleted   uint64
	sessionErrors       uint64
}

// NewTCPServer creates a new server instance
func NewTCPServer(cfg *config.Config, logger *slog.Logger, engine asr.Transcriber, info protocol.Info, m *metrics.Metrics) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &TCPServer{
		config:   cfg,
		logger:   logger,
		engine:   engine,
		info:     info,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, cfg.Server.MaxConcurrentSessions),
		sessions: make(map[string]*activeSession),
	}
}

// activeSession pairs a running session with its connection so shutdown can
// unblock the session's read loop.
type activeSession struct {
	sess *session.Session
	conn net.Conn
}

// ParseListenURI splits a listen URI into a network and address usable with
// net.Listen. Supported schemes are tcp://host:port and unix:///path.
func ParseListenURI(uri string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(uri, "tcp://"):
		address = strings.TrimPrefix(uri, "tcp://")
		if _, _, err := net.SplitHostPort(address); err != nil {
			return "", "", fmt.Errorf("invalid tcp listen URI %q: %w", uri, err)
		}
		return "tcp", address, nil
	case strings.HasPrefix(uri, "unix://"):
		address = strings.TrimPrefix(uri, "unix://")
		if address == "" {
			return "", "", fmt.Errorf("invalid unix listen URI %q: empty path", uri)
		}
		return "unix", address, nil
	default:
		return "", "", fmt.Errorf("unsupported listen URI %q (want tcp:// or unix://)", uri)
	}
}

// Start begins accepting connections
func (s *TCPServer) Start() error {
	network, address, err := ParseListenURI(s.config.Server.ListenURI)
	if err != nil {
		return err
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenURI, err)
	}
	s.listener = listener

	s.logger.Info("Server started",
		slog.String("uri", s.config.Server.ListenURI),
		slog.Int("max_sessions", s.config.Server.MaxConcurrentSessions),
	)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound listener address, valid after Start. Useful when
// listening on an ephemeral port.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server, closing the listener and waiting for all
// sessions to finish
func (s *TCPServer) Stop() error {
	s.logger.Info("Stopping server...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
		}
	}

	// Unblock sessions waiting in their read loop. Sessions accepted after
	// the cancel observe the context before their first read.
	s.mu.RLock()
	for _, active := range s.sessions {
		active.conn.Close()
	}
	s.mu.RUnlock()

	s.wg.Wait()

	s.mu.RLock()
	accepted := s.connectionsAccepted
	rejected := s.connectionsRejected
	completed := s.sessionsCompleted
	errored := s.sessionErrors
	s.mu.RUnlock()

	s.logger.Info("Server stopped",
		slog.Uint64("connections_accepted", accepted),
		slog.Uint64("connections_rejected", rejected),
		slog.Uint64("sessions_completed", completed),
		slog.Uint64("session_errors", errored),
	)

	return nil
}

// acceptLoop is the main connection accepting loop
func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to accept connection", slog.String("error", err.Error()))
			continue
		}

		select {
		case s.slots <- struct{}{}:
			s.mu.Lock()
			s.connectionsAccepted++
			s.mu.Unlock()
			s.metrics.RecordConnectionAccepted()

			s.wg.Add(1)
			go s.handleConnection(conn)

		default:
			// At capacity: refuse explicitly, never leave the client hanging
			s.mu.Lock()
			s.connectionsRejected++
			s.mu.Unlock()
			s.metrics.RecordConnectionRejected()

			s.logger.Warn("Rejecting connection, session limit reached",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Int("limit", s.config.Server.MaxConcurrentSessions),
			)
			s.rejectConnection(conn)
		}
	}
}

// rejectConnection sends a resource-exhausted notice and closes the connection
func (s *TCPServer) rejectConnection(conn net.Conn) {
	defer conn.Close()

	event, err := protocol.NewError(protocol.ErrorCodeResourceExhausted,
		"session limit reached, try again later")
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = protocol.NewWriter(conn).WriteEvent(event)
}

// handleConnection runs one session to completion
func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.slots }()
	defer conn.Close()

	sess := session.New(
		conn.RemoteAddr().String(),
		s.logger,
		s.engine,
		s.info,
		session.Config{
			MaxUtteranceDuration: s.config.Audio.GetMaxUtteranceDuration(),
			DefaultLanguage:      s.config.Engine.Language,
			Limits: protocol.Limits{
				MaxHeaderBytes:  s.config.Server.MaxHeaderBytes,
				MaxPayloadBytes: s.config.Audio.MaxChunkBytes,
			},
		},
		&sessionObserver{metrics: s.metrics},
	)

	s.registerSession(sess, conn)
	s.metrics.RecordSessionCreated()
	start := time.Now()

	err := sess.Run(s.ctx, conn, s.config.Server.GetSessionIdleTimeout())

	s.metrics.RecordSessionClosed(time.Since(start).Seconds())
	s.unregisterSession(sess)

	s.mu.Lock()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.sessionErrors++
	} else {
		s.sessionsCompleted++
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		var decodeErr *protocol.DecodeError
		if errors.As(err, &decodeErr) {
			s.metrics.RecordDecodeError()
		}
		s.logger.Warn("Session ended with error",
			slog.String("session_id", sess.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TCPServer) registerSession(sess *session.Session, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = &activeSession{sess: sess, conn: conn}
}

func (s *TCPServer) unregisterSession(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID())
}

// Sessions returns snapshots of all active sessions
func (s *TCPServer) Sessions() []session.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]session.Info, 0, len(s.sessions))
	for _, active := range s.sessions {
		infos = append(infos, active.sess.Snapshot())
	}
	return infos
}

// Session returns the snapshot of one active session by ID
func (s *TCPServer) Session(id string) (session.Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active, ok := s.sessions[id]
	if !ok {
		return session.Info{}, false
	}
	return active.sess.Snapshot(), true
}

// GetStatistics returns current server statistics
func (s *TCPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		ConnectionsAccepted: s.connectionsAccepted,
		ConnectionsRejected: s.connectionsRejected,
		SessionsCompleted:   s.sessionsCompleted,
		SessionErrors:       s.sessionErrors,
		ActiveSessions:      uint64(len(s.sessions)),
		SessionCapacity:     uint64(cap(s.slots)),
	}
}

// ServerStatistics represents server counters for the monitoring API
type ServerStatistics struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ConnectionsRejected uint64 `json:"connections_rejected"`
	SessionsCompleted   uint64 `json:"sessions_completed"`
	SessionErrors       uint64 `json:"session_errors"`
	ActiveSessions      uint64 `json:"active_sessions"`
	SessionCapacity     uint64 `json:"session_capacity"`
}

// sessionObserver forwards session activity to Prometheus
type sessionObserver struct {
	metrics *metrics.Metrics
}

func (o *sessionObserver) EventReceived(eventType string) {
	o.metrics.RecordEventReceived(eventType)
}

func (o *sessionObserver) UtteranceFinished(audioBytes int, audioDuration, engineTime time.Duration, err error) {
	o.metrics.RecordUtterance(audioBytes, audioDuration.Seconds())
	if err != nil {
		o.metrics.RecordTranscriptionFailure(engineTime.Seconds())
	} else {
		o.metrics.RecordTranscriptionSuccess(engineTime.Seconds())
	}
}
