package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/asr"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/audio"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/protocol"
)

// State is the protocol state of one session.
type State int

const (
	StateIdle      State = iota // No audio in flight
	StateStreaming              // Between audio-start and audio-stop
	StateFinalizing             // Recognition in progress
	StateClosed                 // Terminal
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session-level error taxonomy. Sequencing and format violations are fatal to
// the session: resynchronizing by guessing the sender's intent risks
// transcribing corrupted audio.
var (
	ErrBadSequence    = errors.New("session: event violates protocol sequencing")
	ErrFormatMismatch = errors.New("session: chunk format does not match declared utterance format")
	ErrClosed         = errors.New("session: session is closed")
)

// Config contains per-session processing parameters.
type Config struct {
	MaxUtteranceDuration time.Duration
	DefaultLanguage      string
	Limits               protocol.Limits
}

// Events observes session activity for metrics. A nil observer method set is
// allowed.
type Events interface {
	EventReceived(eventType string)
	UtteranceFinished(audioBytes int, audioDuration, engineTime time.Duration, err error)
}

// Session drives the protocol state machine for one connection. All events
// are handled in arrival order by the single goroutine that owns the session;
// the mutex only guards the snapshot read by the monitoring API.
type Session struct {
	id       string
	remote   string
	logger   *slog.Logger
	engine   asr.Transcriber
	info     protocol.Info
	config   Config
	observer Events

	writer *protocol.Writer

	mu           sync.RWMutex
	state        State
	format       audio.Format
	buffer       *audio.Buffer
	language     string
	startTime    time.Time
	lastActivity time.Time

	eventsHandled uint64
	utterances    uint64
	transcripts   uint64
	engineErrors  uint64
}

// New creates a session for one accepted connection.
func New(remote string, logger *slog.Logger, engine asr.Transcriber, info protocol.Info, config Config, observer Events) *Session {
	now := time.Now()
	id := uuid.NewString()

	return &Session{
		id:           id,
		remote:       remote,
		logger:       logger.With(slog.String("session_id", id), slog.String("remote", remote)),
		engine:       engine,
		info:         info,
		config:       config,
		observer:     observer,
		state:        StateIdle,
		language:     config.DefaultLanguage,
		startTime:    now,
		lastActivity: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// deadlineConn is implemented by net.Conn; the session uses it to enforce the
// idle timeout between events.
type deadlineConn interface {
	SetReadDeadline(t time.Time) error
}

// Run handles the connection until it closes, a fatal protocol error occurs,
// or ctx is cancelled. It always leaves the session in StateClosed.
func (s *Session) Run(ctx context.Context, conn io.ReadWriter, idleTimeout time.Duration) error {
	defer s.close()

	reader := protocol.NewReader(conn, s.config.Limits)
	s.writer = protocol.NewWriter(conn)

	deadliner, hasDeadline := conn.(deadlineConn)

	s.logger.Debug("Session started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if hasDeadline && idleTimeout > 0 {
			if err := deadliner.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %w", err)
			}
		}

		event, err := reader.ReadEvent()
		if err != nil {
			// Shutdown closes the connection under us; report the
			// cancellation, not the read failure it provokes
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err == io.EOF {
				s.logger.Debug("Connection closed by peer")
				return nil
			}
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				s.logger.Warn("Closing session on decode error",
					slog.String("error", decodeErr.Reason))
				s.notifyError(protocol.ErrorCodeProtocol, decodeErr.Reason)
				return decodeErr
			}
			return fmt.Errorf("read failed: %w", err)
		}

		if err := s.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
}

// HandleEvent applies one decoded event to the state machine. A returned
// error is fatal to the session.
func (s *Session) HandleEvent(ctx context.Context, event *protocol.Event) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.eventsHandled++
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.EventReceived(event.Type)
	}

	switch event.Type {
	case protocol.TypeDescribe:
		// Answered in any state without touching audio state
		return s.sendInfo()

	case protocol.TypeTranscribe:
		return s.handleTranscribe(event)

	case protocol.TypeAudioStart:
		return s.handleAudioStart(event)

	case protocol.TypeAudioChunk:
		return s.handleAudioChunk(event)

	case protocol.TypeAudioStop:
		return s.handleAudioStop(ctx)

	default:
		// Server-to-client kinds arriving inbound are a protocol violation
		s.logger.Warn("Rejecting unexpected inbound event",
			slog.String("type", event.Type),
			slog.String("state", s.State().String()))
		s.notifyError(protocol.ErrorCodeProtocol,
			fmt.Sprintf("unexpected inbound event %q", event.Type))
		return fmt.Errorf("%w: inbound %s", ErrBadSequence, event.Type)
	}
}

func (s *Session) handleTranscribe(event *protocol.Event) error {
	data, err := protocol.ParseTranscribe(event)
	if err != nil {
		s.notifyError(protocol.ErrorCodeProtocol, err.Error())
		return err
	}

	if data.Language != "" {
		s.mu.Lock()
		s.language = data.Language
		s.mu.Unlock()
	}

	s.logger.Debug("Transcribe hint recorded",
		slog.String("model", data.Name),
		slog.String("language", data.Language))
	return nil
}

func (s *Session) handleAudioStart(event *protocol.Event) error {
	if state := s.State(); state != StateIdle {
		s.notifyError(protocol.ErrorCodeProtocol,
			fmt.Sprintf("audio-start while %s", state))
		return fmt.Errorf("%w: audio-start while %s", ErrBadSequence, state)
	}

	wireFormat, err := protocol.ParseAudioFormat(event)
	if err != nil {
		s.notifyError(protocol.ErrorCodeProtocol, err.Error())
		return err
	}

	format := audio.Format{
		Rate:     wireFormat.Rate,
		Width:    wireFormat.Width,
		Channels: wireFormat.Channels,
	}
	if err := format.Validate(); err != nil {
		s.notifyError(protocol.ErrorCodeProtocol, err.Error())
		return fmt.Errorf("invalid audio-start format: %w", err)
	}

	s.mu.Lock()
	s.format = format
	if s.buffer == nil {
		s.buffer = audio.NewBuffer(format, s.config.MaxUtteranceDuration)
	} else {
		// Reset, not clear: residue from a prior cycle is discarded
		s.buffer.Reset(format, s.config.MaxUtteranceDuration)
	}
	s.state = StateStreaming
	s.mu.Unlock()

	s.logger.Debug("Utterance started", slog.String("format", format.String()))
	return nil
}

func (s *Session) handleAudioChunk(event *protocol.Event) error {
	if state := s.State(); state != StateStreaming {
		s.notifyError(protocol.ErrorCodeProtocol,
			fmt.Sprintf("audio-chunk while %s", state))
		return fmt.Errorf("%w: audio-chunk while %s", ErrBadSequence, state)
	}

	// Chunk format fields, when present, must match the declared format;
	// a mismatch is a protocol error, never a silent coercion
	if len(event.Data) > 0 {
		wireFormat, err := protocol.ParseAudioFormat(event)
		if err != nil {
			s.notifyError(protocol.ErrorCodeProtocol, err.Error())
			return err
		}
		chunkFormat := audio.Format{
			Rate:     wireFormat.Rate,
			Width:    wireFormat.Width,
			Channels: wireFormat.Channels,
		}
		if chunkFormat != (audio.Format{}) && chunkFormat != s.format {
			s.notifyError(protocol.ErrorCodeProtocol,
				fmt.Sprintf("chunk format %s does not match utterance format %s",
					chunkFormat, s.format))
			return fmt.Errorf("%w: got %s, declared %s",
				ErrFormatMismatch, chunkFormat, s.format)
		}
	}

	if err := s.buffer.Append(event.Payload); err != nil {
		if errors.Is(err, audio.ErrUtteranceTooLong) {
			// The utterance audio is now unusable; refuse explicitly and close
			s.logger.Warn("Utterance exceeded maximum duration",
				slog.Duration("cap", s.config.MaxUtteranceDuration))
			s.notifyError(protocol.ErrorCodeResourceExhausted, err.Error())
			return err
		}
		s.notifyError(protocol.ErrorCodeProtocol, err.Error())
		return err
	}

	return nil
}

func (s *Session) handleAudioStop(ctx context.Context) error {
	if state := s.State(); state != StateStreaming {
		s.notifyError(protocol.ErrorCodeProtocol,
			fmt.Sprintf("audio-stop while %s", state))
		return fmt.Errorf("%w: audio-stop while %s", ErrBadSequence, state)
	}

	s.mu.Lock()
	s.state = StateFinalizing
	s.utterances++
	pcm := s.buffer.Bytes()
	format := s.format
	language := s.language
	audioDuration := s.buffer.Duration()
	s.mu.Unlock()

	s.logger.Debug("Utterance finished, transcribing",
		slog.Int("audio_bytes", len(pcm)),
		slog.Duration("audio_duration", audioDuration))

	// May block for the full inference latency; only this session waits
	start := time.Now()
	result, err := s.engine.Transcribe(ctx, pcm, format, language)
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer.UtteranceFinished(len(pcm), audioDuration, elapsed, err)
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Engine failure is local to this utterance: report it and return to
		// idle rather than re-driving the same audio through the engine
		s.mu.Lock()
		s.engineErrors++
		s.buffer.Reset(format, s.config.MaxUtteranceDuration)
		s.state = StateIdle
		s.mu.Unlock()

		s.logger.Error("Transcription failed",
			slog.String("error", err.Error()),
			slog.Duration("engine_time", elapsed))
		s.notifyError(protocol.ErrorCodeEngine, "transcription failed")
		return nil
	}

	transcript := protocol.TranscriptData{
		Text:     result.Text,
		Language: result.Language,
	}
	for _, seg := range result.Segments {
		transcript.Segments = append(transcript.Segments, protocol.Segment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}

	event, err := protocol.NewTranscript(transcript)
	if err != nil {
		return err
	}
	if err := s.writer.WriteEvent(event); err != nil {
		return err
	}

	s.mu.Lock()
	s.transcripts++
	s.buffer.Reset(format, s.config.MaxUtteranceDuration)
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("Transcript emitted",
		slog.Int("text_len", len(result.Text)),
		slog.Duration("audio_duration", audioDuration),
		slog.Duration("engine_time", elapsed))
	return nil
}

// sendInfo answers a describe event with the capability description.
func (s *Session) sendInfo() error {
	event, err := protocol.NewInfo(s.info)
	if err != nil {
		return err
	}
	if err := s.writer.WriteEvent(event); err != nil {
		return err
	}
	s.logger.Debug("Sent info")
	return nil
}

// notifyError sends a best-effort error notice before the session closes or
// recovers; write failures are ignored since the connection may already be
// gone.
func (s *Session) notifyError(code, message string) {
	if s.writer == nil {
		return
	}
	if event, err := protocol.NewError(code, message); err == nil {
		_ = s.writer.WriteEvent(event)
	}
}

// close releases session resources and moves to the terminal state.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	if s.buffer != nil {
		s.buffer.Reset(s.format, s.config.MaxUtteranceDuration)
	}
}

// Info is a session snapshot for the monitoring API.
type Info struct {
	ID            string        `json:"id"`
	Remote        string        `json:"remote"`
	State         string        `json:"state"`
	Language      string        `json:"language,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	LastActivity  time.Time     `json:"last_activity"`
	Duration      time.Duration `json:"duration"`
	EventsHandled uint64        `json:"events_handled"`
	Utterances    uint64        `json:"utterances"`
	Transcripts   uint64        `json:"transcripts"`
	EngineErrors  uint64        `json:"engine_errors"`
	BufferedBytes int           `json:"buffered_bytes"`
}

// Snapshot returns the current session information.
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buffered := 0
	if s.buffer != nil {
		buffered = s.buffer.Len()
	}

	return Info{
		ID:            s.id,
		Remote:        s.remote,
		State:         s.state.String(),
		Language:      s.language,
		StartTime:     s.startTime,
		LastActivity:  s.lastActivity,
		Duration:      time.Since(s.startTime),
		EventsHandled: s.eventsHandled,
		Utterances:    s.utterances,
		Transcripts:   s.transcripts,
		EngineErrors:  s.engineErrors,
		BufferedBytes: buffered,
	}
}
