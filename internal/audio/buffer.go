package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrUtteranceTooLong is returned by Append when the accumulated audio would
// exceed the configured maximum utterance duration. Audio is never silently
// truncated; the caller must surface the overflow.
var ErrUtteranceTooLong = errors.New("audio: utterance exceeds maximum buffered duration")

// Buffer accumulates the raw PCM bytes of one utterance, from audio-start to
// audio-stop. It is exclusively owned by the session goroutine serving its
// connection and therefore needs no locking.
type Buffer struct {
	format      Format
	maxDuration time.Duration
	maxBytes    int
	data        []byte
	appends     uint64
}

// NewBuffer creates a buffer for the declared format. maxDuration bounds the
// accumulated audio; zero means unbounded.
func NewBuffer(format Format, maxDuration time.Duration) *Buffer {
	b := &Buffer{}
	b.Reset(format, maxDuration)
	return b
}

// Reset discards all accumulated data and rebinds the buffer to a new format
// and duration cap. Called at every audio-start and after a transcript is
// emitted so stale samples never leak into the next utterance.
func (b *Buffer) Reset(format Format, maxDuration time.Duration) {
	b.format = format
	b.maxDuration = maxDuration
	b.maxBytes = 0
	if maxDuration > 0 {
		b.maxBytes = int(maxDuration.Seconds() * float64(format.BytesPerSecond()))
	}
	b.data = b.data[:0]
	b.appends = 0

	// Pre-allocate roughly two seconds of audio on first use
	if cap(b.data) == 0 && format.BytesPerSecond() > 0 {
		b.data = make([]byte, 0, 2*format.BytesPerSecond())
	}
}

// Append adds chunk bytes to the accumulated utterance. It fails with
// ErrUtteranceTooLong when the duration cap would be exceeded, leaving the
// buffer unchanged.
func (b *Buffer) Append(p []byte) error {
	if b.format.BlockAlign() > 0 && len(p)%b.format.BlockAlign() != 0 {
		return fmt.Errorf("audio: chunk length %d is not a multiple of the %d-byte frame size",
			len(p), b.format.BlockAlign())
	}
	if b.maxBytes > 0 && len(b.data)+len(p) > b.maxBytes {
		return fmt.Errorf("%w: %v accumulated, cap %v",
			ErrUtteranceTooLong, b.Duration(), b.maxDuration)
	}
	b.data = append(b.data, p...)
	b.appends++
	return nil
}

// Bytes returns the accumulated PCM bytes. The returned slice aliases the
// buffer and is only valid until the next Reset.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of accumulated bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Appends returns the number of chunks appended since the last reset.
func (b *Buffer) Appends() uint64 {
	return b.appends
}

// Format returns the format declared at the last reset.
func (b *Buffer) Format() Format {
	return b.format
}

// Duration returns the play time of the accumulated audio.
func (b *Buffer) Duration() time.Duration {
	return b.format.Duration(len(b.data))
}
