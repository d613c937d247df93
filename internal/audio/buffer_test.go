package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func testFormat() Format {
	return Format{Rate: 16000, Width: 2, Channels: 1}
}

func TestNewBuffer(t *testing.T) {
	buffer := NewBuffer(testFormat(), 30*time.Second)

	if buffer.Len() != 0 {
		t.Errorf("expected empty buffer, got %d bytes", buffer.Len())
	}
	if buffer.Duration() != 0 {
		t.Errorf("expected zero duration, got %v", buffer.Duration())
	}
	if buffer.Format() != testFormat() {
		t.Errorf("expected format %v, got %v", testFormat(), buffer.Format())
	}
}

func TestBufferAppendAccumulatesInOrder(t *testing.T) {
	buffer := NewBuffer(testFormat(), 30*time.Second)

	chunks := [][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0x05, 0x06},
		{0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C},
	}

	var want []byte
	for i, chunk := range chunks {
		if err := buffer.Append(chunk); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		want = append(want, chunk...)
	}

	if !bytes.Equal(buffer.Bytes(), want) {
		t.Errorf("expected accumulated bytes %v, got %v", want, buffer.Bytes())
	}
	if buffer.Appends() != uint64(len(chunks)) {
		t.Errorf("expected %d appends, got %d", len(chunks), buffer.Appends())
	}
}

func TestBufferAppendRejectsMisalignedChunk(t *testing.T) {
	buffer := NewBuffer(testFormat(), 0)

	// 3 bytes is not a whole number of 16-bit mono frames
	if err := buffer.Append([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for misaligned chunk")
	}
	if buffer.Len() != 0 {
		t.Errorf("failed append must not mutate the buffer, got %d bytes", buffer.Len())
	}
}

func TestBufferDurationCap(t *testing.T) {
	format := testFormat()
	buffer := NewBuffer(format, 100*time.Millisecond)

	// 100ms at 16kHz 16-bit mono = 3200 bytes
	if err := buffer.Append(make([]byte, 3200)); err != nil {
		t.Fatalf("append within cap failed: %v", err)
	}

	err := buffer.Append(make([]byte, 2))
	if !errors.Is(err, ErrUtteranceTooLong) {
		t.Fatalf("expected ErrUtteranceTooLong, got %v", err)
	}

	// Overflow must not silently truncate: buffer keeps only the accepted bytes
	if buffer.Len() != 3200 {
		t.Errorf("expected 3200 bytes after rejected append, got %d", buffer.Len())
	}
}

func TestBufferResetDiscardsResidue(t *testing.T) {
	buffer := NewBuffer(testFormat(), 30*time.Second)

	if err := buffer.Append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	newFormat := Format{Rate: 8000, Width: 2, Channels: 1}
	buffer.Reset(newFormat, 10*time.Second)

	if buffer.Len() != 0 {
		t.Errorf("expected empty buffer after reset, got %d bytes", buffer.Len())
	}
	if buffer.Appends() != 0 {
		t.Errorf("expected append counter reset, got %d", buffer.Appends())
	}
	if buffer.Format() != newFormat {
		t.Errorf("expected format %v after reset, got %v", newFormat, buffer.Format())
	}

	// A new cycle never observes bytes from a prior cycle
	if err := buffer.Append([]byte{9, 9}); err != nil {
		t.Fatalf("Append after reset failed: %v", err)
	}
	if !bytes.Equal(buffer.Bytes(), []byte{9, 9}) {
		t.Errorf("expected only new bytes after reset, got %v", buffer.Bytes())
	}
}

func TestBufferDuration(t *testing.T) {
	buffer := NewBuffer(testFormat(), 0)

	// One second of 16kHz 16-bit mono audio
	if err := buffer.Append(make([]byte, 32000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got := buffer.Duration(); got != time.Second {
		t.Errorf("expected 1s duration, got %v", got)
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name        string
		format      Format
		expectError bool
	}{
		{"valid 16k mono", Format{Rate: 16000, Width: 2, Channels: 1}, false},
		{"valid 8k mono", Format{Rate: 8000, Width: 2, Channels: 1}, false},
		{"valid stereo", Format{Rate: 44100, Width: 2, Channels: 2}, false},
		{"rate too low", Format{Rate: 4000, Width: 2, Channels: 1}, true},
		{"rate too high", Format{Rate: 400000, Width: 2, Channels: 1}, true},
		{"bad width", Format{Rate: 16000, Width: 3, Channels: 1}, true},
		{"zero channels", Format{Rate: 16000, Width: 2, Channels: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.expectError && err == nil {
				t.Errorf("expected error for %v", tt.format)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for %v: %v", tt.format, err)
			}
		})
	}
}
