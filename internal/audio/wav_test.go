package audio

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	format := Format{Rate: 16000, Width: 2, Channels: 1}

	pcm := make([]byte, 640)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	encoded, err := EncodeWAV(pcm, format)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(encoded) != wavHeaderSize+len(pcm) {
		t.Errorf("expected %d bytes, got %d", wavHeaderSize+len(pcm), len(encoded))
	}

	decoded, decodedFormat, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if decodedFormat != format {
		t.Errorf("expected format %v, got %v", format, decodedFormat)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("decoded PCM does not match input")
	}
}

func TestEncodeWAVEmptyInput(t *testing.T) {
	format := Format{Rate: 16000, Width: 2, Channels: 1}

	encoded, err := EncodeWAV(nil, format)
	if err != nil {
		t.Fatalf("EncodeWAV with empty input failed: %v", err)
	}
	if len(encoded) != wavHeaderSize {
		t.Errorf("expected header-only file of %d bytes, got %d", wavHeaderSize, len(encoded))
	}

	decoded, _, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV of empty file failed: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("expected no PCM data, got %d bytes", len(decoded))
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV([]byte{1, 2}, Format{Rate: 0, Width: 2, Channels: 1}); err == nil {
		t.Error("expected error for invalid format")
	}
	if _, err := EncodeWAV([]byte{1, 2, 3}, Format{Rate: 16000, Width: 2, Channels: 1}); err == nil {
		t.Error("expected error for misaligned PCM length")
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("too short")); err == nil {
		t.Error("expected error for truncated input")
	}

	format := Format{Rate: 16000, Width: 2, Channels: 1}
	encoded, err := EncodeWAV(make([]byte, 32), format)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Corrupt the RIFF marker
	bad := append([]byte(nil), encoded...)
	copy(bad[0:4], "JUNK")
	if _, _, err := DecodeWAV(bad); err == nil {
		t.Error("expected error for missing RIFF marker")
	}
}
