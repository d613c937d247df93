package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents the header structure of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM bytes into a WAV container with the given format.
// Zero-length input produces a valid header-only file.
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}
	if format.BlockAlign() > 0 && len(pcm)%format.BlockAlign() != 0 {
		return nil, fmt.Errorf("PCM length %d is not a multiple of the %d-byte frame size",
			len(pcm), format.BlockAlign())
	}

	dataSize := uint32(len(pcm))
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.Rate),
		ByteRate:      uint32(format.BytesPerSecond()),
		BlockAlign:    uint16(format.BlockAlign()),
		BitsPerSample: uint16(format.Width * 8),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := buf.Write(pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV extracts raw PCM bytes and the declared format from WAV data.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize {
		return nil, Format{}, fmt.Errorf("WAV data too short: need at least %d bytes, got %d",
			wavHeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:wavHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, Format{}, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("not a WAV file: missing RIFF/WAVE markers")
	}
	if header.AudioFormat != 1 {
		return nil, Format{}, fmt.Errorf("unsupported WAV encoding %d (only PCM is supported)",
			header.AudioFormat)
	}
	if header.BitsPerSample%8 != 0 || header.BitsPerSample == 0 {
		return nil, Format{}, fmt.Errorf("unsupported bits per sample: %d", header.BitsPerSample)
	}

	format := Format{
		Rate:     int(header.SampleRate),
		Width:    int(header.BitsPerSample) / 8,
		Channels: int(header.NumChannels),
	}
	if err := format.Validate(); err != nil {
		return nil, Format{}, fmt.Errorf("invalid WAV format: %w", err)
	}

	dataSize := int(header.Subchunk2Size)
	if wavHeaderSize+dataSize > len(data) {
		dataSize = len(data) - wavHeaderSize
	}

	pcm := make([]byte, dataSize)
	copy(pcm, data[wavHeaderSize:wavHeaderSize+dataSize])

	return pcm, format, nil
}
