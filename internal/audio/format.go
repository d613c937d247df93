package audio

import (
	"fmt"
	"time"
)

// Format describes raw PCM audio: sample rate in Hz, sample width in bytes
// and channel count.
type Format struct {
	Rate     int
	Width    int
	Channels int
}

// Validate checks the format fields for sane values.
func (f Format) Validate() error {
	if f.Rate < 8000 || f.Rate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000 Hz, got %d", f.Rate)
	}
	if f.Width != 1 && f.Width != 2 && f.Width != 4 {
		return fmt.Errorf("sample width must be 1, 2 or 4 bytes, got %d", f.Width)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", f.Channels)
	}
	return nil
}

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.Rate * f.Width * f.Channels
}

// BlockAlign returns the size of one sample frame across all channels.
func (f Format) BlockAlign() int {
	return f.Width * f.Channels
}

// Duration returns the play time of n bytes in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// String returns a human-readable representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%d-bit/%dch", f.Rate, f.Width*8, f.Channels)
}
