package audio

import (
	"fmt"
	"time"
)

// Accepted PCM layout ranges
const (
	MinSampleRate = 1000
	MaxSampleRate = 384000
	MaxChannels   = 8
)

// Format describes interleaved linear PCM
type Format struct {
	SampleRate  int `json:"sample_rate"`
	Channels    int `json:"channels"`
	SampleWidth int `json:"sample_width"` // bytes per sample per channel
}

// Validate checks that the format can be written to a WAV header
func (f Format) Validate() error {
	if f.SampleRate < MinSampleRate || f.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate must be between %d and %d Hz, got %d", MinSampleRate, MaxSampleRate, f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > MaxChannels {
		return fmt.Errorf("channel count must be between 1 and %d, got %d", MaxChannels, f.Channels)
	}
	if f.SampleWidth <= 0 || f.SampleWidth > 4 {
		return fmt.Errorf("sample width must be between 1 and 4 bytes, got %d", f.SampleWidth)
	}
	return nil
}

// BlockAlign returns the size of one frame (one sample for every channel)
func (f Format) BlockAlign() int {
	return f.Channels * f.SampleWidth
}

// ByteRate returns bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// BitsPerSample returns the sample depth in bits
func (f Format) BitsPerSample() int {
	return f.SampleWidth * 8
}

// Frames returns the number of complete frames in n bytes
func (f Format) Frames(n int64) int64 {
	if f.BlockAlign() == 0 {
		return 0
	}
	return n / int64(f.BlockAlign())
}

// Duration returns the playback duration of n bytes
func (f Format) Duration(n int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Frames(n)) * time.Second / time.Duration(f.SampleRate)
}

// String returns a MIME-like description such as "audio/L16; rate=16000; channels=1"
func (f Format) String() string {
	return fmt.Sprintf("audio/L%d; rate=%d; channels=%d", f.BitsPerSample(), f.SampleRate, f.Channels)
}
