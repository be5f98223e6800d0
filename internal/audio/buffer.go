package audio

import (
	"fmt"
	"sync"
	"time"
)

// Buffer accumulates the PCM chunks of one audio request in arrival order.
// It is owned by a single session; the mutex only guards concurrent readers such as stats.
type Buffer struct {
	format Format

	data      []byte
	chunks    int
	startedAt time.Time
	lastWrite time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Format    string        `json:"format"`
	Chunks    int           `json:"chunks"`
	Bytes     int           `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	LastWrite time.Time     `json:"last_write"`
}

// NewAudioBuffer creates an empty buffer for PCM in the given layout.
// A non-positive sampleWidth selects 16-bit samples.
func NewAudioBuffer(channels, sampleRate, sampleWidth int) (*Buffer, error) {
	if sampleWidth <= 0 {
		sampleWidth = 2
	}
	f := Format{SampleRate: sampleRate, Channels: channels, SampleWidth: sampleWidth}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio buffer format: %w", err)
	}

	now := time.Now()
	return &Buffer{
		format:    f,
		startedAt: now,
		lastWrite: now,
	}, nil
}

// Append copies chunk onto the end of the buffer. Empty chunks are counted but add no bytes.
func (b *Buffer) Append(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, chunk...)
	b.chunks++
	b.lastWrite = time.Now()
}

// Finalize returns the buffered PCM wrapped in a WAV container.
// The result depends only on the appended bytes and the format.
func (b *Buffer) Finalize() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return EncodeWAV(b.data, b.format)
}

// PCM returns a copy of the buffered bytes
func (b *Buffer) PCM() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Format returns the PCM layout of the buffer
func (b *Buffer) Format() Format {
	return b.format
}

// Len returns the number of buffered bytes
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Chunks returns how many chunks were appended
func (b *Buffer) Chunks() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chunks
}

// Duration returns the playback length of the buffered audio
func (b *Buffer) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.format.Duration(int64(len(b.data)))
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		Format:    b.format.String(),
		Chunks:    b.chunks,
		Bytes:     len(b.data),
		Duration:  b.format.Duration(int64(len(b.data))),
		StartedAt: b.startedAt,
		LastWrite: b.lastWrite,
	}
}

// Release drops the buffered bytes once the container has been written
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
}
