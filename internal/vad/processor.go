package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Processor classifies fixed-size windows of 16-bit PCM as voice or silence
// by comparing their RMS energy, normalised to full scale, with a threshold.
// One Processor serves recordings of any layout and accumulates statistics across them.
type Processor struct {
	threshold float64
	window    time.Duration

	// Statistics
	recordings    uint64
	totalWindows  uint64
	voiceWindows  uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result is the classification of one window
type Result struct {
	Energy   float64 `json:"energy"` // RMS / 32768
	HasVoice bool    `json:"has_voice"`
}

// Segment is a continuous run of voice windows
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the length of the segment
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Summary describes a whole recording
type Summary struct {
	Windows      int           `json:"windows"`
	VoiceWindows int           `json:"voice_windows"`
	VoiceRatio   float64       `json:"voice_ratio"`
	PeakEnergy   float64       `json:"peak_energy"`
	Segments     []Segment     `json:"segments,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ProcessorStats represents processor statistics across all analysed recordings
type ProcessorStats struct {
	Recordings      uint64        `json:"recordings"`
	TotalWindows    uint64        `json:"total_windows"`
	VoiceWindows    uint64        `json:"voice_windows"`
	VoicePercentage float64       `json:"voice_percentage"`
	LastProcessed   time.Time     `json:"last_processed"`
	Threshold       float64       `json:"threshold"`
	Window          time.Duration `json:"window"`
}

// NewProcessor creates a processor with the given energy threshold and window length
func NewProcessor(threshold float64, window time.Duration) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %v", window)
	}

	return &Processor{
		threshold: threshold,
		window:    window,
	}, nil
}

// WindowSize returns the number of interleaved samples in one window for the given layout
func (p *Processor) WindowSize(sampleRate, channels int) int {
	frames := int(int64(sampleRate) * int64(p.window) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	return frames * channels
}

// Process classifies one window of interleaved samples
func (p *Processor) Process(samples []int16) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("empty window")
	}

	energy := rms(samples)
	hasVoice := energy >= p.threshold

	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalWindows++
	if hasVoice {
		p.voiceWindows++
	}
	p.lastProcessed = time.Now()

	return Result{Energy: energy, HasVoice: hasVoice}, nil
}

// Analyze splits interleaved samples into consecutive windows and summarises voice activity.
// A trailing partial window is analysed as well. Empty input yields an empty summary.
func (p *Processor) Analyze(samples []int16, sampleRate, channels int) (Summary, error) {
	if sampleRate <= 0 {
		return Summary{}, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return Summary{}, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	size := p.WindowSize(sampleRate, channels)
	frameDuration := time.Second / time.Duration(sampleRate)

	var (
		summary Summary
		current *Segment
	)
	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))

		result, err := p.Process(samples[start:end])
		if err != nil {
			return Summary{}, fmt.Errorf("failed to process window %d: %w", summary.Windows, err)
		}

		offset := time.Duration(start/channels) * frameDuration
		windowEnd := time.Duration(end/channels) * frameDuration

		summary.Windows++
		if result.Energy > summary.PeakEnergy {
			summary.PeakEnergy = result.Energy
		}

		if result.HasVoice {
			summary.VoiceWindows++
			if current == nil {
				current = &Segment{Start: offset}
			}
			current.End = windowEnd
		} else if current != nil {
			summary.Segments = append(summary.Segments, *current)
			current = nil
		}
	}
	if current != nil {
		summary.Segments = append(summary.Segments, *current)
	}

	if summary.Windows > 0 {
		summary.VoiceRatio = float64(summary.VoiceWindows) / float64(summary.Windows)

		p.mu.Lock()
		p.recordings++
		p.mu.Unlock()
	}
	summary.Duration = time.Duration(len(samples)/channels) * frameDuration

	return summary, nil
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		Recordings:      p.recordings,
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.threshold,
		Window:          p.window,
	}
}

func rms(samples []int16) float64 {
	var energy float64
	for _, sample := range samples {
		v := float64(sample)
		energy += v * v
	}
	normalized := math.Sqrt(energy/float64(len(samples))) / 32768.0
	if normalized > 1.0 {
		normalized = 1.0
	}
	return normalized
}
