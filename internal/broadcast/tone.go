package broadcast

import (
	"math"

	"github.com/skypro1111/voicelink-service/internal/audio"
)

const toneAmplitude = 0.3 * math.MaxInt16

// tone generates a continuous sine wave across successive chunks
type tone struct {
	step  float64
	phase float64
}

func newTone(frequency float64, sampleRate int) *tone {
	return &tone{step: 2 * math.Pi * frequency / float64(sampleRate)}
}

// next returns n little-endian 16-bit samples continuing from the previous call
func (t *tone) next(n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(toneAmplitude * math.Sin(t.phase))
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return audio.PCM16Bytes(samples)
}
