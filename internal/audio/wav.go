package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header written by EncodeWAV
const WAVHeaderSize = 44

// WAVHeader represents the canonical 44-byte header of a PCM WAV file
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

// ErrNotWAV is returned when data is not a RIFF/WAVE PCM stream
var ErrNotWAV = errors.New("audio: not a PCM WAV file")

// NewWAVHeader builds the header for dataSize bytes of PCM in format f
func NewWAVHeader(f Format, dataSize uint32) WAVHeader {
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample()),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV wraps raw PCM bytes in a canonical WAV container.
// An empty payload is valid and yields a header-only file.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(pcm)) > math.MaxUint32-36 {
		return nil, fmt.Errorf("PCM payload of %d bytes does not fit a WAV container", len(pcm))
	}

	header := NewWAVHeader(f, uint32(len(pcm)))

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// EncodeSamples encodes 16-bit samples as a WAV file
func EncodeSamples(samples []int16, sampleRate, channels int) ([]byte, error) {
	return EncodeWAV(PCM16Bytes(samples), Format{SampleRate: sampleRate, Channels: channels, SampleWidth: 2})
}

// PCM16Bytes converts samples into little-endian 16-bit PCM bytes
func PCM16Bytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// DecodeWAV returns the PCM payload and format of a WAV file.
// Chunks other than "fmt " and "data" are skipped, so files written by other tools decode too.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 {
		return nil, Format{}, fmt.Errorf("%w: need at least 12 bytes, got %d", ErrNotWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF header", ErrNotWAV)
	}
	if string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing WAVE format", ErrNotWAV)
	}

	var (
		f       Format
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, Format{}, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body:])
			if audioFormat != 1 {
				return nil, Format{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", audioFormat)
			}
			f = Format{
				Channels:    int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate:  int(binary.LittleEndian.Uint32(data[body+4:])),
				SampleWidth: int(binary.LittleEndian.Uint16(data[body+14:])) / 8,
			}
			if err := f.Validate(); err != nil {
				return nil, Format{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}
			end := body + size
			if size < 0 || end > len(data) {
				return nil, Format{}, fmt.Errorf("%w: data chunk declares %d bytes, %d available", ErrNotWAV, size, len(data)-body)
			}
			pcm := make([]byte, size)
			copy(pcm, data[body:end])
			return pcm, f, nil
		}

		// Chunks are word aligned
		pos = body + size + size%2
	}

	if !haveFmt {
		return nil, Format{}, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

// DecodeSamples decodes a 16-bit WAV file into interleaved samples
func DecodeSamples(data []byte) ([]int16, Format, error) {
	pcm, f, err := DecodeWAV(data)
	if err != nil {
		return nil, Format{}, err
	}
	if f.SampleWidth != 2 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", f.BitsPerSample())
	}
	return PCM16Samples(pcm), f, nil
}

// PCM16Samples converts little-endian 16-bit PCM bytes into samples. A trailing odd byte is ignored.
func PCM16Samples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// ValidateWAV validates the canonical header layout without decoding the audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if riff := binary.LittleEndian.Uint32(data[4:8]); int(riff) != len(data)-8 {
		return fmt.Errorf("invalid WAV file: RIFF size %d does not match file size %d", riff, len(data))
	}

	return nil
}

// WAVInfo describes a canonical WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"` // per channel
}

// GetWAVInfo extracts metadata from a canonical WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if header.SampleRate == 0 || header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid WAV file: zero sample rate or block align")
	}

	numSamples := header.Subchunk2Size / uint32(header.BlockAlign)
	duration := float64(numSamples) / float64(header.SampleRate)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
