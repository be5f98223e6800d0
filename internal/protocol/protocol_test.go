package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
)

func newTestReader(data []byte) *Reader {
	return NewReader(bytes.NewReader(data), DefaultLimits())
}

func lengthPrefixed(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func TestReadHeaderLine(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		expected  string
		expectErr error
	}{
		{name: "text header", data: "TEXT\n", expected: "TEXT"},
		{name: "surrounding whitespace", data: "  AUDIO_START \r\n", expected: "AUDIO_START"},
		{name: "empty line", data: "\n", expected: ""},
		{name: "case preserved", data: "text\n", expected: "text"},
		{name: "eof before any byte", data: "", expectErr: ErrConnectionClosed},
		{name: "eof before newline", data: "TEX", expectErr: ErrConnectionClosed},
		{name: "line too long", data: strings.Repeat("A", 300) + "\n", expectErr: ErrLineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := newTestReader([]byte(tt.data)).ReadHeaderLine()
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("Expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if line != tt.expected {
				t.Errorf("Expected line %q, got %q", tt.expected, line)
			}
		})
	}
}

func TestLineTooLongIsMalformed(t *testing.T) {
	_, err := newTestReader([]byte(strings.Repeat("x", 1024))).ReadHeaderLine()
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Expected ErrMalformedFrame, got %v", err)
	}
}

func TestReadExact(t *testing.T) {
	r := newTestReader([]byte("abcdef"))

	got, err := r.ReadExact(4)
	if err != nil {
		t.Fatalf("ReadExact failed: %v", err)
	}
	if string(got) != "abcd" {
		t.Errorf("Expected %q, got %q", "abcd", got)
	}

	if _, err := r.ReadExact(4); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed on short stream, got %v", err)
	}
}

func TestReadLengthPrefixed(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		expected  []byte
		expectErr error
	}{
		{name: "payload", data: lengthPrefixed([]byte("hello")), expected: []byte("hello")},
		{name: "empty payload", data: lengthPrefixed(nil), expected: []byte{}},
		{name: "truncated prefix", data: []byte{0x00, 0x00}, expectErr: ErrConnectionClosed},
		{name: "truncated payload", data: append([]byte{0, 0, 0, 10}, 'a', 'b'), expectErr: ErrConnectionClosed},
		{name: "over maximum", data: []byte{0xFF, 0xFF, 0xFF, 0xFF}, expectErr: ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestReader(tt.data).ReadLengthPrefixed()
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("Expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFrameTooLargeConsumesOnlyPrefix(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFrameSize = 8

	payload := []byte("0123456789")
	r := NewReader(bytes.NewReader(lengthPrefixed(payload)), limits)

	_, err := r.ReadLengthPrefixed()
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Expected ErrMalformedFrame, got %v", err)
	}

	rest, err := r.ReadExact(len(payload))
	if err != nil {
		t.Fatalf("Payload bytes should still be unread: %v", err)
	}
	if !bytes.Equal(rest, payload) {
		t.Errorf("Expected untouched payload %q, got %q", payload, rest)
	}
}

func TestReadMetadata(t *testing.T) {
	data := "sample_rate: 8000\nchannels:2\nformat:pcm_s16\nnot a pair\n: orphan\nextra: a:b\n\nTEXT\n"
	r := newTestReader([]byte(data))

	meta, err := r.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}

	if meta.SampleRate(DefaultSampleRate) != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", meta.SampleRate(DefaultSampleRate))
	}
	if meta.Channels(DefaultChannels) != 2 {
		t.Errorf("Expected 2 channels, got %d", meta.Channels(DefaultChannels))
	}
	if meta["format"] != "pcm_s16" {
		t.Errorf("Expected format pcm_s16, got %q", meta["format"])
	}
	if meta["extra"] != "a:b" {
		t.Errorf("Expected value split on first colon, got %q", meta["extra"])
	}
	if len(meta) != 4 {
		t.Errorf("Expected 4 entries, got %d: %v", len(meta), meta)
	}

	// The blank line is consumed, the next header is not
	line, err := r.ReadHeaderLine()
	if err != nil || line != HeaderText {
		t.Errorf("Expected next header TEXT, got %q (%v)", line, err)
	}
}

func TestReadMetadataErrors(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxMetadataLines = 2

	r := NewReader(strings.NewReader("a: 1\nb: 2\nc: 3\n\n"), limits)
	if _, err := r.ReadMetadata(); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for oversized block, got %v", err)
	}

	r = newTestReader([]byte("sample_rate: 8000\n"))
	if _, err := r.ReadMetadata(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed for truncated block, got %v", err)
	}
}

func TestMetadataDefaults(t *testing.T) {
	tests := []struct {
		name         string
		meta         Metadata
		expectedRate int
		expectedCh   int
	}{
		{name: "missing keys", meta: Metadata{}, expectedRate: 16000, expectedCh: 1},
		{name: "explicit values", meta: Metadata{"sample_rate": "44100", "channels": "2"}, expectedRate: 44100, expectedCh: 2},
		{name: "garbage values", meta: Metadata{"sample_rate": "fast", "channels": "-1"}, expectedRate: 16000, expectedCh: 1},
		{name: "zero values", meta: Metadata{"sample_rate": "0", "channels": "0"}, expectedRate: 16000, expectedCh: 1},
		{name: "oversized values", meta: Metadata{"sample_rate": "1000000000", "channels": "60000"}, expectedRate: 16000, expectedCh: 1},
		{name: "range edges", meta: Metadata{"sample_rate": "384000", "channels": "8"}, expectedRate: 384000, expectedCh: 8},
		{name: "just outside range", meta: Metadata{"sample_rate": "999", "channels": "9"}, expectedRate: 16000, expectedCh: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.SampleRate(DefaultSampleRate); got != tt.expectedRate {
				t.Errorf("Expected sample rate %d, got %d", tt.expectedRate, got)
			}
			if got := tt.meta.Channels(DefaultChannels); got != tt.expectedCh {
				t.Errorf("Expected channels %d, got %d", tt.expectedCh, got)
			}
		})
	}
}

func TestReadAudioUnit(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		expectTag byte
		expected  []byte
		expectErr error
	}{
		{
			name:      "chunk",
			data:      append([]byte{TagChunk}, lengthPrefixed([]byte{0x01, 0x02})...),
			expectTag: TagChunk,
			expected:  []byte{0x01, 0x02},
		},
		{
			name:      "empty chunk",
			data:      append([]byte{TagChunk}, lengthPrefixed(nil)...),
			expectTag: TagChunk,
			expected:  []byte{},
		},
		{
			name:      "stop",
			data:      append([]byte{TagStop}, []byte("AUDIO_STOP\n")...),
			expectTag: TagStop,
		},
		{
			name:      "stop with wrong line",
			data:      append([]byte{TagStop}, []byte("TEXT\n")...),
			expectErr: ErrMalformedFrame,
		},
		{
			name:      "untagged stop line",
			data:      []byte("AUDIO_STOP\n"),
			expectErr: ErrUnknownAudioTag,
		},
		{
			name:      "truncated chunk",
			data:      []byte{TagChunk, 0x00, 0x00, 0x00, 0x04, 0x01},
			expectErr: ErrConnectionClosed,
		},
		{
			name:      "no tag",
			data:      nil,
			expectErr: ErrConnectionClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := newTestReader(tt.data).ReadAudioUnit()
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("Expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if unit.Tag != tt.expectTag {
				t.Errorf("Expected tag 0x%02x, got 0x%02x", tt.expectTag, unit.Tag)
			}
			if !bytes.Equal(unit.Data, tt.expected) {
				t.Errorf("Expected data %v, got %v", tt.expected, unit.Data)
			}
		})
	}
}

// A chunk unit must never be read as a stop, whatever its length bytes spell.
func TestChunkNeverReadAsStop(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFrameSize = 64

	prefixes := [][]byte{
		[]byte("AUDI"),
		[]byte("O_ST"),
		{0x00, 0x00, 0x00, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
	}
	for b := 0; b < 256; b++ {
		prefixes = append(prefixes, []byte{0x00, 0x00, 0x00, byte(b)})
		prefixes = append(prefixes, []byte{byte(b), 'U', 'D', 'I'})
	}

	for _, prefix := range prefixes {
		data := append([]byte{TagChunk}, prefix...)
		data = append(data, bytes.Repeat([]byte{'A'}, 300)...)

		unit, err := NewReader(bytes.NewReader(data), limits).ReadAudioUnit()
		if err == nil && unit.IsStop() {
			t.Fatalf("Prefix %v was read as a stop unit", prefix)
		}
		n := binary.BigEndian.Uint32(prefix)
		if n > limits.MaxFrameSize {
			if !errors.Is(err, ErrFrameTooLarge) {
				t.Fatalf("Prefix %v: expected ErrFrameTooLarge, got %v", prefix, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Prefix %v: unexpected error %v", prefix, err)
		}
		if len(unit.Data) != int(n) {
			t.Fatalf("Prefix %v: expected %d bytes, got %d", prefix, n, len(unit.Data))
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteResponse(HeaderTextResp, []byte("héllo")); err != nil {
		t.Fatalf("WriteResponse failed: %v", err)
	}
	meta := Metadata{"sample_rate": "8000", "channels": "1"}
	if err := w.WriteAudioStart(meta); err != nil {
		t.Fatalf("WriteAudioStart failed: %v", err)
	}
	if err := w.WriteAudioChunk([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteAudioChunk failed: %v", err)
	}
	if err := w.WriteAudioStop(); err != nil {
		t.Fatalf("WriteAudioStop failed: %v", err)
	}

	r := newTestReader(buf.Bytes())
	if line, _ := r.ReadHeaderLine(); line != HeaderTextResp {
		t.Fatalf("Expected %s, got %q", HeaderTextResp, line)
	}
	payload, err := r.ReadLengthPrefixed()
	if err != nil || string(payload) != "héllo" {
		t.Fatalf("Expected payload héllo, got %q (%v)", payload, err)
	}
	if line, _ := r.ReadHeaderLine(); line != HeaderAudioStart {
		t.Fatalf("Expected %s, got %q", HeaderAudioStart, line)
	}
	gotMeta, err := r.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if gotMeta["sample_rate"] != "8000" || gotMeta["channels"] != "1" {
		t.Errorf("Unexpected metadata %v", gotMeta)
	}
	unit, err := r.ReadAudioUnit()
	if err != nil || unit.IsStop() || !bytes.Equal(unit.Data, []byte{0x01, 0x02}) {
		t.Fatalf("Unexpected chunk unit %+v (%v)", unit, err)
	}
	unit, err = r.ReadAudioUnit()
	if err != nil || !unit.IsStop() {
		t.Fatalf("Expected stop unit, got %+v (%v)", unit, err)
	}
}

func TestWriterRejectsLineBreaks(t *testing.T) {
	w := NewWriter(io.Discard)
	if err := w.WriteHeaderLine("TEXT\nAUDIO_START"); err == nil {
		t.Error("Expected error for header containing a newline")
	}
}

func TestParseCommand(t *testing.T) {
	tests := map[string]Command{
		"":            CommandEmpty,
		"TEXT":        CommandText,
		"AUDIO_START": CommandAudioStart,
		"AUDIO_STOP":  CommandAudioStop,
		"text":        CommandUnknown,
		"HELLO":       CommandUnknown,
	}
	for line, expected := range tests {
		if got := ParseCommand(line); got != expected {
			t.Errorf("ParseCommand(%q): expected %v, got %v", line, expected, got)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ReasonClosed},
		{fmt.Errorf("wrapped: %w", ErrConnectionClosed), ReasonClosed},
		{transportError(os.ErrDeadlineExceeded), ReasonTimeout},
		{transportError(io.EOF), ReasonClosed},
		{ErrFrameTooLarge, ReasonMalformed},
		{ErrUnknownAudioTag, ReasonMalformed},
		{fmt.Errorf("%w: HELLO", ErrUnrecognizedHeader), ReasonUnrecognizedHeader},
		{fmt.Errorf("%w: disk full", ErrStorageWrite), ReasonStorage},
		{context.Canceled, ReasonShutdown},
		{errors.New("boom"), ReasonError},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expected {
			t.Errorf("Classify(%v): expected %s, got %s", tt.err, tt.expected, got)
		}
	}
}
