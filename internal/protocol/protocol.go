package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/skypro1111/voicelink-service/internal/audio"
)

// Header lines exchanged on the wire
const (
	HeaderText       = "TEXT"
	HeaderAudioStart = "AUDIO_START"
	HeaderAudioStop  = "AUDIO_STOP"
	HeaderTextResp   = "TEXT_RESP"
	HeaderAudioResp  = "AUDIO_RESP"
	HeaderAudioErr   = "AUDIO_ERR"
)

// Audio unit tags. Every unit inside an audio session starts with one of these bytes.
const (
	TagChunk byte = 0x01 // followed by a length-prefixed PCM frame
	TagStop  byte = 0x02 // followed by the AUDIO_STOP header line
)

const (
	// LengthPrefixSize is the size of the big-endian frame length
	LengthPrefixSize = 4

	// Audio defaults applied when metadata omits a key
	DefaultSampleRate  = 16000
	DefaultChannels    = 1
	DefaultSampleWidth = 2 // 16-bit signed PCM

	// Metadata keys understood by the server
	MetaSampleRate = "sample_rate"
	MetaChannels   = "channels"
	MetaFormat     = "format"
)

// Command is the decoded meaning of a header line
type Command int

const (
	CommandEmpty Command = iota
	CommandText
	CommandAudioStart
	CommandAudioStop
	CommandUnknown
)

// ParseCommand maps a trimmed header line onto a Command. Matching is case-sensitive.
func ParseCommand(line string) Command {
	switch line {
	case "":
		return CommandEmpty
	case HeaderText:
		return CommandText
	case HeaderAudioStart:
		return CommandAudioStart
	case HeaderAudioStop:
		return CommandAudioStop
	default:
		return CommandUnknown
	}
}

// String returns the header text for the command
func (c Command) String() string {
	switch c {
	case CommandEmpty:
		return "EMPTY"
	case CommandText:
		return HeaderText
	case CommandAudioStart:
		return HeaderAudioStart
	case CommandAudioStop:
		return HeaderAudioStop
	default:
		return "UNKNOWN"
	}
}

// Limits bounds what a peer can make the codec allocate or read.
type Limits struct {
	MaxHeaderLength  int    // bytes per header or metadata line, excluding the newline
	MaxFrameSize     uint32 // largest accepted length prefix
	MaxMetadataLines int    // metadata lines before the terminating blank line
}

// DefaultLimits returns the limits used when no configuration overrides them
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderLength:  256,
		MaxFrameSize:     16 * 1024 * 1024,
		MaxMetadataLines: 64,
	}
}

// Metadata holds the key: value lines that follow AUDIO_START
type Metadata map[string]string

// ParseMetadataLine splits a "key: value" line. Lines without a colon are reported as not ok.
func ParseMetadataLine(line string) (key, value string, ok bool) {
	k, v, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	k = strings.TrimSpace(k)
	if k == "" {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

// SampleRate returns the sample_rate value, or def when it is missing, not an integer
// or outside the accepted audio range
func (m Metadata) SampleRate(def int) int {
	return m.boundedInt(MetaSampleRate, def, audio.MinSampleRate, audio.MaxSampleRate)
}

// Channels returns the channels value, or def when it is missing, not an integer
// or outside 1..audio.MaxChannels
func (m Metadata) Channels(def int) int {
	return m.boundedInt(MetaChannels, def, 1, audio.MaxChannels)
}

func (m Metadata) boundedInt(key string, def, lo, hi int) int {
	raw, ok := m[key]
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}

// Lines renders the metadata as wire lines in key order, without the blank terminator
func (m Metadata) Lines() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, m[k]))
	}
	return lines
}

// AudioUnit is one tagged unit read inside an audio session
type AudioUnit struct {
	Tag  byte
	Data []byte // PCM bytes; nil for a stop unit
}

// IsStop reports whether the unit terminates the audio stream
func (u AudioUnit) IsStop() bool {
	return u.Tag == TagStop
}
