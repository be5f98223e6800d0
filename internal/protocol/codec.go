package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// Reader decodes protocol units from a byte stream.
// It is not safe for concurrent use; a session owns exactly one Reader.
type Reader struct {
	br     *bufio.Reader
	limits Limits
}

// NewReader wraps r with a buffered protocol reader
func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{
		br:     bufio.NewReader(r),
		limits: limits,
	}
}

// ReadHeaderLine reads bytes up to a newline and returns the content trimmed of surrounding whitespace.
// It fails with ErrConnectionClosed when the stream ends before a newline and with
// ErrLineTooLong once the line exceeds the configured maximum.
func (r *Reader) ReadHeaderLine() (string, error) {
	var line []byte
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return "", transportError(err)
		}
		if b == '\n' {
			break
		}
		if len(line) >= r.limits.MaxHeaderLength {
			return "", fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, r.limits.MaxHeaderLength)
		}
		line = append(line, b)
	}
	return strings.TrimSpace(string(line)), nil
}

// ReadExact reads exactly n bytes, blocking until they arrive
func (r *Reader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, transportError(err)
	}
	return buf, nil
}

// ReadLengthPrefixed reads a 4-byte big-endian length and then that many bytes.
// A length above MaxFrameSize is rejected before any payload byte is consumed.
func (r *Reader) ReadLengthPrefixed() ([]byte, error) {
	prefix, err := r.ReadExact(LengthPrefixSize)
	if err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix)
	if n > r.limits.MaxFrameSize {
		return nil, fmt.Errorf("%w: declared %d bytes, maximum %d", ErrFrameTooLarge, n, r.limits.MaxFrameSize)
	}

	return r.ReadExact(int(n))
}

// ReadMetadata reads "key: value" lines until a blank line.
// Lines without a colon are skipped; later duplicates overwrite earlier ones.
func (r *Reader) ReadMetadata() (Metadata, error) {
	meta := make(Metadata)
	for i := 0; ; i++ {
		line, err := r.ReadHeaderLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			return meta, nil
		}
		if i >= r.limits.MaxMetadataLines {
			return nil, fmt.Errorf("%w: metadata block exceeds %d lines", ErrMalformedFrame, r.limits.MaxMetadataLines)
		}
		if k, v, ok := ParseMetadataLine(line); ok {
			meta[k] = v
		}
	}
}

// ReadAudioUnit reads one tagged unit of an audio session.
// A CHUNK tag is followed by a length-prefixed frame, a STOP tag by the AUDIO_STOP line.
func (r *Reader) ReadAudioUnit() (AudioUnit, error) {
	tag, err := r.br.ReadByte()
	if err != nil {
		return AudioUnit{}, transportError(err)
	}

	switch tag {
	case TagChunk:
		data, err := r.ReadLengthPrefixed()
		if err != nil {
			return AudioUnit{}, err
		}
		return AudioUnit{Tag: TagChunk, Data: data}, nil

	case TagStop:
		line, err := r.ReadHeaderLine()
		if err != nil {
			return AudioUnit{}, err
		}
		if line != HeaderAudioStop {
			return AudioUnit{}, fmt.Errorf("%w: stop tag followed by %q", ErrMalformedFrame, line)
		}
		return AudioUnit{Tag: TagStop}, nil

	default:
		return AudioUnit{}, fmt.Errorf("%w: 0x%02x", ErrUnknownAudioTag, tag)
	}
}

// Writer encodes protocol units. Every exported method flushes before returning,
// so a unit is either fully handed to the transport or reported as failed.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w with a buffered protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteHeaderLine writes header followed by a newline
func (w *Writer) WriteHeaderLine(header string) error {
	if err := w.putLine(header); err != nil {
		return err
	}
	return w.flush()
}

// WriteLengthPrefixed writes a 4-byte big-endian length followed by payload
func (w *Writer) WriteLengthPrefixed(payload []byte) error {
	if err := w.putFrame(payload); err != nil {
		return err
	}
	return w.flush()
}

// WriteResponse writes a header line and its length-prefixed payload as one unit
func (w *Writer) WriteResponse(header string, payload []byte) error {
	if err := w.putLine(header); err != nil {
		return err
	}
	if err := w.putFrame(payload); err != nil {
		return err
	}
	return w.flush()
}

// WriteText writes a complete TEXT request
func (w *Writer) WriteText(query string) error {
	return w.WriteResponse(HeaderText, []byte(query))
}

// WriteAudioStart writes AUDIO_START, the metadata lines and the terminating blank line
func (w *Writer) WriteAudioStart(meta Metadata) error {
	if err := w.putLine(HeaderAudioStart); err != nil {
		return err
	}
	for _, line := range meta.Lines() {
		if err := w.putLine(line); err != nil {
			return err
		}
	}
	if err := w.putLine(""); err != nil {
		return err
	}
	return w.flush()
}

// WriteAudioChunk writes one tagged PCM chunk
func (w *Writer) WriteAudioChunk(pcm []byte) error {
	if err := w.bw.WriteByte(TagChunk); err != nil {
		return err
	}
	if err := w.putFrame(pcm); err != nil {
		return err
	}
	return w.flush()
}

// WriteAudioStop writes the tagged stop unit
func (w *Writer) WriteAudioStop() error {
	if err := w.bw.WriteByte(TagStop); err != nil {
		return err
	}
	if err := w.putLine(HeaderAudioStop); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) putLine(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("protocol: header line contains a line break: %q", line)
	}
	if _, err := w.bw.WriteString(line); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

func (w *Writer) putFrame(payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes do not fit a 32-bit length", ErrFrameTooLarge, len(payload))
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.bw.Write(prefix[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.bw.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flush() error {
	if err := w.bw.Flush(); err != nil {
		return transportError(err)
	}
	return nil
}
