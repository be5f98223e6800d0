package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	ErrConnectionClosed   = errors.New("protocol: connection closed")
	ErrMalformedFrame     = errors.New("protocol: malformed frame")
	ErrUnrecognizedHeader = errors.New("protocol: unrecognized header")
	ErrStorageWrite       = errors.New("protocol: storage write failed")
	ErrTimeout            = errors.New("protocol: read timeout")

	// Malformed frame variants; errors.Is(err, ErrMalformedFrame) holds for each.
	ErrLineTooLong     = fmt.Errorf("%w: header line too long", ErrMalformedFrame)
	ErrFrameTooLarge   = fmt.Errorf("%w: frame too large", ErrMalformedFrame)
	ErrAudioTooLarge   = fmt.Errorf("%w: audio stream too large", ErrMalformedFrame)
	ErrUnknownAudioTag = fmt.Errorf("%w: unknown audio unit tag", ErrMalformedFrame)
)

// Close reasons reported by Classify.
const (
	ReasonClosed             = "closed"
	ReasonTimeout            = "timeout"
	ReasonMalformed          = "malformed"
	ReasonUnrecognizedHeader = "unrecognized_header"
	ReasonStorage            = "storage"
	ReasonShutdown           = "shutdown"
	ReasonError              = "error"
)

// Classify maps a session error onto a stable reason label for logs and metrics.
// A nil error is a clean close.
func Classify(err error) string {
	switch {
	case err == nil:
		return ReasonClosed
	case errors.Is(err, context.Canceled):
		return ReasonShutdown
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrMalformedFrame):
		return ReasonMalformed
	case errors.Is(err, ErrUnrecognizedHeader):
		return ReasonUnrecognizedHeader
	case errors.Is(err, ErrStorageWrite):
		return ReasonStorage
	case errors.Is(err, ErrConnectionClosed):
		return ReasonClosed
	default:
		return ReasonError
	}
}

// transportError normalises transport errors into the protocol taxonomy.
func transportError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isClosed(err):
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	default:
		return err
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
