package storage

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

// sequence is shared by every Namer in the process
var sequence atomic.Uint64

// Namer derives artifact names from the peer address and the current time.
// Names are unique within a process even for one peer inside one second.
type Namer struct {
	Now func() time.Time
}

// NewNamer returns a Namer using the wall clock
func NewNamer() *Namer {
	return &Namer{Now: time.Now}
}

// Name returns from_<host>_<unix seconds>_<seq>.wav, where dots and colons in the host become underscores
func (n *Namer) Name(peer string) string {
	now := time.Now
	if n != nil && n.Now != nil {
		now = n.Now
	}
	seq := sequence.Add(1)
	return fmt.Sprintf("from_%s_%d_%d.wav", SanitizeHost(peer), now().Unix(), seq)
}

// SanitizeHost strips the port from a peer address and makes the host safe for a file name
func SanitizeHost(peer string) string {
	host := peer
	if h, _, err := net.SplitHostPort(peer); err == nil {
		host = h
	}
	if host == "" {
		host = "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == ':' || r == '%':
			return '_'
		case r == '/' || r == '\\' || r < 0x20:
			return '_'
		default:
			return r
		}
	}, host)
}
