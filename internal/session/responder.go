package session

import (
	"context"
	"time"
)

// Responder produces the TEXT_RESP payload for a query
type Responder struct {
	Prefix string
	Delay  time.Duration // simulated backend latency
}

// Transform returns Prefix followed by the query with its characters reversed
func (r *Responder) Transform(query string) string {
	runes := []rune(query)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return r.Prefix + string(runes)
}

// Respond waits for Delay and returns the transformed query.
// It returns early with the context error when ctx ends first.
func (r *Responder) Respond(ctx context.Context, query string) (string, error) {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return r.Transform(query), nil
}
