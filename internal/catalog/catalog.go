package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a recording does not exist
var ErrNotFound = errors.New("catalog: not found")

// keyPrefix namespaces recording entries
const keyPrefix = "recordings:"

// Recording describes one persisted audio container
type Recording struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Peer       string    `json:"peer"`
	SessionID  string    `json:"session_id"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	PCMBytes   int       `json:"pcm_bytes"`
	Chunks     int       `json:"chunks"`
	DurationMS int64     `json:"duration_ms"`
	VoiceRatio float64   `json:"voice_ratio"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store indexes recordings. Implementations must be safe for concurrent use.
type Store interface {
	// Put stores r, assigning an ID and creation time when they are empty.
	Put(ctx context.Context, r *Recording) error

	// Get returns the recording with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Recording, error)

	// List returns up to limit recordings, newest first. A non-positive limit returns all.
	List(ctx context.Context, limit int) ([]Recording, error)

	// Delete removes a recording. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// NewID returns a time-ordered recording ID
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

func prepare(r *Recording) ([]byte, error) {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode %s: %w", r.ID, err)
	}
	return data, nil
}

func decode(data []byte) (Recording, error) {
	var r Recording
	if err := json.Unmarshal(data, &r); err != nil {
		return Recording{}, fmt.Errorf("catalog: decode: %w", err)
	}
	return r, nil
}

func newestFirst(rs []Recording, limit int) []Recording {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID > rs[j].ID
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	return rs
}
