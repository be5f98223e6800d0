package session

import (
	"sort"
	"sync"
	"time"

	"github.com/skypro1111/voicelink-service/internal/audio"
)

// Info is a point-in-time view of a live session
type Info struct {
	ID         string             `json:"id"`
	Peer       string             `json:"peer"`
	State      string             `json:"state"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   string             `json:"duration"`
	Requests   uint64             `json:"requests"`
	AudioBytes int64              `json:"audio_bytes"`
	Buffer     *audio.BufferStats `json:"buffer,omitempty"`
}

// Registry tracks live sessions for monitoring
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session with the given ID
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return s.Info(), true
}

// List returns all live sessions, oldest first
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
