package catalog

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newBadgerStore(t *testing.T) Store {
	t.Helper()
	s, err := NewBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"badger": newBadgerStore(t),
		"memory": NewMemory(),
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := &Recording{
				Path:       "from_10_0_0_1_1700000000_1.wav",
				Peer:       "10.0.0.1:5000",
				SessionID:  "session-1",
				SampleRate: 8000,
				Channels:   1,
				PCMBytes:   4,
			}
			if err := s.Put(ctx, r); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if r.ID == "" || r.CreatedAt.IsZero() {
				t.Fatalf("Put should assign ID and time, got %+v", r)
			}

			got, err := s.Get(ctx, r.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Path != r.Path || got.SampleRate != 8000 || got.PCMBytes != 4 {
				t.Errorf("Get = %+v, want %+v", got, r)
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"b", "c", "a"} {
				r := &Recording{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}
				if err := s.Put(ctx, r); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}

			all, err := s.List(ctx, 0)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 recordings, got %d", len(all))
			}
			order := []string{all[0].ID, all[1].ID, all[2].ID}
			if order[0] != "a" || order[1] != "c" || order[2] != "b" {
				t.Errorf("unexpected order %v", order)
			}

			limited, err := s.List(ctx, 2)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(limited) != 2 || limited[0].ID != "a" {
				t.Errorf("unexpected limited list %+v", limited)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := &Recording{Path: "x.wav"}
			s.Put(ctx, r)

			if err := s.Delete(ctx, r.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, r.ID); err != nil {
				t.Fatalf("second Delete: %v", err)
			}
			if _, err := s.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestNewBadgerRequiresDir(t *testing.T) {
	if _, err := NewBadger(BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}

func TestBadgerPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	r := &Recording{Path: "kept.wav"}
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Path != "kept.wav" {
		t.Errorf("Path = %q, want kept.wav", got.Path)
	}
}
