package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocalWriteAndRead(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	const data = "RIFF....WAVE"
	if err := Save(ctx, s, "a/b/file.wav", []byte(data)); err != nil {
		t.Fatal(err)
	}

	got, err := Load(ctx, s, "a/b/file.wav")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != data {
		t.Fatalf("got %q, want %q", got, data)
	}

	onDisk, err := os.ReadFile(filepath.Join(s.Root(), "a", "b", "file.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != data {
		t.Fatalf("on disk %q, want %q", onDisk, data)
	}
}

func TestLocalReadNotExist(t *testing.T) {
	s := newTestLocal(t)

	_, err := s.Read(context.Background(), "no-such-file")
	if !os.IsNotExist(err) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLocalExistsAndDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing file, got ok=%v err=%v", ok, err)
	}

	if err := Save(ctx, s, "present", []byte("x")); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "present")
	if err != nil || !ok {
		t.Fatalf("expected existing file, got ok=%v err=%v", ok, err)
	}

	if err := s.Delete(ctx, "present"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "present"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if ok, _ := s.Exists(ctx, "present"); ok {
		t.Fatal("file should be gone after delete")
	}
}

func TestLocalWriteTruncates(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	Save(ctx, s, "f", []byte("long content here"))
	Save(ctx, s, "f", []byte("short"))

	r, err := s.Read(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "short" {
		t.Fatalf("got %q, want %q", got, "short")
	}
}

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "received_audio", "nested")
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory")
	}
}

func TestNewLocalRootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocal(file); err == nil {
		t.Fatal("expected error when the root path is a regular file")
	}
}

func TestNewBackend(t *testing.T) {
	fs, err := New(Options{Backend: BackendLocal, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fs.(*Local); !ok {
		t.Fatalf("expected *Local, got %T", fs)
	}

	if _, err := New(Options{Backend: BackendS3}); err == nil {
		t.Fatal("expected error for s3 backend without bucket")
	}

	s3fs, err := New(Options{Backend: BackendS3, S3: S3Options{Bucket: "audio", Region: "us-east-1", Endpoint: "http://127.0.0.1:9000"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s3fs.(*S3Store); !ok {
		t.Fatalf("expected *S3Store, got %T", s3fs)
	}

	if _, err := New(Options{Backend: "ftp"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
