package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// mockS3 is an in-memory S3 backend
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	getErr error
	putErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3SaveAndLoad(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "recordings")
	ctx := context.Background()

	if err := Save(ctx, store, "from_10_0_0_1_1700000000_1.wav", []byte("wav bytes")); err != nil {
		t.Fatal(err)
	}

	const key = "recordings/from_10_0_0_1_1700000000_1.wav"
	if string(mock.objects[key]) != "wav bytes" {
		t.Fatalf("object not stored under prefixed key: %v", mock.objects)
	}
	if mock.types[key] != "audio/wav" {
		t.Fatalf("expected audio/wav content type, got %q", mock.types[key])
	}

	got, err := Load(ctx, store, "from_10_0_0_1_1700000000_1.wav")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "wav bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestS3ReadNotExist(t *testing.T) {
	store := NewS3(newMockS3(), "bucket", "")

	_, err := store.Read(context.Background(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestS3ReadOtherError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("network timeout")
	store := NewS3(mock, "bucket", "")

	_, err := store.Read(context.Background(), "x")
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a generic error, got %v", err)
	}
}

func TestS3SaveFailure(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	store := NewS3(mock, "bucket", "")

	err := Save(context.Background(), store, "x.wav", bytes.Repeat([]byte{1}, 1024))
	if err == nil {
		t.Fatal("expected upload error to surface from Save")
	}
	if ok, _ := store.Exists(context.Background(), "x.wav"); ok {
		t.Fatal("failed upload must not leave an object behind")
	}
}

func TestS3Exists(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "")
	ctx := context.Background()

	if ok, err := store.Exists(ctx, "present"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	mock.objects["present"] = []byte("data")
	if ok, err := store.Exists(ctx, "present"); err != nil || !ok {
		t.Fatalf("expected existing key, got ok=%v err=%v", ok, err)
	}

	if err := store.Delete(ctx, "present"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.Exists(ctx, "present"); ok {
		t.Fatal("object should be gone after delete")
	}
}
