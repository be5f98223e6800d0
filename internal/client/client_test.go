package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/skypro1111/voicelink-service/internal/audio"
	"github.com/skypro1111/voicelink-service/internal/session"
	"github.com/skypro1111/voicelink-service/internal/storage"
)

func newPipeClient(t *testing.T, responder *session.Responder, store storage.FileStore) *Client {
	t.Helper()

	if store == nil {
		local, err := storage.NewLocal(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		store = local
	}
	if responder == nil {
		responder = &session.Responder{Prefix: "server_echo: "}
	}

	handler, err := session.NewHandler(session.Options{
		Config:    session.DefaultConfig(),
		Responder: responder,
		Store:     store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}

	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go handler.Serve(ctx, serverConn)

	c := New(clientConn, WithTimeout(5*time.Second))
	t.Cleanup(func() {
		c.Close()
		cancel()
	})
	return c
}

func TestText(t *testing.T) {
	c := newPipeClient(t, nil, nil)

	for _, tt := range []struct{ query, expected string }{
		{"hello", "server_echo: olleh"},
		{"", "server_echo: "},
	} {
		got, err := c.Text(context.Background(), tt.query)
		if err != nil {
			t.Fatalf("Text(%q) failed: %v", tt.query, err)
		}
		if got != tt.expected {
			t.Errorf("Text(%q) = %q, expected %q", tt.query, got, tt.expected)
		}
	}
}

func TestAudioChunking(t *testing.T) {
	c := newPipeClient(t, nil, nil)

	pcm := make([]byte, 1000)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	wav, err := c.Audio(context.Background(), pcm, AudioOptions{SampleRate: 8000, Channels: 1, ChunkSize: 300})
	if err != nil {
		t.Fatalf("Audio failed: %v", err)
	}

	got, format, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("Returned PCM differs from the PCM sent")
	}
	if format.SampleRate != 8000 || format.Channels != 1 {
		t.Errorf("Unexpected format %+v", format)
	}

	// connection stays usable for the next request
	if _, err := c.Text(context.Background(), "again"); err != nil {
		t.Errorf("Text after audio failed: %v", err)
	}
}

func TestStreamAudio(t *testing.T) {
	c := newPipeClient(t, nil, nil)

	stream, err := c.StreamAudio(context.Background(), AudioOptions{SampleRate: 16000, Channels: 2})
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	for _, chunk := range [][]byte{{1, 0, 2, 0}, {3, 0, 4, 0}} {
		if err := stream.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if stream.Sent() != 8 {
		t.Errorf("Expected 8 bytes sent, got %d", stream.Sent())
	}

	wav, err := stream.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		t.Fatalf("Invalid container: %v", err)
	}
	if info.Channels != 2 || info.DataSize != 8 {
		t.Errorf("Unexpected container info %+v", info)
	}

	if err := stream.Write([]byte{1}); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed, got %v", err)
	}
}

type brokenStore struct {
	storage.FileStore
}

func (brokenStore) Write(context.Context, string) (io.WriteCloser, error) {
	return nil, errors.New("read-only file system")
}

func TestAudioServerFailure(t *testing.T) {
	c := newPipeClient(t, nil, brokenStore{})

	_, err := c.Audio(context.Background(), []byte{1, 2}, AudioOptions{})
	if !errors.Is(err, ErrServerFailure) {
		t.Errorf("Expected ErrServerFailure, got %v", err)
	}
}

func TestTextHonoursContext(t *testing.T) {
	c := newPipeClient(t, &session.Responder{Delay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Text(ctx, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
