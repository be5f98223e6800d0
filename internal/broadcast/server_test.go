package broadcast

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(mode Mode) Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Mode = mode
	cfg.MinInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.SampleRate = 8000
	cfg.ChunkDuration = 20 * time.Millisecond
	return cfg
}

func startTest(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	s, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop(context.Background())
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestModes(t *testing.T) {
	tests := []struct {
		mode       Mode
		expectText bool
		expectBin  bool
	}{
		{mode: ModeText, expectText: true},
		{mode: ModeAudio, expectBin: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cfg := fastConfig(tt.mode)
			_, url := startTest(t, cfg)
			conn := dial(t, url)

			for i := 0; i < 5; i++ {
				conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				messageType, data, err := conn.ReadMessage()
				if err != nil {
					t.Fatalf("Failed to read message %d: %v", i, err)
				}
				switch messageType {
				case websocket.TextMessage:
					if !tt.expectText {
						t.Fatalf("Unexpected text message %q", data)
					}
					if !strings.HasPrefix(string(data), "message ") {
						t.Errorf("Unexpected text payload %q", data)
					}
				case websocket.BinaryMessage:
					if !tt.expectBin {
						t.Fatalf("Unexpected binary message of %d bytes", len(data))
					}
					if len(data) != cfg.chunkBytes() {
						t.Errorf("Expected %d byte chunk, got %d", cfg.chunkBytes(), len(data))
					}
				}
			}
		})
	}
}

func TestMixedModeDelivers(t *testing.T) {
	_, url := startTest(t, fastConfig(ModeMixed))
	conn := dial(t, url)

	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		messageType, _, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read message %d: %v", i, err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			t.Errorf("Unexpected message type %d", messageType)
		}
	}
}

func TestStopClosesClients(t *testing.T) {
	cfg := fastConfig(ModeText)
	cfg.MinInterval = time.Hour
	cfg.MaxInterval = time.Hour

	s, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	conn := dial(t, "ws://"+s.Addr().String()+cfg.Path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "video" }, expectErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.MinInterval = 0 }, expectErr: true},
		{name: "inverted interval", mutate: func(c *Config) { c.MaxInterval = c.MinInterval / 2 }, expectErr: true},
		{name: "low sample rate", mutate: func(c *Config) { c.SampleRate = 100 }, expectErr: true},
		{name: "zero chunk", mutate: func(c *Config) { c.ChunkDuration = 0 }, expectErr: true},
		{name: "frequency above nyquist", mutate: func(c *Config) { c.Frequency = 9000 }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestIntervalWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	s, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	for i := 0; i < 1000; i++ {
		d := s.interval()
		if d < cfg.MinInterval || d > cfg.MaxInterval {
			t.Fatalf("Interval %v outside [%v, %v]", d, cfg.MinInterval, cfg.MaxInterval)
		}
	}
}

func TestToneIsContinuous(t *testing.T) {
	whole := newTone(440, 16000).next(320)

	split := newTone(440, 16000)
	joined := append(split.next(160), split.next(160)...)

	if string(whole) != string(joined) {
		t.Error("Expected consecutive chunks to continue the waveform")
	}
	if len(whole) != 640 {
		t.Errorf("Expected 640 bytes, got %d", len(whole))
	}
}
