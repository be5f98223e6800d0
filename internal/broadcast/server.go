package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Mode selects which payloads a client receives
type Mode string

const (
	ModeText  Mode = "text"
	ModeAudio Mode = "audio"
	ModeMixed Mode = "mixed"
)

const writeDeadline = 10 * time.Second

// Config controls the endpoint and the payload schedule
type Config struct {
	Address       string
	Path          string
	Mode          Mode
	MinInterval   time.Duration
	MaxInterval   time.Duration
	SampleRate    int
	ChunkDuration time.Duration
	Frequency     float64 // Hz
}

// DefaultConfig returns a mixed feed of 16 kHz 440 Hz chunks every 0.5 to 2 seconds
func DefaultConfig() Config {
	return Config{
		Address:       "0.0.0.0:8765",
		Path:          "/ws",
		Mode:          ModeMixed,
		MinInterval:   500 * time.Millisecond,
		MaxInterval:   2 * time.Second,
		SampleRate:    16000,
		ChunkDuration: 100 * time.Millisecond,
		Frequency:     440,
	}
}

// Validate checks the schedule and audio parameters
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeText, ModeAudio, ModeMixed:
	default:
		return fmt.Errorf("invalid mode %q (must be text, audio or mixed)", c.Mode)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("min interval must be positive")
	}
	if c.MaxInterval < c.MinInterval {
		return fmt.Errorf("max interval %v is below min interval %v", c.MaxInterval, c.MinInterval)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk duration must be positive")
	}
	if c.Frequency <= 0 || c.Frequency >= float64(c.SampleRate)/2 {
		return fmt.Errorf("frequency %.1f must be between 0 and the Nyquist limit", c.Frequency)
	}
	return nil
}

// chunkBytes is the size of one audio payload
func (c *Config) chunkBytes() int {
	return c.chunkSamples() * 2
}

func (c *Config) chunkSamples() int {
	return int(int64(c.SampleRate) * int64(c.ChunkDuration) / int64(time.Second))
}

// Server pushes random payloads to every WebSocket client
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	listener   net.Listener
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and creates a server
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: cfg.chunkBytes() + 64,
			// non-browser clients only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.cfg.Path, s.handleWebSocket)
	return mux
}

// Start listens on cfg.Address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Broadcast server started",
		slog.String("address", listener.Addr().String()),
		slog.String("path", s.cfg.Path),
		slog.String("mode", string(s.cfg.Mode)),
	)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Broadcast server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop ends every client stream and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	s.logger.Info("Broadcast server stopped")
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.stream(conn, r.RemoteAddr)
}

// stream sends payloads until the client goes away or the server stops
func (s *Server) stream(conn *websocket.Conn, peer string) {
	defer conn.Close()

	clientID := uuid.NewString()
	logger := s.logger.With(slog.String("client_id", clientID), slog.String("remote_addr", peer))
	logger.Info("Client connected")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// the read side only handles control frames and notices disconnects
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("Client read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	gen := newTone(s.cfg.Frequency, s.cfg.SampleRate)
	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			}
			logger.Info("Client disconnected", slog.Uint64("messages_sent", sent))
			return
		case <-timer.C:
		}

		messageType, payload := s.payload(gen, sent+1)
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(messageType, payload); err != nil {
			logger.Info("Client write failed",
				slog.String("error", err.Error()),
				slog.Uint64("messages_sent", sent),
			)
			return
		}
		sent++
		timer.Reset(s.interval())
	}
}

func (s *Server) payload(gen *tone, seq uint64) (int, []byte) {
	useAudio := s.cfg.Mode == ModeAudio || (s.cfg.Mode == ModeMixed && rand.N(2) == 0)
	if useAudio {
		return websocket.BinaryMessage, gen.next(s.cfg.chunkSamples())
	}
	text := fmt.Sprintf("message %d at %s", seq, time.Now().UTC().Format(time.RFC3339Nano))
	return websocket.TextMessage, []byte(text)
}

// interval draws a delay uniformly from [MinInterval, MaxInterval]
func (s *Server) interval() time.Duration {
	spread := s.cfg.MaxInterval - s.cfg.MinInterval
	if spread <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + rand.N(spread+1)
}
