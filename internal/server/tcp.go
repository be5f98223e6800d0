package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/voicelink-service/internal/config"
	"github.com/skypro1111/voicelink-service/internal/metrics"
	"github.com/skypro1111/voicelink-service/internal/protocol"
	"github.com/skypro1111/voicelink-service/internal/session"
)

// TCPServer accepts protocol connections and runs one session per connection
type TCPServer struct {
	listener net.Listener
	config   *config.ServerConfig
	handler  *session.Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	slots  *semaphore.Weighted

	// Counters
	connectionsAccepted uint64
	connectionsRejected uint64
	sessionErrors       uint64
	mu                  sync.RWMutex
}

// NewTCPServer creates a new TCP server instance
func NewTCPServer(cfg *config.ServerConfig, handler *session.Handler, m *metrics.Metrics, logger *slog.Logger) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TCPServer{
		config:  cfg,
		handler: handler,
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		slots:   semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}
}

// Start begins listening and accepting connections
func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.config.ListenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on TCP: %w", err)
	}
	s.listener = listener

	s.logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.Int("max_sessions", s.config.MaxSessions),
	)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound listener address, or nil before Start
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, ends every live session and waits for them to return
func (s *TCPServer) Stop() error {
	s.logger.Info("Stopping TCP server...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("Error closing TCP listener", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("TCP server stopped",
		slog.Uint64("connections_accepted", stats.ConnectionsAccepted),
		slog.Uint64("connections_rejected", stats.ConnectionsRejected),
		slog.Uint64("session_errors", stats.SessionErrors),
	)

	return nil
}

// acceptLoop is the main connection accepting loop
func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}

			// transient failures such as EMFILE
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			s.logger.Error("Failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.slots.TryAcquire(1) {
			s.mu.Lock()
			s.connectionsRejected++
			s.mu.Unlock()

			s.metrics.RecordSessionRejected()
			s.logger.Warn("Session limit reached, rejecting connection",
				slog.String("remote_addr", conn.RemoteAddr().String()),
				slog.Int("max_sessions", s.config.MaxSessions),
			)
			conn.Close()
			continue
		}

		s.mu.Lock()
		s.connectionsAccepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn runs a session; a failure here never reaches the listener or other sessions
func (s *TCPServer) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.slots.Release(1)
	defer func() {
		if r := recover(); r != nil {
			conn.Close()
			s.recordSessionError()
			s.logger.Error("Session panicked",
				slog.String("remote_addr", conn.RemoteAddr().String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	err := s.handler.Serve(s.ctx, conn)
	switch protocol.Classify(err) {
	case protocol.ReasonClosed, protocol.ReasonShutdown:
	default:
		s.recordSessionError()
	}
}

func (s *TCPServer) recordSessionError() {
	s.mu.Lock()
	s.sessionErrors++
	s.mu.Unlock()
}

// GetStatistics returns current server statistics
func (s *TCPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		ConnectionsAccepted: s.connectionsAccepted,
		ConnectionsRejected: s.connectionsRejected,
		SessionErrors:       s.sessionErrors,
		ActiveSessions:      uint64(s.handler.Registry().Count()),
		MaxSessions:         uint64(s.config.MaxSessions),
	}
}

// ServerStatistics represents dispatcher counters
type ServerStatistics struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ConnectionsRejected uint64 `json:"connections_rejected"`
	SessionErrors       uint64 `json:"session_errors"`
	ActiveSessions      uint64 `json:"active_sessions"`
	MaxSessions         uint64 `json:"max_sessions"`
}
