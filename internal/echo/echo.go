package echo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// InternalPrefix is prepended by the stand-in internal service
const InternalPrefix = "Internal> "

const readSize = 1024

// Server echoes every read back to the sender, optionally behind Prefix
type Server struct {
	address  string
	prefix   []byte
	logger   *slog.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New creates an echo server. An empty prefix echoes bytes unchanged.
func New(address, prefix string, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		prefix:  []byte(prefix),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start begins accepting connections
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener

	s.logger.Info("Echo server started",
		slog.String("address", listener.Addr().String()),
		slog.String("prefix", string(s.prefix)),
	)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Echo server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			backoff = nextBackoff(backoff)
			s.logger.Error("Failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.track(conn) {
			conn.Close()
			return
		}
		go s.handle(conn)
	}
}

// track registers conn for Stop. It refuses once Stop has begun, so no
// connection can slip past the close loop in Stop.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

// nextBackoff doubles the accept retry delay from 5ms up to one second
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(d*2, time.Second)
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	peer := conn.RemoteAddr().String()
	s.logger.Info("Echo connection opened", slog.String("remote_addr", peer))

	var total int
	buf := make([]byte, readSize)
	out := make([]byte, 0, len(s.prefix)+readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out = append(append(out[:0], s.prefix...), buf[:n]...)
			if _, werr := conn.Write(out); werr != nil {
				s.logger.Debug("Echo write failed", slog.String("remote_addr", peer), slog.String("error", werr.Error()))
				return
			}
			total += n
		}
		if err != nil {
			s.logger.Info("Echo connection closed",
				slog.String("remote_addr", peer),
				slog.Int("bytes", total),
			)
			return
		}
	}
}
