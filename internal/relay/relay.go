package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes the bastion and the internal target
type Config struct {
	ListenAddress string // local address accepting clients

	BastionHost                 string // host or host:port; port 22 when omitted
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string // defaults to ~/.ssh/known_hosts
	InsecureSkipHostKeyChecking bool

	Target  string // internal host:port reached from the bastion
	Timeout time.Duration
}

// Relay accepts local connections and tunnels them through the bastion
type Relay struct {
	cfg       Config
	address   string
	sshConfig *ssh.ClientConfig
	logger    *slog.Logger
	listener  net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[io.Closer]struct{}
}

// New validates cfg and prepares SSH authentication
func New(cfg Config, logger *slog.Logger) (*Relay, error) {
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, fmt.Errorf("relay target is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Target); err != nil {
		return nil, fmt.Errorf("relay target must be host:port: %w", err)
	}

	address, err := bastionAddress(cfg.BastionHost)
	if err != nil {
		return nil, err
	}
	sshConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		cfg:       cfg,
		address:   address,
		sshConfig: sshConfig,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[io.Closer]struct{}),
	}, nil
}

func bastionAddress(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := loadSigner(cfg.KeyPath, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		path := strings.TrimSpace(cfg.KnownHostsPath)
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
			}
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
		hostKeyCallback, err = knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

func loadSigner(path string, passphrase []byte) (ssh.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}
	privateKey, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	if len(passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, passphrase)
	}
	return ssh.ParsePrivateKey(privateKey)
}

// Start begins accepting local connections
func (r *Relay) Start() error {
	listener, err := net.Listen("tcp", r.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.cfg.ListenAddress, err)
	}
	r.listener = listener

	r.logger.Info("Relay started",
		slog.String("address", listener.Addr().String()),
		slog.String("bastion", r.address),
		slog.String("target", r.cfg.Target),
	)

	r.wg.Add(1)
	go r.acceptLoop()
	return nil
}

// Addr returns the bound local address, or nil before Start
func (r *Relay) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop closes the listener and every tunnel
func (r *Relay) Stop() error {
	r.cancel()
	if r.listener != nil {
		r.listener.Close()
	}

	r.mu.Lock()
	for c := range r.conns {
		c.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Relay stopped")
	return nil
}

func (r *Relay) acceptLoop() {
	defer r.wg.Done()

	var backoff time.Duration
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if r.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			r.logger.Error("Failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		r.wg.Add(1)
		go r.handle(conn)
	}
}

// track registers c for Stop and reports false once Stop has begun
func (r *Relay) track(c io.Closer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return false
	}
	r.conns[c] = struct{}{}
	return true
}

func (r *Relay) untrack(c io.Closer) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
	c.Close()
}

func (r *Relay) handle(conn net.Conn) {
	defer r.wg.Done()
	if !r.track(conn) {
		conn.Close()
		return
	}
	defer r.untrack(conn)

	peer := conn.RemoteAddr().String()
	logger := r.logger.With(slog.String("remote_addr", peer))

	client, err := r.dial()
	if err != nil {
		logger.Error("Failed to connect to bastion", slog.String("error", err.Error()))
		return
	}
	if !r.track(client) {
		client.Close()
		return
	}
	defer r.untrack(client)

	channel, err := client.Dial("tcp", r.cfg.Target)
	if err != nil {
		logger.Error("Failed to open tunnel", slog.String("target", r.cfg.Target), slog.String("error", err.Error()))
		return
	}
	defer channel.Close()

	logger.Info("Tunnel opened", slog.String("target", r.cfg.Target))
	up, down := pipe(conn, channel)
	logger.Info("Tunnel closed", slog.Int64("bytes_up", up), slog.Int64("bytes_down", down))
}

func (r *Relay) dial() (*ssh.Client, error) {
	if r.cfg.Timeout <= 0 {
		return ssh.Dial("tcp", r.address, r.sshConfig)
	}

	conn, err := net.DialTimeout("tcp", r.address, r.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, r.address, r.sshConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

// pipe copies in both directions until either side finishes, then closes both
func pipe(a, b net.Conn) (aToB, bToA int64) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		aToB, _ = io.Copy(b, a)
		b.Close()
		a.Close()
	}()
	go func() {
		defer wg.Done()
		bToA, _ = io.Copy(a, b)
		a.Close()
		b.Close()
	}()
	wg.Wait()
	return aToB, bToA
}
