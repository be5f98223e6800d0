package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/skypro1111/voicelink-service/internal/protocol"
)

var (
	// ErrServerFailure is returned when the server answers with AUDIO_ERR
	ErrServerFailure = errors.New("client: server reported failure")

	// ErrUnexpectedResponse is returned for a response header other than the one expected
	ErrUnexpectedResponse = errors.New("client: unexpected response")

	ErrStreamClosed = errors.New("client: audio stream closed")
)

const (
	// DefaultChunkSize matches the reference mobile client
	DefaultChunkSize = 2048

	DefaultTimeout = 30 * time.Second
)

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds every request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLimits sets the limits applied to responses
func WithLimits(l protocol.Limits) Option {
	return func(c *Client) { c.limits = l }
}

// Client is a protocol connection to a voicelink server
type Client struct {
	conn    net.Conn
	r       *protocol.Reader
	w       *protocol.Writer
	timeout time.Duration
	limits  protocol.Limits

	mu sync.Mutex // one request at a time
}

// Dial connects to addr
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		timeout: DefaultTimeout,
		limits:  protocol.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.r = protocol.NewReader(conn, c.limits)
	c.w = protocol.NewWriter(conn)
	return c
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the server address
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Text sends a TEXT query and returns the TEXT_RESP payload
func (c *Client) Text(ctx context.Context, query string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	release := c.bind(ctx)
	defer release()

	if err := c.w.WriteText(query); err != nil {
		return "", c.fail(ctx, "send text", err)
	}
	payload, err := c.expect(protocol.HeaderTextResp)
	if err != nil {
		return "", c.fail(ctx, "read text response", err)
	}
	return string(payload), nil
}

// AudioOptions describes the PCM sent by Audio and StreamAudio.
// Zero values fall back to the protocol defaults.
type AudioOptions struct {
	SampleRate int
	Channels   int
	ChunkSize  int    // bytes per CHUNK unit, Audio only
	Format     string // informational format tag
}

func (o AudioOptions) metadata() protocol.Metadata {
	rate := o.SampleRate
	if rate <= 0 {
		rate = protocol.DefaultSampleRate
	}
	channels := o.Channels
	if channels <= 0 {
		channels = protocol.DefaultChannels
	}
	format := o.Format
	if format == "" {
		format = "pcm_s16"
	}
	return protocol.Metadata{
		protocol.MetaSampleRate: strconv.Itoa(rate),
		protocol.MetaChannels:   strconv.Itoa(channels),
		protocol.MetaFormat:     format,
	}
}

// Audio sends pcm in ChunkSize pieces and returns the server's audio container
func (c *Client) Audio(ctx context.Context, pcm []byte, opts AudioOptions) ([]byte, error) {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	stream, err := c.StreamAudio(ctx, opts)
	if err != nil {
		return nil, err
	}
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		if err := stream.Write(pcm[off:end]); err != nil {
			stream.Abort()
			return nil, err
		}
	}
	return stream.Close()
}

// StreamAudio starts an audio request. The client is held until the stream is closed or aborted.
func (c *Client) StreamAudio(ctx context.Context, opts AudioOptions) (*AudioStream, error) {
	c.mu.Lock()
	release := c.bind(ctx)

	if err := c.w.WriteAudioStart(opts.metadata()); err != nil {
		release()
		c.mu.Unlock()
		return nil, c.fail(ctx, "send audio start", err)
	}
	return &AudioStream{c: c, ctx: ctx, release: release}, nil
}

// AudioStream is an open AUDIO_START request
type AudioStream struct {
	c       *Client
	ctx     context.Context
	release func()
	done    bool
	sent    int64
}

// Write sends one PCM chunk
func (s *AudioStream) Write(pcm []byte) error {
	if s.done {
		return ErrStreamClosed
	}
	if err := s.c.w.WriteAudioChunk(pcm); err != nil {
		return s.c.fail(s.ctx, "send audio chunk", err)
	}
	s.sent += int64(len(pcm))
	return nil
}

// Sent returns the PCM bytes written so far
func (s *AudioStream) Sent() int64 {
	return s.sent
}

// Close sends the stop unit and waits for the audio container
func (s *AudioStream) Close() ([]byte, error) {
	if s.done {
		return nil, ErrStreamClosed
	}
	defer s.finish()

	if err := s.c.w.WriteAudioStop(); err != nil {
		return nil, s.c.fail(s.ctx, "send audio stop", err)
	}
	wav, err := s.c.expect(protocol.HeaderAudioResp)
	if err != nil {
		return nil, s.c.fail(s.ctx, "read audio response", err)
	}
	return wav, nil
}

// Abort releases the client without completing the request.
// The connection is no longer usable because the server is mid-stream.
func (s *AudioStream) Abort() {
	if s.done {
		return
	}
	s.c.conn.Close()
	s.finish()
}

func (s *AudioStream) finish() {
	s.done = true
	s.release()
	s.c.mu.Unlock()
}

// bind applies the request timeout and interrupts blocked I/O when ctx ends.
// The returned func clears both.
func (c *Client) bind(ctx context.Context) func() {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		c.conn.SetDeadline(time.Time{})
	}
}

// expect reads one response unit and checks its header
func (c *Client) expect(want string) ([]byte, error) {
	header, err := c.r.ReadHeaderLine()
	if err != nil {
		return nil, err
	}
	if header != protocol.HeaderAudioErr && header != want {
		return nil, fmt.Errorf("%w: %q, expected %s", ErrUnexpectedResponse, header, want)
	}

	payload, err := c.r.ReadLengthPrefixed()
	if err != nil {
		return nil, err
	}
	if header == protocol.HeaderAudioErr {
		return nil, fmt.Errorf("%w: %s", ErrServerFailure, payload)
	}
	return payload, nil
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("client: %s: %w: %w", op, cerr, err)
	}
	return fmt.Errorf("client: %s: %w", op, err)
}
