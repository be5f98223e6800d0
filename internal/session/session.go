package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/voicelink-service/internal/audio"
	"github.com/skypro1111/voicelink-service/internal/catalog"
	"github.com/skypro1111/voicelink-service/internal/config"
	"github.com/skypro1111/voicelink-service/internal/metrics"
	"github.com/skypro1111/voicelink-service/internal/protocol"
	"github.com/skypro1111/voicelink-service/internal/storage"
	"github.com/skypro1111/voicelink-service/internal/vad"
)

// State is the position of a session in the protocol
type State int32

const (
	StateAwaitingHeader State = iota
	StateTextRequest
	StateAudioCollecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting_header"
	case StateTextRequest:
		return "text_request"
	case StateAudioCollecting:
		return "audio_collecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// storageFailureMessage is the AUDIO_ERR payload sent when persisting fails
const storageFailureMessage = "failed to store audio"

// Config holds the per-session limits and timeouts. A zero timeout disables that deadline.
type Config struct {
	Limits        protocol.Limits
	MaxAudioBytes int64 // PCM bytes accepted per AUDIO_START; 0 means unlimited

	IdleTimeout  time.Duration // while awaiting a header
	ReadTimeout  time.Duration // per read inside a request
	WriteTimeout time.Duration // per response

	DefaultSampleRate int
	DefaultChannels   int

	VADThreshold float64
	VADWindow    time.Duration
}

// DefaultConfig returns the session settings of config.Default
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// ConfigFrom extracts session settings from the service configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Limits: protocol.Limits{
			MaxHeaderLength:  cfg.Server.MaxHeaderLength,
			MaxFrameSize:     uint32(cfg.Server.MaxFrameSize),
			MaxMetadataLines: cfg.Server.MaxMetadataLines,
		},
		MaxAudioBytes:     cfg.Server.MaxAudioBytes,
		IdleTimeout:       cfg.Server.GetIdleTimeoutDuration(),
		ReadTimeout:       cfg.Server.GetReadTimeoutDuration(),
		WriteTimeout:      cfg.Server.GetWriteTimeoutDuration(),
		DefaultSampleRate: cfg.Audio.DefaultSampleRate,
		DefaultChannels:   cfg.Audio.DefaultChannels,
		VADThreshold:      cfg.Audio.VADThreshold,
		VADWindow:         cfg.Audio.GetVADWindow(),
	}
}

// Options configures a Handler. Store is required; Catalog is optional.
type Options struct {
	Config    Config
	Responder *Responder
	Store     storage.FileStore
	Namer     *storage.Namer
	Catalog   catalog.Store
	Metrics   *metrics.Metrics
	Registry  *Registry
	Logger    *slog.Logger
}

// Handler serves protocol sessions on accepted connections
type Handler struct {
	cfg       Config
	responder *Responder
	store     storage.FileStore
	namer     *storage.Namer
	catalog   catalog.Store
	metrics   *metrics.Metrics
	registry  *Registry
	voice     *vad.Processor
	logger    *slog.Logger
}

// defaultVADWindow applies when Config.VADWindow is unset
const defaultVADWindow = 32 * time.Millisecond

// NewHandler creates a session handler
func NewHandler(opts Options) (*Handler, error) {
	if opts.Store == nil {
		return nil, errors.New("session: a file store is required")
	}

	h := &Handler{
		cfg:       opts.Config,
		responder: opts.Responder,
		store:     opts.Store,
		namer:     opts.Namer,
		catalog:   opts.Catalog,
		metrics:   opts.Metrics,
		registry:  opts.Registry,
		logger:    opts.Logger,
	}
	if h.cfg.Limits == (protocol.Limits{}) {
		h.cfg.Limits = protocol.DefaultLimits()
	}
	if h.cfg.DefaultSampleRate <= 0 {
		h.cfg.DefaultSampleRate = protocol.DefaultSampleRate
	}
	if h.cfg.DefaultChannels <= 0 {
		h.cfg.DefaultChannels = protocol.DefaultChannels
	}
	if h.responder == nil {
		h.responder = &Responder{}
	}
	if h.namer == nil {
		h.namer = storage.NewNamer()
	}
	if h.metrics == nil {
		h.metrics = metrics.New(prometheus.NewRegistry())
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.cfg.VADWindow <= 0 {
		h.cfg.VADWindow = defaultVADWindow
	}

	voice, err := vad.NewProcessor(h.cfg.VADThreshold, h.cfg.VADWindow)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	h.voice = voice
	return h, nil
}

// VoiceStats returns voice-activity statistics across every analysed recording
func (h *Handler) VoiceStats() vad.ProcessorStats {
	return h.voice.GetStats()
}

// Registry returns the registry of live sessions
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Session is one connection's protocol state
type Session struct {
	ID        string
	Peer      string
	StartedAt time.Time

	h      *Handler
	conn   net.Conn
	r      *protocol.Reader
	w      *protocol.Writer
	logger *slog.Logger

	state      atomic.Int32
	requests   atomic.Uint64
	audioBytes atomic.Int64
	buffer     atomic.Pointer[audio.Buffer]
}

// Info returns a snapshot of the session for monitoring
func (s *Session) Info() Info {
	info := Info{
		ID:         s.ID,
		Peer:       s.Peer,
		State:      State(s.state.Load()).String(),
		StartedAt:  s.StartedAt,
		Duration:   time.Since(s.StartedAt).Round(time.Millisecond).String(),
		Requests:   s.requests.Load(),
		AudioBytes: s.audioBytes.Load(),
	}
	if buf := s.buffer.Load(); buf != nil {
		stats := buf.GetStats()
		info.Buffer = &stats
	}
	return info
}

// Serve runs the protocol on conn until the peer leaves, a protocol error
// occurs, or ctx ends. The connection is closed on return.
// A nil result means the peer closed the connection between requests.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &Session{
		ID:        uuid.NewString(),
		Peer:      conn.RemoteAddr().String(),
		StartedAt: time.Now(),
		h:         h,
		conn:      conn,
		r:         protocol.NewReader(conn, h.cfg.Limits),
		w:         protocol.NewWriter(conn),
	}
	s.logger = h.logger.With(
		slog.String("session_id", s.ID),
		slog.String("remote_addr", s.Peer),
	)

	// unblocks any pending read or write when the server shuts down
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	h.registry.add(s)
	defer h.registry.remove(s.ID)

	h.metrics.RecordSessionAccepted()
	s.logger.Info("Session started")

	err := s.run(ctx)
	if cerr := ctx.Err(); cerr != nil {
		if err == nil {
			err = cerr
		} else {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
	}
	s.state.Store(int32(StateClosed))

	reason := protocol.Classify(err)
	elapsed := time.Since(s.StartedAt)
	h.metrics.RecordSessionClosed(reason, elapsed.Seconds())

	attrs := []any{
		slog.String("reason", reason),
		slog.Uint64("requests", s.requests.Load()),
		slog.Duration("duration", elapsed),
	}
	switch reason {
	case protocol.ReasonClosed, protocol.ReasonShutdown:
		s.logger.Info("Session closed", attrs...)
	default:
		h.metrics.RecordProtocolError(reason)
		s.logger.Warn("Session aborted", append(attrs, slog.String("error", err.Error()))...)
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	for {
		s.state.Store(int32(StateAwaitingHeader))
		if err := s.conn.SetReadDeadline(deadline(s.h.cfg.IdleTimeout)); err != nil {
			return fmt.Errorf("failed to set idle deadline: %w", err)
		}

		line, err := s.r.ReadHeaderLine()
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) {
				return nil
			}
			return fmt.Errorf("failed to read header: %w", err)
		}

		switch protocol.ParseCommand(line) {
		case protocol.CommandEmpty:
			continue
		case protocol.CommandText:
			if err := s.handleText(ctx); err != nil {
				return err
			}
		case protocol.CommandAudioStart:
			if err := s.handleAudio(ctx); err != nil {
				return err
			}
		default:
			// AUDIO_STOP outside an audio stream is as meaningless as any unknown header
			s.logger.Warn("Unrecognized header", slog.String("header", line))
			return fmt.Errorf("%w: %q", protocol.ErrUnrecognizedHeader, line)
		}
	}
}

func (s *Session) handleText(ctx context.Context) error {
	s.state.Store(int32(StateTextRequest))
	if err := s.conn.SetReadDeadline(deadline(s.h.cfg.ReadTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	payload, err := s.r.ReadLengthPrefixed()
	if err != nil {
		return fmt.Errorf("failed to read text payload: %w", err)
	}

	start := time.Now()
	query := strings.ToValidUTF8(string(payload), "\uFFFD")
	response, err := s.h.responder.Respond(ctx, query)
	if err != nil {
		return err
	}

	if err := s.writeResponse(protocol.HeaderTextResp, []byte(response)); err != nil {
		return fmt.Errorf("failed to write text response: %w", err)
	}

	s.requests.Add(1)
	s.h.metrics.RecordTextRequest(time.Since(start).Seconds())
	s.logger.Info("Text request answered",
		slog.Int("query_bytes", len(payload)),
		slog.Int("response_bytes", len(response)))
	return nil
}

func (s *Session) handleAudio(ctx context.Context) error {
	s.state.Store(int32(StateAudioCollecting))
	if err := s.conn.SetReadDeadline(deadline(s.h.cfg.ReadTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	meta, err := s.r.ReadMetadata()
	if err != nil {
		return fmt.Errorf("failed to read audio metadata: %w", err)
	}

	sampleRate := meta.SampleRate(s.h.cfg.DefaultSampleRate)
	channels := meta.Channels(s.h.cfg.DefaultChannels)
	buf, err := audio.NewAudioBuffer(channels, sampleRate, protocol.DefaultSampleWidth)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMalformedFrame, err)
	}

	s.buffer.Store(buf)
	defer func() {
		s.buffer.Store(nil)
		buf.Release()
	}()

	s.logger.Info("Audio stream started",
		slog.Int("sample_rate", sampleRate),
		slog.Int("channels", channels),
		slog.String("format", meta[protocol.MetaFormat]))

	for {
		if err := s.conn.SetReadDeadline(deadline(s.h.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		unit, err := s.r.ReadAudioUnit()
		if errors.Is(err, protocol.ErrConnectionClosed) {
			return fmt.Errorf("%w: audio stream truncated after %d bytes: %w", protocol.ErrMalformedFrame, buf.Len(), err)
		}
		if err != nil {
			return fmt.Errorf("failed to read audio unit after %d bytes: %w", buf.Len(), err)
		}
		if unit.IsStop() {
			break
		}

		if limit := s.h.cfg.MaxAudioBytes; limit > 0 && int64(buf.Len()+len(unit.Data)) > limit {
			return fmt.Errorf("%w: more than %d bytes", protocol.ErrAudioTooLarge, limit)
		}
		buf.Append(unit.Data)
		s.audioBytes.Add(int64(len(unit.Data)))
		s.h.metrics.RecordAudioChunk(len(unit.Data))
	}

	return s.finishAudio(ctx, buf)
}

// finishAudio persists the recording and answers with the same container.
// The client only sees AUDIO_RESP once the artifact is fully written.
func (s *Session) finishAudio(ctx context.Context, buf *audio.Buffer) error {
	start := time.Now()

	wav, err := buf.Finalize()
	if err != nil {
		return fmt.Errorf("failed to finalize audio: %w", err)
	}

	name := s.h.namer.Name(s.Peer)
	if err := storage.Save(ctx, s.h.store, name, wav); err != nil {
		s.h.metrics.RecordStorageFailure()
		s.logger.Error("Failed to persist recording",
			slog.String("path", name),
			slog.String("error", err.Error()))

		if werr := s.writeResponse(protocol.HeaderAudioErr, []byte(storageFailureMessage)); werr != nil {
			s.logger.Debug("Failed to report storage failure", slog.String("error", werr.Error()))
		}
		return fmt.Errorf("%w: %s: %v", protocol.ErrStorageWrite, name, err)
	}
	stored := time.Since(start)

	summary := s.analyze(buf)
	s.index(ctx, name, buf, summary)

	if err := s.writeResponse(protocol.HeaderAudioResp, wav); err != nil {
		return fmt.Errorf("failed to write audio response: %w", err)
	}

	s.requests.Add(1)
	s.h.metrics.RecordPersisted(stored.Seconds(), summary.VoiceRatio)
	s.h.metrics.RecordAudioRequest(buf.Duration().Seconds(), time.Since(start).Seconds())
	s.logger.Info("Audio request answered",
		slog.String("path", name),
		slog.Int("chunks", buf.Chunks()),
		slog.Int("pcm_bytes", buf.Len()),
		slog.Duration("duration", buf.Duration()),
		slog.Float64("voice_ratio", summary.VoiceRatio))
	return nil
}

// analyze runs voice-activity detection over 16-bit recordings
func (s *Session) analyze(buf *audio.Buffer) vad.Summary {
	f := buf.Format()
	if f.SampleWidth != 2 || buf.Len() == 0 {
		return vad.Summary{}
	}

	summary, err := s.h.voice.Analyze(audio.PCM16Samples(buf.PCM()), f.SampleRate, f.Channels)
	if err != nil {
		s.logger.Debug("Voice analysis failed", slog.String("error", err.Error()))
		return vad.Summary{}
	}
	return summary
}

// index records the artifact in the catalog. Failures never reach the client.
func (s *Session) index(ctx context.Context, name string, buf *audio.Buffer, summary vad.Summary) {
	if s.h.catalog == nil {
		return
	}

	f := buf.Format()
	rec := &catalog.Recording{
		Path:       name,
		Peer:       s.Peer,
		SessionID:  s.ID,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		PCMBytes:   buf.Len(),
		Chunks:     buf.Chunks(),
		DurationMS: buf.Duration().Milliseconds(),
		VoiceRatio: summary.VoiceRatio,
	}
	if err := s.h.catalog.Put(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("Failed to index recording",
			slog.String("path", name),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("Recording indexed", slog.String("recording_id", rec.ID))
}

func (s *Session) writeResponse(header string, payload []byte) error {
	if err := s.conn.SetWriteDeadline(deadline(s.h.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.w.WriteResponse(header, payload)
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
