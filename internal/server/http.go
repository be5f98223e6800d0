package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voicelink-service/internal/catalog"
	"github.com/skypro1111/voicelink-service/internal/config"
	"github.com/skypro1111/voicelink-service/internal/metrics"
	"github.com/skypro1111/voicelink-service/internal/storage"
)

const (
	serviceName    = "voicelink-service"
	serviceVersion = "1.0.0"

	defaultRecordingsLimit = 100
)

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	tcpServer  *TCPServer
	recordings catalog.Store
	files      storage.FileStore
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server.
// recordings may be nil when the catalog is disabled; a nil gatherer serves the default registry.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	tcpServer *TCPServer, recordings catalog.Store, files storage.FileStore,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		tcpServer:  tcpServer,
		recordings: recordings,
		files:      files,
		metrics:    m,
		gatherer:   gatherer,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Live sessions
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/{id}", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Persisted recordings
	mux.HandleFunc("/recordings", h.withMetrics("/recordings", h.handleRecordings))
	mux.HandleFunc("/recordings/{id}", h.withMetrics("/recordings/{id}", h.handleRecordingDetail))
	mux.HandleFunc("/recordings/{id}/audio", h.withMetrics("/recordings/{id}/audio", h.handleRecordingAudio))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the routed handler, mainly for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Start binds the listener and serves in the background
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", listener.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tcpStats := h.tcpServer.GetStatistics()

	catalogStatus := "disabled"
	if h.recordings != nil {
		catalogStatus = "running"
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"tcp_server": map[string]interface{}{
				"status":               "running",
				"active_sessions":      tcpStats.ActiveSessions,
				"max_sessions":         tcpStats.MaxSessions,
				"connections_accepted": tcpStats.ConnectionsAccepted,
				"connections_rejected": tcpStats.ConnectionsRejected,
			},
			"storage": map[string]interface{}{
				"status":  "running",
				"backend": h.config.Storage.Backend,
			},
			"catalog": map[string]interface{}{
				"status": catalogStatus,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.tcpServer.handler.Registry().List()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	})
}

// handleSessionDetail implements the /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info, ok := h.tcpServer.handler.Registry().Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleRecordings implements the /recordings endpoint
func (h *HTTPServer) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.recordings == nil {
		http.Error(w, "Recording catalog disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultRecordingsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.recordings.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list recordings", slog.String("error", err.Error()))
		http.Error(w, "Failed to list recordings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_recordings": len(recs),
		"timestamp":        time.Now().UTC(),
		"recordings":       recs,
	})
}

// handleRecordingDetail implements the /recordings/{id} endpoint
func (h *HTTPServer) handleRecordingDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, ok := h.lookupRecording(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleRecordingAudio implements the /recordings/{id}/audio endpoint
func (h *HTTPServer) handleRecordingAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, ok := h.lookupRecording(w, r)
	if !ok {
		return
	}

	data, err := storage.Load(r.Context(), h.files, rec.Path)
	if err != nil {
		h.logger.Error("Failed to load recording",
			slog.String("recording_id", rec.ID),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Recording audio unavailable", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *HTTPServer) lookupRecording(w http.ResponseWriter, r *http.Request) (catalog.Recording, bool) {
	if h.recordings == nil {
		http.Error(w, "Recording catalog disabled", http.StatusServiceUnavailable)
		return catalog.Recording{}, false
	}

	rec, err := h.recordings.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "Recording not found", http.StatusNotFound)
		return catalog.Recording{}, false
	}
	if err != nil {
		h.logger.Error("Failed to get recording", slog.String("error", err.Error()))
		http.Error(w, "Failed to get recording", http.StatusInternalServerError)
		return catalog.Recording{}, false
	}
	return rec, true
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config.Sanitized()
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"bind_address":       c.Server.BindAddress,
			"port":               c.Server.Port,
			"max_sessions":       c.Server.MaxSessions,
			"max_frame_size":     c.Server.MaxFrameSize,
			"max_header_length":  c.Server.MaxHeaderLength,
			"max_metadata_lines": c.Server.MaxMetadataLines,
			"max_audio_bytes":    c.Server.MaxAudioBytes,
			"idle_timeout":       c.Server.IdleTimeout,
			"read_timeout":       c.Server.ReadTimeout,
			"write_timeout":      c.Server.WriteTimeout,
		},
		"response": map[string]interface{}{
			"prefix":   c.Response.Prefix,
			"delay_ms": c.Response.DelayMS,
		},
		"audio": map[string]interface{}{
			"default_sample_rate": c.Audio.DefaultSampleRate,
			"default_channels":    c.Audio.DefaultChannels,
			"vad_threshold":       c.Audio.VADThreshold,
			"vad_window_ms":       c.Audio.VADWindowMS,
		},
		"storage": map[string]interface{}{
			"backend":    c.Storage.Backend,
			"output_dir": c.Storage.OutputDir,
			"s3":         c.Storage.S3, // credentials are excluded by their json tags
		},
		"catalog": map[string]interface{}{
			"enabled":   c.Catalog.Enabled,
			"dir":       c.Catalog.Dir,
			"in_memory": c.Catalog.InMemory,
		},
		"discovery": map[string]interface{}{
			"enabled":      c.Discovery.Enabled,
			"service_name": c.Discovery.ServiceName,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"tcp":       h.tcpServer.GetStatistics(),
		"sessions": map[string]interface{}{
			"active_count": h.tcpServer.handler.Registry().Count(),
		},
		"voice_activity": h.tcpServer.handler.VoiceStats(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Voicelink TEXT/AUDIO Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                      "API documentation",
			"GET /health":                "Service health check",
			"GET /sessions":              "List live protocol sessions",
			"GET /sessions/{id}":         "Get one live session",
			"GET /recordings":            "List persisted recordings (?limit=N)",
			"GET /recordings/{id}":       "Get recording metadata",
			"GET /recordings/{id}/audio": "Download the recording container",
			"GET /config":                "Get service configuration",
			"GET /stats":                 "Get service statistics",
			"GET /metrics":               "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
