package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/voicelink-service/internal/catalog"
	"github.com/skypro1111/voicelink-service/internal/config"
	"github.com/skypro1111/voicelink-service/internal/discovery"
	"github.com/skypro1111/voicelink-service/internal/metrics"
	"github.com/skypro1111/voicelink-service/internal/server"
	"github.com/skypro1111/voicelink-service/internal/session"
	"github.com/skypro1111/voicelink-service/internal/storage"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voicelink-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("listen_address", cfg.Server.ListenAddress()),
		slog.Int("max_sessions", cfg.Server.MaxSessions),
		slog.Int("max_frame_size", cfg.Server.MaxFrameSize),
		slog.String("response_prefix", cfg.Response.Prefix),
		slog.Int("response_delay_ms", cfg.Response.DelayMS),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.Bool("catalog_enabled", cfg.Catalog.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics()

	files, err := storage.New(storage.Options{
		Backend: cfg.Storage.Backend,
		Dir:     cfg.Storage.OutputDir,
		S3: storage.S3Options{
			Bucket:          cfg.Storage.S3.Bucket,
			Prefix:          cfg.Storage.S3.Prefix,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	logger.Info("Storage initialized",
		slog.String("backend", cfg.Storage.Backend),
		slog.String("output_dir", cfg.Storage.OutputDir),
	)

	var recordings catalog.Store
	if cfg.Catalog.Enabled {
		db, err := catalog.NewBadger(catalog.BadgerOptions{
			Dir:      cfg.Catalog.Dir,
			InMemory: cfg.Catalog.InMemory,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Error closing catalog", slog.String("error", err.Error()))
			}
		}()
		recordings = db
		logger.Info("Catalog initialized", slog.String("dir", cfg.Catalog.Dir), slog.Bool("in_memory", cfg.Catalog.InMemory))
	}

	handler, err := session.NewHandler(session.Options{
		Config: session.ConfigFrom(cfg),
		Responder: &session.Responder{
			Prefix: cfg.Response.Prefix,
			Delay:  cfg.Response.GetDelay(),
		},
		Store:   files,
		Catalog: recordings,
		Metrics: appMetrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create session handler: %w", err)
	}

	tcpServer := server.NewTCPServer(&cfg.Server, handler, appMetrics, logger)
	if err := tcpServer.Start(); err != nil {
		return err
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, tcpServer, recordings, files, appMetrics, prometheus.DefaultGatherer)
		if err := httpServer.Start(); err != nil {
			tcpServer.Stop()
			return err
		}
	}

	var advertiser *discovery.Advertiser
	if cfg.Discovery.Enabled {
		advertiser, err = discovery.Advertise(discovery.Config{
			ServiceName: cfg.Discovery.ServiceName,
			Port:        cfg.Server.Port,
			Info:        []string{"version=" + serviceVersion},
		}, logger)
		if err != nil {
			// the service is reachable without it
			logger.Warn("mDNS advertisement disabled", slog.String("error", err.Error()))
		}
	}

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("tcp_address", tcpServer.Addr().String()),
	)

	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	if advertiser != nil {
		if err := advertiser.Shutdown(); err != nil {
			logger.Error("Error stopping mDNS advertisement", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var g errgroup.Group
	if httpServer != nil {
		g.Go(func() error { return httpServer.Stop(shutdownCtx) })
	}
	g.Go(tcpServer.Stop)
	if err := g.Wait(); err != nil {
		logger.Error("Error during shutdown", slog.String("error", err.Error()))
	}

	stats := tcpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("connections_accepted", stats.ConnectionsAccepted),
		slog.Uint64("connections_rejected", stats.ConnectionsRejected),
		slog.Uint64("session_errors", stats.SessionErrors),
	)
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
