// Command collaborators runs the auxiliary services the voicelink client talks
// to besides the main server: a byte echo, a prefixed internal echo, an SSH
// relay in front of the internal service and a WebSocket broadcaster.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/voicelink-service/internal/broadcast"
	"github.com/skypro1111/voicelink-service/internal/echo"
	"github.com/skypro1111/voicelink-service/internal/relay"
)

type service interface {
	Start() error
}

type options struct {
	services string

	echoAddr     string
	internalAddr string

	relayAddr        string
	sshHost          string
	sshUser          string
	sshKey           string
	sshPassphrase    string
	knownHosts       string
	insecure         bool
	relayTarget      string
	relayDialTimeout time.Duration

	broadcastAddr string
	broadcastCfg  broadcast.Config
	mode          string
}

func main() {
	def := broadcast.DefaultConfig()
	var o options

	flag.StringVar(&o.services, "services", "echo", "Comma separated services to run: echo, internal, relay, broadcast")
	flag.StringVar(&o.echoAddr, "echo-addr", "0.0.0.0:9000", "Echo listen address")
	flag.StringVar(&o.internalAddr, "internal-addr", "127.0.0.1:12345", "Internal echo listen address")

	flag.StringVar(&o.relayAddr, "relay-addr", "0.0.0.0:9000", "Relay listen address")
	flag.StringVar(&o.sshHost, "ssh-host", "", "Bastion host[:port]")
	flag.StringVar(&o.sshUser, "ssh-user", "", "Bastion user")
	flag.StringVar(&o.sshKey, "ssh-key", "", "Private key file")
	flag.StringVar(&o.sshPassphrase, "ssh-passphrase", os.Getenv("VOICELINK_SSH_PASSPHRASE"), "Private key passphrase")
	flag.StringVar(&o.knownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	flag.BoolVar(&o.insecure, "insecure", false, "Skip bastion host key verification")
	flag.StringVar(&o.relayTarget, "target", "", "Internal host:port reached through the bastion")
	flag.DurationVar(&o.relayDialTimeout, "ssh-timeout", 10*time.Second, "Bastion dial timeout")

	flag.StringVar(&o.broadcastAddr, "broadcast-addr", def.Address, "Broadcast listen address")
	flag.StringVar(&o.mode, "mode", string(def.Mode), "Broadcast payloads: text, audio or mixed")
	flag.DurationVar(&o.broadcastCfg.MinInterval, "min-interval", def.MinInterval, "Shortest delay between messages")
	flag.DurationVar(&o.broadcastCfg.MaxInterval, "max-interval", def.MaxInterval, "Longest delay between messages")
	flag.IntVar(&o.broadcastCfg.SampleRate, "rate", def.SampleRate, "Audio sample rate")
	flag.DurationVar(&o.broadcastCfg.ChunkDuration, "chunk", def.ChunkDuration, "Audio chunk length")
	flag.Float64Var(&o.broadcastCfg.Frequency, "frequency", def.Frequency, "Tone frequency in Hz")

	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(o, logger); err != nil {
		logger.Error("Collaborators failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(o options, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stops []func(context.Context) error
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var g errgroup.Group
		for _, fn := range stops {
			g.Go(func() error { return fn(shutdownCtx) })
		}
		if err := g.Wait(); err != nil {
			logger.Error("Error during shutdown", slog.String("error", err.Error()))
		}
	}()

	for _, name := range strings.Split(o.services, ",") {
		name = strings.TrimSpace(name)
		svc, stopFn, err := build(name, o, logger.With(slog.String("service", name)))
		if err != nil {
			return err
		}
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		stops = append(stops, stopFn)
	}

	logger.Info("Collaborators running, waiting for signals...", slog.String("services", o.services))
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

func build(name string, o options, logger *slog.Logger) (service, func(context.Context) error, error) {
	switch name {
	case "echo":
		s := echo.New(o.echoAddr, "", logger)
		return s, func(context.Context) error { return s.Stop() }, nil

	case "internal":
		s := echo.New(o.internalAddr, echo.InternalPrefix, logger)
		return s, func(context.Context) error { return s.Stop() }, nil

	case "relay":
		r, err := relay.New(relay.Config{
			ListenAddress:               o.relayAddr,
			BastionHost:                 o.sshHost,
			User:                        o.sshUser,
			KeyPath:                     o.sshKey,
			Passphrase:                  []byte(o.sshPassphrase),
			KnownHostsPath:              o.knownHosts,
			InsecureSkipHostKeyChecking: o.insecure,
			Target:                      o.relayTarget,
			Timeout:                     o.relayDialTimeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("relay: %w", err)
		}
		return r, func(context.Context) error { return r.Stop() }, nil

	case "broadcast":
		cfg := o.broadcastCfg
		cfg.Address = o.broadcastAddr
		cfg.Path = "/ws"
		cfg.Mode = broadcast.Mode(o.mode)
		b, err := broadcast.New(cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("broadcast: %w", err)
		}
		return b, b.Stop, nil

	default:
		return nil, nil, fmt.Errorf("unknown service %q", name)
	}
}
