package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/voicelink-service/internal/audio"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Response  ResponseConfig  `yaml:"response" toml:"response"`
	Audio     AudioConfig     `yaml:"audio" toml:"audio"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog" toml:"catalog"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig contains TCP listener and session limits
type ServerConfig struct {
	BindAddress      string `yaml:"bind_address" toml:"bind_address"`
	Port             int    `yaml:"port" toml:"port"`
	MaxSessions      int    `yaml:"max_sessions" toml:"max_sessions"`
	MaxFrameSize     int    `yaml:"max_frame_size" toml:"max_frame_size"`         // bytes
	MaxHeaderLength  int    `yaml:"max_header_length" toml:"max_header_length"`   // bytes
	MaxMetadataLines int    `yaml:"max_metadata_lines" toml:"max_metadata_lines"` // lines
	MaxAudioBytes    int64  `yaml:"max_audio_bytes" toml:"max_audio_bytes"`       // bytes per AUDIO_START
	IdleTimeout      int    `yaml:"idle_timeout" toml:"idle_timeout"`             // seconds
	ReadTimeout      int    `yaml:"read_timeout" toml:"read_timeout"`             // seconds
	WriteTimeout     int    `yaml:"write_timeout" toml:"write_timeout"`           // seconds
}

// ResponseConfig contains the text response policy
type ResponseConfig struct {
	Prefix  string `yaml:"prefix" toml:"prefix"`
	DelayMS int    `yaml:"delay_ms" toml:"delay_ms"`
}

// AudioConfig contains audio defaults and analysis parameters
type AudioConfig struct {
	DefaultSampleRate int     `yaml:"default_sample_rate" toml:"default_sample_rate"`
	DefaultChannels   int     `yaml:"default_channels" toml:"default_channels"`
	VADThreshold      float64 `yaml:"vad_threshold" toml:"vad_threshold"`
	VADWindowMS       int     `yaml:"vad_window_ms" toml:"vad_window_ms"`
}

// StorageConfig selects where finished recordings are written
type StorageConfig struct {
	Backend   string   `yaml:"backend" toml:"backend"`
	OutputDir string   `yaml:"output_dir" toml:"output_dir"`
	S3        S3Config `yaml:"s3" toml:"s3"`
}

// S3Config contains S3-compatible object store settings
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" toml:"prefix" json:"prefix"`
	Region          string `yaml:"region" toml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key" json:"-"`
}

// CatalogConfig contains the recording index settings
type CatalogConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Dir      string `yaml:"dir" toml:"dir"`
	InMemory bool   `yaml:"in_memory" toml:"in_memory"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Address string `yaml:"address" toml:"address"`
	Port    int    `yaml:"port" toml:"port"`
}

// DiscoveryConfig contains mDNS advertisement settings
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:      "0.0.0.0",
			Port:             8888,
			MaxSessions:      256,
			MaxFrameSize:     16 * 1024 * 1024,
			MaxHeaderLength:  256,
			MaxMetadataLines: 64,
			MaxAudioBytes:    256 * 1024 * 1024,
			IdleTimeout:      300,
			ReadTimeout:      30,
			WriteTimeout:     30,
		},
		Response: ResponseConfig{
			Prefix:  "server_echo: ",
			DelayMS: 1000,
		},
		Audio: AudioConfig{
			DefaultSampleRate: 16000,
			DefaultChannels:   1,
			VADThreshold:      0.02,
			VADWindowMS:       32,
		},
		Storage: StorageConfig{
			Backend:   "local",
			OutputDir: "received_audio",
		},
		Catalog: CatalogConfig{
			Enabled: true,
			Dir:     "data/catalog",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Discovery: DiscoveryConfig{
			Enabled:     false,
			ServiceName: "voicelink",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads a YAML or, for .toml files, TOML configuration on top of Default and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Response.Validate(); err != nil {
		return fmt.Errorf("response config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	if s.MaxFrameSize < 1 || int64(s.MaxFrameSize) > int64(^uint32(0)) {
		return fmt.Errorf("max_frame_size must be between 1 and %d bytes, got %d", ^uint32(0), s.MaxFrameSize)
	}

	if s.MaxHeaderLength < 16 {
		return fmt.Errorf("max_header_length must be at least 16 bytes, got %d", s.MaxHeaderLength)
	}

	if s.MaxMetadataLines < 1 {
		return fmt.Errorf("max_metadata_lines must be at least 1, got %d", s.MaxMetadataLines)
	}

	if s.MaxAudioBytes < int64(s.MaxFrameSize) {
		return fmt.Errorf("max_audio_bytes (%d) must not be smaller than max_frame_size (%d)", s.MaxAudioBytes, s.MaxFrameSize)
	}

	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates the response policy
func (r *ResponseConfig) Validate() error {
	if r.DelayMS < 0 {
		return fmt.Errorf("delay_ms cannot be negative, got %d", r.DelayMS)
	}
	if strings.ContainsAny(r.Prefix, "\x00") {
		return fmt.Errorf("prefix cannot contain NUL bytes")
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.DefaultSampleRate < audio.MinSampleRate || a.DefaultSampleRate > audio.MaxSampleRate {
		return fmt.Errorf("default_sample_rate must be between %d and %d Hz, got %d",
			audio.MinSampleRate, audio.MaxSampleRate, a.DefaultSampleRate)
	}

	if a.DefaultChannels < 1 || a.DefaultChannels > audio.MaxChannels {
		return fmt.Errorf("default_channels must be between 1 and %d, got %d", audio.MaxChannels, a.DefaultChannels)
	}

	if a.VADThreshold < 0 || a.VADThreshold > 1 {
		return fmt.Errorf("vad_threshold must be between 0 and 1, got %f", a.VADThreshold)
	}

	if a.VADWindowMS < 1 || a.VADWindowMS > 1000 {
		return fmt.Errorf("vad_window_ms must be between 1 and 1000, got %d", a.VADWindowMS)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "local":
		if s.OutputDir == "" {
			return fmt.Errorf("output_dir cannot be empty for the local backend")
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket cannot be empty for the s3 backend")
		}
		if s.S3.Region == "" && s.S3.Endpoint == "" {
			return fmt.Errorf("s3.region or s3.endpoint must be set for the s3 backend")
		}
		if (s.S3.AccessKeyID == "") != (s.S3.SecretAccessKey == "") {
			return fmt.Errorf("s3.access_key_id and s3.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("backend must be 'local' or 's3', got '%s'", s.Backend)
	}
	return nil
}

// Validate validates catalog configuration
func (c *CatalogConfig) Validate() error {
	if c.Enabled && !c.InMemory && c.Dir == "" {
		return fmt.Errorf("dir cannot be empty when the catalog is persisted")
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates discovery configuration
func (d *DiscoveryConfig) Validate() error {
	if d.Enabled && d.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty when discovery is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// ListenAddress returns host:port for the TCP listener
func (s *ServerConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// GetIdleTimeoutDuration returns the idle timeout as a time.Duration
func (s *ServerConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetDelay returns the text response delay as a time.Duration
func (r *ResponseConfig) GetDelay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

// GetVADWindow returns the VAD window as a time.Duration
func (a *AudioConfig) GetVADWindow() time.Duration {
	return time.Duration(a.VADWindowMS) * time.Millisecond
}

// Sanitized returns a copy safe to expose over HTTP
func (c *Config) Sanitized() Config {
	out := *c
	if out.Storage.S3.AccessKeyID != "" {
		out.Storage.S3.AccessKeyID = "***"
	}
	if out.Storage.S3.SecretAccessKey != "" {
		out.Storage.S3.SecretAccessKey = "***"
	}
	return out
}
