// Package config loads the encoder's settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Engine      string        `env:"ENCODER_ENGINE, default=libopus"`
	PayloadType uint8         `env:"ENCODER_PAYLOAD_TYPE, default=111"`
	AdaptFormat bool          `env:"ENCODER_ADAPT_FORMAT, default=false"`
	QueueSize   int           `env:"ENCODER_QUEUE_SIZE, default=256"`
	PollTimeout time.Duration `env:"ENCODER_POLL_TIMEOUT, default=100ms"`
	BitRate     int           `env:"ENCODER_BITRATE, default=64000"`
	SampleRate  int           `env:"ENCODER_SAMPLE_RATE, default=48000"`
	Channels    int           `env:"ENCODER_CHANNELS, default=2"`
	FrameMs     int           `env:"ENCODER_FRAME_MS, default=20"`

	RTPAddr     string `env:"RTP_ADDR"`
	FrameFile   string `env:"FRAME_FILE"`
	IngestURL   string `env:"INGEST_URL"`
	MetricsAddr string `env:"METRICS_ADDR, default=:9090"`

	GatewayAddr    string   `env:"GATEWAY_ADDR"`
	MaxSessions    int      `env:"GATEWAY_MAX_SESSIONS, default=16"`
	STUNServers    []string `env:"STUN_SERVERS, default=stun:stun.l.google.com:19302"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*"`
}

// Load reads an optional .env file from the working directory, then the
// process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return process(ctx, envconfig.OsLookuper())
}

func process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the stage cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Engine == "":
		return fmt.Errorf("ENCODER_ENGINE must not be empty")
	case c.PayloadType > 127:
		return fmt.Errorf("ENCODER_PAYLOAD_TYPE %d out of range 0-127", c.PayloadType)
	case c.QueueSize <= 0:
		return fmt.Errorf("ENCODER_QUEUE_SIZE must be positive, got %d", c.QueueSize)
	case c.PollTimeout <= 0:
		return fmt.Errorf("ENCODER_POLL_TIMEOUT must be positive, got %s", c.PollTimeout)
	case c.SampleRate <= 0 || c.Channels <= 0:
		return fmt.Errorf("invalid input format %d Hz / %d channels", c.SampleRate, c.Channels)
	case c.FrameMs <= 0:
		return fmt.Errorf("ENCODER_FRAME_MS must be positive, got %d", c.FrameMs)
	}
	return nil
}
