// Package config loads server settings from .env, the environment and flags,
// in that order of increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the arena server configuration.
type Config struct {
	Listen         string        `env:"SNEKARENA_LISTEN" envDefault:"127.0.0.1:3000"`
	TickInterval   time.Duration `env:"SNEKARENA_TICK_INTERVAL" envDefault:"200ms"`
	Width          int           `env:"SNEKARENA_WIDTH" envDefault:"800"`
	Height         int           `env:"SNEKARENA_HEIGHT" envDefault:"600"`
	GridSize       int           `env:"SNEKARENA_GRID_SIZE" envDefault:"20"`
	AllowedOrigins []string      `env:"SNEKARENA_ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize int64         `env:"SNEKARENA_MAX_MESSAGE_SIZE" envDefault:"4096"`
	LogLevel       string        `env:"SNEKARENA_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"SNEKARENA_LOG_FORMAT" envDefault:"text"`
	OTelEndpoint   string        `env:"SNEKARENA_OTEL_ENDPOINT"`
	OTelEnabled    bool          `env:"SNEKARENA_OTEL_ENABLED" envDefault:"true"`
	ShutdownGrace  time.Duration `env:"SNEKARENA_SHUTDOWN_GRACE" envDefault:"5s"`
}

// Load reads envFile (ignored when missing), parses the environment and then
// applies command-line flags from args.
func Load(name string, args []string, envFile string) (Config, error) {
	var cfg Config
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(os.Stderr)
	fset.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fset.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Simulation tick interval")
	fset.IntVar(&cfg.Width, "width", cfg.Width, "Board width in pixels")
	fset.IntVar(&cfg.Height, "height", cfg.Height, "Board height in pixels")
	fset.IntVar(&cfg.GridSize, "grid", cfg.GridSize, "Cell size in pixels")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	fset.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text|json|pretty)")
	fset.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP traces endpoint; empty disables tracing")
	if err := fset.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the board geometry and pacing.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.GridSize <= 0 || c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("board dimensions must be positive, got %dx%d/%d", c.Width, c.Height, c.GridSize)
	}
	if c.Width%c.GridSize != 0 || c.Height%c.GridSize != 0 {
		return fmt.Errorf("board %dx%d is not divisible by grid size %d", c.Width, c.Height, c.GridSize)
	}
	if c.Width/c.GridSize < 6 || c.Height/c.GridSize < 2 {
		return fmt.Errorf("board %dx%d is too small for grid size %d", c.Width, c.Height, c.GridSize)
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
