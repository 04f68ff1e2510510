package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env holds the settings that can be overridden from the environment.
type Env struct {
	ConfigPath   string `env:"LOREKEEPER_CONFIG"`
	DataDir      string `env:"LOREKEEPER_DATA_DIR"`
	LogLevel     string `env:"LOREKEEPER_LOG_LEVEL"     envDefault:"info"`
	OTLPEndpoint string `env:"LOREKEEPER_OTLP_ENDPOINT"`
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("config: parse env: %w", err)
	}
	return e, nil
}

// Apply overlays environment overrides onto cfg.
func (e Env) Apply(cfg *Config) {
	if e.OTLPEndpoint != "" {
		cfg.Engine.Tracing.Endpoint = e.OTLPEndpoint
	}
}

// Level parses LogLevel.
func (e Env) Level() (slog.Level, error) {
	return ParseLevel(e.LogLevel)
}

// ParseLevel maps debug, info, warn, and error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}
