// Package app provides the entry point of the lorekeeper service: it loads
// configuration, builds the shared engine, and runs the configured modules.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/lorekeeper/internal/config"
	"github.com/flemzord/lorekeeper/internal/core"
	"github.com/flemzord/lorekeeper/internal/engine"
	"github.com/flemzord/lorekeeper/internal/hook"
	"github.com/flemzord/lorekeeper/internal/logging"
	"github.com/flemzord/lorekeeper/internal/telemetry"

	// Module registration.
	_ "github.com/flemzord/lorekeeper/internal/cron"
	_ "github.com/flemzord/lorekeeper/internal/gateway"
	_ "github.com/flemzord/lorekeeper/internal/storage/sqlite"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// Env carries the environment overrides applied to the loaded config.
	Env config.Env
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := LoadConfig(cfgPath, params.Env)
	if err != nil {
		return err
	}

	redactor := logging.NewRedactor()
	logger := logging.New(os.Stderr, params.LogLevel, redactor)
	slog.SetDefault(logger)

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Options{
		Endpoint:    cfg.Engine.Tracing.Endpoint,
		ServiceName: cfg.Engine.Tracing.ServiceName,
		Version:     params.Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, closeEngine, err := NewEngine(cfg.Engine, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngine(); err != nil {
			logger.Warn("closing audit log failed", "error", err)
		}
	}()

	appCtx := core.NewAppContext(logger, dataDir).
		WithModuleConfigs(cfg.Modules).
		WithMetrics(reg)
	appCtx.RegisterService(engine.ServiceName, eng)
	appCtx.RegisterService(logging.ServiceName, redactor)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	logger.Info("lorekeeper starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"data_dir", dataDir,
		"modules", application.Modules(),
	)
	return application.Run(context.Background())
}

// LoadConfig reads, overrides, and validates the configuration at path.
func LoadConfig(path string, env config.Env) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewEngine builds the engine shared by every host: rule files and the
// audit log go into its hook pipeline and its metrics go on reg. The
// returned function closes the audit log.
func NewEngine(ec config.EngineConfig, logger *slog.Logger, reg prometheus.Registerer) (*engine.Engine, func() error, error) {
	hooks := hook.NewPipeline()

	rules, err := hook.LoadRuleFiles(ec.RuleFiles)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range rules {
		hooks.Register(r)
	}

	closer := func() error { return nil }
	if ec.AuditLog != "" {
		f, err := openAuditLog(ec.AuditLog)
		if err != nil {
			return nil, nil, err
		}
		hooks.Register(hook.NewAuditHook(f))
		closer = f.Close
	}

	if logger != nil && len(rules) > 0 {
		logger.Info("rule hooks loaded", "rules", len(rules), "files", len(ec.RuleFiles))
	}

	eng := engine.New(engine.Options{
		Hooks:   hooks,
		Logger:  logger,
		Metrics: engine.NewMetrics(reg),
	})
	return eng, closer, nil
}

func openAuditLog(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("app: create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("app: open audit log: %w", err)
	}
	return f, nil
}

// ErrNoConfig is returned by ResolveConfigPath when no file is found.
var ErrNoConfig = errors.New("no configuration file found")

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/lorekeeper/lorekeeper.yaml →
// ~/.config/lorekeeper/lorekeeper.yaml → ./lorekeeper.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "lorekeeper", "lorekeeper.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "lorekeeper", "lorekeeper.yaml"))
	}

	candidates = append(candidates, "lorekeeper.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/lorekeeper if set, otherwise ~/.local/share/lorekeeper.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "lorekeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "lorekeeper")
}
