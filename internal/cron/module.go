package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/lorekeeper/internal/core"
	"github.com/flemzord/lorekeeper/internal/session"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config configures the cron.prune module.
type Config struct {
	// Schedule is when pruning runs. Defaults to "@hourly".
	Schedule string `yaml:"schedule"`
	// MaxIdle is how long a story may go unsaved before it is deleted.
	// Defaults to 30 days.
	MaxIdle time.Duration `yaml:"max_idle"`
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = "@hourly"
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 30 * 24 * time.Hour
	}
}

// Module schedules idle-session pruning against the session store.
type Module struct {
	config    Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.prune",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The session store must already be
// registered.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	store, err := core.Service[session.Store](ctx, session.StoreService)
	if err != nil {
		return fmt.Errorf("cron: %w", err)
	}

	var reg prometheus.Registerer
	if ctx.Metrics != nil {
		reg = ctx.Metrics
	}
	m.scheduler = NewScheduler(m.logger, reg)
	return m.scheduler.RegisterJob(&SessionPruneJob{
		Store:        store,
		MaxIdle:      m.config.MaxIdle,
		Logger:       m.logger,
		ScheduleExpr: m.config.Schedule,
	})
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.MaxIdle < 0 {
		return errors.New("cron: max_idle must be positive")
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}
