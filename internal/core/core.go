package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of modules.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

// moduleInstance tracks one loaded module. A module that implements
// Starter is live only once started; any other module is live from the
// moment it is provisioned, since Provision may open resources.
type moduleInstance struct {
	id     ModuleID
	module Module
	live   bool
}

func (mi *moduleInstance) stop(ctx context.Context, logger *slog.Logger) {
	if !mi.live {
		return
	}
	mi.live = false
	s, ok := mi.module.(Stopper)
	if !ok {
		return
	}
	logger.Info("stopping module", "module", string(mi.id))
	if err := s.Stop(ctx); err != nil {
		logger.Error("module stop error", "module", string(mi.id), "error", err)
	}
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules instantiates, provisions, and validates all modules for the
// given IDs in order. If any step fails, already-loaded modules are stopped.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Stop()
			a.modules = nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		_, starter := mod.(Starter)
		a.modules = append(a.modules, moduleInstance{
			id:     mod.ModuleInfo().ID,
			module: mod,
			live:   !starter,
		})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// Start starts all loaded modules that implement Starter, in order.
// If any Start() fails, every live module is stopped in reverse order.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			a.Stop()
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.live = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops every live module in reverse load order. It is safe to call
// more than once.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		a.modules[i].stop(ctx, a.logger)
	}
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

// Modules returns the IDs of the loaded modules in load order.
func (a *App) Modules() []string {
	ids := make([]string, len(a.modules))
	for i, mi := range a.modules {
		ids[i] = string(mi.id)
	}
	return ids
}

// Run starts all modules and blocks until ctx is cancelled or SIGINT or
// SIGTERM arrives, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	a.logger.Info("shutting down", "cause", context.Cause(ctx))
	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
