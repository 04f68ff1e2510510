// Package gateway is the HTTP host adapter of the lore engine. It exposes
// the three lifecycle phases per stored session, card listings, health, and
// Prometheus metrics. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/lorekeeper/internal/core"
	"github.com/flemzord/lorekeeper/internal/engine"
	"github.com/flemzord/lorekeeper/internal/logging"
	"github.com/flemzord/lorekeeper/internal/session"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	registry  *prometheus.Registry
	lanes     *laneLock
	startedAt time.Time
	newID     func() string

	// Resolved at Start() via the service registry.
	store  session.Store
	engine *engine.Engine
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.registry = ctx.Metrics
	g.lanes = newLaneLock()
	g.newID = uuid.NewString

	var reg prometheus.Registerer
	if ctx.Metrics != nil {
		reg = ctx.Metrics
	}
	g.metrics = NewMetrics(reg)

	if r, err := core.Service[*logging.Redactor](ctx, logging.ServiceName); err == nil {
		r.Add(g.config.Auth.BearerToken)
		r.Add(g.config.Auth.BasicPass)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves the session store and the
// engine from the service registry and starts the HTTP server.
func (g *Gateway) Start() error {
	store, err := core.Service[session.Store](g.appCtx, session.StoreService)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	eng, err := core.Service[*engine.Engine](g.appCtx, engine.ServiceName)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.store = store
	g.engine = eng
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.config.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
