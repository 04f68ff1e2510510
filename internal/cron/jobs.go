package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/lorekeeper/internal/session"
)

// Pruner is the part of session.Store the prune job needs.
type Pruner interface {
	PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

var _ Pruner = (session.Store)(nil)

// SessionPruneJob deletes stored stories idle longer than MaxIdle.
type SessionPruneJob struct {
	Store        Pruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "@hourly"
}

// Compile-time interface check.
var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "session_prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@hourly"
}

// Run implements Job.
func (j *SessionPruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: session prune cancelled: %w", err)
	}
	pruned, err := j.Store.PruneIdle(ctx, j.MaxIdle)
	if err != nil {
		return fmt.Errorf("cron: session prune: %w", err)
	}
	if pruned > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned, "max_idle", j.MaxIdle)
	}
	return nil
}
