// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flemzord/lorekeeper/internal/cron"
)

// Job is a cron.Job that counts its runs and returns Err from each one.
type Job struct {
	ID   string
	Spec string
	Err  error

	runs atomic.Int64
}

var _ cron.Job = (*Job)(nil)

func (j *Job) Name() string     { return j.ID }
func (j *Job) Schedule() string { return j.Spec }

func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.Err
}

// Runs reports how many times Run was called.
func (j *Job) Runs() int { return int(j.runs.Load()) }

// PrunerFunc adapts a function to cron.Pruner.
type PrunerFunc func(ctx context.Context, maxIdle time.Duration) (int, error)

// PruneIdle implements cron.Pruner.
func (f PrunerFunc) PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	return f(ctx, maxIdle)
}
