// Package cron runs periodic maintenance for the lorekeeper service. Its
// module, cron.prune, deletes stories that have been idle too long.
package cron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs and metrics. It must be unique.
	Name() string

	// Schedule is a five-field cron expression or a descriptor like "@hourly".
	Schedule() string

	Run(ctx context.Context) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reports whether expr is a valid schedule.
func ParseSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}
