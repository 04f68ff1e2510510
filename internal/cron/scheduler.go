package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// entry is a registered job with its parsed schedule and run guard.
type entry struct {
	job   Job
	sched cron.Schedule
	busy  sync.Mutex
}

// Scheduler runs registered jobs on their schedules. A tick that finds the
// previous run of the same job still in flight is skipped, not queued.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	cron    *cron.Cron
	cancel  context.CancelFunc

	logger *slog.Logger
	runs   *prometheus.CounterVec
}

// NewScheduler returns an empty scheduler. Run outcomes are counted on reg
// when it is non-nil.
func NewScheduler(logger *slog.Logger, reg prometheus.Registerer) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lorekeeper",
		Subsystem: "cron",
		Name:      "job_runs_total",
		Help:      "Cron job runs by job name and result (ok, error, skipped).",
	}, []string{"job", "result"})
	if reg != nil {
		reg.MustRegister(runs)
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger.With("component", "cron"),
		runs:    runs,
	}
}

// RegisterJob parses the job's schedule and adds it. Jobs registered after
// Start are not scheduled.
func (s *Scheduler) RegisterJob(j Job) error {
	sched, err := parser.Parse(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[j.Name()]; dup {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.entries[j.Name()] = &entry{job: j, sched: sched}
	s.order = append(s.order, j.Name())
	return nil
}

// Start schedules every registered job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))

	now := time.Now()
	for _, name := range s.order {
		e := s.entries[name]
		s.cron.Schedule(e.sched, cron.FuncJob(func() { s.run(ctx, e) }))
		s.logger.Info("job scheduled", "job", name, "next", e.sched.Next(now))
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) tick(ctx context.Context, j Job) {
	s.mu.Lock()
	e := s.entries[j.Name()]
	s.mu.Unlock()
	if e != nil {
		s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	name := e.job.Name()
	if !e.busy.TryLock() {
		s.logger.Warn("job still running, tick skipped", "job", name)
		s.runs.WithLabelValues(name, "skipped").Inc()
		return
	}
	defer e.busy.Unlock()

	start := time.Now()
	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		s.runs.WithLabelValues(name, "error").Inc()
		return
	}
	s.logger.Debug("job done", "job", name, "elapsed", time.Since(start))
	s.runs.WithLabelValues(name, "ok").Inc()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.logger.Info("scheduler stopped")
	}
	return nil
}

// cronLogger routes robfig/cron's internal logging to slog.
type cronLogger struct{ l *slog.Logger }

var _ cron.Logger = cronLogger{}

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}
