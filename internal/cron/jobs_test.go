package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/lorekeeper/internal/core"
	"github.com/flemzord/lorekeeper/internal/cron"
	"github.com/flemzord/lorekeeper/internal/cron/crontest"
	"github.com/flemzord/lorekeeper/internal/session"
	"github.com/flemzord/lorekeeper/internal/session/sessiontest"
)

func TestSessionPruneJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &cron.SessionPruneJob{}
	if j.Name() != "session_prune" {
		t.Errorf("Name() = %q", j.Name())
	}
	if j.Schedule() != "@hourly" {
		t.Errorf("Schedule() = %q, want @hourly", j.Schedule())
	}
	j.ScheduleExpr = "*/10 * * * *"
	if j.Schedule() != "*/10 * * * *" {
		t.Errorf("Schedule() = %q, want override", j.Schedule())
	}
}

func TestSessionPruneJob_Run(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := sessiontest.NewMemStore()
	ctx := context.Background()

	store.Now = func() time.Time { return now.Add(-48 * time.Hour) }
	if err := store.Save(ctx, &session.Snapshot{ID: "stale"}); err != nil {
		t.Fatal(err)
	}
	store.Now = func() time.Time { return now }
	if err := store.Save(ctx, &session.Snapshot{ID: "live"}); err != nil {
		t.Fatal(err)
	}

	j := &cron.SessionPruneJob{Store: store, MaxIdle: 24 * time.Hour, Logger: slog.Default()}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("sessions left = %d, want 1", store.Len())
	}
	if _, err := store.Load(ctx, "live"); err != nil {
		t.Errorf("live session pruned: %v", err)
	}
}

func TestSessionPruneJob_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("locked")
	j := &cron.SessionPruneJob{Store: crontest.PrunerFunc(func(context.Context, time.Duration) (int, error) {
		return 0, boom
	})}
	if err := j.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run err = %v, want wrapped store error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestScheduler_RegistersDoubles(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(slog.Default(), nil)
	ok := &crontest.Job{ID: "ok", Spec: "@daily"}
	if err := s.RegisterJob(ok); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterJob(&crontest.Job{ID: "bad", Spec: "every tuesday"}); err == nil {
		t.Error("expected error for invalid schedule")
	}

	failing := &crontest.Job{ID: "failing", Spec: "@daily", Err: errors.New("disk full")}
	if err := failing.Run(context.Background()); err == nil || failing.Runs() != 1 {
		t.Errorf("Run = %v after %d runs, want error after 1", err, failing.Runs())
	}
}

func TestModule_Lifecycle(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.Default(), t.TempDir())
	m := &cron.Module{}

	if err := m.Provision(appCtx); err == nil {
		t.Fatal("Provision should fail without a session store")
	}

	appCtx.RegisterService(session.StoreService, sessiontest.NewMemStore())
	m = &cron.Module{}
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
