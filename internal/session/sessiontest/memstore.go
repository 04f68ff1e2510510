// Package sessiontest provides an in-memory session.Store for tests.
package sessiontest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flemzord/lorekeeper/internal/session"
)

var _ session.Store = (*MemStore)(nil)

// MemStore keeps snapshots in a map. Now drives the save timestamps.
type MemStore struct {
	mu    sync.Mutex
	snaps map[string]session.Snapshot
	Now   func() time.Time
	// Err, when set, is returned by every method.
	Err error
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{snaps: make(map[string]session.Snapshot), Now: time.Now}
}

func (m *MemStore) Load(_ context.Context, id string) (*session.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	snap, ok := m.snaps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return clone(snap), nil
}

func (m *MemStore) Save(_ context.Context, snap *session.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	now := m.Now()
	snap.UpdatedAt = now
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	m.snaps[snap.ID] = *clone(*snap)
	return nil
}

func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.snaps, id)
	return nil
}

func (m *MemStore) List(_ context.Context) ([]session.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]session.Summary, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, session.Summary{ID: s.ID, Turn: s.Turn, Cards: len(s.Cards), UpdatedAt: s.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) PruneIdle(_ context.Context, maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	cutoff := m.Now().Add(-maxIdle)
	n := 0
	for id, s := range m.snaps {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.snaps, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func clone(s session.Snapshot) *session.Snapshot {
	s.State = append([]byte(nil), s.State...)
	s.Cards = append(s.Cards[:0:0], s.Cards...)
	s.History = append([]string(nil), s.History...)
	return &s
}
