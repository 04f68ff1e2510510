package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/flemzord/lorekeeper/internal/card"
)

// StoreService is the service name under which the process registers its
// Store.
const StoreService = "sessions"

// ErrNotFound indicates no session exists with the requested id.
var ErrNotFound = errors.New("session: not found")

// Snapshot is everything a host persists for one story: the engine state,
// the cards, the turn history, and the turn counter.
type Snapshot struct {
	ID        string          `json:"id"`
	State     json.RawMessage `json:"state,omitempty"`
	Cards     []card.Card     `json:"cards"`
	History   []string        `json:"history"`
	Turn      int             `json:"turn"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Summary is a listing entry for one stored session.
type Summary struct {
	ID        string    `json:"id"`
	Turn      int       `json:"turn"`
	Cards     int       `json:"cards"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists snapshots.
type Store interface {
	// Load returns ErrNotFound for an unknown id.
	Load(ctx context.Context, id string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Summary, error)
	// PruneIdle deletes sessions not saved within maxIdle and returns how
	// many were removed.
	PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}
