// Package session models the engine state a host persists between phase
// calls. The host owns the value and passes it into every engine call.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/flemzord/lorekeeper/internal/discovery"
	"github.com/flemzord/lorekeeper/internal/job"
	"github.com/flemzord/lorekeeper/internal/settings"
	"github.com/flemzord/lorekeeper/internal/trigger"
)

// NeverTurn is the LastAutoTurn of a session that has not auto-generated.
const NeverTurn = -999

// State is everything the engine carries from one call to the next.
type State struct {
	Settings         *settings.Settings
	LastAutoTurn     int
	Candidates       []discovery.Candidate
	Pending          job.Slot
	LastAppliedTitle string
	Triggers         trigger.State
}

// New returns a fresh state over default settings.
func New() *State {
	return &State{
		Settings:     settings.Defaults(),
		LastAutoTurn: NeverTurn,
	}
}

// wire is the persisted layout. Settings stay raw so they merge over the
// defaults on load.
type wire struct {
	Settings         json.RawMessage       `json:"settings,omitempty"`
	LastAutoTurn     *int                  `json:"lastAutoTurn,omitempty"`
	Candidates       []discovery.Candidate `json:"candidates,omitempty"`
	Pending          job.Slot              `json:"pending"`
	LastAppliedTitle string                `json:"lastAppliedTitle,omitempty"`
	Triggers         trigger.State         `json:"triggers"`
}

// Load decodes persisted state. Empty input yields New(). Persisted
// settings are merged over the defaults.
func Load(raw []byte) (*State, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return New(), nil
	}
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("session: decode state: %w", err)
	}
	cfg, err := settings.Load(w.Settings)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	st := &State{
		Settings:         cfg,
		LastAutoTurn:     NeverTurn,
		Candidates:       w.Candidates,
		Pending:          w.Pending,
		LastAppliedTitle: w.LastAppliedTitle,
		Triggers:         w.Triggers,
	}
	if w.LastAutoTurn != nil {
		st.LastAutoTurn = *w.LastAutoTurn
	}
	return st, nil
}

// Save encodes the state for persistence.
func (s *State) Save() ([]byte, error) {
	cfg := s.Settings
	if cfg == nil {
		cfg = settings.Defaults()
	}
	rawCfg, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	turn := s.LastAutoTurn
	data, err := json.Marshal(wire{
		Settings:         rawCfg,
		LastAutoTurn:     &turn,
		Candidates:       s.Candidates,
		Pending:          s.Pending,
		LastAppliedTitle: s.LastAppliedTitle,
		Triggers:         s.Triggers,
	})
	if err != nil {
		return nil, fmt.Errorf("session: encode state: %w", err)
	}
	return data, nil
}
