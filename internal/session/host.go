package session

import (
	"github.com/flemzord/lorekeeper/internal/card"
)

// Host is an in-memory engine host over one snapshot. It is not safe for
// concurrent use.
type Host struct {
	id       string
	turn     int
	history  []string
	cards    *card.MemStore
	messages []string
}

// NewHost builds a host from snap. A nil snap starts an empty story.
func NewHost(id string, snap *Snapshot) *Host {
	h := &Host{id: id, cards: card.NewMemStore()}
	if snap != nil {
		h.turn = snap.Turn
		h.history = append([]string(nil), snap.History...)
		h.cards = card.NewMemStore(snap.Cards...)
	}
	return h
}

func (h *Host) SessionID() string     { return h.id }
func (h *Host) Turn() int             { return h.turn }
func (h *Host) History() []string     { return h.history }
func (h *Host) Cards() card.Store     { return h.cards }
func (h *Host) SetMessage(msg string) { h.messages = append(h.messages, msg) }

// Messages returns the status messages set since the host was built.
func (h *Host) Messages() []string { return h.messages }

// Message returns the most recent status message, or "".
func (h *Host) Message() string {
	if len(h.messages) == 0 {
		return ""
	}
	return h.messages[len(h.messages)-1]
}

// Record appends text to the history.
func (h *Host) Record(text string) {
	h.history = append(h.history, text)
}

// Advance records the model's text and moves to the next turn.
func (h *Host) Advance(text string) {
	h.Record(text)
	h.turn++
}

// CardSnapshot returns value copies of the cards.
func (h *Host) CardSnapshot() []card.Card { return h.cards.Snapshot() }

// Snapshot captures the host together with the encoded engine state.
func (h *Host) Snapshot(st *State) (*Snapshot, error) {
	raw, err := st.Save()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:      h.id,
		State:   raw,
		Cards:   h.cards.Snapshot(),
		History: append([]string(nil), h.history...),
		Turn:    h.turn,
	}, nil
}
