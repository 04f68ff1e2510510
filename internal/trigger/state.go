package trigger

import (
	"slices"
	"strings"
)

// Activation is an active card with its remaining injection passes.
type Activation struct {
	CardID string `json:"cardId"`
	TTL    int    `json:"ttl"`
}

// State is the per-session trigger state. Active is kept in activation
// order, which is also injection order.
type State struct {
	Queued []string     `json:"queued,omitempty"`
	Active []Activation `json:"active,omitempty"`
}

// Queue adds ids to the queued set, ignoring ones already queued. A queued
// card that is also active has its TTL refreshed on the next Activate. It
// returns how many ids were newly queued.
func (s *State) Queue(ids []string) int {
	n := 0
	for _, id := range ids {
		if id == "" || slices.Contains(s.Queued, id) {
			continue
		}
		s.Queued = append(s.Queued, id)
		n++
	}
	return n
}

// Activate moves every queued card into the active set with a fresh ttl.
// An already active card is reset in place.
func (s *State) Activate(ttl int) {
	for _, id := range s.Queued {
		if i := s.indexOf(id); i >= 0 {
			s.Active[i].TTL = ttl
			continue
		}
		s.Active = append(s.Active, Activation{CardID: id, TTL: ttl})
	}
	s.Queued = nil
}

// Inject inserts the entries of active cards into text and ages every
// active card by one pass. Entries go right after the first occurrence of
// anchor, in activation order, or are appended when the anchor is empty or
// absent. Entries already present verbatim are skipped and at most limit
// entries are inserted. It returns the new text and the number inserted.
func (s *State) Inject(text string, lookup func(cardID string) string, anchor string, limit int) (string, int) {
	at := -1
	if anchor != "" {
		if i := strings.Index(text, anchor); i >= 0 {
			at = i + len(anchor)
		}
	}

	injected := 0
	for _, a := range s.Active {
		if injected >= limit {
			break
		}
		entry := strings.TrimSpace(lookup(a.CardID))
		if entry == "" || strings.Contains(text, entry) {
			continue
		}
		block := "\n" + entry
		if at >= 0 {
			text = text[:at] + block + text[at:]
			at += len(block)
		} else {
			text += block
		}
		injected++
	}

	kept := s.Active[:0]
	for _, a := range s.Active {
		a.TTL--
		if a.TTL > 0 {
			kept = append(kept, a)
		}
	}
	s.Active = kept
	if len(s.Active) == 0 {
		s.Active = nil
	}
	return text, injected
}

// Forget drops a card from both sets.
func (s *State) Forget(cardID string) {
	s.Queued = slices.DeleteFunc(s.Queued, func(id string) bool { return id == cardID })
	s.Active = slices.DeleteFunc(s.Active, func(a Activation) bool { return a.CardID == cardID })
}

// TTL returns the remaining passes of an active card, or 0.
func (s *State) TTL(cardID string) int {
	if i := s.indexOf(cardID); i >= 0 {
		return s.Active[i].TTL
	}
	return 0
}

// IsQueued reports whether cardID waits for the next activation pass.
func (s *State) IsQueued(cardID string) bool {
	return slices.Contains(s.Queued, cardID)
}

func (s *State) indexOf(id string) int {
	return slices.IndexFunc(s.Active, func(a Activation) bool { return a.CardID == id })
}
