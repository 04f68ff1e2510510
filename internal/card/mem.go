package card

import (
	"github.com/google/uuid"
)

// MemStore is an in-memory Store. It is not safe for concurrent use; the
// gateway serialises access per session.
type MemStore struct {
	cards []*Card
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore returns a store seeded with copies of cards. Cards without an
// ID are given one.
func NewMemStore(cards ...Card) *MemStore {
	s := &MemStore{cards: make([]*Card, 0, len(cards))}
	for _, c := range cards {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		s.cards = append(s.cards, &c)
	}
	return s
}

// Cards returns live pointers in insertion order.
func (s *MemStore) Cards() []*Card { return s.cards }

// Add appends an empty card titled title with a fresh identity.
func (s *MemStore) Add(title string) (*Card, error) {
	c := &Card{ID: uuid.NewString(), Title: title}
	s.cards = append(s.cards, c)
	return c, nil
}

// Snapshot returns value copies of every card.
func (s *MemStore) Snapshot() []Card {
	out := make([]Card, len(s.cards))
	for i, c := range s.cards {
		out[i] = *c
	}
	return out
}

// Len returns the number of cards.
func (s *MemStore) Len() int { return len(s.cards) }
