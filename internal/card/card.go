// Package card defines the annotation card model and the narrow store
// interface the engine reads and mutates.
package card

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/flemzord/lorekeeper/internal/textutil"
)

var (
	// ErrCardExists indicates a card with the same normalised title already exists.
	ErrCardExists = errors.New("card: title already exists")

	// ErrCardNotFound indicates no card matches the requested title.
	ErrCardNotFound = errors.New("card: not found")
)

// Card is one piece of persistent lore.
type Card struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Type        string `json:"type" yaml:"type"`
	Keys        string `json:"keys" yaml:"keys"`
	Entry       string `json:"entry" yaml:"entry"`
	Description string `json:"description" yaml:"description"`
}

// Store is the host-owned card collection. Cards returns live pointers in
// store order so callers can mutate fields in place.
type Store interface {
	Cards() []*Card
	Add(title string) (*Card, error)
}

// Find returns the card whose normalised title equals title's, or nil.
func Find(s Store, title string) *Card {
	key := textutil.NormTitle(title)
	if key == "" {
		return nil
	}
	for _, c := range s.Cards() {
		if textutil.NormTitle(c.Title) == key {
			return c
		}
	}
	return nil
}

// ByID returns the card with the given identity, or nil.
func ByID(s Store, id string) *Card {
	if id == "" {
		return nil
	}
	for _, c := range s.Cards() {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Titles returns the set of normalised titles present in the store.
func Titles(s Store) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range s.Cards() {
		if k := textutil.NormTitle(c.Title); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// Create adds a card for title, refusing duplicates by normalised title.
// Keys default to the title words joined by commas and the entry to a
// "{title: ...}" placeholder.
func Create(s Store, title, typ string) (*Card, error) {
	title = textutil.SanitizeTitle(title)
	if title == "" {
		return nil, errors.New("card: empty title")
	}
	if Find(s, title) != nil {
		return nil, fmt.Errorf("%w: %q", ErrCardExists, title)
	}
	c, err := s.Add(title)
	if err != nil {
		return nil, fmt.Errorf("card: add %q: %w", title, err)
	}
	c.Type = typ
	c.Keys = strings.Join(strings.Fields(nonKeyRune.ReplaceAllString(title, " ")), ",")
	c.Entry = "{title: " + title + "}"
	c.Description = ""
	return c, nil
}

// MemoryLine stamps text as "[T<turn>][#<id>] - <text>".
func MemoryLine(turn int, text string) string {
	text = strings.TrimSpace(text)
	return fmt.Sprintf("[T%d][#%s] - %s", turn, textutil.Hash6(text), text)
}

var (
	lineIDPattern = regexp.MustCompile(`(?i)\[#([0-9a-f]{6})\]`)
	nonKeyRune    = regexp.MustCompile(`[^A-Za-z0-9 ]`)
)

// LineID extracts the six hex digit id of a memory line in lower case, or "".
func LineID(line string) string {
	m := lineIDPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}
