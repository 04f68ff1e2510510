package settings

import (
	"encoding/json"
	"slices"
	"strings"
)

// TitleSet is a case-insensitive set of titles. The first spelling added for
// a title is the one kept for display and serialisation.
type TitleSet struct {
	items map[string]string
}

// NewTitleSet builds a set from the given titles. Empty titles are skipped.
func NewTitleSet(titles ...string) TitleSet {
	var s TitleSet
	for _, t := range titles {
		s.Add(t)
	}
	return s
}

// Add inserts a title. It reports whether the set changed.
func (s *TitleSet) Add(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	if s.items == nil {
		s.items = make(map[string]string)
	}
	key := strings.ToLower(title)
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = title
	return true
}

// Has reports whether title is in the set, ignoring case.
func (s TitleSet) Has(title string) bool {
	if s.items == nil {
		return false
	}
	_, ok := s.items[strings.ToLower(strings.TrimSpace(title))]
	return ok
}

// Len returns the number of titles.
func (s TitleSet) Len() int { return len(s.items) }

// Values returns the titles sorted case-insensitively.
func (s TitleSet) Values() []string {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.items[k]
	}
	return out
}

// Clone returns an independent copy.
func (s TitleSet) Clone() TitleSet {
	return NewTitleSet(s.Values()...)
}

// Union returns a new set holding the titles of both sets.
func (s TitleSet) Union(other TitleSet) TitleSet {
	out := s.Clone()
	for _, t := range other.Values() {
		out.Add(t)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s TitleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON replaces the set with the decoded array.
func (s *TitleSet) UnmarshalJSON(data []byte) error {
	var titles []string
	if err := json.Unmarshal(data, &titles); err != nil {
		return err
	}
	*s = NewTitleSet(titles...)
	return nil
}
