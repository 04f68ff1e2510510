// Package settings is the per-session configuration store of the annotation
// engine: typed tunables, merged over defaults and editable as plain
// "key: value" text.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultGenerationPrompt is the template used to request a card entry.
// Placeholders: %{title}, %{focus}, %{entry}.
var DefaultGenerationPrompt = strings.Join([]string{
	"<SYSTEM>",
	"Write a concise, plot-relevant entry for %{title} in third person.",
	"Avoid temporary minutiae; prefer stable facts that matter to the story.",
	"Imitate the story's style.",
	"If a Focus is provided, weight content accordingly.",
	"</SYSTEM>",
	"Focus: %{focus}",
	"Current entry seed (may be empty):",
	"%{entry}",
}, "\n")

// DefaultCompressionPrompt is the template used to prune a card's memory.
// Placeholder: %{memory}.
var DefaultCompressionPrompt = strings.Join([]string{
	"<SYSTEM>",
	"Task: extractive selection ONLY.",
	"You are given a list of memory bullets. Each bullet has a unique [#id].",
	"Return JSON ONLY with up to 20 ids to keep.",
	`Schema: {"keep":["#id", ...]}`,
	"Rules: Do NOT invent ids. Prefer recent (higher T) and non-duplicates. If in doubt, omit.",
	"</SYSTEM>",
	"BULLETS:",
	"%{memory}",
	"JSON only:",
}, "\n")

const (
	defaultPronouns      = "he, him, his, she, her, hers, they, them, their, theirs"
	defaultRelationships = "father, mother, dad, mum, mom, son, daughter, sister, brother, husband, wife, spouse, partner, fiancée, fiancé, friend, buddy, mate, pal, rival, enemy, mentor, mentee, boss, chief, leader, captain, teacher, coach, boyfriend, girlfriend, ex"
	defaultBanned        = "North,East,South,West,Sunday,Monday,Tuesday,Wednesday,Thursday,Friday,Saturday,January,February,March,April,May,June,July,August,September,October,November,December"
)

// Triggers groups the tunables of the keyword trigger engine.
type Triggers struct {
	Enabled    bool   `json:"enabled"`
	TTL        int    `json:"ttl"`
	MaxPerTurn int    `json:"maxPerTurn"`
	InjectCap  int    `json:"injectCap"`
	CaseFold   bool   `json:"caseFold"`
	Anchor     string `json:"anchor"`
}

// Settings holds every engine tunable for one session.
type Settings struct {
	Enabled           bool     `json:"enabled"`
	CooldownTurns     int      `json:"cooldownTurns"`
	EntryCharLimit    int      `json:"entryCharLimit"`
	MemoryAutoUpdate  bool     `json:"memoryAutoUpdate"`
	MemoryCharLimit   int      `json:"memoryCharLimit"`
	IgnoreAllCaps     bool     `json:"ignoreAllCaps"`
	Lookback          int      `json:"lookback"`
	UseBullets        bool     `json:"useBullets"`
	ScanBlockLimit    int      `json:"scanBlockLimit"`
	CandidatesCap     int      `json:"candidatesCap"`
	DefaultType       string   `json:"defaultType"`
	EnableRules       bool     `json:"enableRules"`
	CharacterPronouns string   `json:"characterPronouns"`
	RelationshipWords string   `json:"relationshipWords"`
	ConjunctionGuard  bool     `json:"conjunctionGuard"`
	Triggers          Triggers `json:"triggers"`
	Banned            TitleSet `json:"bannedTitles"`

	GenerationPrompt  string `json:"generationPrompt"`
	CompressionPrompt string `json:"compressionPrompt"`
}

// Defaults returns a fresh copy of the default settings. Callers may mutate
// the result freely.
func Defaults() *Settings {
	return &Settings{
		Enabled:           true,
		CooldownTurns:     18,
		EntryCharLimit:    650,
		MemoryAutoUpdate:  true,
		MemoryCharLimit:   2200,
		IgnoreAllCaps:     true,
		Lookback:          6,
		UseBullets:        true,
		ScanBlockLimit:    4000,
		CandidatesCap:     100,
		DefaultType:       "class",
		EnableRules:       true,
		CharacterPronouns: defaultPronouns,
		RelationshipWords: defaultRelationships,
		ConjunctionGuard:  true,
		Triggers: Triggers{
			Enabled:    true,
			TTL:        3,
			MaxPerTurn: 6,
			InjectCap:  3,
			CaseFold:   true,
		},
		Banned:            NewTitleSet(strings.Split(defaultBanned, ",")...),
		GenerationPrompt:  DefaultGenerationPrompt,
		CompressionPrompt: DefaultCompressionPrompt,
	}
}

// Load merges persisted settings over the defaults. Present fields
// overwrite, nested objects merge field by field, the banned set is a union
// with the default set, and unknown keys are ignored.
func Load(persisted []byte) (*Settings, error) {
	s := Defaults()
	if len(bytes.TrimSpace(persisted)) == 0 {
		return s, nil
	}
	base := s.Banned.Clone()
	if err := json.Unmarshal(persisted, s); err != nil {
		return Defaults(), fmt.Errorf("settings: decode persisted settings: %w", err)
	}
	s.Banned = base.Union(s.Banned)
	s.clamp()
	if s.GenerationPrompt == "" {
		s.GenerationPrompt = DefaultGenerationPrompt
	}
	if s.CompressionPrompt == "" {
		s.CompressionPrompt = DefaultCompressionPrompt
	}
	return s, nil
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	cp := *s
	cp.Banned = s.Banned.Clone()
	return &cp
}

// Marshal encodes s for persistence.
func (s *Settings) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("settings: encode: %w", err)
	}
	return data, nil
}

func (s *Settings) clamp() {
	for _, f := range fields {
		if f.integer == nil {
			continue
		}
		if p := f.integer(s); *p < f.min {
			*p = f.min
		}
	}
}

// Pronouns returns the configured pronoun list as a lower-case set.
func (s *Settings) Pronouns() map[string]struct{} {
	return CSVSet(s.CharacterPronouns)
}

// Relationships returns the configured relationship words as a lower-case set.
func (s *Settings) Relationships() map[string]struct{} {
	return CSVSet(s.RelationshipWords)
}

// CSVSet splits a comma separated list into a lower-case set.
func CSVSet(csv string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(csv, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}
