package settings

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/flemzord/lorekeeper/internal/textutil"
)

// field binds a text key to one typed Settings field. Exactly one accessor
// is set, except for the banned-title field which is handled by key.
type field struct {
	key        string
	boolean    func(*Settings) *bool
	integer    func(*Settings) *int
	str        func(*Settings) *string
	min        int
	allowEmpty bool
}

const bannedKey = "bannedTitles"

var fields = []field{
	{key: "enabled", boolean: func(s *Settings) *bool { return &s.Enabled }},
	{key: "cooldownTurns", integer: func(s *Settings) *int { return &s.CooldownTurns }},
	{key: "entryCharLimit", integer: func(s *Settings) *int { return &s.EntryCharLimit }, min: 50},
	{key: "memoryAutoUpdate", boolean: func(s *Settings) *bool { return &s.MemoryAutoUpdate }},
	{key: "memoryCharLimit", integer: func(s *Settings) *int { return &s.MemoryCharLimit }, min: 100},
	{key: "ignoreAllCaps", boolean: func(s *Settings) *bool { return &s.IgnoreAllCaps }},
	{key: "lookback", integer: func(s *Settings) *int { return &s.Lookback }},
	{key: "useBullets", boolean: func(s *Settings) *bool { return &s.UseBullets }},
	{key: "scanBlockLimit", integer: func(s *Settings) *int { return &s.ScanBlockLimit }},
	{key: "candidatesCap", integer: func(s *Settings) *int { return &s.CandidatesCap }, min: 1},
	{key: "defaultType", str: func(s *Settings) *string { return &s.DefaultType }},
	{key: "enableRules", boolean: func(s *Settings) *bool { return &s.EnableRules }},
	{key: "characterPronouns", str: func(s *Settings) *string { return &s.CharacterPronouns }},
	{key: "relationshipWords", str: func(s *Settings) *string { return &s.RelationshipWords }},
	{key: "conjunctionGuard", boolean: func(s *Settings) *bool { return &s.ConjunctionGuard }},
	{key: "enableTriggers", boolean: func(s *Settings) *bool { return &s.Triggers.Enabled }},
	{key: "triggerTTL", integer: func(s *Settings) *int { return &s.Triggers.TTL }, min: 1},
	{key: "triggerMaxPerTurn", integer: func(s *Settings) *int { return &s.Triggers.MaxPerTurn }, min: 1},
	{key: "triggerInjectCap", integer: func(s *Settings) *int { return &s.Triggers.InjectCap }},
	{key: "triggerCaseFold", boolean: func(s *Settings) *bool { return &s.Triggers.CaseFold }},
	{key: "triggerAnchor", str: func(s *Settings) *string { return &s.Triggers.Anchor }, allowEmpty: true},
	{key: bannedKey},
}

var (
	kvLine     = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9_]*)\s*:\s*(.*)$`)
	truthy     = regexp.MustCompile(`(?i)^(true|1|yes|on)$`)
	intNoise   = regexp.MustCompile(`[^0-9\-]`)
	intLeading = regexp.MustCompile(`^-?\d+`)
)

// Keys returns every recognised key in serialisation order.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// KV is one parsed "key: value" line.
type KV struct {
	Key   string
	Value string
}

// Patch is an ordered list of parsed edits.
type Patch []KV

// Serialize renders s as one "key: value" line per recognised key followed
// by a comment listing the valid keys.
func Serialize(s *Settings) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.key)
		b.WriteString(": ")
		b.WriteString(f.format(s))
		b.WriteByte('\n')
	}
	b.WriteString("\n# Supported keys: ")
	b.WriteString(strings.Join(Keys(), ", "))
	return b.String()
}

func (f field) format(s *Settings) string {
	switch {
	case f.boolean != nil:
		return strconv.FormatBool(*f.boolean(s))
	case f.integer != nil:
		return strconv.Itoa(*f.integer(s))
	case f.str != nil:
		return *f.str(s)
	default:
		return strings.Join(s.Banned.Values(), ", ")
	}
}

// Parse reads "key: value" lines, skipping blanks, comments, and lines
// that do not look like an assignment.
func Parse(text string) Patch {
	var patch Patch
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := kvLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		patch = append(patch, KV{Key: m[1], Value: strings.TrimSpace(m[2])})
	}
	return patch
}

// Apply coerces each edit by the type of its field and stores it. It
// returns the keys that were recognised; unknown keys are ignored.
func (s *Settings) Apply(patch Patch) []string {
	var applied []string
	for _, kv := range patch {
		if s.applyOne(kv.Key, kv.Value) {
			applied = append(applied, kv.Key)
		}
	}
	return applied
}

func (s *Settings) applyOne(key, raw string) bool {
	v := strings.TrimSpace(raw)
	for _, f := range fields {
		if f.key != key {
			continue
		}
		switch {
		case f.boolean != nil:
			*f.boolean(s) = truthy.MatchString(v)
		case f.integer != nil:
			p := f.integer(s)
			*p = max(toInt(v, *p), f.min)
		case f.str != nil:
			if v != "" || f.allowEmpty {
				*f.str(s) = v
			}
		default:
			s.Banned = parseBanned(v)
		}
		return true
	}
	return false
}

// toInt strips everything but digits and minus signs and parses the leading
// integer, returning fallback when nothing parses.
func toInt(s string, fallback int) int {
	m := intLeading.FindString(intNoise.ReplaceAllString(s, ""))
	if m == "" {
		return fallback
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return fallback
	}
	return n
}

func parseBanned(v string) TitleSet {
	var set TitleSet
	for _, part := range strings.Split(v, ",") {
		set.Add(textutil.SanitizeTitle(part))
	}
	return set
}
