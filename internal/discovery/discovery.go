// Package discovery finds probable proper-noun titles in recent narrative
// history, keeps them in a capped LIFO queue, and guesses a card type for
// each.
package discovery

import (
	"regexp"
	"strings"

	"github.com/flemzord/lorekeeper/internal/settings"
	"github.com/flemzord/lorekeeper/internal/textutil"
)

const (
	maxTitlesPerBlock = 24
	snippetLimit      = 400
)

// Candidate is a discovered title awaiting generation.
type Candidate struct {
	Title   string `json:"title"`
	Turn    int    `json:"turn"`
	Snippet string `json:"snippet"`
}

var (
	phrasePattern = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)
	singlePattern = regexp.MustCompile(`\b([A-Z][a-z]{3,})\b`)
	wrapperRunes  = regexp.MustCompile(`[{}<>\[\]]`)
	spaceRun      = regexp.MustCompile(`\s+`)
	structural    = regexp.MustCompile(`(?i)^(chapter|act|scene|page)\b`)
	digit         = regexp.MustCompile(`\d`)
)

var stopwords = map[string]struct{}{"you": {}, "the": {}, "a": {}, "an": {}}

// Scan examines the last Lookback history entries and pushes newly found
// titles onto queue. Titles already known (normalised card titles) or
// banned are skipped. The result is deduplicated by normalised title, the
// most recent discovery keeping its place, and trimmed from the oldest end
// to CandidatesCap.
func Scan(queue []Candidate, history []string, s *settings.Settings, known map[string]struct{}) []Candidate {
	start := max(0, len(history)-s.Lookback)
	for i := start; i < len(history); i++ {
		block := clipRunes(textutil.Normalize(history[i]), s.ScanBlockLimit)
		if strings.TrimSpace(block) == "" {
			continue
		}
		for _, title := range extractTitles(block, s.IgnoreAllCaps) {
			key := textutil.NormTitle(title)
			if key == "" {
				continue
			}
			if _, ok := known[key]; ok {
				continue
			}
			if IsBanned(title, s.Banned) {
				continue
			}
			queue = append(queue, Candidate{
				Title:   title,
				Turn:    i,
				Snippet: textutil.Clip(sentenceContaining(title, block), snippetLimit),
			})
		}
	}
	queue = dedupeKeepLast(queue)
	if over := len(queue) - max(1, s.CandidatesCap); over > 0 {
		queue = append([]Candidate(nil), queue[over:]...)
	}
	return queue
}

// Next pops candidates from the top of queue until one is neither known nor
// banned. It returns the candidate, the remaining queue, and whether one was
// found.
func Next(queue []Candidate, known map[string]struct{}, banned settings.TitleSet) (Candidate, []Candidate, bool) {
	for len(queue) > 0 {
		c := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		key := textutil.NormTitle(c.Title)
		if key == "" {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		if IsBanned(c.Title, banned) {
			continue
		}
		return c, queue, true
	}
	return Candidate{}, queue, false
}

// IsBanned reports whether title, or its first word, is in the ban set.
// Empty titles are always banned.
func IsBanned(title string, banned settings.TitleSet) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return true
	}
	if banned.Has(title) {
		return true
	}
	first, _, _ := strings.Cut(title, " ")
	return banned.Has(first)
}

func extractTitles(block string, ignoreAllCaps bool) []string {
	clean := spaceRun.ReplaceAllString(wrapperRunes.ReplaceAllString(block, " "), " ")

	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, m := range phrasePattern.FindAllStringSubmatch(clean, -1) {
		c := textutil.SanitizeTitle(m[1])
		if skipTitle(c, ignoreAllCaps) {
			continue
		}
		add(textutil.Denumber(c))
	}
	for _, m := range singlePattern.FindAllStringSubmatch(clean, -1) {
		c := textutil.SanitizeTitle(m[1])
		if skipTitle(c, ignoreAllCaps) {
			continue
		}
		add(c)
	}
	if len(out) > maxTitlesPerBlock {
		out = out[:maxTitlesPerBlock]
	}
	return out
}

func skipTitle(c string, ignoreAllCaps bool) bool {
	if len([]rune(c)) < 2 {
		return true
	}
	if ignoreAllCaps && textutil.IsUpper(c) {
		return true
	}
	if _, ok := stopwords[strings.ToLower(c)]; ok {
		return true
	}
	return structural.MatchString(c) || digit.MatchString(c)
}

func dedupeKeepLast(queue []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(queue))
	kept := make([]Candidate, 0, len(queue))
	for i := len(queue) - 1; i >= 0; i-- {
		k := textutil.NormTitle(queue[i].Title)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, queue[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func clipRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
