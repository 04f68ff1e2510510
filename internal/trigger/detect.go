// Package trigger implements keyword-triggered, time-decaying injection of
// card entries into the outgoing context.
//
// A card moves Idle -> Queued when its keys match scanned text, Queued ->
// Active(ttl) on the next activation pass, and loses one TTL point per
// injection pass until it is pruned at zero.
package trigger

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/flemzord/lorekeeper/internal/card"
)

// Options controls detection.
type Options struct {
	CaseFold bool
	// MaxHits stops detection after this many distinct cards. Zero means
	// no limit.
	MaxHits int
}

// ParseGroups splits a keys field into AND-groups. Commas separate groups
// and ampersands separate the phrases that must co-occur within a group.
func ParseGroups(keys string) [][]string {
	var groups [][]string
	for _, g := range strings.Split(keys, ",") {
		var phrases []string
		for _, p := range strings.Split(g, "&") {
			if p = strings.TrimSpace(p); p != "" {
				phrases = append(phrases, p)
			}
		}
		if len(phrases) > 0 {
			groups = append(groups, phrases)
		}
	}
	return groups
}

// Detect returns the IDs of cards, in store order, whose keys match text.
// Only cards with both keys and an entry take part.
func Detect(text string, cards []*card.Card, opts Options) []string {
	var hits []string
	for _, c := range cards {
		if opts.MaxHits > 0 && len(hits) >= opts.MaxHits {
			break
		}
		if strings.TrimSpace(c.Keys) == "" || strings.TrimSpace(c.Entry) == "" {
			continue
		}
		for _, group := range ParseGroups(c.Keys) {
			if matchesAll(text, group, opts.CaseFold) {
				hits = append(hits, c.ID)
				break
			}
		}
	}
	return hits
}

func matchesAll(text string, phrases []string, fold bool) bool {
	for _, p := range phrases {
		if !matches(text, p, fold) {
			return false
		}
	}
	return true
}

// matches reports whether phrase occurs in text as a whole word or phrase.
// A phrase written as /pattern/ is used as a raw regular expression. When a
// pattern does not compile the phrase is searched as a plain substring.
func matches(text, phrase string, fold bool) bool {
	re, err := compilePhrase(phrase, fold)
	if err != nil {
		needle := strings.Trim(phrase, "/")
		if fold {
			return strings.Contains(strings.ToLower(text), strings.ToLower(needle))
		}
		return strings.Contains(text, needle)
	}
	return re.MatchString(text)
}

func compilePhrase(phrase string, fold bool) (*regexp.Regexp, error) {
	prefix := ""
	if fold {
		prefix = "(?i)"
	}
	if len(phrase) > 2 && strings.HasPrefix(phrase, "/") && strings.HasSuffix(phrase, "/") {
		return regexp.Compile(prefix + phrase[1:len(phrase)-1])
	}

	words := strings.Fields(phrase)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	pattern := strings.Join(quoted, `\s+`)
	if r, _ := utf8.DecodeRuneInString(phrase); isWord(r) {
		pattern = `\b` + pattern
	}
	if r, _ := utf8.DecodeLastRuneInString(phrase); isWord(r) {
		pattern += `\b`
	}
	return regexp.Compile(prefix + pattern)
}

func isWord(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
