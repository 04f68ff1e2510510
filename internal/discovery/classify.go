package discovery

import (
	"regexp"
	"strings"

	"github.com/flemzord/lorekeeper/internal/settings"
)

// TypeCharacter is the type assigned to titles that look like people.
const TypeCharacter = "character"

// Classification is the outcome of Classify.
type Classification struct {
	Type  string
	Score int
}

var (
	conjunction   = regexp.MustCompile(`\band\b|&`)
	wordPattern   = regexp.MustCompile(`[\p{L}’']+`)
	sentenceBreak = regexp.MustCompile(`[.?!]\s+`)
)

// Classify guesses a card type for title from the sentence of context that
// first mentions it. A relationship word in the title or the sentence is
// worth 2, a pronoun in the sentence 1; a total of 2 or more means a
// character. Titles joined by a conjunction keep the default type when the
// guard is on.
func Classify(title, context string, s *settings.Settings) Classification {
	def := Classification{Type: s.DefaultType}
	if s.ConjunctionGuard && conjunction.MatchString(strings.ToLower(title)) {
		return def
	}

	relations := s.Relationships()
	pronouns := s.Pronouns()
	sentence := sentenceContaining(title, context)

	score := 0
	if containsWord(title, relations) {
		score += 2
	}
	if containsWord(sentence, relations) {
		score += 2
	}
	if containsWord(sentence, pronouns) {
		score++
	}
	if score >= 2 {
		return Classification{Type: TypeCharacter, Score: score}
	}
	def.Score = score
	return def
}

// containsWord reports whether any word of text is in set. A possessive
// suffix counts as the base word.
func containsWord(text string, set map[string]struct{}) bool {
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, ok := set[w]; ok {
			return true
		}
		base := strings.TrimRight(strings.TrimSuffix(strings.TrimSuffix(w, "'s"), "’s"), "'’")
		if _, ok := set[base]; ok {
			return true
		}
	}
	return false
}

// sentenceContaining returns the first sentence of text mentioning title as
// a whole word, or "".
func sentenceContaining(title, text string) string {
	if title == "" || text == "" {
		return ""
	}
	match := func(s string) bool { return strings.Contains(s, title) }
	if re, err := regexp.Compile(`\b` + regexp.QuoteMeta(title) + `\b`); err == nil {
		match = re.MatchString
	}
	for _, s := range splitSentences(text) {
		if match(s) {
			return s
		}
	}
	return ""
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceBreak.FindAllStringIndex(text, -1) {
		out = append(out, text[last:loc[0]+1])
		last = loc[1]
	}
	return append(out, text[last:])
}
