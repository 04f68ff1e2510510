// Package textutil holds the small text helpers shared by the annotation
// engine: normalisation, title sanitation, clipping, and line ids.
package textutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	leadingWrap  = "'\"“”‘’`{["
	trailingWrap = "'\"“”‘’`}]"
)

var (
	separatorRun = regexp.MustCompile(`[\s\-–—_]+`)
	titleKeyRun  = regexp.MustCompile(`[^a-z0-9]+`)
	trailingNum  = regexp.MustCompile(`\s*\d+$`)
	newlineRun   = regexp.MustCompile(`[\r\n]+`)
	bulleted     = regexp.MustCompile(`^\s*[-•]`)
)

// Normalize applies NFKC and removes invisible formatting runes and C0
// control characters other than tab, newline, and carriage return.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x200B && r <= 0x200F,
			r >= 0x202A && r <= 0x202E,
			r >= 0x2060 && r <= 0x206F,
			r == 0xFEFF:
			return -1
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7F:
			return -1
		}
		return r
	}, s)
}

// SanitizeTitle cleans a user- or model-supplied title: wrapping quotes and
// brackets are stripped and separator runs collapse to a single space.
func SanitizeTitle(t string) string {
	t = strings.TrimSpace(Normalize(t))
	t = strings.TrimLeft(t, leadingWrap)
	t = strings.TrimRight(t, trailingWrap)
	t = separatorRun.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// SanitizeSoft cleans free text such as a focus or first line. Unlike
// SanitizeTitle it keeps hyphens and inner punctuation.
func SanitizeSoft(t string) string {
	t = newlineRun.ReplaceAllString(Normalize(t), " ")
	t = strings.TrimLeft(t, leadingWrap)
	t = strings.TrimRight(t, trailingWrap)
	return strings.TrimSpace(t)
}

// NormTitle returns the comparison key for a title: case-folded with every
// run of punctuation or whitespace collapsed to one space.
func NormTitle(t string) string {
	k := strings.ToLower(SanitizeTitle(t))
	k = titleKeyRun.ReplaceAllString(k, " ")
	return strings.TrimSpace(k)
}

// Clip trims trailing whitespace and shortens s to at most n runes, marking
// the cut with an ellipsis.
func Clip(s string, n int) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:n-1]), unicode.IsSpace)
	return cut + "…"
}

// Hash6 is a deterministic, non-cryptographic six hex digit fingerprint.
func Hash6(s string) string {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return fmt.Sprintf("%08x", uint32(h))[:6]
}

// FormatEntry bulletizes text when bullets are enabled and the text does not
// already start with a bullet.
func FormatEntry(text string, bullets bool) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	if bullets && !bulleted.MatchString(t) {
		return "- " + newlineRun.ReplaceAllString(t, "\n- ")
	}
	return t
}

// Denumber strips a trailing number from a phrase ("Sector 7" -> "Sector").
func Denumber(s string) string {
	return trailingNum.ReplaceAllString(s, "")
}

// IsUpper reports whether s is unchanged by upper-casing.
func IsUpper(s string) bool {
	return s == strings.ToUpper(s)
}
