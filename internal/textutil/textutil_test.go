package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalize_StripsInvisibles(t *testing.T) {
	t.Parallel()

	got := Normalize("Ele\u200bna\u0007 \ufeffrow\ns")
	if got != "Elena row\ns" {
		t.Errorf("Normalize = %q, want %q", got, "Elena row\ns")
	}
}

func TestNormalize_NFKC(t *testing.T) {
	t.Parallel()

	// Full-width letters fold to ASCII under NFKC.
	if got := Normalize("Ｅｌｅｎａ"); got != "Elena" {
		t.Errorf("Normalize = %q, want %q", got, "Elena")
	}
}

func TestSanitizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`  "Captain Elena"  `, "Captain Elena"},
		{"{Iron_Gate}", "Iron Gate"},
		{"Old -- Town", "Old Town"},
		{"[Marsh]", "Marsh"},
		{"“Quoted”", "Quoted"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeSoft_KeepsHyphens(t *testing.T) {
	t.Parallel()

	got := SanitizeSoft("\"well-known\nsmuggler\"")
	if got != "well-known smuggler" {
		t.Errorf("SanitizeSoft = %q, want %q", got, "well-known smuggler")
	}
}

func TestNormTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Captain Elena", "captain elena"},
		{"captain-elena", "captain elena"},
		{"Captain, Elena!", "captain elena"},
		{"  CAPTAIN   ELENA ", "captain elena"},
	}
	for _, tt := range tests {
		if got := NormTitle(tt.in); got != tt.want {
			t.Errorf("NormTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClip(t *testing.T) {
	t.Parallel()

	if got := Clip("short  ", 10); got != "short" {
		t.Errorf("Clip short = %q, want %q", got, "short")
	}

	got := Clip(strings.Repeat("a", 20), 10)
	if utf8.RuneCountInString(got) != 10 {
		t.Errorf("Clip length = %d, want 10", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("Clip = %q, want ellipsis suffix", got)
	}

	// Multi-byte runes are counted as one.
	if got := Clip("ééé", 3); got != "ééé" {
		t.Errorf("Clip runes = %q, want %q", got, "ééé")
	}
}

func TestHash6_Deterministic(t *testing.T) {
	t.Parallel()

	a := Hash6("met the captain")
	b := Hash6("met the captain")
	if a != b {
		t.Fatalf("Hash6 not deterministic: %q vs %q", a, b)
	}
	if len(a) != 6 {
		t.Fatalf("len(Hash6) = %d, want 6", len(a))
	}
	for _, r := range a {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("Hash6 = %q contains non-hex rune %q", a, r)
		}
	}
	if Hash6("learned her name") == a {
		t.Error("distinct inputs should not collide in this fixture")
	}
	if got := Hash6(""); got != "000000" {
		t.Errorf("Hash6(\"\") = %q, want 000000", got)
	}
}

func TestFormatEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		bullets bool
		want    string
	}{
		{"plain bullets", "Tall.\nBrave.", true, "- Tall.\n- Brave."},
		{"already bulleted", "- Tall.", true, "- Tall."},
		{"no bullets", "Tall.", false, "Tall."},
		{"empty", "   ", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatEntry(tt.in, tt.bullets); got != tt.want {
				t.Errorf("FormatEntry = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDenumber(t *testing.T) {
	t.Parallel()

	if got := Denumber("Sector 7"); got != "Sector" {
		t.Errorf("Denumber = %q, want %q", got, "Sector")
	}
	if got := Denumber("Sector"); got != "Sector" {
		t.Errorf("Denumber = %q, want %q", got, "Sector")
	}
}
