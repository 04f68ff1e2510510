package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/lorekeeper/internal/engine"
)

const storyTranscript = `
session: harbor
settings: |
  cooldownTurns: 0
cards:
  - title: Ashford
    type: location
    keys: Ashford
    entry: "- A river town known for its bridges."
turns:
  - input: /lore Elena / her ship
    context: The harbor at Ashford was busy.
    output: Elena captains the Gull and never leaves port unarmed.
  - input: You walk toward Ashford.
    output: The bridges creak underfoot.
`

func writeTranscript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestReplay_Story(t *testing.T) {
	t.Parallel()

	tr, err := loadTranscript(writeTranscript(t, storyTranscript))
	if err != nil {
		t.Fatalf("loadTranscript: %v", err)
	}

	var out bytes.Buffer
	snap, err := replay(context.Background(), engine.New(engine.Options{}), tr, &out)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if snap.ID != "harbor" || snap.Turn != 2 {
		t.Errorf("snapshot id = %q turn = %d, want harbor/2", snap.ID, snap.Turn)
	}
	var titles []string
	for _, c := range snap.Cards {
		titles = append(titles, c.Title)
	}
	if !strings.Contains(strings.Join(titles, ","), "Elena") {
		t.Errorf("cards = %v, want Elena created", titles)
	}

	log := out.String()
	for _, want := range []string{"=== turn 1 ===", `preparing "Elena" card`, "> You walk toward Ashford.", "=== cards ("} {
		if !strings.Contains(log, want) {
			t.Errorf("replay log missing %q:\n%s", want, log)
		}
	}
	if len(snap.History) != 3 {
		t.Errorf("history = %q, want input and two outputs", snap.History)
	}
}

func TestLoadTranscript_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"no turns", "session: empty\n"},
		{"bad yaml", "turns: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := loadTranscript(writeTranscript(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := loadTranscript("/nonexistent/story.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfigDefaultsCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "defaults"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "cooldown") {
		t.Errorf("defaults output = %q, want cooldown key", out.String())
	}
}

func TestReplayCommand_SavesToSQLite(t *testing.T) {
	t.Parallel()

	db := filepath.Join(t.TempDir(), "replay.db")
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", "--db", db, writeTranscript(t, storyTranscript)})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), `saved session "harbor"`) {
		t.Errorf("output missing save notice:\n%s", out.String())
	}
}

func TestVersionCommand_GroupsModules(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"storage:\n    storage.sqlite", "gateway:\n    gateway.http", "cron:\n    cron.prune"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, out.String())
		}
	}
}
