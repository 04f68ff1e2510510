package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/engine"
	"github.com/flemzord/lorekeeper/internal/session"
	"github.com/flemzord/lorekeeper/internal/settings"
)

// transcript is a scripted story for the replay command.
type transcript struct {
	Session string `yaml:"session"`
	// Settings is config-card text ("key: value" lines) applied before the
	// first turn.
	Settings string      `yaml:"settings"`
	Cards    []card.Card `yaml:"cards"`
	Turns    []turn      `yaml:"turns"`
}

// turn is one scripted round. Context defaults to the last contextWindow
// history entries when empty.
type turn struct {
	Input   string `yaml:"input"`
	Context string `yaml:"context"`
	Output  string `yaml:"output"`
}

const contextWindow = 3

func loadTranscript(path string) (*transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	var tr transcript
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("replay: parse %s: %w", path, err)
	}
	if len(tr.Turns) == 0 {
		return nil, errors.New("replay: transcript has no turns")
	}
	if tr.Session == "" {
		tr.Session = "replay"
	}
	return &tr, nil
}

// replay runs every turn of tr through eng against an in-memory host,
// writing a readable log to w, and returns the final snapshot.
func replay(ctx context.Context, eng *engine.Engine, tr *transcript, w io.Writer) (*session.Snapshot, error) {
	host := session.NewHost(tr.Session, &session.Snapshot{Cards: tr.Cards})
	st := session.New()
	if tr.Settings != "" {
		if applied := st.Settings.Apply(settings.Parse(tr.Settings)); len(applied) > 0 {
			fmt.Fprintf(w, "settings: %s\n", strings.Join(applied, ", "))
		}
	}

	for i, t := range tr.Turns {
		seen := len(host.Messages())
		fmt.Fprintf(w, "=== turn %d ===\n", i+1)

		if t.Input != "" {
			in := eng.Input(ctx, st, host, t.Input)
			if strings.TrimSpace(in) != "" {
				host.Record(in)
				fmt.Fprintf(w, "> %s\n", in)
			}
		}

		ctxText := t.Context
		if ctxText == "" {
			hist := host.History()
			ctxText = strings.Join(hist[max(0, len(hist)-contextWindow):], "\n")
		}
		ctxOut, stop := eng.Context(ctx, st, host, ctxText, false)
		fmt.Fprintf(w, "--- context ---\n%s\n", ctxOut)
		if stop {
			fmt.Fprintln(w, "(stopped)")
			continue
		}

		if t.Output != "" {
			out := eng.Output(ctx, st, host, t.Output)
			host.Advance(out)
			fmt.Fprintf(w, "--- output ---\n%s\n", out)
		}

		for _, msg := range host.Messages()[seen:] {
			fmt.Fprintf(w, "! %s\n", msg)
		}
	}

	snap, err := host.Snapshot(st)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "=== cards (%d) ===\n", len(snap.Cards))
	if len(snap.Cards) > 0 {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap.Cards); err != nil {
			return nil, fmt.Errorf("replay: encode cards: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("replay: encode cards: %w", err)
		}
	}
	return snap, nil
}
