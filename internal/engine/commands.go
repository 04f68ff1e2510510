package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/flemzord/lorekeeper/internal/job"
	"github.com/flemzord/lorekeeper/internal/textutil"
)

// Usage is shown for a bare command.
const Usage = `usage: /lore <title> [/ focus] [/ first line] | /lore on | /lore off | /lore redo "<title>" | /lore ban "<title>" | /lore config`

type commandKind int

const (
	cmdCreate commandKind = iota
	cmdOn
	cmdOff
	cmdRedo
	cmdBan
	cmdConfig
	cmdUsage
)

var (
	commandPrefix = regexp.MustCompile(`(?is)^/(?:lore|lk)\b\s*(.*)$`)
	redoPattern   = regexp.MustCompile(`(?is)^redo\s+"?([^"]+)"?$`)
	banPattern    = regexp.MustCompile(`(?is)^ban\s+"?([^"]+)"?$`)
)

// banTitles splits a ban argument on commas into sanitised titles.
func banTitles(arg string) []string {
	var titles []string
	for _, part := range strings.Split(arg, ",") {
		if t := textutil.SanitizeTitle(part); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// command is one parsed /lore command.
type command struct {
	what  commandKind
	title string
	focus string
	first string
}

// parseCommand recognises "/lore" and "/lk" commands. Toggle keywords are
// matched exactly before the rich create form, so "/lore on" toggles while
// "/lore Onyx" creates.
func parseCommand(text string) (command, bool) {
	m := commandPrefix.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return command{}, false
	}
	rest := strings.TrimSpace(m[1])
	switch strings.ToLower(rest) {
	case "":
		return command{what: cmdUsage}, true
	case "on":
		return command{what: cmdOn}, true
	case "off":
		return command{what: cmdOff}, true
	case "config":
		return command{what: cmdConfig}, true
	}
	if r := redoPattern.FindStringSubmatch(rest); r != nil {
		return command{what: cmdRedo, title: textutil.SanitizeTitle(r[1])}, true
	}
	if r := banPattern.FindStringSubmatch(rest); r != nil {
		return command{what: cmdBan, title: strings.Join(banTitles(r[1]), ", ")}, true
	}

	parts := strings.SplitN(rest, "/", 3)
	cmd := command{what: cmdCreate, title: textutil.SanitizeTitle(parts[0])}
	if len(parts) > 1 {
		cmd.focus = textutil.SanitizeSoft(parts[1])
	}
	if len(parts) > 2 {
		cmd.first = textutil.SanitizeSoft(parts[2])
	}
	return cmd, true
}

// kind is the command name exposed to hooks.
func (c command) kind() string {
	if c.what == cmdCreate {
		return "create"
	}
	return "toggle"
}

func (c command) allowedWhileDisabled() bool {
	return c.what == cmdOn || c.what == cmdConfig
}

func (e *Engine) execute(ctx context.Context, c *call, cmd command) {
	st, host := c.st, c.host
	switch cmd.what {
	case cmdUsage:
		host.SetMessage(MessagePrefix + Usage)
		return

	case cmdCreate, cmdRedo:
		if cmd.title == "" {
			host.SetMessage(MessagePrefix + Usage)
			return
		}
		opts := job.GenerateOptions{Focus: cmd.focus, FirstLine: cmd.first, Redo: cmd.what == cmdRedo}
		if !c.sched.ScheduleGenerate(ctx, cmd.title, opts) {
			host.SetMessage(MessagePrefix + "a card update is already pending; press Continue first.")
			return
		}
		c.logger.Info("generate requested", "title", cmd.title, "redo", opts.Redo)
		host.SetMessage(fmt.Sprintf("%spreparing %q card... press Continue.", MessagePrefix, cmd.title))
		return

	case cmdOn:
		st.Settings.Enabled = true
		host.SetMessage(MessagePrefix + "enabled.")
	case cmdOff:
		st.Settings.Enabled = false
		host.SetMessage(MessagePrefix + "disabled.")
	case cmdBan:
		if cmd.title == "" {
			host.SetMessage(MessagePrefix + Usage)
			return
		}
		// The ban list is stored comma separated, so each part is its own ban.
		titles := banTitles(cmd.title)
		for _, t := range titles {
			st.Settings.Banned.Add(t)
		}
		host.SetMessage(fmt.Sprintf("%sbanned: %s.", MessagePrefix, strings.Join(titles, ", ")))
	case cmdConfig:
		if _, err := writeConfigCard(host.Cards(), st.Settings, true); err != nil {
			host.SetMessage(MessagePrefix + err.Error())
			return
		}
		host.SetMessage(MessagePrefix + "config card created/updated.")
		return
	}

	// Keep an existing config card in step so the next context phase does
	// not revert the change.
	if _, err := writeConfigCard(host.Cards(), st.Settings, false); err != nil {
		c.logger.Warn("config card not refreshed", "error", err)
	}
}
