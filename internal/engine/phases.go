package engine

import (
	"context"
	"fmt"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/discovery"
	"github.com/flemzord/lorekeeper/internal/job"
	"github.com/flemzord/lorekeeper/internal/session"
	"github.com/flemzord/lorekeeper/internal/trigger"
)

// detect queues the cards whose keys match the player's input.
func (e *Engine) detect(c *call, text string) {
	cfg := c.st.Settings.Triggers
	hits := trigger.Detect(text, c.host.Cards().Cards(), trigger.Options{
		CaseFold: cfg.CaseFold,
		MaxHits:  cfg.MaxPerTurn,
	})
	if n := c.st.Triggers.Queue(hits); n > 0 {
		c.logger.Debug("triggers queued", "count", n)
	}
}

// inject activates queued triggers and inserts active entries into text.
func (e *Engine) inject(c *call, text string) string {
	cfg := c.st.Settings.Triggers
	store := c.host.Cards()
	c.st.Triggers.Activate(cfg.TTL)
	out, n := c.st.Triggers.Inject(text, func(id string) string {
		if cd := card.ByID(store, id); cd != nil {
			return cd.Entry
		}
		return ""
	}, cfg.Anchor, cfg.InjectCap)
	e.metrics.injected(n)
	if n > 0 {
		c.logger.Debug("entries injected", "count", n, "active", len(c.st.Triggers.Active))
	}
	return out
}

func discoverCandidates(st *session.State, host Host) []discovery.Candidate {
	return discovery.Scan(st.Candidates, host.History(), st.Settings, card.Titles(host.Cards()))
}

// autoSchedule pops the next acceptable candidate once the cooldown has
// elapsed and schedules its generation.
func (e *Engine) autoSchedule(ctx context.Context, c *call) {
	st, host := c.st, c.host
	turn := host.Turn()
	if turn-st.LastAutoTurn < st.Settings.CooldownTurns {
		return
	}
	cand, rest, ok := discovery.Next(st.Candidates, card.Titles(host.Cards()), st.Settings.Banned)
	st.Candidates = rest
	if !ok {
		return
	}
	if !c.sched.ScheduleGenerate(ctx, cand.Title, job.GenerateOptions{Context: cand.Snippet}) {
		return
	}
	st.LastAutoTurn = turn
	c.logger.Info("candidate scheduled", "title", cand.Title, "queued", len(rest))
	host.SetMessage(fmt.Sprintf("%spreparing %q card... press Continue.", MessagePrefix, cand.Title))
}
