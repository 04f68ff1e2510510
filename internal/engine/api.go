package engine

import (
	"fmt"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/hook"
	"github.com/flemzord/lorekeeper/internal/textutil"
)

// hostAPI is the mutation surface handed to hooks for one phase call.
type hostAPI struct {
	c *call
}

// Compile-time interface check.
var _ hook.API = (*hostAPI)(nil)

// Rename retitles a card. A pending job for the old title follows it.
func (a *hostAPI) Rename(from, to string) error {
	store := a.c.host.Cards()
	target := card.Find(store, from)
	if target == nil {
		return fmt.Errorf("%w: %q", card.ErrCardNotFound, from)
	}
	to = textutil.SanitizeTitle(to)
	if to == "" {
		return fmt.Errorf("engine: rename %q: empty title", from)
	}
	if other := card.Find(store, to); other != nil && other != target {
		return fmt.Errorf("%w: %q", card.ErrCardExists, to)
	}

	if p := a.c.st.Pending.Job(); p != nil && textutil.NormTitle(p.Title) == textutil.NormTitle(target.Title) {
		p.Title = to
	}
	a.c.logger.Info("card renamed", "from", target.Title, "to", to)
	target.Title = to
	return nil
}

// AppendMemory stamps line onto the card titled title.
func (a *hostAPI) AppendMemory(title, line string) bool {
	return a.c.sched.AddMemory(title, line)
}

// SetMessage forwards msg to the host.
func (a *hostAPI) SetMessage(msg string) {
	a.c.host.SetMessage(msg)
}
