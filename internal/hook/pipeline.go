package hook

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Pipeline manages hook registration and execution.
// Hooks are grouped by event and sorted by (priority, registration order).
// Thread-safe: registrations use a write lock, executions use a read lock.
type Pipeline struct {
	mu    sync.RWMutex
	hooks map[Event][]Hook
	// order tracks registration sequence for stable sorting.
	order map[Hook]int
	seq   int
}

// NewPipeline creates a new empty hook pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		hooks: make(map[Event][]Hook),
		order: make(map[Hook]int),
	}
}

// Register adds a hook to the pipeline. A hook at AnyEvent joins every
// event.
func (p *Pipeline) Register(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order[h] = p.seq
	p.seq++

	events := []Event{h.Event()}
	if h.Event() == AnyEvent {
		events = Events
	}
	for _, ev := range events {
		p.hooks[ev] = append(p.hooks[ev], h)
		p.sortLocked(ev)
	}
}

func (p *Pipeline) sortLocked(ev Event) {
	slices.SortStableFunc(p.hooks[ev], func(a, b Hook) int {
		if a.Priority() != b.Priority() {
			return a.Priority() - b.Priority()
		}
		return p.order[a] - p.order[b]
	})
}

// Clone returns an independent pipeline holding the same hooks. Engines use
// it to layer per-session rules over the static set.
func (p *Pipeline) Clone() *Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cp := NewPipeline()
	for ev, hooks := range p.hooks {
		cp.hooks[ev] = slices.Clone(hooks)
	}
	for h, n := range p.order {
		cp.order[h] = n
	}
	cp.seq = p.seq
	return cp
}

// Len returns the number of hooks registered for ev.
func (p *Pipeline) Len(ev Event) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.hooks[ev])
}

// Run executes every hook for hctx.Event in order. A failing or panicking
// hook is logged and reported through the API; the remaining hooks still
// run. Run never returns an error.
func (p *Pipeline) Run(ctx context.Context, hctx *Context) {
	if p == nil {
		return
	}
	p.mu.RLock()
	hooks := p.hooks[hctx.Event]
	p.mu.RUnlock()

	for _, h := range hooks {
		if err := execute(ctx, h, hctx); err != nil {
			name := hookName(h)
			if hctx.Logger != nil {
				hctx.Logger.Warn("hook: execute error",
					"event", string(hctx.Event),
					"hook", name,
					"priority", h.Priority(),
					"error", err,
				)
			}
			if hctx.API != nil {
				hctx.API.SetMessage(fmt.Sprintf("Lorekeeper: hook %q failed: %v", name, err))
			}
		}
	}
}

func execute(ctx context.Context, h Hook, hctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Execute(ctx, hctx)
}

func hookName(h Hook) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}
