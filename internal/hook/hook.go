// Package hook provides the engine's lifecycle extension points. Hooks run
// at named events with a read-only payload, a single mutable text slot, and
// a narrow mutation API. Story authors customise behaviour through
// declarative rules rather than code.
package hook

import (
	"context"
	"log/slog"
)

// Event names a lifecycle extension point.
type Event string

const (
	TurnStart     Event = "turnStart"
	BeforeCommand Event = "beforeCommand"
	AfterCommand  Event = "afterCommand"
	BeforeContext Event = "beforeContext"
	AfterContext  Event = "afterContext"

	// BeforeGenerate runs while a generate job is scheduled. Text holds the
	// entry seed and may be rewritten.
	BeforeGenerate Event = "beforeGenerate"

	// AfterGenerate runs on the model's entry before it is stored. Text
	// holds the entry and may be rewritten.
	AfterGenerate Event = "afterGenerate"

	BeforeCompress Event = "beforeCompress"
	AfterCompress  Event = "afterCompress"
	TurnEnd        Event = "turnEnd"

	// AnyEvent registers a hook at every event.
	AnyEvent Event = "*"
)

// Events lists every concrete event in lifecycle order.
var Events = []Event{
	TurnStart, BeforeCommand, AfterCommand, BeforeContext, AfterContext,
	BeforeGenerate, AfterGenerate, BeforeCompress, AfterCompress, TurnEnd,
}

// Valid reports whether e is a known event or AnyEvent.
func (e Event) Valid() bool {
	if e == AnyEvent {
		return true
	}
	for _, k := range Events {
		if k == e {
			return true
		}
	}
	return false
}

// Payload is the read-only description of the event. Fields not relevant
// to an event are zero.
type Payload struct {
	Session string
	Turn    int
	Title   string
	// Command kind for command events: "create" or "toggle".
	Command   string
	Focus     string
	FirstLine string
	// Lines holds memory lines for compress events.
	Lines []string
}

// API is the narrow set of mutations hooks may perform.
type API interface {
	Rename(from, to string) error
	AppendMemory(title, line string) bool
	SetMessage(msg string)
}

// Context carries one event through the pipeline.
type Context struct {
	Event   Event
	Payload Payload

	// Text is the one mutable slot. What it holds depends on the event:
	// the raw command, the context text, the entry seed, the generated
	// entry, or the joined memory lines.
	Text string

	API    API
	Logger *slog.Logger
}

// Hook is the extension point interface.
type Hook interface {
	// Event returns where this hook runs.
	Event() Event

	// Priority determines execution order within an event. Lower values
	// run first.
	Priority() int

	Execute(ctx context.Context, hctx *Context) error
}

// Named is implemented by hooks that can identify themselves in error
// reports.
type Named interface {
	Name() string
}
