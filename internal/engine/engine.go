// Package engine is the lifecycle dispatcher of the lore annotation engine.
// Hosts call Input, Context, and Output once per narrative turn, passing
// the session state they persist between calls.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/hook"
	"github.com/flemzord/lorekeeper/internal/job"
	"github.com/flemzord/lorekeeper/internal/session"
	"github.com/flemzord/lorekeeper/internal/settings"
	"github.com/flemzord/lorekeeper/internal/textutil"
)

const (
	// MessagePrefix starts every status message the engine sets.
	MessagePrefix = "Lorekeeper: "

	// ServiceName is the service under which the process registers its
	// Engine for host modules.
	ServiceName = "engine"
)

// Host is what the engine consumes from its caller.
type Host interface {
	// Turn is a monotonically increasing turn counter.
	Turn() int
	// History is the ordered sequence of past turn texts.
	History() []string
	Cards() card.Store
	// SetMessage shows a status notice to the player.
	SetMessage(msg string)
}

// Identified is implemented by hosts that can name their session for logs,
// traces, and hook payloads.
type Identified interface {
	SessionID() string
}

// Options configures an Engine.
type Options struct {
	// Hooks are run at every event. Rules read from story cards are layered
	// on top per call.
	Hooks   *hook.Pipeline
	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Engine dispatches the three lifecycle phases. It holds no session state
// and is safe for concurrent use across sessions; calls for one session
// must be serialised by the caller.
type Engine struct {
	hooks   *hook.Pipeline
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = hook.NewPipeline()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/flemzord/lorekeeper/internal/engine")
	}
	return &Engine{
		hooks:   hooks,
		logger:  logger.With("component", "engine"),
		metrics: opts.Metrics,
		tracer:  tracer,
	}
}

// call is the per-phase working set.
type call struct {
	phase   string
	session string
	st      *session.State
	host    Host
	hooks   *hook.Pipeline
	sched   *job.Scheduler
	logger  *slog.Logger
}

func (e *Engine) begin(ctx context.Context, phase string, st *session.State, host Host) (context.Context, *call, trace.Span) {
	sid := ""
	if id, ok := host.(Identified); ok {
		sid = id.SessionID()
	}
	turn := host.Turn()
	ctx, span := e.tracer.Start(ctx, "lorekeeper."+phase,
		trace.WithAttributes(
			attribute.String("lorekeeper.session", sid),
			attribute.Int("lorekeeper.turn", turn),
		),
	)
	e.metrics.phaseCall(phase)
	return ctx, &call{
		phase:   phase,
		session: sid,
		st:      st,
		host:    host,
		logger:  e.logger.With("phase", phase, "session", sid, "turn", turn),
	}, span
}

// prepare builds the per-call hook pipeline and scheduler. It runs under
// the phase's recover.
func (e *Engine) prepare(c *call) {
	if c.st.Settings == nil {
		c.st.Settings = settings.Defaults()
	}
	c.hooks = e.hooks
	if c.st.Settings.EnableRules {
		c.hooks = e.withCardRules(c)
	}
	c.sched = job.New(job.Config{
		Slot:     &c.st.Pending,
		Cards:    c.host.Cards(),
		Settings: c.st.Settings,
		Hooks:    c.hooks,
		API:      &hostAPI{c: c},
		Session:  c.session,
		Turn:     c.host.Turn(),
		Logger:   c.logger,
		Observer: e.metrics,
	})
}

func (e *Engine) withCardRules(c *call) *hook.Pipeline {
	rules, err := hook.RulesFromCards(c.host.Cards().Cards())
	if err != nil {
		c.logger.Warn("rule cards skipped", "error", err)
		c.host.SetMessage(MessagePrefix + "rule error: " + err.Error())
	}
	if len(rules) == 0 {
		return e.hooks
	}
	p := e.hooks.Clone()
	for _, r := range rules {
		p.Register(r)
	}
	return p
}

// finish recovers a fault raised during the phase, reports it, and tells
// the caller whether to fall back to the original text.
func (e *Engine) finish(c *call, span trace.Span, start time.Time, recovered any) bool {
	defer span.End()
	e.metrics.phaseDuration(c.phase, time.Since(start).Seconds())
	if recovered == nil {
		return false
	}
	err := fmt.Errorf("%s phase: %v", c.phase, recovered)
	e.metrics.phaseFault(c.phase)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Error("phase fault recovered", "error", err)
	c.host.SetMessage(MessagePrefix + fmt.Sprint(recovered))
	return true
}

func (c *call) hookContext(ev hook.Event, title, text string) *hook.Context {
	return &hook.Context{
		Event: ev,
		Payload: hook.Payload{
			Session: c.session,
			Turn:    c.host.Turn(),
			Title:   title,
		},
		Text:   text,
		API:    &hostAPI{c: c},
		Logger: c.logger,
	}
}

func (c *call) run(ctx context.Context, hctx *hook.Context) string {
	c.hooks.Run(ctx, hctx)
	return hctx.Text
}

// Input handles the player's input: lore commands are executed and
// swallowed, anything else feeds trigger detection. It never fails; on a
// fault the normalised input is returned.
func (e *Engine) Input(ctx context.Context, st *session.State, host Host, text string) (out string) {
	start := time.Now()
	in := textutil.Normalize(text)
	ctx, c, span := e.begin(ctx, "input", st, host)
	defer func() {
		if e.finish(c, span, start, recover()) {
			out = in
		}
	}()
	e.prepare(c)

	t := strings.TrimSpace(in)
	if !st.Settings.Enabled {
		if cmd, ok := parseCommand(t); ok && cmd.allowedWhileDisabled() {
			e.execute(ctx, c, cmd)
			return "\n"
		}
		return in
	}

	t = c.run(ctx, c.hookContext(hook.BeforeCommand, "", t))
	if cmd, ok := parseCommand(t); ok {
		e.execute(ctx, c, cmd)
		after := c.hookContext(hook.AfterCommand, cmd.title, t)
		after.Payload.Command = cmd.kind()
		after.Payload.Focus = cmd.focus
		after.Payload.FirstLine = cmd.first
		c.run(ctx, after)
		return "\n"
	}

	if st.Settings.Triggers.Enabled {
		e.detect(c, t)
	}
	return in
}

// Context builds the outgoing context: config card edits are applied,
// triggered entries injected, candidates discovered while idle, and the
// pending job's prompt appended. On a fault the normalised text and the
// inbound stop flag are returned.
func (e *Engine) Context(ctx context.Context, st *session.State, host Host, text string, stop bool) (out string, outStop bool) {
	start := time.Now()
	in := textutil.Normalize(text)
	ctx, c, span := e.begin(ctx, "context", st, host)
	defer func() {
		if e.finish(c, span, start, recover()) {
			out, outStop = in, stop
		}
	}()
	e.prepare(c)

	if readConfigCard(host.Cards(), st.Settings) {
		c.logger.Debug("config card applied")
	}
	if !st.Settings.Enabled {
		return in, stop
	}

	c.run(ctx, c.hookContext(hook.TurnStart, "", ""))
	t := c.run(ctx, c.hookContext(hook.BeforeContext, "", in))

	if st.Settings.Triggers.Enabled {
		t = e.inject(c, t)
	}

	if !st.Pending.Busy() {
		st.Candidates = discoverCandidates(st, host)
		e.metrics.queueLength(len(st.Candidates))
	}

	if p := st.Pending.Job(); p != nil {
		t = job.AppendAnnouncement(t, job.Announcement(p))
		c.logger.Debug("job announced", "mode", string(p.Mode), "title", p.Title)
	}

	t = c.run(ctx, c.hookContext(hook.AfterContext, "", t))
	return t, stop
}

// Output consumes the model's reply: a pending job's result is applied, or
// after the cooldown the next candidate is scheduled for generation. The
// reply text itself is returned unchanged.
func (e *Engine) Output(ctx context.Context, st *session.State, host Host, text string) (out string) {
	start := time.Now()
	in := textutil.Normalize(text)
	ctx, c, span := e.begin(ctx, "output", st, host)
	defer func() {
		if e.finish(c, span, start, recover()) {
			out = in
		}
	}()
	e.prepare(c)

	if !st.Settings.Enabled {
		return in
	}

	if p := st.Pending.Job(); p != nil {
		title, mode := p.Title, p.Mode
		st.LastAppliedTitle = title
		if err := c.sched.ApplyResult(ctx, in); err != nil {
			host.SetMessage(fmt.Sprintf("%sapply failed (%v)", MessagePrefix, err))
		} else if mode == job.Generate {
			host.SetMessage(fmt.Sprintf("%s%q updated.", MessagePrefix, title))
		}
	} else {
		e.autoSchedule(ctx, c)
	}

	c.run(ctx, c.hookContext(hook.TurnEnd, "", ""))
	return in
}
