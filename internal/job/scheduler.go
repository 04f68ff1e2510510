package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/discovery"
	"github.com/flemzord/lorekeeper/internal/hook"
	"github.com/flemzord/lorekeeper/internal/settings"
	"github.com/flemzord/lorekeeper/internal/textutil"
)

// ErrEmptyResult indicates the model returned nothing usable for a
// generate job.
var ErrEmptyResult = errors.New("job: empty generation result")

// Observer receives job lifecycle events, typically for metrics.
type Observer interface {
	Scheduled(mode Mode)
	Applied(mode Mode, err error)
	CompressFallback()
}

type nopObserver struct{}

func (nopObserver) Scheduled(Mode)      {}
func (nopObserver) Applied(Mode, error) {}
func (nopObserver) CompressFallback()   {}

// Config wires a Scheduler to one session for one phase call.
type Config struct {
	Slot     *Slot
	Cards    card.Store
	Settings *settings.Settings
	Hooks    *hook.Pipeline
	API      hook.API
	Session  string
	Turn     int
	Logger   *slog.Logger
	Observer Observer
}

// Scheduler schedules and applies jobs. It is built per phase call and is
// not safe for concurrent use.
type Scheduler struct {
	slot     *Slot
	cards    card.Store
	cfg      *settings.Settings
	hooks    *hook.Pipeline
	api      hook.API
	session  string
	turn     int
	logger   *slog.Logger
	observer Observer
}

// New creates a Scheduler. Slot, Cards, and Settings are required.
func New(c Config) *Scheduler {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := c.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Scheduler{
		slot:     c.Slot,
		cards:    c.Cards,
		cfg:      c.Settings,
		hooks:    c.Hooks,
		api:      c.API,
		session:  c.Session,
		turn:     c.Turn,
		logger:   logger.With("component", "job"),
		observer: obs,
	}
}

// GenerateOptions refine a generate request.
type GenerateOptions struct {
	Focus     string
	FirstLine string
	Redo      bool
	// Context is extra narrative text used to classify a new title.
	Context string
}

// ScheduleGenerate sets a generate job for title. It is a silent no-op
// returning false while another job is pending.
func (s *Scheduler) ScheduleGenerate(ctx context.Context, title string, opts GenerateOptions) bool {
	if s.slot.Busy() {
		s.logger.Debug("generate suppressed: job pending", "title", title)
		return false
	}
	title = textutil.SanitizeTitle(title)
	if title == "" {
		return false
	}

	existing := card.Find(s.cards, title)
	var seed string
	switch {
	case existing != nil:
		seed = existing.Entry
	case s.cfg.UseBullets:
		seed = "- "
	}
	if first := strings.TrimSpace(opts.FirstLine); first != "" {
		seed = first
		if s.cfg.UseBullets {
			seed = "- " + first
		}
	}

	hctx := s.hookContext(hook.BeforeGenerate, title, seed)
	hctx.Payload.Focus = opts.Focus
	hctx.Payload.FirstLine = opts.FirstLine
	s.hooks.Run(ctx, hctx)
	seed = hctx.Text

	prompt := strings.NewReplacer(
		"%{title}", title,
		"%{focus}", opts.Focus,
		"%{entry}", seed,
	).Replace(s.cfg.GenerationPrompt)

	class := discovery.Classify(title, strings.TrimSpace(seed+"\n"+opts.Context), s.cfg)

	p := &Pending{
		Mode:  Generate,
		Title: title,
		Payload: Payload{
			Prompt:      prompt,
			EntrySeed:   seed,
			DesiredType: class.Type,
			Redo:        opts.Redo,
		},
	}
	if existing != nil {
		p.CardID = existing.ID
	}
	s.slot.set(p)
	s.observer.Scheduled(Generate)
	s.logger.Info("generate scheduled",
		"title", title,
		"existing", existing != nil,
		"desired_type", class.Type,
		"score", class.Score,
		"redo", opts.Redo,
	)
	return true
}

// ScheduleCompress sets a compress job over memory. It is a silent no-op
// returning false while another job is pending.
func (s *Scheduler) ScheduleCompress(title, cardID, memory string) bool {
	if s.slot.Busy() {
		s.logger.Debug("compress suppressed: job pending", "title", title)
		return false
	}
	safe := textutil.Clip(memory, 2*s.cfg.MemoryCharLimit)
	prompt := strings.ReplaceAll(s.cfg.CompressionPrompt, "%{memory}", safe)
	s.slot.set(&Pending{
		Mode:   Compress,
		Title:  title,
		CardID: cardID,
		Payload: Payload{
			Prompt:       prompt,
			SourceMemory: safe,
		},
	})
	s.observer.Scheduled(Compress)
	s.logger.Info("compress scheduled", "title", title, "memory_len", utf8.RuneCountInString(safe))
	return true
}

// ApplyResult consumes the model's reply into the pending job's card. The
// job leaves the slot before anything else happens, so it is cleared even
// when applying fails or panics, and a compress chained by a generate can
// take its place. It returns nil when no job is pending.
func (s *Scheduler) ApplyResult(ctx context.Context, raw string) (err error) {
	p := s.slot.Take()
	if p == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job: apply %s %q: panic: %v", p.Mode, p.Title, r)
		}
		s.observer.Applied(p.Mode, err)
		if err != nil {
			s.logger.Warn("apply failed", "mode", string(p.Mode), "title", p.Title, "error", err)
		}
	}()

	segment := raw
	if rest, ok := afterEndMarker(raw); ok {
		segment = rest
	}

	switch p.Mode {
	case Generate:
		return s.applyGenerate(ctx, p, segment)
	case Compress:
		return s.applyCompress(ctx, p, segment)
	default:
		return fmt.Errorf("job: unknown mode %q", p.Mode)
	}
}

func (s *Scheduler) applyGenerate(ctx context.Context, p *Pending, segment string) error {
	clean := textutil.Clip(strings.TrimSpace(textutil.Normalize(segment)), s.cfg.EntryCharLimit)
	if clean == "" {
		return fmt.Errorf("%w for %q", ErrEmptyResult, p.Title)
	}

	c, err := s.resolve(p)
	if err != nil {
		return err
	}

	hctx := s.hookContext(hook.AfterGenerate, c.Title, clean)
	s.hooks.Run(ctx, hctx)
	if t := strings.TrimSpace(hctx.Text); t != "" {
		clean = t
	}

	c.Entry = textutil.FormatEntry(clean, s.cfg.UseBullets)
	c.Description = ensureHeader(c.Description)
	s.logger.Info("entry applied", "title", c.Title, "entry_len", utf8.RuneCountInString(c.Entry))

	if s.cfg.MemoryAutoUpdate && !p.Payload.Redo && utf8.RuneCountInString(c.Description) > s.cfg.MemoryCharLimit {
		s.ScheduleCompress(c.Title, c.ID, c.Description)
	}
	return nil
}

func (s *Scheduler) applyCompress(ctx context.Context, p *Pending, segment string) error {
	c, err := s.resolve(p)
	if err != nil {
		return err
	}

	header, lines := splitMemory(p.Payload.SourceMemory)

	before := s.hookContext(hook.BeforeCompress, c.Title, strings.Join(lines, "\n"))
	before.Payload.Lines = append([]string(nil), lines...)
	s.hooks.Run(ctx, before)

	keep := selectLines(lines, ParseKeepIDs(segment))
	if len(keep) == 0 {
		keep = lines[max(0, len(lines)-fallbackLines):]
		s.observer.CompressFallback()
		s.logger.Info("compress fell back to recent lines", "title", c.Title, "kept", len(keep))
	}

	// Lines stamped after the job was scheduled were never offered to the
	// model; keep them.
	_, current := splitMemory(c.Description)
	offered := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		offered[l] = struct{}{}
	}
	for _, l := range current {
		if _, ok := offered[l]; !ok {
			keep = append(keep, l)
		}
	}

	final := keep
	if header {
		final = append([]string{MemoryHeader}, keep...)
	}

	after := s.hookContext(hook.AfterCompress, c.Title, strings.Join(final, "\n"))
	after.Payload.Lines = append([]string(nil), final...)
	s.hooks.Run(ctx, after)

	c.Description = after.Text
	s.logger.Info("memory compressed", "title", c.Title, "offered", len(lines), "kept", len(keep))
	return nil
}

// resolve finds the job's card by identity, then by title, creating it for
// generate jobs. A default-typed card is upgraded to the desired type.
func (s *Scheduler) resolve(p *Pending) (*card.Card, error) {
	c := card.ByID(s.cards, p.CardID)
	if c == nil {
		c = card.Find(s.cards, p.Title)
	}
	if c == nil {
		if p.Mode != Generate {
			return nil, fmt.Errorf("job: card %q not found", p.Title)
		}
		typ := p.Payload.DesiredType
		if typ == "" {
			typ = s.cfg.DefaultType
		}
		created, err := card.Create(s.cards, p.Title, typ)
		if err != nil {
			return nil, fmt.Errorf("job: create card: %w", err)
		}
		s.logger.Info("card created", "title", created.Title, "type", created.Type)
		c = created
	}
	if d := p.Payload.DesiredType; d != "" && strings.EqualFold(c.Type, s.cfg.DefaultType) {
		c.Type = d
	}
	return c, nil
}

// AddMemory stamps text onto the card titled title. Lines already present
// by id are ignored. It schedules compression when the memory grows past
// the limit and reports whether a line was added.
func (s *Scheduler) AddMemory(title, text string) bool {
	c := card.Find(s.cards, title)
	if c == nil {
		return false
	}
	text = strings.TrimSpace(textutil.Normalize(text))
	if text == "" {
		return false
	}
	line := card.MemoryLine(s.turn, text)
	if strings.Contains(c.Description, "[#"+textutil.Hash6(text)+"]") {
		return false
	}

	desc := line
	if c.Description != "" {
		desc = c.Description + "\n" + line
	}
	c.Description = textutil.Clip(desc, 2*s.cfg.MemoryCharLimit)

	if s.cfg.MemoryAutoUpdate && utf8.RuneCountInString(c.Description) > s.cfg.MemoryCharLimit {
		s.ScheduleCompress(c.Title, c.ID, c.Description)
	}
	return true
}

func (s *Scheduler) hookContext(ev hook.Event, title, text string) *hook.Context {
	return &hook.Context{
		Event: ev,
		Payload: hook.Payload{
			Session: s.session,
			Turn:    s.turn,
			Title:   title,
		},
		Text:   text,
		API:    s.api,
		Logger: s.logger,
	}
}

var headerPattern = regexp.MustCompile(`(?im)^\s*` + regexp.QuoteMeta(MemoryHeader) + `\s*$`)

// ensureHeader prepends the memory header unless one is present. Existing
// lines are kept.
func ensureHeader(desc string) string {
	if headerPattern.MatchString(desc) {
		return desc
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return MemoryHeader
	}
	return MemoryHeader + "\n" + desc
}

// splitMemory separates the header from the non-empty memory lines.
func splitMemory(memory string) (header bool, lines []string) {
	for _, l := range strings.Split(memory, "\n") {
		switch {
		case strings.TrimSpace(l) == "":
		case headerPattern.MatchString(l):
			header = true
		default:
			lines = append(lines, l)
		}
	}
	return header, lines
}

func selectLines(lines, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var keep []string
	for _, l := range lines {
		if _, ok := want[card.LineID(l)]; ok {
			keep = append(keep, l)
		}
	}
	return keep
}
