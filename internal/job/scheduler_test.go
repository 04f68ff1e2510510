package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/hook"
	"github.com/flemzord/lorekeeper/internal/hook/hooktest"
	"github.com/flemzord/lorekeeper/internal/settings"
)

type countingObserver struct {
	scheduled map[Mode]int
	applied   map[Mode]int
	failed    int
	fallbacks int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{scheduled: map[Mode]int{}, applied: map[Mode]int{}}
}

func (o *countingObserver) Scheduled(m Mode) { o.scheduled[m]++ }
func (o *countingObserver) Applied(m Mode, err error) {
	o.applied[m]++
	if err != nil {
		o.failed++
	}
}
func (o *countingObserver) CompressFallback() { o.fallbacks++ }

type fixture struct {
	slot  *Slot
	store *card.MemStore
	cfg   *settings.Settings
	hooks *hook.Pipeline
	api   *hooktest.MockAPI
	obs   *countingObserver
}

func newFixture(cards ...card.Card) *fixture {
	return &fixture{
		slot:  &Slot{},
		store: card.NewMemStore(cards...),
		cfg:   settings.Defaults(),
		hooks: hook.NewPipeline(),
		api:   &hooktest.MockAPI{},
		obs:   newCountingObserver(),
	}
}

func (f *fixture) scheduler(turn int) *Scheduler {
	return New(Config{
		Slot:     f.slot,
		Cards:    f.store,
		Settings: f.cfg,
		Hooks:    f.hooks,
		API:      f.api,
		Session:  "s1",
		Turn:     turn,
		Observer: f.obs,
	})
}

func TestScheduleGenerate_SingleFlight(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.scheduler(1)
	ctx := context.Background()

	if !s.ScheduleGenerate(ctx, "Elena", GenerateOptions{Focus: "her past"}) {
		t.Fatal("first schedule should succeed")
	}
	if s.ScheduleGenerate(ctx, "Bram", GenerateOptions{}) {
		t.Error("second schedule should be a no-op")
	}
	if s.ScheduleCompress("Bram", "", "x") {
		t.Error("compress while pending should be a no-op")
	}

	p := f.slot.Job()
	if p == nil || p.Title != "Elena" || p.Mode != Generate {
		t.Fatalf("pending = %+v, want the Elena generate job", p)
	}
	if !strings.Contains(p.Payload.Prompt, "Focus: her past") {
		t.Errorf("prompt lost the first request's focus:\n%s", p.Payload.Prompt)
	}
	if f.obs.scheduled[Generate] != 1 {
		t.Errorf("scheduled = %d, want 1", f.obs.scheduled[Generate])
	}
}

func TestScheduleGenerate_Seeds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cards   []card.Card
		bullets bool
		opts    GenerateOptions
		want    string
	}{
		{"new title with bullets", nil, true, GenerateOptions{}, "- "},
		{"new title without bullets", nil, false, GenerateOptions{}, ""},
		{"existing entry", []card.Card{{Title: "Elena", Entry: "- a sailor"}}, true, GenerateOptions{}, "- a sailor"},
		{"explicit first line", []card.Card{{Title: "Elena", Entry: "- a sailor"}}, true, GenerateOptions{FirstLine: " born at sea "}, "- born at sea"},
		{"first line without bullets", nil, false, GenerateOptions{FirstLine: "born at sea"}, "born at sea"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(tt.cards...)
			f.cfg.UseBullets = tt.bullets
			f.scheduler(1).ScheduleGenerate(context.Background(), "Elena", tt.opts)
			p := f.slot.Job()
			if p.Payload.EntrySeed != tt.want {
				t.Errorf("EntrySeed = %q, want %q", p.Payload.EntrySeed, tt.want)
			}
			if !strings.Contains(p.Payload.Prompt, "entry for Elena in third person") {
				t.Errorf("title not substituted:\n%s", p.Payload.Prompt)
			}
		})
	}
}

func TestScheduleGenerate_ExistingCardRef(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Captain Elena"})
	f.scheduler(1).ScheduleGenerate(context.Background(), `"captain-elena"`, GenerateOptions{})
	if p := f.slot.Job(); p.CardID != "c1" {
		t.Errorf("CardID = %q, want c1", p.CardID)
	}
}

func TestScheduleGenerate_EmptyTitle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if f.scheduler(1).ScheduleGenerate(context.Background(), ` "" `, GenerateOptions{}) {
		t.Error("empty title should not schedule")
	}
	if f.slot.Busy() {
		t.Error("slot should stay empty")
	}
}

func TestScheduleGenerate_BeforeGenerateHookRewritesSeed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.hooks.Register(&hooktest.MockHook{
		EventVal: hook.BeforeGenerate,
		ExecuteFunc: func(_ context.Context, hctx *hook.Context) error {
			hctx.Text += "sworn to " + hctx.Payload.Title
			return nil
		},
	})
	f.scheduler(1).ScheduleGenerate(context.Background(), "Elena", GenerateOptions{})
	p := f.slot.Job()
	if p.Payload.EntrySeed != "- sworn to Elena" {
		t.Errorf("EntrySeed = %q", p.Payload.EntrySeed)
	}
	if !strings.HasSuffix(p.Payload.Prompt, "- sworn to Elena") {
		t.Errorf("prompt does not carry the rewritten seed:\n%s", p.Payload.Prompt)
	}
}

func TestGenerateRoundTrip_CreatesCard(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	s := f.scheduler(3)

	s.ScheduleGenerate(ctx, "Elena", GenerateOptions{Context: "Elena gripped the wheel, her father's ring on her hand."})
	p := f.slot.Job()
	if p.Payload.DesiredType != "character" {
		t.Errorf("DesiredType = %q, want character", p.Payload.DesiredType)
	}

	reply := Announcement(p) + "\nA weathered sailor.\nSeeks her father."
	if err := s.ApplyResult(ctx, reply); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	if f.slot.Busy() {
		t.Error("slot should be empty after apply")
	}

	c := card.Find(f.store, "Elena")
	if c == nil {
		t.Fatal("card not created")
	}
	if c.Type != "character" {
		t.Errorf("Type = %q, want character", c.Type)
	}
	if c.Entry != "- A weathered sailor.\n- Seeks her father." {
		t.Errorf("Entry = %q", c.Entry)
	}
	if c.Description != MemoryHeader {
		t.Errorf("Description = %q, want header", c.Description)
	}
	if c.Keys != "Elena" {
		t.Errorf("Keys = %q, want Elena", c.Keys)
	}
}

func TestApplyResult_UpgradesDefaultType(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Elena", Type: "class", Description: "[T1][#aa11bb] - met the captain"})
	ctx := context.Background()
	s := f.scheduler(2)
	f.slot.set(&Pending{Mode: Generate, Title: "Elena", CardID: "c1", Payload: Payload{DesiredType: "character"}})

	if err := s.ApplyResult(ctx, "A sailor."); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	c := card.ByID(f.store, "c1")
	if c.Type != "character" {
		t.Errorf("Type = %q, want character", c.Type)
	}
	if c.Description != MemoryHeader+"\n[T1][#aa11bb] - met the captain" {
		t.Errorf("Description = %q, existing memory must be kept under the header", c.Description)
	}
}

func TestApplyResult_AfterGenerateHook(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Elena"})
	f.cfg.UseBullets = false
	f.hooks.Register(&hooktest.MockHook{
		EventVal: hook.AfterGenerate,
		ExecuteFunc: func(_ context.Context, hctx *hook.Context) error {
			hctx.Text = strings.ReplaceAll(hctx.Text, "Capt.", "Captain")
			return nil
		},
	})
	f.slot.set(&Pending{Mode: Generate, Title: "Elena", CardID: "c1"})

	if err := f.scheduler(1).ApplyResult(context.Background(), "Capt. of the Gull."); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	if got := card.ByID(f.store, "c1").Entry; got != "Captain of the Gull." {
		t.Errorf("Entry = %q", got)
	}
}

func TestApplyResult_ClipsEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Elena"})
	f.cfg.UseBullets = false
	f.cfg.EntryCharLimit = 50
	f.slot.set(&Pending{Mode: Generate, Title: "Elena", CardID: "c1"})

	if err := f.scheduler(1).ApplyResult(context.Background(), strings.Repeat("word ", 40)); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	entry := card.ByID(f.store, "c1").Entry
	if n := len([]rune(entry)); n > 50 || !strings.HasSuffix(entry, "…") {
		t.Errorf("Entry (%d runes) = %q, want clipped to 50 with ellipsis", n, entry)
	}
}

func TestApplyResult_ChainsCompress(t *testing.T) {
	t.Parallel()

	long := longMemory(10)
	tests := []struct {
		name     string
		redo     bool
		auto     bool
		wantMode Mode
	}{
		{"chains", false, true, Compress},
		{"redo suppresses", true, true, ""},
		{"auto update off", false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: long})
			f.cfg.MemoryCharLimit = 100
			f.cfg.MemoryAutoUpdate = tt.auto
			f.slot.set(&Pending{Mode: Generate, Title: "Elena", CardID: "c1", Payload: Payload{Redo: tt.redo}})

			if err := f.scheduler(5).ApplyResult(context.Background(), "A sailor."); err != nil {
				t.Fatalf("ApplyResult error: %v", err)
			}
			var got Mode
			if p := f.slot.Job(); p != nil {
				got = p.Mode
				if p.CardID != "c1" || !strings.Contains(p.Payload.Prompt, "[#") {
					t.Errorf("chained job = %+v", p)
				}
			}
			if got != tt.wantMode {
				t.Errorf("pending mode = %q, want %q", got, tt.wantMode)
			}
		})
	}
}

func TestCompressScenario_KeepOne(t *testing.T) {
	t.Parallel()

	memory := "[T1][#aa11bb] - met the captain\n[T2][#cc22dd] - learned her name"
	f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: memory})
	s := f.scheduler(3)

	if !s.ScheduleCompress("Elena", "c1", memory) {
		t.Fatal("compress should schedule")
	}
	if err := s.ApplyResult(context.Background(), `{"keep":["#aa11bb"]}`); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	if got := card.ByID(f.store, "c1").Description; got != "[T1][#aa11bb] - met the captain" {
		t.Errorf("Description = %q", got)
	}
	if f.obs.fallbacks != 0 {
		t.Errorf("fallbacks = %d, want 0", f.obs.fallbacks)
	}
}

func TestCompress_UpperCaseLineIDs(t *testing.T) {
	t.Parallel()

	memory := "[T1][#AA11BB] - met the captain\n[T2][#cc22dd] - learned her name"
	f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: memory})
	s := f.scheduler(3)

	s.ScheduleCompress("Elena", "c1", memory)
	if err := s.ApplyResult(context.Background(), `{"keep":["#aa11bb"]}`); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	if got := card.ByID(f.store, "c1").Description; got != "[T1][#AA11BB] - met the captain" {
		t.Errorf("Description = %q", got)
	}
	if f.obs.fallbacks != 0 {
		t.Errorf("fallbacks = %d, want 0", f.obs.fallbacks)
	}
}

func TestCompress_KeepsOrderHeaderAndLateLines(t *testing.T) {
	t.Parallel()

	memory := MemoryHeader + "\n[T1][#aa11bb] - one\n[T2][#cc22dd] - two\n[T3][#ee33ff] - three"
	f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: memory})
	s := f.scheduler(4)
	s.ScheduleCompress("Elena", "c1", memory)

	c := card.ByID(f.store, "c1")
	c.Description += "\n[T4][#123456] - late"

	reply := "Sure.\n```json\n{\"keep\": [\"ee33ff\", \"#AA11BB\", \"#zzzzzz\", 7]}\n```"
	if err := s.ApplyResult(context.Background(), reply); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	want := MemoryHeader + "\n[T1][#aa11bb] - one\n[T3][#ee33ff] - three\n[T4][#123456] - late"
	if c.Description != want {
		t.Errorf("Description = %q, want %q", c.Description, want)
	}
}

func TestCompress_FallbackToRecentLines(t *testing.T) {
	t.Parallel()

	memory := longMemory(25)
	f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: memory})
	f.cfg.MemoryCharLimit = 5000
	s := f.scheduler(30)
	s.ScheduleCompress("Elena", "c1", memory)

	for _, reply := range []string{"I cannot comply."} {
		if err := s.ApplyResult(context.Background(), reply); err != nil {
			t.Fatalf("ApplyResult error: %v", err)
		}
	}
	lines := strings.Split(card.ByID(f.store, "c1").Description, "\n")
	if len(lines) != 20 {
		t.Fatalf("kept %d lines, want 20", len(lines))
	}
	if !strings.Contains(lines[0], "fact 6") || !strings.Contains(lines[19], "fact 25") {
		t.Errorf("fallback did not keep the most recent lines: first=%q last=%q", lines[0], lines[19])
	}
	if f.obs.fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", f.obs.fallbacks)
	}
}

func TestCompress_Hooks(t *testing.T) {
	t.Parallel()

	memory := "[T1][#aa11bb] - one\n[T2][#cc22dd] - two"
	f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: memory})

	var offered []string
	f.hooks.Register(&hooktest.MockHook{
		EventVal: hook.BeforeCompress,
		ExecuteFunc: func(_ context.Context, hctx *hook.Context) error {
			offered = hctx.Payload.Lines
			return nil
		},
	})
	f.hooks.Register(&hooktest.MockHook{
		EventVal: hook.AfterCompress,
		ExecuteFunc: func(_ context.Context, hctx *hook.Context) error {
			hctx.Text += "\n[T9][#abcdef] - pinned"
			return nil
		},
	})

	s := f.scheduler(9)
	s.ScheduleCompress("Elena", "c1", memory)
	if err := s.ApplyResult(context.Background(), `{"keep":["cc22dd"]}`); err != nil {
		t.Fatalf("ApplyResult error: %v", err)
	}
	if len(offered) != 2 {
		t.Errorf("beforeCompress saw %d lines, want 2", len(offered))
	}
	if got := card.ByID(f.store, "c1").Description; got != "[T2][#cc22dd] - two\n[T9][#abcdef] - pinned" {
		t.Errorf("Description = %q", got)
	}
}

func TestApplyResult_ClearsSlotOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pending *Pending
		reply   string
		wantErr error
	}{
		{"empty generation", &Pending{Mode: Generate, Title: "Elena"}, "   ", ErrEmptyResult},
		{"missing compress card", &Pending{Mode: Compress, Title: "Ghost", CardID: "nope"}, "{}", nil},
		{"unknown mode", &Pending{Mode: "summon", Title: "Elena"}, "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.slot.set(tt.pending)
			err := f.scheduler(1).ApplyResult(context.Background(), tt.reply)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if f.slot.Busy() {
				t.Error("slot must be cleared after a failed apply")
			}
			if f.obs.failed != 1 {
				t.Errorf("failed = %d, want 1", f.obs.failed)
			}
		})
	}
}

func TestApplyResult_RecoversPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Elena"})
	f.slot.set(&Pending{Mode: Generate, Title: "Elena", CardID: "c1"})
	s := f.scheduler(1)
	s.cards = panicStore{f.store}

	err := s.ApplyResult(context.Background(), "A sailor.")
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("err = %v, want recovered panic", err)
	}
	if f.slot.Busy() {
		t.Error("slot must be cleared after a panic")
	}
}

type panicStore struct{ *card.MemStore }

func (panicStore) Cards() []*card.Card { panic("store unavailable") }

func TestApplyResult_NoPending(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.scheduler(1).ApplyResult(context.Background(), "text"); err != nil {
		t.Errorf("ApplyResult with no job = %v, want nil", err)
	}
}

func TestAddMemory(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Elena"})
	s := f.scheduler(1)

	if !s.AddMemory("elena", "met the captain") {
		t.Fatal("AddMemory should add a line")
	}
	if s.AddMemory("Elena", "  met the captain ") {
		t.Error("duplicate line should be ignored")
	}
	if s.AddMemory("Bram", "anything") {
		t.Error("unknown card should be ignored")
	}
	if s.AddMemory("Elena", "   ") {
		t.Error("blank text should be ignored")
	}
	if got := card.ByID(f.store, "c1").Description; got != "[T1][#ba0c3e] - met the captain" {
		t.Errorf("Description = %q", got)
	}
}

func TestAddMemory_SchedulesCompression(t *testing.T) {
	t.Parallel()

	f := newFixture(card.Card{ID: "c1", Title: "Elena", Description: longMemory(6)})
	f.cfg.MemoryCharLimit = 100
	s := f.scheduler(7)

	s.AddMemory("Elena", "a new fact")
	p := f.slot.Job()
	if p == nil || p.Mode != Compress {
		t.Fatalf("pending = %+v, want compress", p)
	}
	if n := len([]rune(card.ByID(f.store, "c1").Description)); n > 200 {
		t.Errorf("memory is %d runes, want clipped to 200", n)
	}
	if n := len([]rune(p.Payload.SourceMemory)); n > 200 {
		t.Errorf("source memory is %d runes, want at most 200", n)
	}
}

func TestAnnouncement(t *testing.T) {
	t.Parallel()

	p := &Pending{Payload: Payload{Prompt: strings.Repeat("x", 4000)}}
	a := Announcement(p)
	if !strings.HasPrefix(a, BeginMarker+"\n") || !strings.HasSuffix(a, "\n"+EndMarker) {
		t.Errorf("markers missing: %q...", a[:40])
	}
	body := strings.TrimSuffix(strings.TrimPrefix(a, BeginMarker+"\n"), "\n"+EndMarker)
	if n := len([]rune(body)); n != 3200 {
		t.Errorf("prompt is %d runes, want 3200", n)
	}

	if got := AppendAnnouncement("story", "msg"); got != "story\n\nmsg\n\n" {
		t.Errorf("AppendAnnouncement = %q", got)
	}
}

func TestParseKeepIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", `{"keep":["#aa11bb","cc22dd"]}`, "aa11bb cc22dd"},
		{"prose before", `Here you go: {"keep":["##AA11BB"]}`, "aa11bb"},
		{"brace in prose", `Use {this} format: {"keep":["aa11bb"]}`, "aa11bb"},
		{"invalid ids dropped", `{"keep":["aa11b","aa11bbb","xyz123",null,"cc22dd","cc22dd"]}`, "cc22dd"},
		{"no json", "none of these matter", ""},
		{"malformed", `{"keep": [`, ""},
		{"missing keep", `{"drop":["aa11bb"]}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := strings.Join(ParseKeepIDs(tt.reply), " "); got != tt.want {
				t.Errorf("ParseKeepIDs = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSlot_JSON(t *testing.T) {
	t.Parallel()

	type holder struct {
		Pending Slot `json:"pending"`
	}

	var empty holder
	data, err := json.Marshal(empty)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"pending":null}` {
		t.Errorf("empty slot = %s", data)
	}

	var h holder
	h.Pending.set(&Pending{Mode: Compress, Title: "Elena", Payload: Payload{SourceMemory: "m"}})
	data, err = json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	var back holder
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if p := back.Pending.Job(); p == nil || p.Mode != Compress || p.Payload.SourceMemory != "m" {
		t.Errorf("decoded = %+v", p)
	}
}

func longMemory(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = card.MemoryLine(i+1, fmt.Sprintf("fact %d about the voyage", i+1))
	}
	return strings.Join(lines, "\n")
}
