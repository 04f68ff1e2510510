package hook

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"sync"
	"time"
	"unicode/utf8"
)

// AuditRecord is one JSON Lines entry written by AuditHook.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn"`
	Event     string    `json:"event"`
	Title     string    `json:"title,omitempty"`
	TextLen   int       `json:"text_len"`
}

// AuditHook writes a JSON Lines record for every lifecycle event.
// It runs at every event with the lowest priority (runs last).
type AuditHook struct {
	writer io.Writer
	mu     sync.Mutex
	now    func() time.Time
}

// NewAuditHook creates an audit hook that writes JSON Lines to w.
// In production, w is typically an *os.File; in tests, a *bytes.Buffer.
func NewAuditHook(w io.Writer) *AuditHook {
	return &AuditHook{
		writer: w,
		now:    time.Now,
	}
}

// Compile-time interface check.
var _ Hook = (*AuditHook)(nil)

// Event returns AnyEvent.
func (a *AuditHook) Event() Event { return AnyEvent }

// Priority returns math.MaxInt so the audit record reflects earlier hooks.
func (a *AuditHook) Priority() int { return math.MaxInt }

// Name implements Named.
func (a *AuditHook) Name() string { return "audit" }

// Execute writes one record describing the event.
func (a *AuditHook) Execute(_ context.Context, hctx *Context) error {
	record := AuditRecord{
		Timestamp: a.now(),
		SessionID: hctx.Payload.Session,
		Turn:      hctx.Payload.Turn,
		Event:     string(hctx.Event),
		Title:     hctx.Payload.Title,
		TextLen:   utf8.RuneCountInString(hctx.Text),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return json.NewEncoder(a.writer).Encode(record)
}
