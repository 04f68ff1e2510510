// Package job owns the single pending generate or compress request that
// bridges a context phase, where its prompt is emitted, and the following
// output phase, where the model's reply is consumed.
package job

import (
	"encoding/json"
	"strings"

	"github.com/flemzord/lorekeeper/internal/textutil"
)

// Mode is the kind of pending job.
type Mode string

const (
	Generate Mode = "generate"
	Compress Mode = "compress"
)

const (
	// BeginMarker and EndMarker wrap the prompt appended to the context.
	BeginMarker = ">>> Lorekeeper: system prompt >>>"
	EndMarker   = "<<< end Lorekeeper <<<"

	// MemoryHeader opens the memory section of a card description.
	MemoryHeader = "Lore Memories:"

	announcementLimit = 3200
	fallbackLines     = 20
)

// Payload carries what the result handler needs.
type Payload struct {
	Prompt       string `json:"prompt"`
	EntrySeed    string `json:"entrySeed,omitempty"`
	DesiredType  string `json:"desiredType,omitempty"`
	Redo         bool   `json:"redo,omitempty"`
	SourceMemory string `json:"sourceMemory,omitempty"`
}

// Pending is the outstanding job. CardID is empty when the card is to be
// created on apply.
type Pending struct {
	Mode    Mode    `json:"mode"`
	Title   string  `json:"title"`
	CardID  string  `json:"cardId,omitempty"`
	Payload Payload `json:"payload"`
}

// Slot holds at most one pending job. The zero value is empty.
type Slot struct {
	job *Pending
}

// Job returns the pending job, or nil.
func (s *Slot) Job() *Pending { return s.job }

// Busy reports whether a job is pending.
func (s *Slot) Busy() bool { return s.job != nil }

// Take removes and returns the pending job.
func (s *Slot) Take() *Pending {
	p := s.job
	s.job = nil
	return p
}

// set stores p unless a job is already pending. It reports whether p was
// stored.
func (s *Slot) set(p *Pending) bool {
	if s.job != nil {
		return false
	}
	s.job = p
	return true
}

// MarshalJSON encodes the slot as the job or null.
func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.job)
}

// UnmarshalJSON decodes a job or null.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var p *Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	s.job = p
	return nil
}

// Announcement wraps the job's prompt in the begin and end markers.
func Announcement(p *Pending) string {
	return BeginMarker + "\n" + textutil.Clip(p.Payload.Prompt, announcementLimit) + "\n" + EndMarker
}

// AppendAnnouncement appends msg to the context text. It never splices, so
// any header the host prepends stays intact.
func AppendAnnouncement(contextText, msg string) string {
	return contextText + "\n\n" + msg + "\n\n"
}

// afterEndMarker returns the text following an echoed end marker, or
// false when the reply does not contain one.
func afterEndMarker(raw string) (string, bool) {
	i := strings.LastIndex(raw, EndMarker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(raw[i+len(EndMarker):])
	return rest, rest != ""
}
