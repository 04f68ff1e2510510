// Package message defines the JSON contract between story hosts and the
// lorekeeper gateway: phase requests and responses, card views, and session
// listings.
package message

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Phase names one of the three lifecycle calls.
type Phase string

// Lifecycle phases, in turn order.
const (
	PhaseInput   Phase = "input"
	PhaseContext Phase = "context"
	PhaseOutput  Phase = "output"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInput, PhaseContext, PhaseOutput:
		return true
	}
	return false
}

// MaxTextBytes bounds the text carried by one phase request.
const MaxTextBytes = 256 << 10

// PhaseRequest is the body of POST /api/sessions/{id}/{phase}.
type PhaseRequest struct {
	Text string `json:"text"`
	// Stop is the host's stop flag. Only the context phase reads it.
	Stop bool `json:"stop,omitempty"`
}

// Validate checks the request before it reaches the engine.
func (r PhaseRequest) Validate() error {
	if len(r.Text) > MaxTextBytes {
		return fmt.Errorf("message: text exceeds %d bytes", MaxTextBytes)
	}
	if !utf8.ValidString(r.Text) {
		return errors.New("message: text is not valid UTF-8")
	}
	return nil
}

// PhaseResponse is the result of one phase call.
type PhaseResponse struct {
	Text string `json:"text"`
	Stop bool   `json:"stop,omitempty"`
	// Messages are the status notices set during the call, oldest first.
	Messages []string `json:"messages,omitempty"`
	// Turn is the session turn after the call.
	Turn int `json:"turn"`
}

// Message returns the last status notice, or "".
func (r PhaseResponse) Message() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1]
}

// Card is the public view of one annotation card.
type Card struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type,omitempty"`
	Keys        string `json:"keys,omitempty"`
	Entry       string `json:"entry,omitempty"`
	Description string `json:"description,omitempty"`
}

// CardList is the body of GET /api/sessions/{id}/cards.
type CardList struct {
	Cards []Card `json:"cards"`
	// Query echoes the search terms when the list is a search result.
	Query string `json:"query,omitempty"`
}

// Session is a listing entry for one stored story.
type Session struct {
	ID        string    `json:"id"`
	Turn      int       `json:"turn"`
	Cards     int       `json:"cards"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionList is the body of GET /api/sessions.
type SessionList struct {
	Sessions []Session `json:"sessions"`
}

// Error is the body of every non-2xx API response.
type Error struct {
	Error string `json:"error"`
}
