package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/session"
	"github.com/flemzord/lorekeeper/pkg/message"
)

// validSessionID restricts ids to safe, log-friendly characters.
var validSessionID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// cardSearcher is implemented by stores with a full-text card index.
type cardSearcher interface {
	SearchCards(ctx context.Context, id, query string, limit int) ([]card.Card, error)
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validSessionID.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return "", false
	}
	return id, true
}

// handleListSessions returns all stored sessions, most recent first.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sums, err := g.store.List(r.Context())
		if err != nil {
			g.logger.Error("list sessions failed", "error", err)
			writeError(w, http.StatusInternalServerError, "list sessions failed")
			return
		}
		out := message.SessionList{Sessions: make([]message.Session, 0, len(sums))}
		for _, s := range sums {
			out.Sessions = append(out.Sessions, message.Session{
				ID:        s.ID,
				Turn:      s.Turn,
				Cards:     s.Cards,
				UpdatedAt: s.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleCreateSession starts an empty story under a fresh id.
func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := session.NewHost(g.newID(), nil).Snapshot(session.New())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := g.store.Save(r.Context(), snap); err != nil {
			g.logger.Error("create session failed", "error", err)
			writeError(w, http.StatusInternalServerError, "create session failed")
			return
		}
		g.logger.Info("session created", "session", snap.ID)
		writeJSON(w, http.StatusCreated, message.Session{ID: snap.ID, UpdatedAt: snap.UpdatedAt})
	}
}

// handleDeleteSession deletes a session and everything stored for it.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		g.lanes.acquire(id)
		defer g.lanes.release(id)

		if err := g.store.Delete(r.Context(), id); err != nil {
			g.logger.Error("delete session failed", "session", id, "error", err)
			writeError(w, http.StatusInternalServerError, "delete session failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCards lists the cards of a session, or searches them when ?q= is
// given.
func (g *Gateway) handleCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		q := strings.TrimSpace(r.URL.Query().Get("q"))

		var (
			cards []card.Card
			err   error
		)
		if q == "" {
			var snap *session.Snapshot
			snap, err = g.store.Load(r.Context(), id)
			if snap != nil {
				cards = snap.Cards
			}
		} else {
			searcher, ok := g.store.(cardSearcher)
			if !ok {
				writeError(w, http.StatusNotImplemented, "card search not supported by this store")
				return
			}
			cards, err = searcher.SearchCards(r.Context(), id, q, g.searchLimit(r))
		}
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			g.logger.Error("list cards failed", "session", id, "error", err)
			writeError(w, http.StatusInternalServerError, "list cards failed")
			return
		}

		out := message.CardList{Cards: make([]message.Card, 0, len(cards)), Query: q}
		for _, c := range cards {
			out.Cards = append(out.Cards, message.Card(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) searchLimit(r *http.Request) int {
	limit := g.config.SearchLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < limit {
		limit = n
	}
	return limit
}

// handlePhase runs one lifecycle phase against a stored session.
func (g *Gateway) handlePhase() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}
		phase := message.Phase(chi.URLParam(r, "phase"))
		if !phase.Valid() {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown phase %q", phase))
			return
		}

		var req message.PhaseRequest
		body := http.MaxBytesReader(w, r.Body, message.MaxTextBytes+4096)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		resp, err := g.runPhase(ctx, id, phase, req)
		if err != nil {
			g.logger.Error("phase failed", "session", id, "phase", string(phase), "error", err)
			writeError(w, http.StatusInternalServerError, "phase failed")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// runPhase loads the session (creating it on first use), dispatches the
// phase, and saves the result. The engine never fails a call, so the state
// is persisted after every phase.
func (g *Gateway) runPhase(ctx context.Context, id string, phase message.Phase, req message.PhaseRequest) (message.PhaseResponse, error) {
	g.lanes.acquire(id)
	defer g.lanes.release(id)

	snap, err := g.store.Load(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		snap = &session.Snapshot{ID: id}
	case err != nil:
		return message.PhaseResponse{}, err
	}

	st, err := session.Load(snap.State)
	if err != nil {
		g.logger.Warn("discarding unreadable session state", "session", id, "error", err)
		st = session.New()
	}
	host := session.NewHost(id, snap)

	var resp message.PhaseResponse
	switch phase {
	case message.PhaseInput:
		resp.Text = g.engine.Input(ctx, st, host, req.Text)
		if strings.TrimSpace(resp.Text) != "" {
			host.Record(resp.Text)
		}
	case message.PhaseContext:
		resp.Text, resp.Stop = g.engine.Context(ctx, st, host, req.Text, req.Stop)
	case message.PhaseOutput:
		resp.Text = g.engine.Output(ctx, st, host, req.Text)
		host.Advance(resp.Text)
	}

	next, err := host.Snapshot(st)
	if err != nil {
		return message.PhaseResponse{}, err
	}
	next.CreatedAt = snap.CreatedAt
	if err := g.store.Save(ctx, next); err != nil {
		return message.PhaseResponse{}, err
	}

	resp.Messages = host.Messages()
	resp.Turn = host.Turn()
	g.logger.Debug("phase complete", "session", id, "phase", string(phase), "turn", resp.Turn)
	return resp, nil
}
