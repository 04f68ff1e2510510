package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/session"
)

// ErrSessionNotFound is returned by Load for an unknown session id.
var ErrSessionNotFound = session.ErrNotFound

// timeLayout is fixed width so stored stamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// Store is a SQLite-backed session.Store. It is safe for concurrent use;
// writes are serialised by the single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time interface guard.
var _ session.Store = (*Store)(nil)

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database and its full-text index are reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM cards_fts").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: FTS5 not available: %w", err)
	}
	return nil
}

// Load returns the snapshot of session id.
func (s *Store) Load(ctx context.Context, id string) (*session.Snapshot, error) {
	snap := &session.Snapshot{ID: id}
	var state, created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, turn, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&state, &snap.Turn, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load session %s: %w", id, err)
	}
	if state != "" {
		snap.State = []byte(state)
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	snap.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	if snap.Cards, err = s.cards(ctx, id); err != nil {
		return nil, err
	}
	if snap.History, err = s.history(ctx, id); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) cards(ctx context.Context, id string) ([]card.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, type, keys, entry, description
		FROM cards
		WHERE session_id = ?
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load cards: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCards(rows)
}

func scanCards(rows *sql.Rows) ([]card.Card, error) {
	var out []card.Card
	for rows.Next() {
		var c card.Card
		if err := rows.Scan(&c.ID, &c.Title, &c.Type, &c.Keys, &c.Entry, &c.Description); err != nil {
			return nil, fmt.Errorf("sqlite: scan card: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: card rows: %w", err)
	}
	return out, nil
}

func (s *Store) history(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM history WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}
		out = append(out, body)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}
	return out, nil
}

// Save writes snap in one transaction. Cards are replaced; history is
// append-only, so only entries beyond the stored length are inserted.
func (s *Store) Save(ctx context.Context, snap *session.Snapshot) (err error) {
	if snap.ID == "" {
		return errors.New("sqlite: save: empty session id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	stamp := formatTime(now)
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, state, turn, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			turn = excluded.turn,
			updated_at = excluded.updated_at`,
		snap.ID, string(snap.State), snap.Turn, stamp, stamp,
	); err != nil {
		return fmt.Errorf("sqlite: save session %s: %w", snap.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cards WHERE session_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("sqlite: clear cards: %w", err)
	}
	for i, c := range snap.Cards {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO cards (session_id, seq, id, title, type, keys, entry, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, c.ID, c.Title, c.Type, c.Keys, c.Entry, c.Description,
		); err != nil {
			return fmt.Errorf("sqlite: save card %q: %w", c.Title, err)
		}
	}

	var stored int
	if err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM history WHERE session_id = ?`, snap.ID,
	).Scan(&stored); err != nil {
		return fmt.Errorf("sqlite: count history: %w", err)
	}
	if stored > len(snap.History) {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM history WHERE session_id = ? AND seq >= ?`, snap.ID, len(snap.History),
		); err != nil {
			return fmt.Errorf("sqlite: truncate history: %w", err)
		}
		stored = len(snap.History)
	}
	for i := stored; i < len(snap.History); i++ {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO history (session_id, seq, body) VALUES (?, ?, ?)`,
			snap.ID, i, snap.History[i],
		); err != nil {
			return fmt.Errorf("sqlite: append history: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	snap.UpdatedAt = now
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	return nil
}

// Delete removes session id and everything stored for it. Deleting an
// unknown session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := deleteSession(ctx, tx, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func deleteSession(ctx context.Context, tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		`DELETE FROM cards WHERE session_id = ?`,
		`DELETE FROM history WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("sqlite: delete session %s: %w", id, err)
		}
	}
	return nil
}

// List returns every session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]session.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.turn, s.updated_at,
		       (SELECT count(*) FROM cards c WHERE c.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.Summary
	for rows.Next() {
		var (
			sum     session.Summary
			updated string
		)
		if err := rows.Scan(&sum.ID, &sum.Turn, &updated, &sum.Cards); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: session rows: %w", err)
	}
	return out, nil
}

// PruneIdle deletes sessions whose last save is older than maxIdle.
func (s *Store) PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := formatTime(s.now().Add(-maxIdle))

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: find idle sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("sqlite: scan idle session: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sqlite: idle rows: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	for _, id := range ids {
		if err := deleteSession(ctx, tx, id); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return len(ids), nil
}

// SearchCards runs a full-text query over the cards of session id and
// returns matches by relevance.
func (s *Store) SearchCards(ctx context.Context, id, query string, limit int) ([]card.Card, error) {
	query = ftsQuery(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.type, c.keys, c.entry, c.description
		FROM cards_fts
		JOIN cards c ON c.rowid = cards_fts.rowid
		WHERE cards_fts MATCH ? AND c.session_id = ?
		ORDER BY rank
		LIMIT ?`, query, id, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search cards: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCards(rows)
}

// ftsQuery quotes each word so user input cannot use FTS5 syntax.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}
