package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveEvent appends ev to the audit log, filling in ID and CreatedAt when empty.
func (s *Store) SaveEvent(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, created_at, session_id, action, number, title, new_number, new_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CreatedAt.UTC().Format(timeLayout), ev.SessionID, ev.Action,
		ev.Number, ev.Title, ev.NewNumber, ev.NewTitle,
	)
	if err != nil {
		return fmt.Errorf("saving audit event: %w", err)
	}
	return nil
}

const eventColumns = `id, created_at, session_id, action, number, title, new_number, new_title`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var ev Event
	var createdAt string
	if err := row.Scan(&ev.ID, &createdAt, &ev.SessionID, &ev.Action, &ev.Number, &ev.Title, &ev.NewNumber, &ev.NewTitle); err != nil {
		return Event{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing created_at: %w", err)
	}
	ev.CreatedAt = t
	return ev, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM audit_log WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return ev, err
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventsForKey returns the history of one record key, newest first. Saves
// that renamed a record match on either the old or the new key.
func (s *Store) EventsForKey(ctx context.Context, number, title string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM audit_log
		WHERE (number = ? AND title = ?) OR (new_number = ? AND new_title = ?)
		ORDER BY created_at DESC, rowid DESC`, number, title, number, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
