package store

import (
	"database/sql"
	"time"
)

// EventRecord is one emitted event in the history table.
type EventRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Event      string    `json:"event"`
	Label      int       `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventRepository provides access to the event history.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create appends an event to the history. A zero CreatedAt is set to now.
func (r *EventRepository) Create(e *EventRecord) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var session any
	if e.SessionID != "" {
		session = e.SessionID
	}

	result, err := r.db.Exec(
		`INSERT INTO events (session_id, event, label, confidence, created_at) VALUES (?, ?, ?, ?, ?)`,
		session, e.Event, e.Label, e.Confidence, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	e.ID, err = result.LastInsertId()
	return err
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(limit int) ([]EventRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, COALESCE(session_id, ''), event, label, confidence, created_at
		 FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &e.Label, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// CountByEvent returns how many times event has been emitted.
func (r *EventRepository) CountByEvent(event string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM events WHERE event = ?`, event).Scan(&n)
	return n, err
}
