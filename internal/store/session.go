package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one training run. Gestures holds the event names in label order.
type Session struct {
	ID        string    `json:"id"`
	Gestures  []string  `json:"gestures"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRepository provides access to sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session. An empty ID is replaced by a new UUID.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.State == "" {
		sess.State = "training"
	}
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	gestures, err := json.Marshal(sess.Gestures)
	if err != nil {
		return fmt.Errorf("encode gestures: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO sessions (id, gestures, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, string(gestures), sess.State, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT id, gestures, state, created_at, updated_at FROM sessions WHERE id = ?`, id,
	))
}

// Latest returns the most recently created session in the given state.
func (r *SessionRepository) Latest(state string) (*Session, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT id, gestures, state, created_at, updated_at FROM sessions
		 WHERE state = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, state,
	))
}

// UpdateState records the lifecycle state a session has reached.
func (r *SessionRepository) UpdateState(id, state string) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now(), id,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a session together with its examples and events.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepository) scanOne(row *sql.Row) (*Session, error) {
	sess := &Session{}
	var gestures string

	err := row.Scan(&sess.ID, &gestures, &sess.State, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(gestures), &sess.Gestures); err != nil {
		return nil, fmt.Errorf("decode gestures of session %s: %w", sess.ID, err)
	}
	return sess, nil
}
