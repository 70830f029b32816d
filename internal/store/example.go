package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Example is a stored training embedding.
type Example struct {
	ID        int64
	SessionID string
	Label     int
	Vector    []float32
	CreatedAt time.Time
}

// ExampleRepository provides access to training examples.
type ExampleRepository struct {
	db *sql.DB
}

// Examples returns the example repository for this store.
func (s *Store) Examples() *ExampleRepository {
	return &ExampleRepository{db: s.db}
}

// Add stores one embedding for sessionID under label.
func (r *ExampleRepository) Add(sessionID string, label int, vector []float32) error {
	_, err := r.db.Exec(
		`INSERT INTO examples (session_id, label, vector, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, label, encodeVector(vector), time.Now(),
	)
	return err
}

// ListBySession returns all examples of a session in insertion order.
func (r *ExampleRepository) ListBySession(sessionID string) ([]Example, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, label, vector, created_at
		 FROM examples WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []Example
	for rows.Next() {
		var e Example
		var blob []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Label, &blob, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Vector, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", e.ID, err)
		}
		examples = append(examples, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return examples, nil
}

// Count returns the number of examples stored for a session.
func (r *ExampleRepository) Count(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM examples WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// DeleteBySession removes all examples of a session.
func (r *ExampleRepository) DeleteBySession(sessionID string) error {
	_, err := r.db.Exec(`DELETE FROM examples WHERE session_id = ?`, sessionID)
	return err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
