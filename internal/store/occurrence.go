package store

import (
	"database/sql"
	"fmt"
	"time"
)

// OccurrenceStore remembers the last occurrence each scheduled action fired
// for. It backs scheduler.Ledger.
type OccurrenceStore struct {
	db *sql.DB
}

func NewOccurrenceStore(db *sql.DB) *OccurrenceStore {
	return &OccurrenceStore{db: db}
}

// LastFired returns the stored key for action, or "" if it never fired.
func (s *OccurrenceStore) LastFired(action string) (string, error) {
	var key string
	err := s.db.QueryRow(
		`SELECT occurrence_key FROM fired_occurrences WHERE action = ?`, action,
	).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last firing: %w", err)
	}
	return key, nil
}

// RecordFired upserts the firing of action for key.
func (s *OccurrenceStore) RecordFired(action, key string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO fired_occurrences (action, occurrence_key, fired_at) VALUES (?, ?, ?)
		 ON CONFLICT(action) DO UPDATE SET occurrence_key = excluded.occurrence_key, fired_at = excluded.fired_at`,
		action, key, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record firing: %w", err)
	}
	return nil
}
