package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/rollcall/internal/votelog"
)

// VoteStore is the append-only vote log kept in SQLite. It speaks the same
// raw, string-typed contract as the spreadsheet backend.
type VoteStore struct {
	db *sql.DB
}

func NewVoteStore(db *sql.DB) *VoteStore {
	return &VoteStore{db: db}
}

// AppendRecord stores one vote. timestamp is expected in votelog.TimestampLayout
// but is stored verbatim; validation happens when the log is read back.
func (s *VoteStore) AppendRecord(ctx context.Context, timestamp, voter, choice string) error {
	if voter == "" {
		return errors.New("append vote: voter is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO votes (id, timestamp, voter, choice) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), timestamp, voter, choice,
	)
	if err != nil {
		return fmt.Errorf("append vote: %w", err)
	}
	return nil
}

// ReadAllRecords returns every vote in insertion order.
func (s *VoteStore) ReadAllRecords(ctx context.Context) ([]votelog.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, voter, choice FROM votes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("read votes: %w", err)
	}
	defer rows.Close()

	var out []votelog.Row
	for rows.Next() {
		var ts, voter, choice string
		if err := rows.Scan(&ts, &voter, &choice); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, votelog.Row{"Timestamp": ts, "User": voter, "Voto": choice})
	}
	return out, rows.Err()
}
