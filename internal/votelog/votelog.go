// Package votelog normalizes raw rows read from a vote store into
// VoteRecords. Stores hand back loosely keyed rows (the spreadsheet header is
// edited by hand), so field resolution lives here and nowhere else.
package votelog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

// TimestampLayout is the wire format of a vote timestamp, local to the
// reference zone, without offset.
const TimestampLayout = "2006-01-02 15:04"

// ErrMalformedRecord marks a row that was skipped during normalization.
var ErrMalformedRecord = errors.New("malformed vote record")

// Row is one raw record as returned by a store.
type Row map[string]string

// Accepted column names per field, in priority order.
var (
	TimestampKeys = []string{"Timestamp", "timestamp", "Data", "data"}
	VoterKeys     = []string{"User", "user", "Nome", "nome"}
	ChoiceKeys    = []string{"Voto", "voto", "Risposta", "risposta"}
)

// Lookup returns the first non-empty value among keys.
func (r Row) Lookup(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// FormatTimestamp renders t in loc using TimestampLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimestampLayout)
}

// ParseTimestamp parses a wire timestamp as civil time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Parse converts a single row. Unknown choice values are kept verbatim
// (lower-cased) so scoring can treat them as zero-value votes.
func Parse(r Row, loc *time.Location) (model.VoteRecord, error) {
	ts := r.Lookup(TimestampKeys)
	voter := r.Lookup(VoterKeys)
	choice := r.Lookup(ChoiceKeys)
	if ts == "" || voter == "" || choice == "" {
		return model.VoteRecord{}, fmt.Errorf("%w: missing field", ErrMalformedRecord)
	}

	t, err := ParseTimestamp(ts, loc)
	if err != nil {
		return model.VoteRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	c, _ := model.ParseChoice(choice)
	return model.VoteRecord{Timestamp: t, Voter: voter, Choice: c}, nil
}

// Normalize parses every row, skipping malformed ones. The returned errors
// describe each skipped row by its index; they never abort the pass.
func Normalize(rows []Row, loc *time.Location) ([]model.VoteRecord, []error) {
	records := make([]model.VoteRecord, 0, len(rows))
	var skipped []error
	for i, r := range rows {
		rec, err := Parse(r, loc)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}
