// Package sheets keeps the vote log in a Google Sheets spreadsheet, the
// way the attendance sheet has always been kept: one header row, then one
// row per vote with timestamp, voter and choice.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/dukerupert/rollcall/internal/votelog"
)

// Store implements the vote log contract over a spreadsheet range.
type Store struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
	rangeName     string
}

// New connects to the Sheets API. Callers pass credentials through opts,
// e.g. option.WithCredentialsFile.
func New(ctx context.Context, spreadsheetID, rangeName string, opts ...option.ClientOption) (*Store, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if rangeName == "" {
		rangeName = "Sheet1"
	}
	opts = append([]option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}, opts...)
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Store{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		rangeName:     rangeName,
	}, nil
}

// AppendRecord appends a row below the last filled row of the range.
func (s *Store) AppendRecord(ctx context.Context, timestamp, voter, choice string) error {
	vr := &sheetsapi.ValueRange{
		Values: [][]interface{}{{timestamp, voter, choice}},
	}
	_, err := s.values.Append(s.spreadsheetID, s.rangeName, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: append row: %w", err)
	}
	return nil
}

// ReadAllRecords reads the whole range and keys each data row by the header.
func (s *Store) ReadAllRecords(ctx context.Context) ([]votelog.Row, error) {
	resp, err := s.values.Get(s.spreadsheetID, s.rangeName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read range: %w", err)
	}
	return RowsFromValues(resp.Values), nil
}

// RowsFromValues converts a header-first grid into rows. Short rows are
// padded with empty values; cells beyond the header are dropped; blank
// rows are skipped.
func RowsFromValues(grid [][]interface{}) []votelog.Row {
	if len(grid) == 0 {
		return nil
	}
	header := make([]string, len(grid[0]))
	for i, cell := range grid[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(cell))
	}

	rows := make([]votelog.Row, 0, len(grid)-1)
	for _, line := range grid[1:] {
		row := make(votelog.Row, len(header))
		blank := true
		for i, key := range header {
			if key == "" {
				continue
			}
			var v string
			if i < len(line) && line[i] != nil {
				v = fmt.Sprint(line[i])
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			row[key] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows
}
