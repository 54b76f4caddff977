package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func TestRowsFromValues(t *testing.T) {
	grid := [][]interface{}{
		{"Timestamp", "User", "Voto"},
		{"2025-05-29 12:00", "Lorenzo", "presente"},
		{"2025-05-29 12:10", "Giulia"},
		{},
		{"2025-05-29 12:20", "Marco", "assente", "extra"},
	}

	rows := RowsFromValues(grid)
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}
	if rows[0]["User"] != "Lorenzo" {
		t.Errorf("user = %q, want %q", rows[0]["User"], "Lorenzo")
	}
	if v, ok := rows[1]["Voto"]; !ok || v != "" {
		t.Errorf("padded cell = %q (present %v), want empty", v, ok)
	}
	if len(rows[2]) != 3 {
		t.Errorf("extra cells kept: %v", rows[2])
	}
}

func TestRowsFromValuesEmpty(t *testing.T) {
	if rows := RowsFromValues(nil); rows != nil {
		t.Errorf("rows = %v, want nil", rows)
	}
	if rows := RowsFromValues([][]interface{}{{"Timestamp", "User", "Voto"}}); len(rows) != 0 {
		t.Errorf("header only: len = %d, want 0", len(rows))
	}
}

func newTestStore(t *testing.T, h http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), "sheet-id", "Sheet1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestReadAllRecords(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if !strings.Contains(r.URL.Path, "sheet-id") {
			t.Errorf("path %q missing spreadsheet id", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"range":          "Sheet1!A1:C3",
			"majorDimension": "ROWS",
			"values": [][]string{
				{"Timestamp", "User", "Voto"},
				{"2025-05-29 12:00", "Lorenzo", "presente"},
			},
		})
	})

	rows, err := s.ReadAllRecords(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0]["Voto"] != "presente" {
		t.Errorf("rows = %v", rows)
	}
}

func TestAppendRecord(t *testing.T) {
	var body struct {
		Values [][]string `json:"values"`
	}
	var query string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		query = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))
	})

	if err := s.AppendRecord(context.Background(), "2025-05-29 12:00", "Lorenzo", "presente"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(body.Values) != 1 || len(body.Values[0]) != 3 || body.Values[0][1] != "Lorenzo" {
		t.Errorf("body = %v", body.Values)
	}
	if !strings.Contains(query, "valueInputOption=RAW") {
		t.Errorf("query = %q, want RAW input", query)
	}
}

func TestReadAllRecordsAPIError(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	if _, err := s.ReadAllRecords(context.Background()); err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "", "Sheet1", option.WithoutAuthentication()); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}
