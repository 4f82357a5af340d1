package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
)

// fakeSheets answers the two Values calls the exporter makes.
type fakeSheets struct {
	mu       sync.Mutex
	existing [][]interface{}
	appended [][]interface{}
	fail     bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.fail {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"denied"}}`)
		return
	}

	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.existing})
	case http.MethodPost:
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.appended = append(f.appended, vr.Values...)
		f.existing = append(f.existing, vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRows": len(vr.Values)},
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestExporter(t *testing.T, fake *fakeSheets) *SheetsExporter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	logger := applog.New(applog.Config{Output: io.Discard})
	return NewWithService(svc, "sheet-id", "", logger)
}

func sampleRecords() []core.Expense {
	return []core.Expense{
		{ID: "e1", Title: "Lunch", Amount: decimal.RequireFromString("12.5"), Category: "Food", Date: "2025-01-03T00:00:00.000Z"},
		{ID: "e2", Title: "Bus", Amount: decimal.NewFromInt(2), Category: "Transport", Date: "2025-01-04"},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleRecords())
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	want := []interface{}{"2025-01-03", "Lunch", "Food", "12.50"}
	for i, v := range want {
		if rows[0][i] != v {
			t.Errorf("rows[0][%d] = %v, want %v", i, rows[0][i], v)
		}
	}
}

func TestExport_WritesHeaderOnEmptySheet(t *testing.T) {
	fake := &fakeSheets{}
	exp := newTestExporter(t, fake)

	n, err := exp.Export(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Export() = %d, want 2", n)
	}
	if len(fake.appended) != 3 {
		t.Fatalf("appended %d rows, want header plus 2", len(fake.appended))
	}
	if fake.appended[0][0] != "Date" {
		t.Errorf("first row = %v, want header", fake.appended[0])
	}
}

func TestExport_SkipsHeaderWhenSheetHasData(t *testing.T) {
	fake := &fakeSheets{existing: [][]interface{}{Header}}
	exp := newTestExporter(t, fake)

	n, err := exp.Export(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != 2 || len(fake.appended) != 2 {
		t.Errorf("Export() = %d with %d rows appended, want 2 and 2", n, len(fake.appended))
	}
}

func TestExport_NoRecords(t *testing.T) {
	fake := &fakeSheets{fail: true}
	exp := newTestExporter(t, fake)

	n, err := exp.Export(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Export(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestExport_APIError(t *testing.T) {
	exp := newTestExporter(t, &fakeSheets{fail: true})

	if _, err := exp.Export(context.Background(), sampleRecords()); err == nil {
		t.Fatal("expected error from failing sheets API")
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing spreadsheet", Config{CredentialsJSON: "{}"}},
		{"missing credentials", Config{SpreadsheetID: "id"}},
		{"unreadable file", Config{SpreadsheetID: "id", CredentialsFile: "/nonexistent/creds.json"}},
		{"invalid json", Config{SpreadsheetID: "id", CredentialsJSON: "not-json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
