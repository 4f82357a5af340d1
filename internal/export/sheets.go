// Package export copies a session's expense records into a Google Sheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
)

// Header is written above the data the first time a sheet is exported to.
var Header = []interface{}{"Date", "Title", "Category", "Amount"}

var ErrNoCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")

// Config selects the target spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Exporter is what the HTTP layer needs from an export backend.
type Exporter interface {
	Export(ctx context.Context, records []core.Expense) (int, error)
}

// SheetsExporter appends records to one tab of a spreadsheet.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
}

var _ Exporter = (*SheetsExporter)(nil)

// New authenticates with a service account and returns an exporter for cfg.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*SheetsExporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := readCredentials(cfg)
	if err != nil {
		return nil, err
	}

	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	// Token refreshes go through the same pooled client as API calls.
	pooled := newHTTPClientWithPooling()
	authCtx := context.WithValue(ctx, oauth2.HTTPClient, pooled)
	client := oauth2.NewClient(authCtx, creds.TokenSource)
	client.Timeout = pooled.Timeout

	svc, err := gsheet.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *applog.Logger) *SheetsExporter {
	if sheetName == "" {
		sheetName = "Expenses"
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(applog.ComponentExport),
	}
}

// Export appends one row per record and returns the number of rows written.
// An empty sheet gets the header row first.
func (e *SheetsExporter) Export(ctx context.Context, records []core.Expense) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if e.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}

	rows := Rows(records)

	empty, err := e.isEmpty(ctx)
	if err != nil {
		return 0, err
	}
	if empty {
		rows = append([][]interface{}{Header}, rows...)
	}

	vr := &gsheet.ValueRange{Values: rows}
	rng := fmt.Sprintf("%s!A:D", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append rows: %w", err)
	}

	written := len(records)
	if resp.Updates != nil {
		written = int(resp.Updates.UpdatedRows)
		if empty {
			written--
		}
	}

	e.logger.InfoContext(ctx, "Exported expenses to sheet",
		applog.FieldOperation, applog.OpExport,
		applog.FieldCount, written,
		"sheet", e.sheetName)
	return written, nil
}

func (e *SheetsExporter) isEmpty(ctx context.Context) (bool, error) {
	rng := fmt.Sprintf("%s!A1:A1", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read sheet header: %w", err)
	}
	return len(resp.Values) == 0, nil
}

// Rows converts records to sheet rows in date, title, category, amount order.
func Rows(records []core.Expense) [][]interface{} {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{
			core.NormalizeDate(r.Date),
			r.Title,
			r.Category,
			r.Amount.StringFixed(2),
		})
	}
	return rows
}

func readCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, ErrNoCredentials
	}
}

// newHTTPClientWithPooling keeps a small pool of connections to the Google APIs.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
