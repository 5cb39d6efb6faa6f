// Package google mirrors subscriptions into a Google Sheets tab, one row per
// subscription keyed by its id in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"subtrack/internal/core"
	applog "subtrack/internal/log"
	"subtrack/internal/ports"
)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID   string
	SheetName       string // default "Subscriptions"
	CredentialsJSON string
	CredentialsFile string
}

// valuesAPI is the part of the Sheets values service the exporter uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

type sheetsValues struct {
	svc *gsheet.Service
}

func (v sheetsValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// valueInput stores cells verbatim; user text is never parsed as a formula.
const valueInput = "RAW"

func (v sheetsValues) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption(valueInput).Context(ctx).Do()
	return err
}

func (v sheetsValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// Exporter implements ports.SheetExporter.
type Exporter struct {
	values        valuesAPI
	spreadsheetID string
	sheet         string
	logger        *applog.Logger

	// serializes row lookups and writes so two upserts never claim the same row
	mu sync.Mutex
}

var _ ports.SheetExporter = (*Exporter)(nil)

// New creates an exporter authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newExporter(sheetsValues{svc: svc}, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

func newExporter(values valuesAPI, spreadsheetID, sheet string, logger *applog.Logger) *Exporter {
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheet = "Subscriptions"
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Exporter{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        logger,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses the inline JSON, the file, or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func newSheetsService(ctx context.Context, cfg Config, logger *applog.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(cfg.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (e *Exporter) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", e.sheet, row, lastColumn, row)
}

// locate reads column A and returns the row holding id (0 if absent) and the
// row a new entry should go to.
func (e *Exporter) locate(ctx context.Context, id string) (existing, free int, err error) {
	rng := fmt.Sprintf("%s!A:A", e.sheet)
	col, err := e.values.Get(ctx, e.spreadsheetID, rng)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	existing, free = findRow(col, id)
	return existing, free, nil
}

// Upsert writes s into its row, appending a row the first time.
func (e *Exporter) Upsert(ctx context.Context, s core.Subscription) (string, error) {
	if e.values == nil {
		return "", errors.New("sheets service not initialized")
	}
	if s.ID == "" {
		return "", errors.New("subscription without id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, free, err := e.locate(ctx, s.ID)
	if err != nil {
		return "", err
	}

	if free == 1 {
		// empty sheet: header first
		if err := e.values.Update(ctx, e.spreadsheetID, e.rowRange(1), [][]any{headerRow()}); err != nil {
			return "", fmt.Errorf("write header in sheet %s: %w", e.sheet, err)
		}
		free = 2
	}

	row := existing
	if row == 0 {
		row = free
	}

	ref := e.rowRange(row)
	if err := e.values.Update(ctx, e.spreadsheetID, ref, [][]any{subscriptionRow(s)}); err != nil {
		return "", fmt.Errorf("write %s: %w", ref, err)
	}

	e.logger.DebugContext(ctx, "Wrote subscription row",
		applog.FieldSubscriptionID, s.ID,
		"range", ref,
		"appended", existing == 0)
	return ref, nil
}

// Remove clears the row holding id. Missing rows are not an error.
func (e *Exporter) Remove(ctx context.Context, id string) error {
	if e.values == nil {
		return errors.New("sheets service not initialized")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	row, _, err := e.locate(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		e.logger.DebugContext(ctx, "Subscription row already absent", applog.FieldSubscriptionID, id)
		return nil
	}

	ref := e.rowRange(row)
	if err := e.values.Clear(ctx, e.spreadsheetID, ref); err != nil {
		return fmt.Errorf("clear %s: %w", ref, err)
	}
	return nil
}
