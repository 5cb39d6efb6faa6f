//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
)

// Integration tests require a real spreadsheet shared with a service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_UpsertAndRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	cfg := Config{
		SpreadsheetID:   spreadsheetID,
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exporter, err := New(ctx, cfg, nil)
	require.NoError(t, err)

	sub := core.Subscription{
		ID:              "integration-" + time.Now().Format("20060102150405"),
		Name:            "Integration Test",
		Amount:          core.Money{Cents: 1234},
		Currency:        "USD",
		Cycle:           core.Monthly,
		Status:          core.StatusActive,
		StartDate:       core.DateOf(time.Now()),
		NextBillingDate: core.DateOf(time.Now().AddDate(0, 1, 0)),
		Version:         1,
		UpdatedAt:       time.Now(),
	}

	ref, err := exporter.Upsert(ctx, sub)
	require.NoError(t, err)
	t.Logf("wrote %s", ref)

	sub.Version = 2
	sub.Name = "Integration Test (updated)"
	again, err := exporter.Upsert(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, ref, again, "update lands on the same row")

	require.NoError(t, exporter.Remove(ctx, sub.ID))
}
