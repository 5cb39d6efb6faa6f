package google

import (
	"fmt"
	"strings"
	"time"

	"subtrack/internal/core"
)

// Column layout of the subscriptions tab.
var columns = []string{
	"ID", "Name", "Amount", "Currency", "Cycle", "Status", "Category",
	"Next Billing", "Start", "URL", "Version", "Updated",
}

const lastColumn = "L"

func headerRow() []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

func subscriptionRow(s core.Subscription) []any {
	updated := ""
	if !s.UpdatedAt.IsZero() {
		updated = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		s.ID,
		s.Name,
		s.Amount.Units(),
		s.Currency,
		string(s.Cycle),
		string(s.Status),
		s.CategoryOrDefault(),
		s.NextBillingDate.String(),
		s.StartDate.String(),
		s.URL,
		s.Version,
		updated,
	}
}

func cell(row []any) string {
	if len(row) == 0 {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[0]))
}

// findRow scans column A values (row 1 first) for id. It returns the 1-based
// row holding id, or 0, and the first reusable row: a cleared row below the
// header, or the row after the last one. An empty sheet yields free == 1.
func findRow(col [][]any, id string) (existing, free int) {
	for i, row := range col {
		v := cell(row)
		if i > 0 && v == id && existing == 0 {
			existing = i + 1
		}
		if i > 0 && v == "" && free == 0 {
			free = i + 1
		}
	}
	if free == 0 {
		free = len(col) + 1
	}
	return existing, free
}
