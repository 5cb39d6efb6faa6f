package rates

import (
	"context"

	"subtrack/internal/core"
)

// staticUSD is the last-resort table, quoted per 1 USD.
var staticUSD = core.RateTable{
	"USD": 1,
	"EUR": 0.92,
	"GBP": 0.79,
	"JPY": 149.5,
	"CAD": 1.36,
	"AUD": 1.52,
	"CHF": 0.88,
	"CNY": 7.24,
	"INR": 83.2,
	"SEK": 10.6,
	"NOK": 10.7,
	"DKK": 6.87,
	"PLN": 4.02,
	"BRL": 4.97,
	"MXN": 17.1,
}

// Static serves a fixed table. It never fails.
type Static struct{}

// StaticTable returns a copy of the built-in table rebased onto base.
func StaticTable(base string) core.RateTable {
	out := make(core.RateTable, len(staticUSD))
	for code, rate := range staticUSD {
		out[code] = rate
	}
	return Rebase(out, base)
}

// Latest implements Provider.
func (Static) Latest(_ context.Context, base string) (core.RateTable, error) {
	return StaticTable(base), nil
}
