// Package rates resolves exchange-rate tables for the aggregator.
//
// A live provider is consulted through a cache; when it is unreachable the
// last known table is served, and failing that a built-in static table.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"subtrack/internal/core"
)

// Provider fetches the latest rates relative to base.
type Provider interface {
	Latest(ctx context.Context, base string) (core.RateTable, error)
}

// ErrUpstream is returned when the rate API answers with an unusable payload.
var ErrUpstream = errors.New("rates: upstream error")

// HTTPProvider talks to an open.er-api.com style endpoint:
// GET {BaseURL}/{BASE} -> {"result":"success","base_code":"USD","rates":{...}}
type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPProvider returns a provider with a bounded client timeout.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type latestResponse struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type"`
	BaseCode  string             `json:"base_code"`
	Rates     map[string]float64 `json:"rates"`
}

// Latest implements Provider.
func (p *HTTPProvider) Latest(ctx context.Context, base string) (core.RateTable, error) {
	url := p.BaseURL + "/" + base
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if body.Result != "" && body.Result != "success" {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, body.ErrorType)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("%w: empty rate table", ErrUpstream)
	}

	table := make(core.RateTable, len(body.Rates)+1)
	for code, rate := range body.Rates {
		table[strings.ToUpper(code)] = rate
	}
	if body.BaseCode != "" {
		table[strings.ToUpper(body.BaseCode)] = 1
	}
	return Rebase(table, base), nil
}

// Rebase re-expresses table relative to base. Tables that lack base, or
// carry an unusable rate for it, are returned unchanged.
func Rebase(table core.RateTable, base string) core.RateTable {
	pivot, ok := table[base]
	if !ok || pivot <= 0 || pivot == 1 {
		return table
	}
	out := make(core.RateTable, len(table))
	for code, rate := range table {
		out[code] = rate / pivot
	}
	out[base] = 1
	return out
}
