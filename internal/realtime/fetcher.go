package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

// Collections is one full snapshot of the user's records, fetched in
// degraded mode.
type Collections struct {
	Incomes  []store.Record
	Expenses []store.Record
}

// Fetcher retrieves the current collections for the polling fallback.
type Fetcher interface {
	FetchAll(ctx context.Context) (Collections, error)
}

// HTTPFetcher reads the collection endpoints the server exposes for exactly
// this fallback.
type HTTPFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) httpClient() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *HTTPFetcher) FetchAll(ctx context.Context) (Collections, error) {
	incomes, err := f.fetch(ctx, "/api/v1/incomes")
	if err != nil {
		return Collections{}, err
	}
	expenses, err := f.fetch(ctx, "/api/v1/expenses")
	if err != nil {
		return Collections{}, err
	}
	return Collections{Incomes: incomes, Expenses: expenses}, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, path string) ([]store.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", path, resp.Status)
	}

	var records []store.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
