// Package polygon implements the Polygon.io daily-aggregates source.
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"barcache/internal/model"
	"barcache/internal/provider"
)

const (
	polygonBaseURL = "https://api.polygon.io"

	// Max results per aggregates request. 50k daily bars is ~190 years,
	// so one request always covers a whole range and next_url never fires.
	maxLimit = 50000

	// Free tier: 5 req/min => 12s between requests.
	keyCooldown = 12 * time.Second

	maxRetries = 3
	retryDelay = 5 * time.Second
)

// Client fetches daily stock aggregates from the Polygon REST API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Client for the given API key.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("polygon: api key not set")
	}
	return &Client{apiKey: apiKey, baseURL: polygonBaseURL, client: newHTTPClient()}, nil
}

func (c *Client) Name() string { return "polygon" }

func (c *Client) Close() error { return nil }

// FetchBars fetches adjusted daily bars for ticker inside r. Transient
// transport failures are retried a bounded number of times; throttling and
// credential rejections are mapped to the shared provider error types.
func (c *Client) FetchBars(ctx context.Context, ticker string, r model.DateRange) ([]model.Bar, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("polygon: invalid range %s", r)
	}

	req, err := c.buildDailyAggregatesRequest(ctx, ticker, r)
	if err != nil {
		return nil, err
	}
	resp, err := c.doAggregatesRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, provider.ErrNoData
	}

	bars := make([]model.Bar, 0, len(resp.Results))
	for _, raw := range resp.Results {
		b := raw.toBar()
		// polygon clamps from/to to its own listing window; keep only the
		// days that were actually asked for
		if r.Contains(b.Date) {
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		return nil, provider.ErrNoData
	}
	model.SortBars(bars)
	return bars, nil
}

// buildDailyAggregatesRequest builds the GET for 1-day aggregates
// (adjusted, ascending, bounded by maxLimit).
func (c *Client) buildDailyAggregatesRequest(ctx context.Context, ticker string, r model.DateRange) (*http.Request, error) {
	rawURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		c.baseURL, url.PathEscape(ticker), model.FormatDate(r.From), model.FormatDate(r.To))
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("polygon: parse URL: %w", err)
	}
	q := u.Query()
	q.Set("adjusted", "true")
	q.Set("limit", strconv.Itoa(maxLimit))
	q.Set("sort", "asc")
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("polygon: create request: %w", err)
	}
	req.Header.Set("Connection", "close")
	return req, nil
}

// doAggregatesRequest runs one GET with bounded retries on transport errors.
// HTTP 429 and 401/403 are never retried here; classification is the
// caller's signal to back off or give up.
func (c *Client) doAggregatesRequest(ctx context.Context, req *http.Request) (*aggregatesResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, retryDelay); err != nil {
				return nil, err
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusTooManyRequests:
				return nil, &provider.RateLimitError{
					Provider:   "polygon",
					RetryAfter: keyCooldown,
					Err:        fmt.Errorf("status 429: %s", string(body)),
				}
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, &provider.AuthError{
					Provider: "polygon",
					Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
				}
			default:
				return nil, fmt.Errorf("polygon: status %d: %s", resp.StatusCode, string(body))
			}
		}

		var result aggregatesResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("parse JSON: %w", err)
			continue
		}

		// DELAYED means the tail of the range is not final yet; whatever
		// came back is still usable
		if result.Status != "OK" && result.Status != "DELAYED" {
			return nil, fmt.Errorf("polygon: response status %s (request %s)", result.Status, result.RequestID)
		}
		return &result, nil
	}
	return nil, fmt.Errorf("polygon: request failed after %d attempts: %w", maxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
