// Package ibkr implements the Interactive Brokers source via the Client
// Portal gateway's REST API. The gateway runs locally, terminates its own
// (self-signed) TLS, and holds the brokerage session; an unauthenticated
// session surfaces here as an AuthError.
package ibkr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"barcache/internal/model"
	"barcache/internal/provider"
)

// DefaultGatewayURL is where the Client Portal gateway listens by default.
const DefaultGatewayURL = "https://localhost:5000/v1/api"

// Client fetches daily history through a running Client Portal gateway.
type Client struct {
	rc *resty.Client

	mu     sync.Mutex
	conids map[string]string // ticker -> conid, filled lazily
}

// New creates a Client talking to the gateway at baseURL (DefaultGatewayURL
// when empty).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultGatewayURL
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Minute).
		// the gateway ships a self-signed certificate for localhost
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return &Client{rc: rc, conids: make(map[string]string)}
}

func (c *Client) Name() string { return "ibkr" }

func (c *Client) Close() error { return nil }

type secdefResult struct {
	Conid       json.Number `json:"conid"`
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	SecType     string      `json:"secType"`
}

type historyResponse struct {
	Symbol string `json:"symbol"`
	Data   []struct {
		Open   float64 `json:"o"`
		Close  float64 `json:"c"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Volume float64 `json:"v"`
		T      int64   `json:"t"` // unix milliseconds
	} `json:"data"`
	Points int `json:"points"`
}

// conidFor resolves and caches the contract id for a ticker.
func (c *Client) conidFor(ctx context.Context, ticker string) (string, error) {
	c.mu.Lock()
	if id, ok := c.conids[ticker]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("symbol", ticker).
		Get("/iserver/secdef/search")
	if err != nil {
		return "", fmt.Errorf("ibkr: secdef search: %w", err)
	}
	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var results []secdefResult
	if err := json.Unmarshal(resp.Body(), &results); err != nil {
		return "", fmt.Errorf("ibkr: decode secdef: %w", err)
	}
	for _, r := range results {
		if r.Symbol == ticker && r.Conid.String() != "" {
			c.mu.Lock()
			c.conids[ticker] = r.Conid.String()
			c.mu.Unlock()
			return r.Conid.String(), nil
		}
	}
	return "", fmt.Errorf("ibkr: no contract found for %s", ticker)
}

// FetchBars fetches daily bars inside r. The history endpoint only takes a
// lookback period from now, so the period spans back to r.From and the
// result is filtered to the requested range client-side.
func (c *Client) FetchBars(ctx context.Context, ticker string, r model.DateRange) ([]model.Bar, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("ibkr: invalid range %s", r)
	}

	conid, err := c.conidFor(ctx, ticker)
	if err != nil {
		return nil, err
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"conid":      conid,
			"period":     lookbackPeriod(r.From),
			"bar":        "1d",
			"outsideRth": "false",
		}).
		Get("/iserver/marketdata/history")
	if err != nil {
		return nil, fmt.Errorf("ibkr: history: %w", err)
	}
	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var hist historyResponse
	if err := json.Unmarshal(resp.Body(), &hist); err != nil {
		return nil, fmt.Errorf("ibkr: decode history: %w", err)
	}
	if len(hist.Data) == 0 {
		return nil, provider.ErrNoData
	}

	bars := make([]model.Bar, 0, len(hist.Data))
	for _, d := range hist.Data {
		day := model.DateOf(time.UnixMilli(d.T))
		if !r.Contains(day) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:   day,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: int64(d.Volume),
		})
	}
	if len(bars) == 0 {
		return nil, provider.ErrNoData
	}
	model.SortBars(bars)
	return bars, nil
}

// lookbackPeriod renders the gateway period string reaching back to from.
func lookbackPeriod(from time.Time) string {
	days := int(time.Since(model.DateOf(from)).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	if days > 365 {
		return fmt.Sprintf("%dy", days/365+1)
	}
	return fmt.Sprintf("%dd", days)
}

func classifyStatus(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.AuthError{
			Provider: "ibkr",
			Err:      fmt.Errorf("gateway session not authenticated (status %d)", resp.StatusCode()),
		}
	case http.StatusTooManyRequests:
		return &provider.RateLimitError{
			Provider:   "ibkr",
			RetryAfter: 10 * time.Second,
			Err:        fmt.Errorf("status 429: %s", resp.String()),
		}
	default:
		return fmt.Errorf("ibkr: status %d: %s", resp.StatusCode(), resp.String())
	}
}
