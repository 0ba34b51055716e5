// Package yahoo implements the Yahoo Finance chart-API source. No API key
// is required, which makes it the default source for ad-hoc use.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"barcache/internal/model"
	"barcache/internal/provider"
)

const chartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Client fetches daily bars from the public Yahoo Finance v8 chart API.
type Client struct {
	rc      *resty.Client
	baseURL string
}

// New creates a Client. proxyURL may be empty.
func New(proxyURL string) *Client {
	rc := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "Mozilla/5.0")
	if proxyURL != "" {
		rc.SetProxy(proxyURL)
	}
	return &Client{rc: rc, baseURL: chartBaseURL}
}

func (c *Client) Name() string { return "yahoo" }

func (c *Client) Close() error { return nil }

// chartResponse mirrors the v8 chart envelope. OHLCV arrays carry nulls for
// non-trading days, hence the interface{} elements.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// FetchBars fetches daily bars inside r. period2 is exclusive upstream, so
// it is set to the day after r.To.
func (c *Client) FetchBars(ctx context.Context, ticker string, r model.DateRange) ([]model.Bar, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("yahoo: invalid range %s", r)
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"interval": "1d",
			"period1":  strconv.FormatInt(r.From.Unix(), 10),
			"period2":  strconv.FormatInt(model.NextDay(r.To).Unix(), 10),
			"events":   "history",
		}).
		Get(c.baseURL + "/" + url.PathEscape(ticker))
	if err != nil {
		return nil, fmt.Errorf("yahoo: fetch: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &provider.RateLimitError{
			Provider:   "yahoo",
			RetryAfter: time.Minute,
			Err:        fmt.Errorf("status 429: %s", resp.String()),
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &provider.AuthError{
			Provider: "yahoo",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()),
		}
	case http.StatusNotFound:
		return nil, provider.ErrNoData
	default:
		return nil, fmt.Errorf("yahoo: status %d: %s", resp.StatusCode(), resp.String())
	}

	var chart chartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("yahoo: decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, provider.ErrNoData
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, provider.ErrNoData
	}
	quote := result.Indicators.Quote[0]

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		cl := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && cl == 0 {
			continue // null bar (holiday etc.)
		}
		day := model.DateOf(time.Unix(ts, 0))
		if !r.Contains(day) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:   day,
			Open:   o,
			High:   h,
			Low:    l,
			Close:  cl,
			Volume: int64(toFloat(quote.Volume[i])),
		})
	}
	if len(bars) == 0 {
		return nil, provider.ErrNoData
	}
	model.SortBars(bars)
	return bars, nil
}
