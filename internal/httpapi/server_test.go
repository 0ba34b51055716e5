package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcache/internal/cache"
	"barcache/internal/model"
	"barcache/internal/provider"
	"barcache/internal/store"
)

type scriptedProvider struct {
	respond func(r model.DateRange) ([]model.Bar, error)
}

func (scriptedProvider) Name() string { return "yahoo" }
func (scriptedProvider) Close() error { return nil }

func (p scriptedProvider) FetchBars(_ context.Context, _ string, r model.DateRange) ([]model.Bar, error) {
	return p.respond(r)
}

func newTestRouter(t *testing.T, respond func(r model.DateRange) ([]model.Bar, error)) *mux.Router {
	t.Helper()
	st := store.New(t.TempDir(), store.NewCodec("json"))
	mgr := cache.New(st, map[string]provider.HistoryProvider{
		"yahoo": scriptedProvider{respond: respond},
	}, 0, nil)
	router := mux.NewRouter()
	NewAPI(mgr).SetupRoutes(router)
	return router
}

func allBars(r model.DateRange) ([]model.Bar, error) {
	var bars []model.Bar
	for d := r.From; !d.After(r.To); d = model.NextDay(d) {
		bars = append(bars, model.Bar{Date: d, Open: 99, High: 101, Low: 98, Close: 100, Volume: 1})
	}
	return bars, nil
}

func get(router *mux.Router, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestGetBars(t *testing.T) {
	router := newTestRouter(t, allBars)

	rec := get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-03&end=2023-01-05")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp BarsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, "yahoo", resp.Source)
	assert.Equal(t, "2023-01-03", resp.From)
	assert.Equal(t, "2023-01-05", resp.To)
	require.Len(t, resp.Bars, 3)
	assert.Empty(t, resp.Unfetched)
	assert.Empty(t, resp.Warning)
}

func TestGetBarsBadDates(t *testing.T) {
	router := newTestRouter(t, allBars)

	rec := get(router, "/api/v1/bars/yahoo/AAPL?start=03-01-2023&end=2023-01-05")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-05&end=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// valid dates but inverted order
	rec = get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-05&end=2023-01-03")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBarsUnsupportedSource(t *testing.T) {
	router := newTestRouter(t, allBars)
	rec := get(router, "/api/v1/bars/bloomberg/AAPL?start=2023-01-03&end=2023-01-05")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "bloomberg")
}

func TestGetBarsPartialContent(t *testing.T) {
	failFrom := model.Day(2023, 1, 5)
	router := newTestRouter(t, func(r model.DateRange) ([]model.Bar, error) {
		if !r.To.Before(failFrom) {
			return nil, errors.New("connection reset")
		}
		return allBars(r)
	})

	// seed the head so the wide request splits into a good and a bad gap
	rec := get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-01&end=2023-01-04")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-01&end=2023-01-08")
	require.Equal(t, http.StatusPartialContent, rec.Code)

	var resp BarsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Bars, 4)
	require.Len(t, resp.Unfetched, 1)
	assert.Equal(t, "2023-01-05", model.FormatDate(resp.Unfetched[0].From))
	assert.Equal(t, "2023-01-08", model.FormatDate(resp.Unfetched[0].To))
	assert.NotEmpty(t, resp.Warning)
}

func TestGetBarsRateLimited(t *testing.T) {
	router := newTestRouter(t, func(model.DateRange) ([]model.Bar, error) {
		return nil, &provider.RateLimitError{Provider: "yahoo", Err: errors.New("429")}
	})

	rec := get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-03&end=2023-01-05")
	// nothing was fetched, but the cache may still answer partially
	assert.Equal(t, http.StatusPartialContent, rec.Code)
}

func TestGetBarsAuthRejected(t *testing.T) {
	router := newTestRouter(t, func(model.DateRange) ([]model.Bar, error) {
		return nil, &provider.AuthError{Provider: "yahoo", Err: errors.New("401")}
	})

	rec := get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-03&end=2023-01-05")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetCoverage(t *testing.T) {
	router := newTestRouter(t, allBars)

	rec := get(router, "/api/v1/bars/yahoo/AAPL?start=2023-01-03&end=2023-01-05")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(router, "/api/v1/coverage/yahoo/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CoverageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Ticker)
	require.Len(t, resp.Ranges, 1)
	assert.Equal(t, model.Day(2023, 1, 3), resp.Ranges[0].From)
	assert.Equal(t, model.Day(2023, 1, 5), resp.Ranges[0].To)
}

func TestGetSources(t *testing.T) {
	router := newTestRouter(t, allBars)

	rec := get(router, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"yahoo"}, resp["sources"])
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, allBars)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sources", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
