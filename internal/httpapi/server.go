// Package httpapi exposes the cache over a small read-only JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"barcache/internal/cache"
	"barcache/internal/model"
	"barcache/internal/provider"
	"barcache/internal/store"
)

// API serves bar and coverage queries backed by the cache manager.
type API struct {
	mgr *cache.Manager
}

// NewAPI creates the HTTP API around a cache manager.
func NewAPI(mgr *cache.Manager) *API {
	return &API{mgr: mgr}
}

// SetupRoutes configures the HTTP routes for the API.
func (a *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/bars/{source}/{ticker}", a.GetBars).Methods("GET")
	router.HandleFunc("/api/v1/coverage/{source}/{ticker}", a.GetCoverage).Methods("GET")
	router.HandleFunc("/api/v1/sources", a.GetSources).Methods("GET")
	router.Use(a.loggingMiddleware)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Unfetched []model.DateRange `json:"unfetched,omitempty"`
}

// BarsResponse is the reply to a bars query.
type BarsResponse struct {
	Ticker    string            `json:"ticker"`
	Source    string            `json:"source"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Bars      []model.Bar       `json:"bars"`
	Unfetched []model.DateRange `json:"unfetched,omitempty"`
	Warning   string            `json:"warning,omitempty"`
}

// CoverageResponse is the reply to a coverage query.
type CoverageResponse struct {
	Ticker string            `json:"ticker"`
	Source string            `json:"source"`
	Ranges []model.DateRange `json:"ranges"`
}

// GetBars handles GET /api/v1/bars/{source}/{ticker}?start=&end=.
// Partial fetches reply 206 with the assembled bars and the unfetched
// ranges so the caller can retry just those.
func (a *API) GetBars(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source, ticker := vars["source"], vars["ticker"]

	start, err := model.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := model.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	bars, err := a.mgr.GetBars(r.Context(), ticker, source, start, end)
	resp := BarsResponse{
		Ticker: ticker,
		Source: source,
		From:   model.FormatDate(start),
		To:     model.FormatDate(end),
		Bars:   bars,
	}
	if err != nil {
		var partial *cache.PartialFetchError
		if errors.As(err, &partial) {
			resp.Bars = partial.Bars
			resp.Unfetched = partial.Unfetched
			resp.Warning = partial.Err.Error()
			writeJSON(w, http.StatusPartialContent, resp)
			return
		}
		var persist *store.PersistenceError
		if errors.As(err, &persist) {
			// data is complete, it just could not be cached
			resp.Warning = persist.Error()
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeError(w, classify(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCoverage handles GET /api/v1/coverage/{source}/{ticker}.
func (a *API) GetCoverage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source, ticker := vars["source"], vars["ticker"]

	covered, err := a.mgr.Coverage(ticker, source)
	if err != nil {
		writeError(w, classify(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CoverageResponse{
		Ticker: ticker,
		Source: source,
		Ranges: covered.Ranges(),
	})
}

// GetSources handles GET /api/v1/sources.
func (a *API) GetSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": a.mgr.Sources()})
}

func classify(err error) int {
	var invalid *cache.InvalidRangeError
	var unsupported *cache.UnsupportedSourceError
	var rate *provider.RateLimitError
	var auth *provider.AuthError
	switch {
	case errors.As(err, &invalid), errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &rate):
		return http.StatusServiceUnavailable
	case errors.As(err, &auth):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
