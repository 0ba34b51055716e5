// Package provider defines the upstream data-source abstraction and the
// error taxonomy shared by all source implementations.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barcache/internal/model"
)

// HistoryProvider fetches daily bars from one upstream source.
// Implementations translate their raw wire shapes into model.Bar; nothing
// source-specific leaks past this interface.
type HistoryProvider interface {
	// Name returns the canonical lower-case source identifier (e.g. "polygon").
	Name() string
	// FetchBars returns the bars the source has inside r, ascending by date.
	// Days without market data are simply absent from the result. A range
	// with no data at all returns ErrNoData.
	FetchBars(ctx context.Context, ticker string, r model.DateRange) ([]model.Bar, error)
	Close() error
}

// ErrNoData means the source has no bars for the entire requested range.
var ErrNoData = errors.New("no data for requested range")

// RateLimitError means the source throttled us. Retryable after backing off.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AuthError means the source rejected our credentials. Fatal, never retried.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
