// Package journal records the outcome of every upstream fetch for later
// inspection (what was fetched when, how many bars, which calls failed).
// Journaling never fails a request; callers log and move on.
package journal

import (
	"time"

	"barcache/internal/model"
)

// Outcome labels for a fetch entry.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeRateLimited = "rate_limited"
	OutcomeAuth        = "auth"
	OutcomeError       = "error"
)

// FetchEvent is one provider call.
type FetchEvent struct {
	RequestID string
	Ticker    string
	Source    string
	Range     model.DateRange
	Bars      int
	Outcome   string
	Detail    string // error text when the call failed
	At        time.Time
}

// Journal persists fetch events.
type Journal interface {
	RecordFetch(evt *FetchEvent) error
	Close() error
}

// Noop is used when no journal database is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) RecordFetch(_ *FetchEvent) error { return nil }
func (*Noop) Close() error                    { return nil }
