package cache

import (
	"fmt"
	"strings"
	"time"

	"barcache/internal/model"
	"barcache/internal/store"
)

// InvalidRangeError means start > end. Bad input, never retried.
type InvalidRangeError struct {
	From, To time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: start %s is after end %s",
		model.FormatDate(e.From), model.FormatDate(e.To))
}

// UnsupportedSourceError means the source identifier is not registered.
type UnsupportedSourceError struct {
	Source    string
	Supported []string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported source %q (supported: %s)",
		e.Source, strings.Join(e.Supported, ", "))
}

// PartialFetchError is returned when some gaps of a request could not be
// fetched. Bars holds everything that was assembled (cached plus fetched,
// already persisted); Unfetched lists the sub-ranges a caller may retry.
type PartialFetchError struct {
	Key       store.Key
	Bars      []model.Bar
	Unfetched []model.DateRange
	Err       error
}

func (e *PartialFetchError) Error() string {
	ranges := make([]string, len(e.Unfetched))
	for i, r := range e.Unfetched {
		ranges[i] = r.String()
	}
	return fmt.Sprintf("archive %s: partial fetch, missing [%s]: %v",
		e.Key, strings.Join(ranges, ", "), e.Err)
}

func (e *PartialFetchError) Unwrap() error { return e.Err }
