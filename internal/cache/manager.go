// Package cache is the coordinating layer: it answers bar requests from the
// local store when possible, fetches only the missing sub-ranges from the
// upstream source, persists what it fetched and serves the merged result.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"barcache/internal/coverage"
	"barcache/internal/journal"
	"barcache/internal/model"
	"barcache/internal/provider"
	"barcache/internal/store"
)

// Manager orchestrates store, reconciler and providers. Safe for concurrent
// use; same-archive writes are serialized by the store's per-key locks.
type Manager struct {
	store     *store.Store
	providers map[string]provider.HistoryProvider
	pacer     *provider.Pacer
	journal   journal.Journal
}

// New creates a Manager. fetchDelay is the enforced minimum delay between
// successive calls to the same source. jnl may be nil for no journaling.
func New(st *store.Store, providers map[string]provider.HistoryProvider, fetchDelay time.Duration, jnl journal.Journal) *Manager {
	if jnl == nil {
		jnl = journal.NewNoop()
	}
	byName := make(map[string]provider.HistoryProvider, len(providers))
	for name, p := range providers {
		byName[strings.ToLower(name)] = p
	}
	return &Manager{
		store:     st,
		providers: byName,
		pacer:     provider.NewPacer(fetchDelay),
		journal:   jnl,
	}
}

// Sources returns the registered source identifiers, sorted.
func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Coverage returns the cached date ranges for one (ticker, source) pair.
func (m *Manager) Coverage(ticker, source string) (coverage.Set, error) {
	if _, ok := m.providers[strings.ToLower(source)]; !ok {
		return coverage.Set{}, &UnsupportedSourceError{Source: source, Supported: m.Sources()}
	}
	return m.store.Coverage(store.NewKey(ticker, source))
}

// GetBars returns one bar per calendar date present in the union of cache
// and fetch results inside [from, to], ascending. Missing sub-ranges are
// fetched sequentially from the source with the configured pacing; fetched
// data is persisted before the call returns. Non-trading days are absent
// from the result, never nil entries.
//
// Data that was fetched successfully is persisted and returned even when a
// later gap fails: such calls return the assembled bars together with a
// *PartialFetchError naming the unfetched sub-ranges. A credential
// rejection aborts the remaining gaps immediately.
func (m *Manager) GetBars(ctx context.Context, ticker, source string, from, to time.Time) ([]model.Bar, error) {
	from, to = model.DateOf(from), model.DateOf(to)
	if from.After(to) {
		return nil, &InvalidRangeError{From: from, To: to}
	}
	prov, ok := m.providers[strings.ToLower(source)]
	if !ok {
		return nil, &UnsupportedSourceError{Source: source, Supported: m.Sources()}
	}

	key := store.NewKey(ticker, prov.Name())
	requested := model.DateRange{From: from, To: to}
	reqID := uuid.NewString()
	log := slog.With("request_id", reqID, "key", key.String(), "range", requested.String())

	covered, cached, err := m.store.Load(key)
	if err != nil {
		var corrupt *store.CorruptArchiveError
		if !errors.As(err, &corrupt) {
			return nil, err
		}
		// recover locally: behave as if the cache were empty and re-fetch
		// the whole range; the archive is overwritten on persist
		log.Warn("archive unreadable, re-fetching full range", "path", corrupt.Path, "error", corrupt.Err)
		covered, cached = coverage.Set{}, make(map[time.Time]model.Bar)
	}

	gaps := covered.Missing(requested)
	if len(gaps) == 0 {
		log.Debug("served from cache", "bars", len(cached))
		return barsWithin(cached, requested), nil
	}
	log.Info("fetching gaps", "source", prov.Name(), "gaps", len(gaps))

	var (
		fetched   []model.Bar
		completed []model.DateRange
		unfetched []model.DateRange
		failures  []error
	)
fetchLoop:
	for i, gap := range gaps {
		if err := m.pacer.Wait(ctx, prov.Name()); err != nil {
			unfetched = append(unfetched, gaps[i:]...)
			failures = append(failures, err)
			break
		}

		bars, err := prov.FetchBars(ctx, key.Ticker, gap)
		m.recordFetch(log, reqID, key, gap, len(bars), err)
		switch {
		case err == nil:
			completed = append(completed, gap)
			fetched = append(fetched, bars...)
		case errors.Is(err, provider.ErrNoData):
			// empty success: the source has nothing there (weekend,
			// holiday, unlisted period); the gap is covered now
			completed = append(completed, gap)
		default:
			var auth *provider.AuthError
			if errors.As(err, &auth) || ctx.Err() != nil {
				// hard failure: stop asking
				unfetched = append(unfetched, gaps[i:]...)
				failures = append(failures, err)
				break fetchLoop
			}
			unfetched = append(unfetched, gap)
			failures = append(failures, fmt.Errorf("gap %s: %w", gap, err))
		}
	}

	// merge transient buffer for this request
	merged := make(map[time.Time]model.Bar, len(cached)+len(fetched))
	for d, b := range cached {
		merged[d] = b
	}
	for _, b := range fetched {
		b.Date = model.DateOf(b.Date)
		merged[b.Date] = b
	}

	// one durable write per request that completed at least one gap, so an
	// empty answer (delisted period, long weekend) is remembered too;
	// already-fetched data is never dropped because of later failures
	var persistErr error
	if len(completed) > 0 {
		if _, err := m.store.MergeAndPersist(key, fetched, completed); err != nil {
			var pe *store.PersistenceError
			if errors.As(err, &pe) {
				log.Error("could not persist fetched bars, serving from memory", "error", err)
				persistErr = err
			} else {
				return nil, err
			}
		}
	}

	result := barsWithin(merged, requested)

	if len(unfetched) > 0 {
		fetchErr := errors.Join(failures...)
		var auth *provider.AuthError
		if errors.As(fetchErr, &auth) && len(completed) == 0 {
			// nothing was obtained, signal the hard failure directly
			return nil, fmt.Errorf("archive %s: range %s: %w", key, requested, fetchErr)
		}
		return result, &PartialFetchError{
			Key:       key,
			Bars:      result,
			Unfetched: unfetched,
			Err:       errors.Join(fetchErr, persistErr),
		}
	}
	if persistErr != nil {
		return result, persistErr
	}
	return result, nil
}

func (m *Manager) recordFetch(log *slog.Logger, reqID string, key store.Key, gap model.DateRange, bars int, err error) {
	evt := &journal.FetchEvent{
		RequestID: reqID,
		Ticker:    key.Ticker,
		Source:    key.Source,
		Range:     gap,
		Bars:      bars,
		Outcome:   journal.OutcomeOK,
	}
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrNoData):
		evt.Outcome = journal.OutcomeEmpty
	default:
		evt.Detail = err.Error()
		var rate *provider.RateLimitError
		var auth *provider.AuthError
		switch {
		case errors.As(err, &rate):
			evt.Outcome = journal.OutcomeRateLimited
		case errors.As(err, &auth):
			evt.Outcome = journal.OutcomeAuth
		default:
			evt.Outcome = journal.OutcomeError
		}
	}
	if jerr := m.journal.RecordFetch(evt); jerr != nil {
		log.Warn("journal write failed", "error", jerr)
	}
}

// barsWithin filters the merged dataset to the requested range, ascending.
func barsWithin(bars map[time.Time]model.Bar, r model.DateRange) []model.Bar {
	out := make([]model.Bar, 0, len(bars))
	for d, b := range bars {
		if r.Contains(d) {
			out = append(out, b)
		}
	}
	model.SortBars(out)
	return out
}
