package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcache/internal/model"
	"barcache/internal/provider"
	"barcache/internal/store"
)

// fakeProvider replays a scripted response per fetched range and records
// every call it receives.
type fakeProvider struct {
	name    string
	calls   []model.DateRange
	respond func(ticker string, r model.DateRange) ([]model.Bar, error)
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) FetchBars(ctx context.Context, ticker string, r model.DateRange) ([]model.Bar, error) {
	f.calls = append(f.calls, r)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.respond(ticker, r)
}

// barsFor fabricates one bar per calendar day of r.
func barsFor(r model.DateRange) []model.Bar {
	var bars []model.Bar
	for d := r.From; !d.After(r.To); d = model.NextDay(d) {
		bars = append(bars, model.Bar{
			Date:   d,
			Open:   99,
			High:   101,
			Low:    98,
			Close:  100,
			Volume: 1000,
		})
	}
	return bars
}

func day(y int, m time.Month, d int) time.Time { return model.Day(y, m, d) }

func rng(fy int, fm time.Month, fd, ty int, tm time.Month, td int) model.DateRange {
	return model.DateRange{From: day(fy, fm, fd), To: day(ty, tm, td)}
}

func newManager(t *testing.T, fake *fakeProvider) *Manager {
	t.Helper()
	st := store.New(t.TempDir(), store.NewCodec("json"))
	return New(st, map[string]provider.HistoryProvider{fake.name: fake}, 0, nil)
}

func TestGetBarsColdCacheFetchesWholeRange(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, rng(2023, 1, 1, 2023, 1, 10), fake.calls[0])
	require.Len(t, bars, 10)
	assert.Equal(t, day(2023, 1, 1), bars[0].Date)
	assert.Equal(t, day(2023, 1, 10), bars[9].Date)
}

func TestGetBarsSecondCallServedFromCache(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	_, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)

	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	assert.Len(t, fake.calls, 1, "repeat request must not reach the source")

	// a contained sub-range is also free
	bars, err = mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 3), day(2023, 1, 5))
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Len(t, fake.calls, 1)
}

func TestGetBarsFetchesOnlyMissingEdges(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	_, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 10), day(2023, 1, 20))
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)

	// widen on both sides: only the two edge gaps are fetched
	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 5), day(2023, 1, 25))
	require.NoError(t, err)
	require.Len(t, fake.calls, 3)
	assert.Equal(t, rng(2023, 1, 5, 2023, 1, 9), fake.calls[1])
	assert.Equal(t, rng(2023, 1, 21, 2023, 1, 25), fake.calls[2])
	assert.Len(t, bars, 21)
}

func TestGetBarsNoDataIsEmptySuccess(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, _ model.DateRange) ([]model.Bar, error) {
			return nil, provider.ErrNoData
		},
	}
	mgr := newManager(t, fake)

	// a weekend with nothing listed: empty result, no error
	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 7), day(2023, 1, 8))
	require.NoError(t, err)
	assert.Empty(t, bars)
	require.Len(t, fake.calls, 1)

	// the empty answer is remembered; the repeat does not hit the source
	bars, err = mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 7), day(2023, 1, 8))
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Len(t, fake.calls, 1)
}

func TestGetBarsPartialFetch(t *testing.T) {
	boom := errors.New("connection reset")
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			if r.Contains(day(2023, 1, 12)) {
				return nil, boom
			}
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	// seed the middle so the wide request has three gaps
	_, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 5), day(2023, 1, 8))
	require.NoError(t, err)
	_, err = mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 15), day(2023, 1, 18))
	require.NoError(t, err)

	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 20))
	var partial *PartialFetchError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Unfetched, 1)
	assert.Equal(t, rng(2023, 1, 9, 2023, 1, 14), partial.Unfetched[0])
	assert.ErrorIs(t, err, boom)

	// everything outside the failed gap is there: 4+4 seeded, 1-4 and 19-20 fetched
	assert.Len(t, bars, 14)
	assert.Equal(t, bars, partial.Bars)

	// the successful edge fetches were persisted: the retry asks only for the
	// failed middle gap
	calls := len(fake.calls)
	_, err = mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 20))
	require.ErrorAs(t, err, &partial)
	require.Len(t, fake.calls, calls+1)
	assert.Equal(t, rng(2023, 1, 9, 2023, 1, 14), fake.calls[calls])
}

func TestGetBarsAuthFailureAborts(t *testing.T) {
	denied := &provider.AuthError{Provider: "polygon", Err: errors.New("status 401")}
	fake := &fakeProvider{
		name: "polygon",
		respond: func(_ string, _ model.DateRange) ([]model.Bar, error) {
			return nil, denied
		},
	}
	mgr := newManager(t, fake)

	// seed the middle so the wide request would have two gaps
	fake.respond = func(_ string, r model.DateRange) ([]model.Bar, error) { return barsFor(r), nil }
	_, err := mgr.GetBars(context.Background(), "AAPL", "polygon", day(2023, 1, 10), day(2023, 1, 15))
	require.NoError(t, err)
	fake.respond = func(_ string, _ model.DateRange) ([]model.Bar, error) { return nil, denied }

	calls := len(fake.calls)
	bars, err := mgr.GetBars(context.Background(), "AAPL", "polygon", day(2023, 1, 1), day(2023, 1, 20))

	// the first gap fails hard; the second gap is never attempted
	assert.Len(t, fake.calls, calls+1)

	var authErr *provider.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Nil(t, bars)

	// nothing was written: coverage still shows only the seeded range
	covered, err := mgr.Coverage("AAPL", "polygon")
	require.NoError(t, err)
	require.Len(t, covered.Ranges(), 1)
	assert.Equal(t, rng(2023, 1, 10, 2023, 1, 15), covered.Ranges()[0])
}

func TestGetBarsAuthFailureAfterProgressIsPartial(t *testing.T) {
	denied := &provider.AuthError{Provider: "polygon", Err: errors.New("status 403")}
	fake := &fakeProvider{
		name: "polygon",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			if r.From.After(day(2023, 1, 10)) {
				return nil, denied
			}
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	// seed the middle: gaps are 1-4 (succeeds) and 11-20 (auth fails)
	_, err := mgr.GetBars(context.Background(), "AAPL", "polygon", day(2023, 1, 5), day(2023, 1, 10))
	require.NoError(t, err)

	bars, err := mgr.GetBars(context.Background(), "AAPL", "polygon", day(2023, 1, 1), day(2023, 1, 20))
	var partial *PartialFetchError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, denied)
	require.Len(t, partial.Unfetched, 1)
	assert.Equal(t, rng(2023, 1, 11, 2023, 1, 20), partial.Unfetched[0])
	assert.Len(t, bars, 10)

	// the completed head gap was persisted before the error surfaced
	covered, err := mgr.Coverage("AAPL", "polygon")
	require.NoError(t, err)
	assert.True(t, covered.ContainsRange(rng(2023, 1, 1, 2023, 1, 10)))
}

func TestGetBarsRateLimitContinuesToNextGap(t *testing.T) {
	throttled := &provider.RateLimitError{Provider: "yahoo", RetryAfter: time.Minute, Err: errors.New("status 429")}
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			if r.To.Before(day(2023, 1, 10)) {
				return nil, throttled
			}
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	// seed the middle: gaps are 1-4 (throttled) and 11-14 (succeeds)
	_, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 5), day(2023, 1, 10))
	require.NoError(t, err)

	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 14))
	var partial *PartialFetchError
	require.ErrorAs(t, err, &partial)

	var rateErr *provider.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
	require.Len(t, partial.Unfetched, 1)
	assert.Equal(t, rng(2023, 1, 1, 2023, 1, 4), partial.Unfetched[0])
	// the later gap was still fetched
	assert.Len(t, bars, 10)
}

func TestGetBarsInvalidRange(t *testing.T) {
	fake := &fakeProvider{name: "yahoo"}
	mgr := newManager(t, fake)

	_, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 2, 1), day(2023, 1, 1))
	var invalid *InvalidRangeError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, fake.calls)
}

func TestGetBarsUnsupportedSource(t *testing.T) {
	fake := &fakeProvider{name: "yahoo"}
	mgr := newManager(t, fake)

	_, err := mgr.GetBars(context.Background(), "AAPL", "bloomberg", day(2023, 1, 1), day(2023, 1, 2))
	var unsupported *UnsupportedSourceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "bloomberg", unsupported.Source)
	assert.Equal(t, []string{"yahoo"}, unsupported.Supported)
}

func TestGetBarsNormalizesArguments(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(ticker string, r model.DateRange) ([]model.Bar, error) {
			assert.Equal(t, "AAPL", ticker)
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	loc := time.FixedZone("UTC+9", 9*3600)
	from := time.Date(2023, 1, 1, 15, 4, 5, 0, loc)
	to := time.Date(2023, 1, 3, 2, 0, 0, 0, loc)

	bars, err := mgr.GetBars(context.Background(), "aapl", "YAHOO", from, to)
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, rng(2023, 1, 1, 2023, 1, 3), fake.calls[0])
	assert.Len(t, bars, 3)
}

func TestGetBarsCanceledContext(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			return barsFor(r), nil
		},
	}
	mgr := newManager(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bars, err := mgr.GetBars(ctx, "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bars)

	var partial *PartialFetchError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Unfetched, 1)
	assert.Equal(t, rng(2023, 1, 1, 2023, 1, 10), partial.Unfetched[0])
	// at most the one aborted attempt reached the source
	assert.LessOrEqual(t, len(fake.calls), 1)
}

func TestGetBarsRecoversFromCorruptArchive(t *testing.T) {
	fake := &fakeProvider{
		name: "yahoo",
		respond: func(_ string, r model.DateRange) ([]model.Bar, error) {
			return barsFor(r), nil
		},
	}
	dir := t.TempDir()
	st := store.New(dir, store.NewCodec("json"))
	mgr := New(st, map[string]provider.HistoryProvider{"yahoo": fake}, 0, nil)

	_, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.NoError(t, err)

	// clobber the archive on disk
	corruptArchive(t, dir, "yahoo", "AAPL.json")

	bars, err := mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	// the whole range was re-fetched and the archive rewritten
	assert.Len(t, fake.calls, 2)

	bars, err = mgr.GetBars(context.Background(), "AAPL", "yahoo", day(2023, 1, 1), day(2023, 1, 10))
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	assert.Len(t, fake.calls, 2)
}

func TestSources(t *testing.T) {
	st := store.New(t.TempDir(), store.NewCodec("json"))
	mgr := New(st, map[string]provider.HistoryProvider{
		"Yahoo":   &fakeProvider{name: "yahoo"},
		"polygon": &fakeProvider{name: "polygon"},
	}, 0, nil)
	assert.Equal(t, []string{"polygon", "yahoo"}, mgr.Sources())
}

func TestCoverageUnsupportedSource(t *testing.T) {
	mgr := newManager(t, &fakeProvider{name: "yahoo"})
	_, err := mgr.Coverage("AAPL", "bloomberg")
	var unsupported *UnsupportedSourceError
	require.ErrorAs(t, err, &unsupported)
}

func corruptArchive(t *testing.T, dir, source, file string) {
	t.Helper()
	path := filepath.Join(dir, source, file)
	require.NoError(t, os.WriteFile(path, []byte("{definitely not json"), 0o644))
}
