// Package refresh keeps a configured watchlist topped up: on a cron
// schedule each (ticker, source) archive is extended to yesterday, riding
// the cache so that only the actual gap is fetched.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"barcache/internal/cache"
	"barcache/internal/model"
)

// Distinct archive keys may refresh concurrently (the store locks per key);
// keep the fan-out modest so one run can't monopolize a slow source.
const maxConcurrentTickers = 4

// Refresher schedules and runs watchlist top-ups.
type Refresher struct {
	cron     *cron.Cron
	mgr      *cache.Manager
	source   string
	tickers  []string
	lookback int // days of history to maintain
}

// New creates a Refresher for the given watchlist. lookbackDays bounds how
// far back the maintained window starts.
func New(mgr *cache.Manager, source string, tickers []string, lookbackDays int) *Refresher {
	return &Refresher{
		cron:     cron.New(),
		mgr:      mgr,
		source:   source,
		tickers:  tickers,
		lookback: lookbackDays,
	}
}

// Register adds the refresh job under the given cron spec.
func (r *Refresher) Register(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			slog.Error("scheduled refresh finished with errors", "error", err)
		}
	})
	return err
}

// Start starts the cron scheduler.
func (r *Refresher) Start() {
	r.cron.Start()
	slog.Info("refresher started", "source", r.source, "tickers", len(r.tickers))
}

// Stop stops the scheduler gracefully.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	slog.Info("refresher stopped")
}

// RunOnce refreshes every watchlist ticker up to yesterday. Today's bar is
// never requested: it is not final until the session closes.
func (r *Refresher) RunOnce(ctx context.Context) error {
	window := r.Window(time.Now())
	slog.Info("refresh run", "source", r.source, "tickers", len(r.tickers), "window", window.String())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTickers)
	for _, ticker := range r.tickers {
		g.Go(func() error {
			bars, err := r.mgr.GetBars(ctx, ticker, r.source, window.From, window.To)
			if err != nil {
				var partial *cache.PartialFetchError
				if errors.As(err, &partial) {
					slog.Warn("refresh left gaps", "ticker", ticker, "unfetched", len(partial.Unfetched), "error", partial.Err)
					return nil // partial progress is persisted, retried next run
				}
				slog.Error("refresh failed", "ticker", ticker, "error", err)
				return err
			}
			slog.Debug("refreshed", "ticker", ticker, "bars", len(bars))
			return nil
		})
	}
	return g.Wait()
}

// Window returns the maintained range as of now: lookback days ending
// yesterday.
func (r *Refresher) Window(now time.Time) model.DateRange {
	yesterday := model.PrevDay(now)
	return model.DateRange{
		From: yesterday.AddDate(0, 0, -(r.lookback - 1)),
		To:   yesterday,
	}
}
