package main

import (
	"barcache/internal/app"
	"barcache/internal/cache"
	"barcache/internal/journal"
	"barcache/internal/provider"
	"barcache/internal/store"
)

// App holds application dependencies built by Wire.
type App struct {
	Config    *app.Config
	Store     *store.Store
	Journal   journal.Journal
	Providers map[string]provider.HistoryProvider
	Manager   *cache.Manager
}

// Close releases provider connections and the journal.
func (a *App) Close() error {
	var firstErr error
	for _, p := range a.Providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Journal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
