package app

import (
	"fmt"

	"barcache/internal/cache"
	"barcache/internal/journal"
	"barcache/internal/provider"
	"barcache/internal/provider/ibkr"
	"barcache/internal/provider/polygon"
	"barcache/internal/provider/yahoo"
	"barcache/internal/store"
)

// ConfigPath is the -config flag value, distinguished for Wire.
type ConfigPath string

// ProvideConfig loads config from the given path (for Wire).
func ProvideConfig(path ConfigPath) (*Config, error) {
	return Load(string(path))
}

// ProvideCodec creates the archive codec from config (for Wire).
// Returns an error if SaveFormat is not supported.
func ProvideCodec(cfg *Config) (store.Codec, error) {
	c := store.NewCodec(cfg.SaveFormat)
	if c == nil {
		return nil, fmt.Errorf("unsupported save_format %q (use: parquet, json, csv)", cfg.SaveFormat)
	}
	return c, nil
}

// ProvideStore creates the archive store (for Wire).
func ProvideStore(cfg *Config, codec store.Codec) *store.Store {
	return store.New(cfg.DataDir, codec)
}

// ProvideJournal creates the fetch journal: SQLite when a path is
// configured, no-op otherwise (for Wire).
func ProvideJournal(cfg *Config) (journal.Journal, error) {
	if cfg.Journal.SQLitePath == "" {
		return journal.NewNoop(), nil
	}
	return journal.NewSQLite(cfg.Journal.SQLitePath)
}

// ProvideProviders builds the source registry from config (for Wire).
// Yahoo is always available (no credentials); polygon and ibkr join when
// configured. At least one source must end up registered.
func ProvideProviders(cfg *Config) (map[string]provider.HistoryProvider, error) {
	providers := make(map[string]provider.HistoryProvider)

	y := yahoo.New(cfg.Providers.Yahoo.Proxy)
	providers[y.Name()] = y

	if key := cfg.Providers.Polygon.APIKey; key != "" {
		p, err := polygon.New(key)
		if err != nil {
			return nil, err
		}
		providers[p.Name()] = p
	}
	if gw := cfg.Providers.IBKR.GatewayURL; gw != "" {
		i := ibkr.New(gw)
		providers[i.Name()] = i
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no data sources configured")
	}
	return providers, nil
}

// ProvideManager assembles the cache coordinator (for Wire).
func ProvideManager(cfg *Config, st *store.Store, providers map[string]provider.HistoryProvider, jnl journal.Journal) *cache.Manager {
	return cache.New(st, providers, cfg.FetchDelay(), jnl)
}
