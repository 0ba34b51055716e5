package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"barcache/internal/refresh"
)

// refreshCmd runs one watchlist top-up immediately.
type refreshCmd struct {
	config string
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "top up the configured watchlist now" }
func (*refreshCmd) Usage() string {
	return `refresh:
  Extend every watchlist archive up to yesterday, fetching only the gaps.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "barcache.yaml", "path to config file")
}

func (c *refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := initApp(c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "refresh:", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if len(a.Config.Refresh.Tickers) == 0 {
		fmt.Fprintln(os.Stderr, "refresh: no watchlist tickers configured")
		return subcommands.ExitUsageError
	}

	r := refresh.New(a.Manager, a.Config.Refresh.Source, a.Config.Refresh.Tickers, a.Config.Refresh.LookbackDays)
	if err := r.RunOnce(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "refresh:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
