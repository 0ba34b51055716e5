package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// coverageCmd prints which date ranges are already cached for a ticker.
type coverageCmd struct {
	config string
	ticker string
	source string
}

func (*coverageCmd) Name() string     { return "coverage" }
func (*coverageCmd) Synopsis() string { return "show cached date ranges for a ticker" }
func (*coverageCmd) Usage() string {
	return `coverage -ticker AAPL -source polygon:
  Print the date ranges present in the local archive, without any network access.
`
}

func (c *coverageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "barcache.yaml", "path to config file")
	f.StringVar(&c.ticker, "ticker", "", "ticker symbol (required)")
	f.StringVar(&c.source, "source", "yahoo", "data source (yahoo, polygon, ibkr)")
}

func (c *coverageCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.ticker == "" {
		fmt.Fprintln(os.Stderr, "coverage: -ticker is required")
		return subcommands.ExitUsageError
	}

	a, err := initApp(c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "coverage:", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	covered, err := a.Manager.Coverage(c.ticker, c.source)
	if err != nil {
		fmt.Fprintln(os.Stderr, "coverage:", err)
		return subcommands.ExitFailure
	}
	if covered.IsEmpty() {
		fmt.Println("(no cached data)")
		return subcommands.ExitSuccess
	}
	for _, r := range covered.Ranges() {
		fmt.Printf("%s  (%d days)\n", r, r.Days())
	}
	return subcommands.ExitSuccess
}
