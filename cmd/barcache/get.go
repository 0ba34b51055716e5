package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"barcache/internal/cache"
	"barcache/internal/model"
)

// getCmd fetches bars for one ticker and range, hitting the network only
// for sub-ranges the local archive does not cover yet.
type getCmd struct {
	config string
	ticker string
	source string
	start  string
	end    string
	output string
}

func (*getCmd) Name() string     { return "get" }
func (*getCmd) Synopsis() string { return "fetch daily bars for a ticker and date range" }
func (*getCmd) Usage() string {
	return `get -ticker AAPL -source polygon -start 2023-01-01 -end 2023-06-30 [-output table|json]:
  Print daily bars, fetching only uncached sub-ranges from the source.
`
}

func (c *getCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "barcache.yaml", "path to config file")
	f.StringVar(&c.ticker, "ticker", "", "ticker symbol (required)")
	f.StringVar(&c.source, "source", "yahoo", "data source (yahoo, polygon, ibkr)")
	f.StringVar(&c.start, "start", "", "start date YYYY-MM-DD (required)")
	f.StringVar(&c.end, "end", "", "end date YYYY-MM-DD (required)")
	f.StringVar(&c.output, "output", "table", "output format: table or json")
}

func (c *getCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.ticker == "" || c.start == "" || c.end == "" {
		fmt.Fprintln(os.Stderr, "get: -ticker, -start and -end are required")
		return subcommands.ExitUsageError
	}
	start, err := model.ParseDate(c.start)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get:", err)
		return subcommands.ExitUsageError
	}
	end, err := model.ParseDate(c.end)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get:", err)
		return subcommands.ExitUsageError
	}

	a, err := initApp(c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get:", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	bars, err := a.Manager.GetBars(ctx, c.ticker, c.source, start, end)
	status := subcommands.ExitSuccess
	if err != nil {
		var partial *cache.PartialFetchError
		if errors.As(err, &partial) {
			// partial data is still worth printing; the exit code flags
			// that some sub-ranges are missing
			bars = partial.Bars
			fmt.Fprintln(os.Stderr, "get: warning:", err)
			status = subcommands.ExitFailure
		} else {
			fmt.Fprintln(os.Stderr, "get:", err)
			return subcommands.ExitFailure
		}
	}

	if err := printBars(bars, c.output); err != nil {
		fmt.Fprintln(os.Stderr, "get:", err)
		return subcommands.ExitFailure
	}
	return status
}

func printBars(bars []model.Bar, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bars)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
		for _, b := range bars {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
				model.FormatDate(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
