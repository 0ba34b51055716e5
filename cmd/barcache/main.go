package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	"barcache/internal/app"
	"barcache/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&getCmd{}, "data")
	subcommands.Register(&coverageCmd{}, "data")
	subcommands.Register(&refreshCmd{}, "data")
	subcommands.Register(&serveCmd{}, "server")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// initApp builds the App for a command and switches logging to the
// configured level.
func initApp(configPath string) (*App, error) {
	a, err := InitializeApp(app.ConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slogx.NewDefault(a.Config.LogLevel))
	return a, nil
}
