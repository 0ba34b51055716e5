package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/gorilla/mux"

	"barcache/internal/httpapi"
	"barcache/internal/refresh"
)

// serveCmd runs the HTTP API and, when configured, the scheduled refresher.
type serveCmd struct {
	config string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the JSON API (and scheduled refresh)" }
func (*serveCmd) Usage() string {
	return `serve:
  Serve bars and coverage over HTTP; start the cron refresher when configured.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "barcache.yaml", "path to config file")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := initApp(c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "serve:", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	router := mux.NewRouter()
	httpapi.NewAPI(a.Manager).SetupRoutes(router)
	srv := &http.Server{
		Addr:         a.Config.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // cold requests may wait out provider pacing
	}

	var refresher *refresh.Refresher
	if spec := a.Config.Refresh.Cron; spec != "" && len(a.Config.Refresh.Tickers) > 0 {
		refresher = refresh.New(a.Manager, a.Config.Refresh.Source, a.Config.Refresh.Tickers, a.Config.Refresh.LookbackDays)
		if err := refresher.Register(spec); err != nil {
			fmt.Fprintln(os.Stderr, "serve: register refresh:", err)
			return subcommands.ExitFailure
		}
		refresher.Start()
		defer refresher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "serve:", err)
			return subcommands.ExitFailure
		}
	case sig := <-signals:
		slog.Info("received signal, graceful shutdown", "sig", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}
	return subcommands.ExitSuccess
}
