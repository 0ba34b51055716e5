//go:build wireinject
// +build wireinject

package main

import (
	"barcache/internal/app"

	"github.com/google/wire"
)

// InitializeApp builds the App via Wire. Caller must call a.Close() when done.
func InitializeApp(configPath app.ConfigPath) (*App, error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideCodec,
		app.ProvideStore,
		app.ProvideJournal,
		app.ProvideProviders,
		app.ProvideManager,
		wire.Struct(new(App), "*"),
	)
	return nil, nil
}
