//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/ayolclub/travel-auth/internal/app"
)

// InitializeApp assembles the API process. ctx bounds exporter startup.
func InitializeApp(ctx context.Context) (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

// InitializeMigrationRunner opens only config and the database, for the
// migrate and maintenance tools.
func InitializeMigrationRunner() (*MigrationRunner, error) {
	panic(wire.Build(ConfigSet, provideOpenDB, NewMigrationRunner))
}
