// Package main provides the entry point for the trapper cockpit API server.
package main

import (
	"context"
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/felinebridge/cockpit/domain/dedup"
	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/domain/health"
	"github.com/felinebridge/cockpit/domain/scheduler"
	"github.com/felinebridge/cockpit/domain/tracing"
	"github.com/felinebridge/cockpit/internal/config"
	"github.com/felinebridge/cockpit/internal/database"
	"github.com/felinebridge/cockpit/internal/migrate"
	"github.com/felinebridge/cockpit/internal/server"
	"github.com/felinebridge/cockpit/pkg/auth"
	"github.com/felinebridge/cockpit/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,

		// Schema migrations before the listener comes up
		fx.Invoke(runMigrations),

		server.Module,
		tracing.Module,

		// Auth module
		auth.Module,

		// Domain modules
		health.Module,
		entities.Module,
		dedup.Module,

		// Scheduler module (queue stats refresh, orphan candidate sweep)
		scheduler.Module,
	).Run()
}

func runMigrations(lc fx.Lifecycle, cfg *config.Config, migrator *migrate.Migrator, log *slog.Logger) {
	if !cfg.AutoMigrate {
		log.Info("auto-migrate disabled, skipping schema migrations")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return migrator.Up(ctx)
		},
	})
}
