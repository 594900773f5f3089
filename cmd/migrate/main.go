// Package main runs schema migrations outside the server lifecycle, for
// deploy pipelines and local resets.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/felinebridge/cockpit/internal/config"
	"github.com/felinebridge/cockpit/internal/migrate"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.NewConfig(log)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}

	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, log)
	ctx := context.Background()

	switch command {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down|status]\n")
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
}
