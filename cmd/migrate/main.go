package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"CoverPool/internal/observability"
	"CoverPool/internal/persistence"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status>")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list migrations and when they were applied")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  COVERPOOL_DATABASE_URL    - Postgres connection string")
		fmt.Println("  COVERPOOL_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")

	dbURL := os.Getenv("COVERPOOL_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost:5432/coverpool?sslmode=disable"
	}
	migrationsDir := os.Getenv("COVERPOOL_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, migrationsDir, logger)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration status")
		}
		for _, st := range statuses {
			applied := "pending"
			if st.Applied {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-40s %s\n", st.Version, st.File, applied)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}
