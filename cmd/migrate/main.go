package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"restaurant-be/internal/config"
	"restaurant-be/internal/db"
	"restaurant-be/internal/logger"

	"go.uber.org/zap"
)

func main() {
	mode := flag.String("mode", "up", "migration mode: up or down")
	dir := flag.String("dir", "./migrations", "directory holding *.sql migrations")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	conn, err := db.NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("failed to connect db", zap.Error(err))
	}
	defer conn.Close()

	if err := run(context.Background(), conn, *mode, *dir); err != nil {
		logger.L().Fatal("migration failed", zap.Error(err))
	}
}

func run(ctx context.Context, conn *sql.DB, mode, migrationsDir string) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	slices.Sort(files)

	switch mode {
	case "up":
		return migrateUp(ctx, conn, files)
	case "down":
		return migrateDown(ctx, conn, files)
	default:
		return fmt.Errorf("unknown mode: %s (use 'up' or 'down')", mode)
	}
}

// migrateUp applies every pending file in order. Each file and its
// schema_migrations row commit together.
func migrateUp(ctx context.Context, conn *sql.DB, files []string) error {
	log := logger.L().With(zap.String("mode", "up"))
	tx := db.NewTransactor(conn, nil)

	applied := 0
	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		err := conn.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			log.Debug("skipping applied migration", zap.String("version", version))
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		upSQL := extractMigrationPart(string(content), "Up")

		log.Info("applying migration", zap.String("version", version))
		err = tx.WithinTx(ctx, func(ctx context.Context) error {
			q := db.Conn(ctx, conn)
			if _, err := q.ExecContext(ctx, upSQL); err != nil {
				return err
			}
			_, err := q.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", version, err)
		}
		applied++
	}

	log.Info("migrations applied", zap.Int("count", applied))
	return nil
}

// migrateDown rolls back the most recently applied migration only.
func migrateDown(ctx context.Context, conn *sql.DB, files []string) error {
	log := logger.L().With(zap.String("mode", "down"))

	var lastVersion string
	err := conn.QueryRowContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`,
	).Scan(&lastVersion)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}

	idx := slices.IndexFunc(files, func(f string) bool { return filepath.Base(f) == lastVersion })
	if idx < 0 {
		return fmt.Errorf("migration file not found for version: %s", lastVersion)
	}

	content, err := os.ReadFile(files[idx])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", files[idx], err)
	}
	downSQL := extractMigrationPart(string(content), "Down")

	log.Info("rolling back migration", zap.String("version", lastVersion))
	err = db.NewTransactor(conn, nil).WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, conn)
		if _, err := q.ExecContext(ctx, downSQL); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, lastVersion)
		return err
	})
	if err != nil {
		return fmt.Errorf("rollback %s failed: %w", lastVersion, err)
	}

	return nil
}

// extractMigrationPart returns the lines between "-- +migrate <section>"
// and the next marker.
func extractMigrationPart(content string, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "-- +migrate") {
			if inPart {
				break
			}
			inPart = strings.Contains(line, "-- +migrate "+section)
			continue
		}
		if inPart {
			part.WriteString(line + "\n")
		}
	}
	return part.String()
}
