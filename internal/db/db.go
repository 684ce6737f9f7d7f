package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"restaurant-be/internal/config"

	_ "github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// NewDatabase opens a Postgres pool and verifies it with a ping.
func NewDatabase(cfg *config.Config) (*sql.DB, error) {
	return newDatabaseWithDriver(cfg, "postgres")
}

func newDatabaseWithDriver(cfg *config.Config, driver string) (*sql.DB, error) {
	db, err := sql.Open(driver, buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

// buildDSN renders a lib/pq keyword DSN. Values are single-quoted so
// passwords with spaces or quotes survive.
func buildDSN(cfg *config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	pairs := []struct{ k, v string }{
		{"host", cfg.DBHost},
		{"port", cfg.DBPort},
		{"user", cfg.DBUser},
		{"password", cfg.DBPassword},
		{"dbname", cfg.DBName},
		{"sslmode", sslMode},
		{"application_name", "restaurant-be"},
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteDSN(p.v))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
