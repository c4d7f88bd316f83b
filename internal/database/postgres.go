package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/config"
)

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresConnection(cfg config.DatabaseConfig) (*PostgresDB, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logrus.Info("PostgreSQL connection closed")
	}
}

func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// EnsureAuditSchema creates the audit archive table if it does not exist, so
// a fresh deployment can archive entries without a separate migration step.
func (db *PostgresDB) EnsureAuditSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS privacy_audit_log (
			id             BIGSERIAL PRIMARY KEY,
			timestamp      TIMESTAMPTZ NOT NULL,
			operation      TEXT NOT NULL,
			feed_id        TEXT NOT NULL DEFAULT '',
			requester_hash TEXT NOT NULL DEFAULT '',
			privacy_level  TEXT NOT NULL DEFAULT '',
			success        BOOLEAN NOT NULL,
			error_code     TEXT NOT NULL DEFAULT '',
			duration_ms    BIGINT NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}
