package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// PgxExecutor is the slice of the pgx pool API the archiver needs. Both
// *pgxpool.Pool and pgxmock satisfy it.
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AuditArchiver persists audit entries beyond the in-memory ring buffer.
type AuditArchiver interface {
	Archive(ctx context.Context, entry models.AuditLogEntry) error
}

// PostgresAuditArchiver writes audit entries to the privacy_audit_log table.
// Archive failures are surfaced to the caller but never block query serving;
// the in-memory ring buffer remains the source of truth for recent entries.
type PostgresAuditArchiver struct {
	db     PgxExecutor
	logger *logrus.Logger
}

// NewPostgresAuditArchiver creates a Postgres-backed archiver.
func NewPostgresAuditArchiver(db PgxExecutor, logger *logrus.Logger) *PostgresAuditArchiver {
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresAuditArchiver{db: db, logger: logger}
}

// Archive inserts one audit entry.
func (a *PostgresAuditArchiver) Archive(ctx context.Context, entry models.AuditLogEntry) error {
	query := `
		INSERT INTO privacy_audit_log (
			timestamp, operation, feed_id, requester_hash,
			privacy_level, success, error_code, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := a.db.Exec(ctx, query,
		entry.Timestamp,
		entry.Operation,
		entry.FeedID,
		entry.RequesterHash,
		string(entry.PrivacyLevel),
		entry.Success,
		entry.ErrorCode,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to archive audit entry: %w", err)
	}
	return nil
}
