package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilora/veil-oracle-go/internal/models"
)

func TestPostgresAuditArchiver_InsertsEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := models.AuditLogEntry{
		Timestamp:     time.Now().UTC(),
		Operation:     "get_private_price",
		FeedID:        "ETH/USD",
		RequesterHash: RequesterHash("requester-key"),
		PrivacyLevel:  models.PrivacyLevelHigh,
		Success:       true,
		DurationMs:    12,
	}

	mock.ExpectExec("INSERT INTO privacy_audit_log").
		WithArgs(entry.Timestamp, entry.Operation, entry.FeedID, entry.RequesterHash,
			string(entry.PrivacyLevel), entry.Success, entry.ErrorCode, entry.DurationMs).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	archiver := NewPostgresAuditArchiver(mock, quietLogger())
	require.NoError(t, archiver.Archive(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditArchiver_SurfacesDatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO privacy_audit_log").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	archiver := NewPostgresAuditArchiver(mock, quietLogger())
	err = archiver.Archive(context.Background(), models.AuditLogEntry{Operation: "verify_proof"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to archive audit entry")
}
