package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// RequesterHash derives the one-way identity stored in audit entries. Raw
// requester keys never appear in the log.
func RequesterHash(requesterPublicKey string) string {
	if requesterPublicKey == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(requesterPublicKey))
	return hex.EncodeToString(sum[:])
}

// AuditService is the sole writer of the privacy audit trail. It keeps the
// most recent entries in a fixed-size ring buffer and maintains the running
// privacy metrics. All methods are safe for concurrent use.
type AuditService struct {
	logger   *logrus.Logger
	archiver AuditArchiver

	mu      sync.Mutex
	entries []models.AuditLogEntry
	next    int
	count   int
	metrics models.PrivacyMetrics
}

// NewAuditService creates an audit service retaining at most maxEntries
// entries in memory. A nil archiver disables long-term persistence.
func NewAuditService(maxEntries int, archiver AuditArchiver, logger *logrus.Logger) *AuditService {
	if logger == nil {
		logger = logrus.New()
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &AuditService{
		logger:   logger,
		archiver: archiver,
		entries:  make([]models.AuditLogEntry, maxEntries),
		metrics: models.PrivacyMetrics{
			PrivacyLevelUsage: make(map[string]int64),
		},
	}
}

// Record appends an entry, evicting the oldest once the buffer is full, and
// forwards it to the archiver without blocking the caller.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.count < len(s.entries) {
		s.count++
	}
	s.mu.Unlock()

	if s.archiver != nil {
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.archiver.Archive(archiveCtx, entry); err != nil {
				s.logger.WithError(err).WithField("operation", entry.Operation).Warn("Failed to archive audit entry")
			}
		}()
	}
}

// Entries returns up to limit of the most recent entries, oldest first. A
// non-positive limit returns everything retained.
func (s *AuditService) Entries(limit int) []models.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]models.AuditLogEntry, 0, limit)
	start := s.next - limit
	if start < 0 {
		start += len(s.entries)
	}
	for i := 0; i < limit; i++ {
		out = append(out, s.entries[(start+i)%len(s.entries)])
	}
	return out
}

// RecordPrivateQuery counts one private query at the given privacy level.
func (s *AuditService) RecordPrivateQuery(level models.PrivacyLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.TotalPrivateQueries++
	s.metrics.PrivacyLevelUsage[string(level)]++
}

// RecordProofSuccess folds one proof generation time into the running
// average using an incremental mean, so the counter never needs the full
// history.
func (s *AuditService) RecordProofSuccess(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.SuccessfulProofs++
	ms := float64(elapsed.Microseconds()) / 1000.0
	s.metrics.AverageProofTimeMs += (ms - s.metrics.AverageProofTimeMs) / float64(s.metrics.SuccessfulProofs)
}

// RecordProofFailure counts one failed proof generation.
func (s *AuditService) RecordProofFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.FailedProofs++
}

// RecordEncryptionSuccess counts one successful response encryption.
func (s *AuditService) RecordEncryptionSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EncryptionSuccesses++
}

// RecordEncryptionFailure counts one failed response encryption.
func (s *AuditService) RecordEncryptionFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EncryptionFailures++
}

// Metrics returns a snapshot of the privacy counters. The returned value is
// a deep copy; callers cannot mutate the live metrics through it.
func (s *AuditService) Metrics() models.PrivacyMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.metrics
	snapshot.PrivacyLevelUsage = make(map[string]int64, len(s.metrics.PrivacyLevelUsage))
	for level, n := range s.metrics.PrivacyLevelUsage {
		snapshot.PrivacyLevelUsage[level] = n
	}
	return snapshot
}
