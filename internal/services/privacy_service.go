package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
	"github.com/veilora/veil-oracle-go/internal/privacy"
)

// PrivacyServiceConfig drives the privacy layer's disclosure and replay
// policies.
type PrivacyServiceConfig struct {
	PriceRangeMarginPercent float64
	ProofTimeout            time.Duration
	NonceReplayWindow       time.Duration
	DisableRangeWidening    bool
}

// PrivacyService layers commitments, range proofs, and response encryption
// over the oracle service. Every private call produces exactly one audit
// entry and one metrics update, success or failure.
type PrivacyService struct {
	oracle *OracleService
	prover *privacy.RangeProver
	keys   *privacy.BoxKeyPair
	audit  *AuditService
	nonces *nonceGuard
	config PrivacyServiceConfig
	logger *logrus.Logger
}

// NewPrivacyService creates the privacy layer over an oracle service.
func NewPrivacyService(
	oracle *OracleService,
	prover *privacy.RangeProver,
	keys *privacy.BoxKeyPair,
	audit *AuditService,
	cfg PrivacyServiceConfig,
	logger *logrus.Logger,
) *PrivacyService {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ProofTimeout <= 0 {
		cfg.ProofTimeout = 30 * time.Second
	}
	return &PrivacyService{
		oracle: oracle,
		prover: prover,
		keys:   keys,
		audit:  audit,
		nonces: newNonceGuard(cfg.NonceReplayWindow),
		config: cfg,
		logger: logger,
	}
}

// PublicKeyHex returns the oracle's encryption public key, which requesters
// need to decrypt sealed prices.
func (s *PrivacyService) PublicKeyHex() string {
	return s.keys.PublicKeyHex()
}

// Metrics returns a snapshot of the privacy counters.
func (s *PrivacyService) Metrics() models.PrivacyMetrics {
	return s.audit.Metrics()
}

// AuditEntries returns up to limit recent audit entries, oldest first.
func (s *PrivacyService) AuditEntries(limit int) []models.AuditLogEntry {
	return s.audit.Entries(limit)
}

// GetPrivatePrice resolves a private query: consensus price, commitment,
// controlled price-range disclosure, and optionally a range proof and an
// encrypted price, per the requested privacy parameters.
func (s *PrivacyService) GetPrivatePrice(ctx context.Context, query models.PrivateQuery) (*models.PrivateOracleResponse, error) {
	start := time.Now()
	s.audit.RecordPrivateQuery(query.Level())

	response, err := s.getPrivatePrice(ctx, query)

	entry := models.AuditLogEntry{
		Timestamp:     time.Now().UTC(),
		Operation:     "get_private_price",
		FeedID:        s.auditFeedID(query),
		RequesterHash: RequesterHash(query.RequesterPublicKey),
		PrivacyLevel:  query.Level(),
		Success:       err == nil,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if err != nil {
		if code, ok := models.CodeOf(err); ok {
			entry.ErrorCode = string(code)
		} else {
			entry.ErrorCode = string(models.ErrSourceUnavailable)
		}
	}
	s.audit.Record(ctx, entry)
	return response, err
}

func (s *PrivacyService) getPrivatePrice(ctx context.Context, query models.PrivateQuery) (*models.PrivateOracleResponse, error) {
	feed, err := s.validateQuery(query)
	if err != nil {
		return nil, err
	}

	if !s.nonces.remember(feed.FeedID, query.Nonce) {
		return nil, models.NewOracleErrorf(models.ErrInvalidQuery,
			"nonce already used for feed %s within the replay window", feed.FeedID)
	}

	priceResponse, err := s.oracle.GetPublicPrice(ctx, models.PriceQuery{
		FeedID:        feed.FeedID,
		MaxStaleness:  query.PriceConstraints.MaxStaleness,
		MinConfidence: feed.MinConfidence,
		AllowCached:   true,
	})
	if err != nil {
		return nil, err
	}
	price := priceResponse.Price

	commitment, err := privacy.GenerateCommitment(price, feed.Decimals, query.Nonce)
	if err != nil {
		return nil, err
	}

	priceRange := s.priceRange(price, feed.Decimals)
	response := &models.PrivateOracleResponse{
		FeedID:     feed.FeedID,
		PriceRange: priceRange,
		Confidence: priceResponse.Confidence,
		Commitment: commitment,
		Nonce:      query.Nonce,
		ProducedAt: time.Now().UTC(),
	}

	if query.PrivacyParams.RequireZKProof {
		proof, err := s.generateProof(ctx, query, feed, price, priceRange, commitment)
		if err != nil {
			s.audit.RecordProofFailure()
			return nil, err
		}
		response.ZKProof = proof
	}

	if query.PrivacyParams.EncryptResponse {
		ciphertext, err := privacy.EncryptPrice([]byte(price.String()), query.RequesterPublicKey, s.keys, query.Nonce)
		if err != nil {
			s.audit.RecordEncryptionFailure()
			return nil, err
		}
		s.audit.RecordEncryptionSuccess()
		response.EncryptedPrice = ciphertext
	} else {
		response.Price = &price
	}

	s.logger.WithFields(logrus.Fields{
		"feed_id":       feed.FeedID,
		"privacy_level": string(query.Level()),
		"has_proof":     response.ZKProof != nil,
		"encrypted":     len(response.EncryptedPrice) > 0,
	}).Info("Private price query served")
	return response, nil
}

// VerifyProof checks a previously issued proof against the supplied public
// inputs. Verification attempts are audited but do not count as private
// queries.
func (s *PrivacyService) VerifyProof(ctx context.Context, proof *models.ZKProof, publicInputs []string) (bool, error) {
	start := time.Now()
	valid, err := s.prover.VerifyProof(proof, publicInputs)

	entry := models.AuditLogEntry{
		Timestamp:  time.Now().UTC(),
		Operation:  "verify_proof",
		Success:    valid && err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		if code, ok := models.CodeOf(err); ok {
			entry.ErrorCode = string(code)
		}
	}
	s.audit.Record(ctx, entry)
	return valid, err
}

// validateQuery rejects malformed queries before any source is contacted.
func (s *PrivacyService) validateQuery(query models.PrivateQuery) (models.FeedConfig, error) {
	if strings.TrimSpace(query.FeedID) == "" {
		return models.FeedConfig{}, models.NewOracleError(models.ErrInvalidQuery, "feed id is required")
	}
	feed, ok := s.oracle.Feed(query.FeedID)
	if !ok {
		return models.FeedConfig{}, models.NewOracleErrorf(models.ErrInvalidQuery, "unknown feed %q", query.FeedID)
	}
	if strings.TrimSpace(query.Nonce) == "" {
		return models.FeedConfig{}, models.NewOracleError(models.ErrInvalidQuery, "nonce is required")
	}
	if query.PrivacyParams.EncryptResponse {
		if _, err := privacy.ParsePublicKey(query.RequesterPublicKey); err != nil {
			return models.FeedConfig{}, models.WrapOracleError(models.ErrInvalidQuery,
				"encryption requested with unusable requester public key", err)
		}
	}
	min, max := query.PriceConstraints.MinPrice, query.PriceConstraints.MaxPrice
	if min != nil && max != nil && max.LessThan(*min) {
		return models.FeedConfig{}, models.NewOracleError(models.ErrInvalidQuery,
			"price constraint max below min")
	}
	return feed, nil
}

// generateProof proves the committed price lies within the requester's
// constraints when given, or within the disclosed range otherwise. Proving
// runs off the request goroutine so the proof timeout can cut it short.
func (s *PrivacyService) generateProof(
	ctx context.Context,
	query models.PrivateQuery,
	feed models.FeedConfig,
	price decimal.Decimal,
	priceRange models.PriceRange,
	commitment models.Commitment,
) (*models.ZKProof, error) {
	min, max := priceRange.Min, priceRange.Max
	if query.PriceConstraints.MinPrice != nil {
		min = *query.PriceConstraints.MinPrice
	}
	if query.PriceConstraints.MaxPrice != nil {
		max = *query.PriceConstraints.MaxPrice
	}

	req := privacy.ProofRequest{
		FeedID:     feed.FeedID,
		Price:      price,
		Decimals:   feed.Decimals,
		Nonce:      query.Nonce,
		MinPrice:   min,
		MaxPrice:   max,
		Commitment: commitment,
	}

	type proofOutcome struct {
		proof *models.ZKProof
		err   error
	}
	done := make(chan proofOutcome, 1)
	start := time.Now()
	go func() {
		proof, err := s.prover.GenerateProof(req)
		done <- proofOutcome{proof, err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			return nil, outcome.err
		}
		s.audit.RecordProofSuccess(time.Since(start))
		return outcome.proof, nil
	case <-ctx.Done():
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "proof generation cancelled", ctx.Err())
	case <-time.After(s.config.ProofTimeout):
		return nil, models.NewOracleErrorf(models.ErrProofGenerationFailed,
			"proof generation exceeded %s", s.config.ProofTimeout)
	}
}

// priceRange widens the true price by the configured margin on both sides.
// The range always covers the true price; it collapses to a point only when
// widening is explicitly disabled.
func (s *PrivacyService) priceRange(price decimal.Decimal, decimals int32) models.PriceRange {
	if s.config.DisableRangeWidening {
		return models.PriceRange{Min: price, Max: price}
	}
	margin := price.Mul(decimal.NewFromFloat(s.config.PriceRangeMarginPercent)).Div(decimal.NewFromInt(100))
	min := price.Sub(margin)
	if min.IsNegative() {
		min = decimal.Zero
	}
	return models.PriceRange{
		Min: min.Truncate(decimals),
		Max: price.Add(margin).RoundUp(decimals),
	}
}

// auditFeedID hashes the feed id in the audit trail when the requester asked
// for source anonymization.
func (s *PrivacyService) auditFeedID(query models.PrivateQuery) string {
	if !query.PrivacyParams.AnonymizeSource {
		return query.FeedID
	}
	sum := sha256.Sum256([]byte(query.FeedID))
	return "feed:" + hex.EncodeToString(sum[:8])
}
