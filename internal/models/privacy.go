package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrivacyLevel is a policy bundle controlling which privacy mechanisms are
// mandatory for a private query.
type PrivacyLevel string

const (
	PrivacyLevelStandard PrivacyLevel = "standard" // commitment + price range
	PrivacyLevelHigh     PrivacyLevel = "high"     // + zero-knowledge proof
	PrivacyLevelMaximum  PrivacyLevel = "maximum"  // + encryption + anonymized sources
)

// Commitment is a binding, hiding digest standing in for a hidden price.
// The digest is hex-encoded on the wire.
type Commitment struct {
	Digest   string `json:"digest"`
	SchemeID string `json:"scheme_id"`
}

// ZKProof is evidence that a committed price satisfies a range constraint
// without revealing the price. A proof is only valid relative to the exact
// public inputs embedded at generation time.
type ZKProof struct {
	Proof           []byte    `json:"proof"`
	PublicInputs    []string  `json:"public_inputs"`
	VerificationKey []byte    `json:"verification_key"`
	CircuitID       string    `json:"circuit_id"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// PriceConstraints bound the acceptable consensus price for a private query.
type PriceConstraints struct {
	MinPrice     *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice     *decimal.Decimal `json:"max_price,omitempty"`
	MaxStaleness time.Duration    `json:"max_staleness"`
}

// PrivacyParams select the privacy mechanisms applied to a response.
type PrivacyParams struct {
	RequireZKProof  bool `json:"require_zk_proof"`
	EncryptResponse bool `json:"encrypt_response"`
	AnonymizeSource bool `json:"anonymize_source"`
}

// PrivateQuery represents a privacy-preserving price request. Nonce must be
// unique per (feed, nonce) pair; reuse within the replay window is rejected.
type PrivateQuery struct {
	FeedID             string           `json:"feed_id"`
	RequesterPublicKey string           `json:"requester_public_key"`
	PriceConstraints   PriceConstraints `json:"price_constraints"`
	PrivacyParams      PrivacyParams    `json:"privacy_params"`
	Nonce              string           `json:"nonce"`
}

// Level derives the effective privacy level from the requested parameters.
func (q *PrivateQuery) Level() PrivacyLevel {
	switch {
	case q.PrivacyParams.EncryptResponse && q.PrivacyParams.RequireZKProof:
		return PrivacyLevelMaximum
	case q.PrivacyParams.RequireZKProof:
		return PrivacyLevelHigh
	default:
		return PrivacyLevelStandard
	}
}

// PriceRange is the controlled disclosure returned with every private
// response. It always covers the true price and never collapses to a single
// point unless privacy is explicitly disabled.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// PrivateOracleResponse is the privacy-preserving answer to a PrivateQuery.
// Exactly one of EncryptedPrice and Price is populated, depending on whether
// encryption was requested.
type PrivateOracleResponse struct {
	FeedID         string           `json:"feed_id"`
	EncryptedPrice []byte           `json:"encrypted_price,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	ZKProof        *ZKProof         `json:"zk_proof,omitempty"`
	PriceRange     PriceRange       `json:"price_range"`
	Confidence     float64          `json:"confidence"`
	Commitment     Commitment       `json:"commitment"`
	Nonce          string           `json:"nonce"`
	ProducedAt     time.Time        `json:"produced_at"`
}

// AuditLogEntry records one privacy-sensitive operation. The requester
// identity is stored only as a one-way hash, never raw.
type AuditLogEntry struct {
	Timestamp     time.Time    `json:"timestamp"`
	Operation     string       `json:"operation"`
	FeedID        string       `json:"feed_id"`
	RequesterHash string       `json:"requester_hash"`
	PrivacyLevel  PrivacyLevel `json:"privacy_level"`
	Success       bool         `json:"success"`
	ErrorCode     string       `json:"error_code,omitempty"`
	DurationMs    int64        `json:"duration_ms"`
}

// PrivacyMetrics holds running counters for the privacy layer. Counters are
// monotonic; the average proof time is an incremental streaming mean.
type PrivacyMetrics struct {
	TotalPrivateQueries int64            `json:"total_private_queries"`
	SuccessfulProofs    int64            `json:"successful_proofs"`
	FailedProofs        int64            `json:"failed_proofs"`
	EncryptionSuccesses int64            `json:"encryption_successes"`
	EncryptionFailures  int64            `json:"encryption_failures"`
	AverageProofTimeMs  float64          `json:"average_proof_time_ms"`
	PrivacyLevelUsage   map[string]int64 `json:"privacy_level_usage"`
}
