package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation represents a single source's reported price for a feed.
// Observations are immutable once collected.
type PriceObservation struct {
	Source     string          `json:"source"`
	FeedID     string          `json:"feed_id"`
	Price      decimal.Decimal `json:"price"`
	Decimals   int32           `json:"decimals"`
	Confidence float64         `json:"confidence"` // 0..100
	ObservedAt time.Time       `json:"observed_at"`
}

// ConsensusResult is the reconciled price derived from multiple observations
// after outlier removal. Results are immutable; a newer result supersedes an
// older one, it never mutates it.
type ConsensusResult struct {
	FeedID               string          `json:"feed_id"`
	Price                decimal.Decimal `json:"price"`
	Decimals             int32           `json:"decimals"`
	Confidence           float64         `json:"confidence"` // 0..100
	ParticipatingSources []string        `json:"participating_sources"`
	ExcludedOutliers     []string        `json:"excluded_outliers"`
	QualityScore         float64         `json:"quality_score"` // 0..100
	ConsensusReached     bool            `json:"consensus_reached"`
	ObservedAt           time.Time       `json:"observed_at"`
	ComputedAt           time.Time       `json:"computed_at"`
}

// Age returns the staleness of the result relative to now: the age of the
// most recent contributing observation.
func (r *ConsensusResult) Age(now time.Time) time.Duration {
	if r.ObservedAt.IsZero() {
		return now.Sub(r.ComputedAt)
	}
	return now.Sub(r.ObservedAt)
}

// PriceQuery represents a request for a public consensus price.
type PriceQuery struct {
	FeedID        string        `json:"feed_id"`
	MaxStaleness  time.Duration `json:"max_staleness"`
	MinConfidence float64       `json:"min_confidence"`
	AllowCached   bool          `json:"allow_cached"`
	Timeout       time.Duration `json:"timeout"`
}

// PriceResponse wraps a validated consensus result for API consumers.
type PriceResponse struct {
	FeedID     string          `json:"feed_id"`
	Price      decimal.Decimal `json:"price"`
	Decimals   int32           `json:"decimals"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
	Consensus  ConsensusResult `json:"consensus"`
}

// FeedConfig is the static per-feed configuration handed to the collector.
type FeedConfig struct {
	FeedID                string  `json:"feed_id" mapstructure:"feed_id"`
	Address               string  `json:"address" mapstructure:"address"`
	Decimals              int32   `json:"decimals" mapstructure:"decimals"`
	Heartbeat             string  `json:"heartbeat" mapstructure:"heartbeat"`
	DeviationThresholdBps int64   `json:"deviation_threshold_bps" mapstructure:"deviation_threshold_bps"`
	MinConfidence         float64 `json:"min_confidence" mapstructure:"min_confidence"`
	Priority              int     `json:"priority" mapstructure:"priority"`
	Category              string  `json:"category" mapstructure:"category"`
	// ReferencePrice seeds the simulation backend when no network sources
	// are configured.
	ReferencePrice string `json:"reference_price,omitempty" mapstructure:"reference_price"`
}
