package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// Weighting strategies for combining inlier observations.
const (
	WeightingConfidence = "confidence"
	WeightingEqual      = "equal"
	WeightingPriority   = "priority"
)

// AggregationConfig drives outlier exclusion and weighting.
type AggregationConfig struct {
	OutlierThresholdBps int64
	MinSources          int
	Weighting           string
	SourcePriorities    map[string]int
}

// AggregationEngine reconciles a set of observations into one consensus
// price. The computation is a pure function of its inputs: same observations,
// same result, regardless of input order.
type AggregationEngine struct {
	config AggregationConfig
	logger *logrus.Logger
}

// NewAggregationEngine creates an aggregation engine.
func NewAggregationEngine(cfg AggregationConfig, logger *logrus.Logger) *AggregationEngine {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Weighting == "" {
		cfg.Weighting = WeightingConfidence
	}
	return &AggregationEngine{config: cfg, logger: logger}
}

// Aggregate computes the consensus price for a feed. Observations deviating
// from the median by more than the basis-point threshold are excluded in a
// single pass against the original median, so exclusion order cannot change
// the outcome. If every observation is excluded, the unweighted median is
// returned with ConsensusReached false.
func (e *AggregationEngine) Aggregate(feed models.FeedConfig, observations []models.PriceObservation) (*models.ConsensusResult, error) {
	if len(observations) == 0 {
		return nil, models.NewOracleError(models.ErrSourceUnavailable, "no observations to aggregate")
	}

	normalized := make([]models.PriceObservation, len(observations))
	copy(normalized, observations)
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Source < normalized[j].Source })
	for i := range normalized {
		normalized[i].Price = normalized[i].Price.Truncate(feed.Decimals)
	}

	med := median(normalized)
	threshold := med.Mul(decimal.NewFromInt(e.thresholdBps(feed))).Div(decimal.NewFromInt(10000))

	var inliers, outliers []models.PriceObservation
	for _, obs := range normalized {
		if obs.Price.Sub(med).Abs().GreaterThan(threshold) {
			outliers = append(outliers, obs)
		} else {
			inliers = append(inliers, obs)
		}
	}

	now := time.Now().UTC()
	if len(inliers) == 0 {
		// Mutually inconsistent sources: report the raw median but flag
		// that consensus was not reached so the validator rejects it.
		e.logger.WithFields(logrus.Fields{
			"feed_id": feed.FeedID,
			"sources": len(normalized),
		}).Warn("All observations mutually excluded as outliers")
		return &models.ConsensusResult{
			FeedID:           feed.FeedID,
			Price:            med.Truncate(feed.Decimals),
			Decimals:         feed.Decimals,
			Confidence:       averageConfidence(normalized),
			ExcludedOutliers: sourceNames(normalized),
			QualityScore:     0,
			ConsensusReached: false,
			ObservedAt:       latestObservation(normalized),
			ComputedAt:       now,
		}, nil
	}

	price := e.weightedMean(inliers).Truncate(feed.Decimals)
	confidence := averageConfidence(inliers)
	quality := float64(len(inliers)) / float64(len(normalized)) * confidence
	if quality > 100 {
		quality = 100
	}

	result := &models.ConsensusResult{
		FeedID:               feed.FeedID,
		Price:                price,
		Decimals:             feed.Decimals,
		Confidence:           confidence,
		ParticipatingSources: sourceNames(inliers),
		ExcludedOutliers:     sourceNames(outliers),
		QualityScore:         quality,
		ConsensusReached:     true,
		ObservedAt:           latestObservation(inliers),
		ComputedAt:           now,
	}

	e.logger.WithFields(logrus.Fields{
		"feed_id":    feed.FeedID,
		"price":      price.String(),
		"inliers":    len(inliers),
		"outliers":   len(outliers),
		"confidence": confidence,
	}).Debug("Consensus computed")
	return result, nil
}

// thresholdBps prefers the feed's own deviation threshold over the engine
// default.
func (e *AggregationEngine) thresholdBps(feed models.FeedConfig) int64 {
	if feed.DeviationThresholdBps > 0 {
		return feed.DeviationThresholdBps
	}
	return e.config.OutlierThresholdBps
}

// weightedMean combines inlier prices under the configured strategy. A zero
// total weight (e.g. every source reporting zero confidence) degrades to the
// equal-weight mean rather than dividing by zero.
func (e *AggregationEngine) weightedMean(inliers []models.PriceObservation) decimal.Decimal {
	weightedSum := decimal.Zero
	totalWeight := decimal.Zero
	for _, obs := range inliers {
		w := e.weight(obs)
		weightedSum = weightedSum.Add(obs.Price.Mul(w))
		totalWeight = totalWeight.Add(w)
	}
	if totalWeight.IsZero() {
		sum := decimal.Zero
		for _, obs := range inliers {
			sum = sum.Add(obs.Price)
		}
		return sum.Div(decimal.NewFromInt(int64(len(inliers))))
	}
	return weightedSum.Div(totalWeight)
}

func (e *AggregationEngine) weight(obs models.PriceObservation) decimal.Decimal {
	switch e.config.Weighting {
	case WeightingConfidence:
		if obs.Confidence <= 0 {
			return decimal.Zero
		}
		return decimal.NewFromFloat(obs.Confidence)
	case WeightingPriority:
		if p, ok := e.config.SourcePriorities[obs.Source]; ok && p > 0 {
			return decimal.NewFromInt(int64(p))
		}
		return decimal.NewFromInt(1)
	default:
		return decimal.NewFromInt(1)
	}
}

// median returns the middle price, or the mean of the two middle prices for
// an even count. Observations must already be normalized.
func median(observations []models.PriceObservation) decimal.Decimal {
	prices := make([]decimal.Decimal, len(observations))
	for i, obs := range observations {
		prices[i] = obs.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2))
}

func averageConfidence(observations []models.PriceObservation) float64 {
	if len(observations) == 0 {
		return 0
	}
	var sum float64
	for _, obs := range observations {
		sum += obs.Confidence
	}
	return sum / float64(len(observations))
}

func latestObservation(observations []models.PriceObservation) time.Time {
	var latest time.Time
	for _, obs := range observations {
		if obs.ObservedAt.After(latest) {
			latest = obs.ObservedAt
		}
	}
	return latest
}

func sourceNames(observations []models.PriceObservation) []string {
	names := make([]string, len(observations))
	for i, obs := range observations {
		names[i] = obs.Source
	}
	return names
}
