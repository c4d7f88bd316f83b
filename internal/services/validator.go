package services

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// ConsensusValidator applies the acceptance gates to a computed consensus
// result before it is released to a caller. Checks run in a fixed order —
// staleness, quorum, confidence, consensus flag — and the first failure wins,
// so callers always get the most actionable error code.
type ConsensusValidator struct {
	minSources int
	logger     *logrus.Logger

	// now is swappable for staleness boundary tests.
	now func() time.Time
}

// NewConsensusValidator creates a validator enforcing the given quorum.
func NewConsensusValidator(minSources int, logger *logrus.Logger) *ConsensusValidator {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConsensusValidator{
		minSources: minSources,
		logger:     logger,
		now:        time.Now,
	}
}

// Validate gates a consensus result against a query's requirements. A result
// whose observation age equals MaxStaleness exactly still passes; only
// strictly older data is rejected.
func (v *ConsensusValidator) Validate(result *models.ConsensusResult, query models.PriceQuery) (*models.PriceResponse, error) {
	if result == nil {
		return nil, models.NewOracleError(models.ErrConsensusNotReached, "no consensus result")
	}

	now := v.now()
	if query.MaxStaleness > 0 && result.Age(now) > query.MaxStaleness {
		v.logger.WithFields(logrus.Fields{
			"feed_id":       result.FeedID,
			"age":           result.Age(now).String(),
			"max_staleness": query.MaxStaleness.String(),
		}).Debug("Consensus result too stale")
		return nil, models.NewOracleErrorf(models.ErrStaleData,
			"consensus for %s is %s old, exceeds max staleness %s",
			result.FeedID, result.Age(now).Round(time.Millisecond), query.MaxStaleness)
	}

	if len(result.ParticipatingSources) < v.minSources {
		return nil, models.NewOracleErrorf(models.ErrConsensusNotReached,
			"only %d of %d required sources participated for %s",
			len(result.ParticipatingSources), v.minSources, result.FeedID)
	}

	if query.MinConfidence > 0 && result.Confidence < query.MinConfidence {
		return nil, models.NewOracleErrorf(models.ErrLowConfidence,
			"confidence %.1f below required %.1f for %s",
			result.Confidence, query.MinConfidence, result.FeedID)
	}

	if !result.ConsensusReached {
		return nil, models.NewOracleErrorf(models.ErrConsensusNotReached,
			"sources disagree beyond the deviation threshold for %s", result.FeedID)
	}

	return &models.PriceResponse{
		FeedID:     result.FeedID,
		Price:      result.Price,
		Decimals:   result.Decimals,
		Confidence: result.Confidence,
		Timestamp:  result.ComputedAt,
		Consensus:  *result,
	}, nil
}
