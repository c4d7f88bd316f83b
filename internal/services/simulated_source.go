package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// SimulatedSource produces synthetic observations around configured base
// prices with bounded basis-point jitter. It backs local development and
// load testing when no network-backed sources are wired in.
type SimulatedSource struct {
	name       string
	priority   int
	basePrices map[string]decimal.Decimal
	jitterBps  int64
	confidence float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSource creates a simulated source. jitterBps bounds how far a
// synthetic price may drift from the base in either direction.
func NewSimulatedSource(name string, priority int, basePrices map[string]decimal.Decimal, jitterBps int64, confidence float64) *SimulatedSource {
	return &SimulatedSource{
		name:       name,
		priority:   priority,
		basePrices: basePrices,
		jitterBps:  jitterBps,
		confidence: confidence,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimulatedSource) Name() string { return s.name }

func (s *SimulatedSource) Priority() int { return s.priority }

// FetchPrice returns a jittered observation for the feed, or
// SOURCE_UNAVAILABLE when the source has no base price for it.
func (s *SimulatedSource) FetchPrice(_ context.Context, feed models.FeedConfig) (models.PriceObservation, error) {
	base, ok := s.basePrices[feed.FeedID]
	if !ok {
		return models.PriceObservation{}, models.NewOracleErrorf(models.ErrSourceUnavailable,
			"source %s has no data for feed %s", s.name, feed.FeedID)
	}

	s.mu.Lock()
	offset := s.rng.Int63n(2*s.jitterBps+1) - s.jitterBps
	s.mu.Unlock()

	price := base.Mul(decimal.NewFromInt(10000 + offset)).Div(decimal.NewFromInt(10000))
	return models.PriceObservation{
		Source:     s.name,
		FeedID:     feed.FeedID,
		Price:      price.Truncate(feed.Decimals),
		Decimals:   feed.Decimals,
		Confidence: s.confidence,
		ObservedAt: time.Now().UTC(),
	}, nil
}
