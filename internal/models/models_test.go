package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracleError_CodeAndMessage(t *testing.T) {
	err := NewOracleError(ErrStaleData, "data too old")
	assert.Contains(t, err.Error(), "STALE_DATA")
	assert.Contains(t, err.Error(), "data too old")
	assert.False(t, err.Timestamp.IsZero())
}

func TestOracleError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := WrapOracleError(ErrSourceUnavailable, "fetch failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewOracleError(ErrLowConfidence, "too shaky"))

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrLowConfidence, code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestPrivateQuery_Level(t *testing.T) {
	tests := []struct {
		params PrivacyParams
		want   PrivacyLevel
	}{
		{PrivacyParams{}, PrivacyLevelStandard},
		{PrivacyParams{RequireZKProof: true}, PrivacyLevelHigh},
		{PrivacyParams{RequireZKProof: true, EncryptResponse: true}, PrivacyLevelMaximum},
		{PrivacyParams{EncryptResponse: true}, PrivacyLevelStandard},
	}
	for _, tt := range tests {
		query := PrivateQuery{PrivacyParams: tt.params}
		assert.Equal(t, tt.want, query.Level())
	}
}

func TestConsensusResult_Age(t *testing.T) {
	now := time.Now()

	withObservation := ConsensusResult{
		ObservedAt: now.Add(-10 * time.Second),
		ComputedAt: now.Add(-2 * time.Second),
	}
	assert.Equal(t, 10*time.Second, withObservation.Age(now))

	// Results deserialized from older cache entries may lack ObservedAt.
	legacy := ConsensusResult{ComputedAt: now.Add(-5 * time.Second)}
	assert.Equal(t, 5*time.Second, legacy.Age(now))
}
