package privacy

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	proverOnce sync.Once
	prover     *RangeProver
	proverErr  error
)

// sharedProver compiles the circuit once; the trusted setup dominates test
// time and is identical for every case.
func sharedProver(t *testing.T) *RangeProver {
	t.Helper()
	proverOnce.Do(func() {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		prover, proverErr = NewRangeProver(logger)
	})
	require.NoError(t, proverErr)
	return prover
}

func proofRequest(t *testing.T) ProofRequest {
	t.Helper()
	price := decimal.RequireFromString("3400.50")
	commitment, err := GenerateCommitment(price, 8, "nonce-abc")
	require.NoError(t, err)
	return ProofRequest{
		FeedID:     "ETH/USD",
		Price:      price,
		Decimals:   8,
		Nonce:      "nonce-abc",
		MinPrice:   decimal.RequireFromString("3060.45"),
		MaxPrice:   decimal.RequireFromString("3740.55"),
		Commitment: commitment,
	}
}

func TestRangeProver_RoundTrip(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)

	proof, err := p.GenerateProof(req)
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Equal(t, CircuitID, proof.CircuitID)
	assert.Len(t, proof.PublicInputs, 4)
	assert.Contains(t, proof.PublicInputs[0], "ETH/USD")
	assert.Contains(t, proof.PublicInputs[1], req.Commitment.Digest)

	valid, err := p.VerifyProof(proof, proof.PublicInputs)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRangeProver_BindingToCommitment(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)

	proof, err := p.GenerateProof(req)
	require.NoError(t, err)

	// A different commitment in the claimed statement must not verify.
	other, err := GenerateCommitment(req.Price, req.Decimals, "different-nonce")
	require.NoError(t, err)
	tampered := make([]string, len(proof.PublicInputs))
	copy(tampered, proof.PublicInputs)
	tampered[1] = "commitment:" + other.Digest

	valid, err := p.VerifyProof(proof, tampered)
	assert.False(t, valid)
	assert.Error(t, err)

	// Even if the embedded list is forged to match, the proof bytes stay
	// bound to the original commitment.
	forged := *proof
	forged.PublicInputs = tampered
	valid, err = p.VerifyProof(&forged, tampered)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRangeProver_BindingToFeed(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)

	proof, err := p.GenerateProof(req)
	require.NoError(t, err)

	tampered := make([]string, len(proof.PublicInputs))
	copy(tampered, proof.PublicInputs)
	tampered[0] = "feed:BTC/USD"

	forged := *proof
	forged.PublicInputs = tampered
	valid, err := p.VerifyProof(&forged, tampered)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRangeProver_WrongCircuitID(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)

	proof, err := p.GenerateProof(req)
	require.NoError(t, err)

	proof.CircuitID = "some-other-circuit"
	valid, err := p.VerifyProof(proof, proof.PublicInputs)
	assert.False(t, valid)
	assert.Error(t, err)
}

func TestRangeProver_InputCountMismatch(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)

	proof, err := p.GenerateProof(req)
	require.NoError(t, err)

	valid, err := p.VerifyProof(proof, proof.PublicInputs[:3])
	assert.False(t, valid)
	assert.Error(t, err)
}

func TestRangeProver_PriceOutsideRange(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)
	req.MinPrice = decimal.RequireFromString("5000")
	req.MaxPrice = decimal.RequireFromString("6000")

	_, err := p.GenerateProof(req)
	assert.Error(t, err)
}

func TestRangeProver_MalformedProofBytes(t *testing.T) {
	p := sharedProver(t)
	req := proofRequest(t)

	proof, err := p.GenerateProof(req)
	require.NoError(t, err)

	proof.Proof = []byte{0x01, 0x02, 0x03}
	valid, err := p.VerifyProof(proof, proof.PublicInputs)
	assert.False(t, valid)
	assert.Error(t, err)
}
