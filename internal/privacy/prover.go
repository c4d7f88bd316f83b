package privacy

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

func init() {
	// gnark logs circuit compilation chatter through zerolog; silence it so
	// it does not pollute the service logs.
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
}

// RangeProver generates and verifies Groth16 range proofs over the
// price-range circuit. Compile and trusted setup run once at construction;
// proving and verification are safe for concurrent use.
type RangeProver struct {
	logger *logrus.Logger

	ccs     constraint.ConstraintSystem
	pk      groth16.ProvingKey
	vk      groth16.VerifyingKey
	vkBytes []byte

	mu sync.RWMutex
}

// NewRangeProver compiles the range circuit and runs the Groth16 setup.
func NewRangeProver(logger *logrus.Logger) (*RangeProver, error) {
	if logger == nil {
		logger = logrus.New()
	}

	start := time.Now()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &rangeCircuit{})
	if err != nil {
		return nil, fmt.Errorf("failed to compile range circuit: %w", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("failed to run groth16 setup: %w", err)
	}

	var vkBuf bytes.Buffer
	if _, err := vk.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("failed to serialize verifying key: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"circuit_id":  CircuitID,
		"constraints": ccs.GetNbConstraints(),
		"setup_time":  time.Since(start).String(),
	}).Info("Range proof circuit compiled")

	return &RangeProver{
		logger:  logger,
		ccs:     ccs,
		pk:      pk,
		vk:      vk,
		vkBytes: vkBuf.Bytes(),
	}, nil
}

// ProofRequest carries everything needed to prove one committed price.
type ProofRequest struct {
	FeedID     string
	Price      decimal.Decimal
	Decimals   int32
	Nonce      string
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	Commitment models.Commitment
}

// GenerateProof produces a proof that the committed price lies within
// [MinPrice, MaxPrice]. The public inputs embed the feed id and the
// commitment so a verifier cannot replay the proof elsewhere.
func (p *RangeProver) GenerateProof(req ProofRequest) (*models.ZKProof, error) {
	if req.Commitment.SchemeID != SchemeID {
		return nil, models.NewOracleErrorf(models.ErrProofGenerationFailed,
			"unsupported commitment scheme %q", req.Commitment.SchemeID)
	}

	priceEl, err := priceToField(req.Price, req.Decimals)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "price not representable", err)
	}
	minBig, maxBig, err := scaledRange(req.MinPrice, req.MaxPrice, req.Decimals)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "invalid proof range", err)
	}

	digest, err := hex.DecodeString(req.Commitment.Digest)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "malformed commitment digest", err)
	}
	commitBig, err := fieldFromBytes(digest)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "malformed commitment digest", err)
	}
	tag, err := queryTag(digest, req.FeedID)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "failed to derive query tag", err)
	}
	tagBig, err := fieldFromBytes(tag)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "failed to derive query tag", err)
	}

	nonceEl := nonceToField(req.Nonce)
	feedEl := feedToField(req.FeedID)

	assignment := &rangeCircuit{
		Price:      priceEl.BigInt(new(big.Int)),
		Nonce:      nonceEl.BigInt(new(big.Int)),
		Commitment: commitBig,
		FeedHash:   feedEl.BigInt(new(big.Int)),
		QueryTag:   tagBig,
		MinPrice:   minBig,
		MaxPrice:   maxBig,
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "failed to build witness", err)
	}

	proof, err := groth16.Prove(p.ccs, p.pk, witness)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "failed to generate proof", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, models.WrapOracleError(models.ErrProofGenerationFailed, "failed to serialize proof", err)
	}

	return &models.ZKProof{
		Proof:           proofBuf.Bytes(),
		PublicInputs:    publicInputs(req.FeedID, req.Commitment.Digest, minBig, maxBig),
		VerificationKey: p.vkBytes,
		CircuitID:       CircuitID,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// VerifyProof checks a proof against the exact public inputs used at
// generation time. Any mismatch — circuit id, input count or content,
// verifying key, malformed bytes — fails closed with a false result.
func (p *RangeProver) VerifyProof(proof *models.ZKProof, inputs []string) (bool, error) {
	if proof == nil {
		return false, models.NewOracleError(models.ErrProofVerificationFailed, "missing proof")
	}
	if proof.CircuitID != CircuitID {
		return false, models.NewOracleErrorf(models.ErrProofVerificationFailed,
			"unexpected circuit id %q", proof.CircuitID)
	}
	if len(inputs) != len(proof.PublicInputs) {
		return false, models.NewOracleError(models.ErrProofVerificationFailed, "public input count mismatch")
	}
	for i := range inputs {
		if inputs[i] != proof.PublicInputs[i] {
			return false, models.NewOracleError(models.ErrProofVerificationFailed, "public input mismatch")
		}
	}
	if !bytes.Equal(proof.VerificationKey, p.vkBytes) {
		return false, models.NewOracleError(models.ErrProofVerificationFailed, "verifying key mismatch")
	}

	feedID, digestHex, minBig, maxBig, err := parsePublicInputs(inputs)
	if err != nil {
		return false, models.WrapOracleError(models.ErrProofVerificationFailed, "malformed public inputs", err)
	}

	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return false, models.WrapOracleError(models.ErrProofVerificationFailed, "malformed commitment digest", err)
	}
	commitBig, err := fieldFromBytes(digest)
	if err != nil {
		return false, models.WrapOracleError(models.ErrCommitmentMismatch, "commitment outside field", err)
	}
	tag, err := queryTag(digest, feedID)
	if err != nil {
		return false, models.WrapOracleError(models.ErrProofVerificationFailed, "failed to derive query tag", err)
	}
	tagBig, err := fieldFromBytes(tag)
	if err != nil {
		return false, models.WrapOracleError(models.ErrProofVerificationFailed, "failed to derive query tag", err)
	}
	feedEl := feedToField(feedID)

	assignment := &rangeCircuit{
		Commitment: commitBig,
		FeedHash:   feedEl.BigInt(new(big.Int)),
		QueryTag:   tagBig,
		MinPrice:   minBig,
		MaxPrice:   maxBig,
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, models.WrapOracleError(models.ErrProofVerificationFailed, "failed to build public witness", err)
	}

	gproof := groth16.NewProof(ecc.BN254)
	if _, err := gproof.ReadFrom(bytes.NewReader(proof.Proof)); err != nil {
		return false, models.WrapOracleError(models.ErrProofVerificationFailed, "malformed proof bytes", err)
	}

	if err := groth16.Verify(gproof, p.vk, publicWitness); err != nil {
		p.logger.WithError(err).Debug("Range proof rejected")
		return false, nil
	}
	return true, nil
}

// publicInputs renders the canonical wire form of the proof statement.
func publicInputs(feedID, digestHex string, minBig, maxBig *big.Int) []string {
	return []string{
		"feed:" + feedID,
		"commitment:" + digestHex,
		"min:" + minBig.String(),
		"max:" + maxBig.String(),
	}
}

func parsePublicInputs(inputs []string) (feedID, digestHex string, minBig, maxBig *big.Int, err error) {
	if len(inputs) != 4 {
		return "", "", nil, nil, fmt.Errorf("expected 4 public inputs, got %d", len(inputs))
	}
	feedID, ok := strings.CutPrefix(inputs[0], "feed:")
	if !ok || feedID == "" {
		return "", "", nil, nil, fmt.Errorf("missing feed public input")
	}
	digestHex, ok = strings.CutPrefix(inputs[1], "commitment:")
	if !ok || digestHex == "" {
		return "", "", nil, nil, fmt.Errorf("missing commitment public input")
	}
	minStr, ok := strings.CutPrefix(inputs[2], "min:")
	if !ok {
		return "", "", nil, nil, fmt.Errorf("missing min public input")
	}
	maxStr, ok := strings.CutPrefix(inputs[3], "max:")
	if !ok {
		return "", "", nil, nil, fmt.Errorf("missing max public input")
	}
	minBig, ok = new(big.Int).SetString(minStr, 10)
	if !ok || minBig.Sign() < 0 {
		return "", "", nil, nil, fmt.Errorf("malformed min bound")
	}
	maxBig, ok = new(big.Int).SetString(maxStr, 10)
	if !ok || maxBig.Sign() < 0 {
		return "", "", nil, nil, fmt.Errorf("malformed max bound")
	}
	return feedID, digestHex, minBig, maxBig, nil
}

// scaledRange converts the disclosure bounds to scaled integers at the
// feed's decimal scale, truncating min down and max up so the range always
// covers the true price.
func scaledRange(min, max decimal.Decimal, decimals int32) (*big.Int, *big.Int, error) {
	if max.LessThan(min) {
		return nil, nil, fmt.Errorf("max %s below min %s", max.String(), min.String())
	}
	minBig := min.Shift(decimals).Floor().BigInt()
	maxBig := max.Shift(decimals).Ceil().BigInt()
	if minBig.Sign() < 0 {
		minBig = big.NewInt(0)
	}
	return minBig, maxBig, nil
}
