package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/shopspring/decimal"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// SchemeID identifies the commitment scheme baked into responses. Verifiers
// must reject commitments produced under a different scheme.
const SchemeID = "mimc-bn254"

// priceToField maps a price at the feed's decimal scale into the BN254
// scalar field. The scaled price must be a non-negative integer.
func priceToField(price decimal.Decimal, decimals int32) (fr.Element, error) {
	var el fr.Element
	scaled := price.Shift(decimals)
	if !scaled.IsInteger() {
		return el, fmt.Errorf("price %s does not fit %d decimals", price.String(), decimals)
	}
	bi := scaled.BigInt()
	if bi.Sign() < 0 {
		return el, fmt.Errorf("price must be non-negative")
	}
	el.SetBigInt(bi)
	return el, nil
}

// nonceToField maps an arbitrary nonce string into the scalar field by
// hashing it first, so callers are free to use any unique string.
func nonceToField(nonce string) fr.Element {
	sum := sha256.Sum256([]byte(nonce))
	var el fr.Element
	el.SetBytes(sum[:])
	return el
}

// feedToField maps a feed identifier into the scalar field.
func feedToField(feedID string) fr.Element {
	sum := sha256.Sum256([]byte(feedID))
	var el fr.Element
	el.SetBytes(sum[:])
	return el
}

// GenerateCommitment produces the binding, hiding MiMC digest over
// (price, nonce). The same inputs always yield the same digest.
func GenerateCommitment(price decimal.Decimal, decimals int32, nonce string) (models.Commitment, error) {
	priceEl, err := priceToField(price, decimals)
	if err != nil {
		return models.Commitment{}, models.WrapOracleError(models.ErrInvalidQuery, "price not representable", err)
	}
	nonceEl := nonceToField(nonce)

	digest := mimcDigest(priceEl, nonceEl)
	return models.Commitment{
		Digest:   hex.EncodeToString(digest),
		SchemeID: SchemeID,
	}, nil
}

// mimcDigest hashes field elements with the out-of-circuit MiMC permutation.
// The byte layout matches what the in-circuit MiMC gadget computes, so the
// digest can double as a public input to the range circuit.
func mimcDigest(elements ...fr.Element) []byte {
	h := mimc.NewMiMC()
	for _, el := range elements {
		b := el.Bytes()
		h.Write(b[:])
	}
	return h.Sum(nil)
}

// queryTag binds a commitment to a feed so a proof generated for one feed
// cannot be replayed against another.
func queryTag(commitmentDigest []byte, feedID string) ([]byte, error) {
	var commitEl fr.Element
	if err := commitEl.SetBytesCanonical(commitmentDigest); err != nil {
		return nil, fmt.Errorf("malformed commitment digest: %w", err)
	}
	return mimcDigest(commitEl, feedToField(feedID)), nil
}

// fieldFromBytes parses a canonical 32-byte digest into a field element
// exposed as a big integer for witness assignment.
func fieldFromBytes(digest []byte) (*big.Int, error) {
	var el fr.Element
	if err := el.SetBytesCanonical(digest); err != nil {
		return nil, err
	}
	return el.BigInt(new(big.Int)), nil
}
