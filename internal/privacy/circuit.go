package privacy

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CircuitID identifies the range circuit version. Proofs carrying a
// different circuit id fail verification closed.
const CircuitID = "price-range-mimc-v1"

// rangeCircuit proves knowledge of a (price, nonce) opening of a public
// commitment such that the price lies in [MinPrice, MaxPrice], without
// revealing the price. QueryTag chains the commitment to a feed hash so the
// proof cannot be replayed against a different feed.
type rangeCircuit struct {
	Price frontend.Variable `gnark:",secret"`
	Nonce frontend.Variable `gnark:",secret"`

	Commitment frontend.Variable `gnark:",public"`
	FeedHash   frontend.Variable `gnark:",public"`
	QueryTag   frontend.Variable `gnark:",public"`
	MinPrice   frontend.Variable `gnark:",public"`
	MaxPrice   frontend.Variable `gnark:",public"`
}

func (c *rangeCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// Commitment opening: MiMC(price, nonce) must equal the public digest.
	h.Write(c.Price, c.Nonce)
	api.AssertIsEqual(c.Commitment, h.Sum())

	// Feed binding: the tag ties this commitment to one feed hash.
	h.Reset()
	h.Write(c.Commitment, c.FeedHash)
	api.AssertIsEqual(c.QueryTag, h.Sum())

	// Range constraint on the hidden price.
	api.AssertIsLessOrEqual(c.MinPrice, c.Price)
	api.AssertIsLessOrEqual(c.Price, c.MaxPrice)
	return nil
}
