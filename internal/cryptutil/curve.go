package cryptutil

import (
	"errors"
	"math/big"
)

var (
	errSeedSize  = errors.New("cryptutil: seed must be 32 bytes")
	errBadVerKey = errors.New("cryptutil: malformed verkey")
)

// fieldPrime is 2^255 - 19, the field curve25519/ed25519 are defined
// over.
var fieldPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// montgomeryUFromEdwardsY computes the Montgomery u-coordinate from an
// Edwards y-coordinate via the standard birational equivalence
// u = (1+y)/(1-y) mod p. y is little-endian, as ed25519 encodes points.
func montgomeryUFromEdwardsY(yLE [32]byte) [32]byte {
	y := leBytesToInt(yLE)
	one := big.NewInt(1)

	num := new(big.Int).Add(one, y)
	num.Mod(num, fieldPrime)

	den := new(big.Int).Sub(one, y)
	den.Mod(den, fieldPrime)
	den.ModInverse(den, fieldPrime)

	u := new(big.Int).Mul(num, den)
	u.Mod(u, fieldPrime)

	return intToLEBytes(u)
}

func leBytesToInt(b [32]byte) *big.Int {
	be := make([]byte, 32)
	for i, v := range b {
		be[31-i] = v
	}
	return new(big.Int).SetBytes(be)
}

func intToLEBytes(n *big.Int) [32]byte {
	be := n.FillBytes(make([]byte, 32))
	var out [32]byte
	for i, v := range be {
		out[31-i] = v
	}
	return out
}
