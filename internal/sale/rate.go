package sale

import (
	"math/bits"

	"github.com/holiman/uint256"

	"escrow-sale/internal/domain"
)

var rateScale = uint256.NewInt(domain.RateScale)

// TokensFor returns floor(amount * rate / RateScale).
// The product is formed in 256 bits so it never wraps; the quotient must fit u64.
func TokensFor(amount, rate uint64) (uint64, error) {
	x := uint256.NewInt(amount)
	y := uint256.NewInt(rate)

	q, overflow := new(uint256.Int).MulDivOverflow(x, y, rateScale)
	if overflow {
		return 0, ErrOverflow
	}
	tokens, overflow := q.Uint64WithOverflow()
	if overflow {
		return 0, ErrOverflow
	}
	return tokens, nil
}

func addU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// subFloor returns a-b, or zero when b exceeds a.
func subFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
