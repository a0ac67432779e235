package escrow

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// validateAmount rejects nil, non-positive and out-of-range milestone amounts.
func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}

// applyBPS returns floor(amount * bps / 10000) computed in 256-bit arithmetic.
func applyBPS(amount *big.Int, bps uint32) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidAmount)
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(value, uint256.NewInt(uint64(bps)), uint256.NewInt(BPSDenominator))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out.ToBig(), nil
}

// splitBPS divides amount into a bps share and the remainder. The share is
// rounded down so the remainder absorbs any dust.
func splitBPS(amount *big.Int, bps uint32) (share, rest *big.Int, err error) {
	share, err = applyBPS(amount, bps)
	if err != nil {
		return nil, nil, err
	}
	rest = new(big.Int).Sub(cloneBigInt(amount), share)
	return share, rest, nil
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return cloneBigInt(a)
	}
	return cloneBigInt(b)
}
