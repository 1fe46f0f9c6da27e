package oracle

import (
	"math/big"

	"farmrent/internal/apperr"
)

// WeiDecimals is the number of decimals of the registry's native unit.
const WeiDecimals = 18

// Convert turns a fiat amount into wei at rate (fiat per whole asset unit).
// The asset amount is rounded half-up to precision decimals before scaling,
// so the result is always a multiple of 10^(18-precision) wei.
func Convert(fiatAmount int64, rate *big.Rat, precision int) (*big.Int, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	if fiatAmount < 0 {
		return nil, apperr.New(apperr.ErrValidation, "amount must not be negative")
	}
	if precision < 0 || precision > WeiDecimals {
		return nil, apperr.New(apperr.ErrValidation, "precision must be between 0 and %d", WeiDecimals)
	}

	asset := new(big.Rat).Quo(new(big.Rat).SetInt64(fiatAmount), rate)
	asset.Mul(asset, new(big.Rat).SetInt(pow10(precision)))

	// floor(x + 1/2) for x >= 0: (2*num + den) / (2*den)
	num := new(big.Int).Lsh(asset.Num(), 1)
	num.Add(num, asset.Denom())
	den := new(big.Int).Lsh(asset.Denom(), 1)
	rounded := new(big.Int).Quo(num, den)

	return rounded.Mul(rounded, pow10(WeiDecimals-precision)), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
