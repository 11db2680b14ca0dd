package types

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

// FeeDenominator is the parts-per-million base of every fee rate.
const FeeDenominator uint32 = 1_000_000

// MaxAmount is the largest amount a token ledger can carry (u128).
var MaxAmount = math.NewUintFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))

// ParseAmount parses a base-10 token amount.
func ParseAmount(s string) (math.Uint, error) {
	if s == "" {
		return math.Uint{}, errorsmod.Wrap(ErrInvalidAmount, "empty amount")
	}
	u, err := math.ParseUint(s)
	if err != nil {
		return math.Uint{}, errorsmod.Wrapf(ErrInvalidAmount, "%q: %s", s, err)
	}
	return u, CheckAmount(u)
}

// CheckAmount rejects unset amounts and amounts wider than 128 bits.
func CheckAmount(a math.Uint) error {
	if a.IsNil() {
		return errorsmod.Wrap(ErrInvalidAmount, "amount is required")
	}
	if a.GT(MaxAmount) {
		return errorsmod.Wrapf(ErrInvalidAmount, "%s exceeds 128 bits", a)
	}
	return nil
}

// SplitFee deducts a ppm fee from amount, rounding the fee up in the bridge's favor.
// The two results always sum to amount.
func SplitFee(amount math.Uint, feeRate uint32) (afterFee, fee math.Uint) {
	afterFee = amount.MulUint64(uint64(FeeDenominator - feeRate)).QuoUint64(uint64(FeeDenominator))
	return afterFee, amount.Sub(afterFee)
}
