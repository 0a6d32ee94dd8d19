// Package money converts between the double-precision floats used
// internally and the 18-decimal fixed-point integers the chain boundary
// requires (spec.md §3: "all monetary quantities use 18-decimal fixed-point
// at the on-chain boundary and double precision internally, converted only
// at boundaries").
package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals18 is the fixed-point scale used by every on-chain amount.
const Decimals18 = 18

var wei18 = decimal.New(1, Decimals18)

// ToWei18 converts a float64 value into an 18-decimal *big.Int, truncating
// (not rounding) toward zero — truncation matches the contract's own
// integer division semantics for partial fills.
func ToWei18(value float64) *big.Int {
	d := decimal.NewFromFloat(value)
	scaled := d.Mul(wei18).Truncate(0)
	return scaled.BigInt()
}

// FromWei18 converts an 18-decimal *big.Int back into a float64.
func FromWei18(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	d := decimal.NewFromBigInt(wei, 0).Div(wei18)
	f, _ := d.Float64()
	return f
}

// FromWei18String parses a base-10 wei string (as stored in
// EpochRegistration.PendingRewardWei) into a float64.
func FromWei18String(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse wei string %q: %w", s, err)
	}
	f, _ := d.Div(wei18).Float64()
	return f, nil
}

// WeiString renders a *big.Int as its base-10 decimal string, the storage
// format for wei-denominated columns.
func WeiString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return wei.String()
}

// MulWei multiplies a wei amount by a fractional percentage (e.g. sizePct in
// [0,1]), truncating to an integer wei amount. Used for
// buyAmountWei = walletMoltiWei * sizePct (spec.md §4.5 step 6e).
func MulWei(wei *big.Int, fraction float64) *big.Int {
	if wei == nil {
		return big.NewInt(0)
	}
	d := decimal.NewFromBigInt(wei, 0).Mul(decimal.NewFromFloat(fraction)).Truncate(0)
	return d.BigInt()
}
