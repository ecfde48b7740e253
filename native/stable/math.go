package stable

import "math/big"

const (
	// liquidationThreshold / liquidationPrecision is the share of collateral
	// value counted against debt, i.e. a 200% over-collateralization target.
	liquidationThreshold = 50
	liquidationPrecision = 100
	// liquidationBonus / liquidationPrecision is the premium paid to
	// liquidators out of the debtor's collateral.
	liquidationBonus = 10
)

var (
	// scaleUnit is the 18-decimal working precision all amounts share.
	scaleUnit = mustBigInt("1000000000000000000")
	// minHealthFactor is the lowest ratio an account may hold after any
	// risk-increasing operation, expressed in working-scale units.
	minHealthFactor = mustBigInt("1000000000000000000")
	// maxHealthFactor is the sentinel for debt-free positions.
	maxHealthFactor = mustBigInt("115792089237316195423570985008687907853269984665640564039457584007913129639935")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/den with round-down integer division. Truncation is
// always toward zero; callers tolerate at most one unit of error per
// conversion.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// MinHealthFactor returns the minimum health factor in working-scale units.
func MinHealthFactor() *big.Int {
	return new(big.Int).Set(minHealthFactor)
}

// MaxHealthFactor returns the sentinel health factor of a debt-free position.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxHealthFactor)
}
