package stable

import "math/big"

// HealthFactor returns the risk-adjusted ratio of collateral value to debt in
// working-scale units. A debt-free position reports the maximum representable
// value. The function is pure and never fails; it is safe on any read path.
func HealthFactor(debt, collateralValue *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	adjusted := big.NewInt(0)
	if collateralValue != nil && collateralValue.Sign() > 0 {
		adjusted = mulDiv(collateralValue, big.NewInt(liquidationThreshold), big.NewInt(liquidationPrecision))
	}
	return mulDiv(adjusted, scaleUnit, debt)
}

func healthy(healthFactor *big.Int) bool {
	return healthFactor != nil && healthFactor.Cmp(minHealthFactor) >= 0
}
