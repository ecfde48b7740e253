package stable

import (
	"math/big"
	"testing"
)

func TestHealthFactorZeroDebtIsInfinite(t *testing.T) {
	hf := HealthFactor(big.NewInt(0), wei(1000))
	if hf.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("expected sentinel max, got %s", hf)
	}
	hf = HealthFactor(nil, nil)
	if hf.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("expected sentinel max for nil debt, got %s", hf)
	}
}

func TestHealthFactorScenario(t *testing.T) {
	// $20000 of collateral against 100 debt units: (20000*50/100)*scale/100.
	hf := HealthFactor(wei(100), wei(20_000))
	if hf.Cmp(wei(100)) != 0 {
		t.Fatalf("expected 100 in working-scale units, got %s", hf)
	}
}

func TestHealthFactorAtExactMinimum(t *testing.T) {
	// Debt equal to half the collateral value sits exactly at the minimum.
	hf := HealthFactor(wei(10_000), wei(20_000))
	if hf.Cmp(minHealthFactor) != 0 {
		t.Fatalf("expected exactly the minimum, got %s", hf)
	}
	if !healthy(hf) {
		t.Fatal("exact minimum must count as healthy")
	}
	if healthy(new(big.Int).Sub(hf, big.NewInt(1))) {
		t.Fatal("one unit below minimum must count as unhealthy")
	}
}

func TestHealthFactorMonotonicInCollateral(t *testing.T) {
	debt := wei(500)
	previous := HealthFactor(debt, big.NewInt(0))
	for units := int64(1); units <= 2000; units *= 3 {
		hf := HealthFactor(debt, wei(units))
		if hf.Cmp(previous) < 0 {
			t.Fatalf("health factor decreased with more collateral at %d units", units)
		}
		previous = hf
	}
}

func TestHealthFactorMonotonicInDebt(t *testing.T) {
	collateralValue := wei(20_000)
	previous := HealthFactor(wei(1), collateralValue)
	for units := int64(2); units <= 50_000; units *= 4 {
		hf := HealthFactor(wei(units), collateralValue)
		if hf.Cmp(previous) > 0 {
			t.Fatalf("health factor increased with more debt at %d units", units)
		}
		previous = hf
	}
}

func TestHealthFactorZeroCollateral(t *testing.T) {
	hf := HealthFactor(wei(1), big.NewInt(0))
	if hf.Sign() != 0 {
		t.Fatalf("expected zero health factor, got %s", hf)
	}
}
