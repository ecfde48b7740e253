package stable

import (
	"math/big"
	"testing"

	"stablecore/core/token"
	"stablecore/crypto"
)

func TestUsdValueScenario(t *testing.T) {
	env := newTestEnv(t, 2000)

	value, err := env.engine.UsdValue(env.weth, wei(15))
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	if value.Cmp(wei(30_000)) != 0 {
		t.Fatalf("expected $30000, got %s", value)
	}
}

func TestTokenAmountFromUsd(t *testing.T) {
	env := newTestEnv(t, 2000)

	amount, err := env.engine.TokenAmountFromUsd(env.weth, wei(100))
	if err != nil {
		t.Fatalf("token amount: %v", err)
	}
	// $100 at $2000 per unit is 0.05 units.
	expected := new(big.Int).Quo(wei(1), big.NewInt(20))
	if amount.Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, amount)
	}
}

func TestConversionRoundTripWithinTruncation(t *testing.T) {
	env := newTestEnv(t, 2000)
	// A price that does not divide the working scale evenly forces
	// truncation on both legs of the round trip.
	env.feed.SetPrice(big.NewInt(1_999_999_999_97))

	amounts := []*big.Int{
		big.NewInt(1),
		big.NewInt(999_999_999),
		wei(1),
		wei(12345),
		new(big.Int).Add(wei(7), big.NewInt(123_456_789)),
	}
	for _, amount := range amounts {
		value, err := env.engine.UsdValue(env.weth, amount)
		if err != nil {
			t.Fatalf("usd value: %v", err)
		}
		recovered, err := env.engine.TokenAmountFromUsd(env.weth, value)
		if err != nil {
			t.Fatalf("token amount: %v", err)
		}
		diff := new(big.Int).Sub(amount, recovered)
		if diff.Sign() < 0 {
			t.Fatalf("round trip overshot for %s: %s", amount, recovered)
		}
		if diff.Cmp(big.NewInt(1)) > 0 {
			t.Fatalf("round trip lost more than one unit for %s: %s", amount, recovered)
		}
	}
}

func TestUsdValueRejectsUnknownAsset(t *testing.T) {
	env := newTestEnv(t, 2000)
	unknown := makeAddress(crypto.AssetPrefix, 0xEE)

	if _, err := env.engine.UsdValue(unknown, wei(1)); err != ErrAssetNotAllowed {
		t.Fatalf("expected ErrAssetNotAllowed, got %v", err)
	}
}

func TestAccountCollateralValueSumsAssets(t *testing.T) {
	module := makeAddress(crypto.AccountPrefix, 0x10)
	env := newTestEnv(t, 2000)
	user := makeAddress(crypto.AccountPrefix, 0x20)

	// Second collateral asset priced at $50.
	wbtc := makeAddress(crypto.AssetPrefix, 0xA2)
	wbtcOwner := makeAddress(crypto.AccountPrefix, 0x02)
	wbtcToken := token.NewLedger("Wrapped Bitcoin", "WBTC", wbtcOwner)
	wbtcFeed := NewStaticFeed(feedPrice(50), 8)

	engine, err := NewEngine(module, env.dsc,
		[]crypto.Address{env.weth, wbtc},
		[]CollateralToken{env.wethToken, wbtcToken},
		[]PriceFeed{env.feed, wbtcFeed},
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetState(NewMemoryState())

	fundLedger(t, wbtcToken, wbtcOwner, user, module, wei(4))
	fundLedger(t, env.wethToken, env.wethOwner, user, module, wei(3))

	if err := engine.DepositCollateral(user, env.weth, wei(3)); err != nil {
		t.Fatalf("deposit weth: %v", err)
	}
	if err := engine.DepositCollateral(user, wbtc, wei(4)); err != nil {
		t.Fatalf("deposit wbtc: %v", err)
	}

	value, err := engine.AccountCollateralValue(user)
	if err != nil {
		t.Fatalf("collateral value: %v", err)
	}
	// 3 * $2000 + 4 * $50 = $6200.
	if value.Cmp(wei(6200)) != 0 {
		t.Fatalf("expected $6200, got %s", value)
	}
}
