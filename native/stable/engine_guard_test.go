package stable

import (
	"errors"
	"math/big"
	"testing"

	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

// reentrantToken is a malicious collateral token that calls back into the
// engine from inside its transfer hook.
type reentrantToken struct {
	engine   *Engine
	user     crypto.Address
	asset    crypto.Address
	callback error
}

func (m *reentrantToken) Transfer(caller, to crypto.Address, amount *big.Int) (bool, error) {
	m.callback = m.engine.DepositCollateral(m.user, m.asset, big.NewInt(1))
	if m.callback != nil {
		return false, m.callback
	}
	return true, nil
}

func (m *reentrantToken) TransferFrom(caller, from, to crypto.Address, amount *big.Int) (bool, error) {
	m.callback = m.engine.RedeemCollateral(m.user, m.asset, big.NewInt(1))
	if m.callback != nil {
		return false, m.callback
	}
	return true, nil
}

func TestReentrantTransferIsRejectedAndRolledBack(t *testing.T) {
	module := makeAddress(crypto.AccountPrefix, 0x10)
	weth := makeAddress(crypto.AssetPrefix, 0xA1)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	env := newTestEnv(t, 2000)

	malicious := &reentrantToken{user: user, asset: weth}
	feed := NewStaticFeed(feedPrice(2000), 8)
	engine, err := NewEngine(module, env.dsc, []crypto.Address{weth}, []CollateralToken{malicious}, []PriceFeed{feed})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetState(NewMemoryState())
	malicious.engine = engine

	err = engine.DepositCollateral(user, weth, wei(1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed from aborted deposit, got %v", err)
	}
	if !errors.Is(malicious.callback, nativecommon.ErrReentrantCall) {
		t.Fatalf("expected nested call to fail with ErrReentrantCall, got %v", malicious.callback)
	}

	balance, err := engine.CollateralBalanceOf(user, weth)
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected rollback to leave no balance, got %s", balance)
	}
}

func TestGuardReleasedAfterFailure(t *testing.T) {
	env := newTestEnv(t, 2000)
	user := makeAddress(crypto.AccountPrefix, 0x20)

	if err := env.engine.DepositCollateral(user, env.weth, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	// The guard must not remain held after a failed operation.
	env.fund(t, user, wei(1))
	if err := env.engine.DepositCollateral(user, env.weth, wei(1)); err != nil {
		t.Fatalf("deposit after failure: %v", err)
	}
}
