package stable

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState = errors.New("stable engine: state not configured")

	// ErrInvalidAmount rejects zero or negative amounts on every mutating
	// operation.
	ErrInvalidAmount = errors.New("stable engine: amount must be positive")
	// ErrAssetNotAllowed rejects references to collateral outside the
	// configured asset set.
	ErrAssetNotAllowed = errors.New("stable engine: collateral asset not allowed")
	// ErrAssetFeedMismatch fails engine construction when the collateral
	// asset, token and price feed lists do not line up one to one.
	ErrAssetFeedMismatch = errors.New("stable engine: collateral assets and price feeds must match one to one")
	// ErrInsufficientCollateral guards the collateral ledger against
	// withdrawing more than the recorded balance.
	ErrInsufficientCollateral = errors.New("stable engine: insufficient collateral balance")
	// ErrDebtUnderflow guards the debt ledger against burning more than the
	// recorded debt.
	ErrDebtUnderflow = errors.New("stable engine: burn amount exceeds recorded debt")
	// ErrTransferFailed reports an external token transfer that either
	// returned false or failed outright.
	ErrTransferFailed = errors.New("stable engine: token transfer failed")
	// ErrHealthFactorBroken reports a mutation that would leave the acting
	// account under-collateralized.
	ErrHealthFactorBroken = errors.New("stable engine: health factor below minimum")
	// ErrHealthFactorOK rejects liquidation of a healthy position.
	ErrHealthFactorOK = errors.New("stable engine: health factor not below minimum")
	// ErrHealthFactorNotImproved rejects liquidations that fail to raise the
	// debtor's health factor.
	ErrHealthFactorNotImproved = errors.New("stable engine: liquidation did not improve health factor")
	// ErrOracleInvalidPrice reports a non-positive or unreadable oracle price.
	ErrOracleInvalidPrice = errors.New("stable engine: oracle returned invalid price")
	// ErrStalePrice reports an oracle reading older than the configured
	// heartbeat.
	ErrStalePrice = errors.New("stable engine: oracle price is stale")
)

// HealthFactorError carries the computed (too-low) health factor for
// diagnostics. It matches ErrHealthFactorBroken under errors.Is.
type HealthFactorError struct {
	Value *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("stable engine: health factor %s below minimum %s", e.Value, minHealthFactor)
}

func (e *HealthFactorError) Unwrap() error { return ErrHealthFactorBroken }
