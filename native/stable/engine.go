package stable

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"stablecore/core/events"
	"stablecore/core/types"
	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

var errNilStableToken = errors.New("stable engine: stable token not configured")

// Engine orchestrates the collateral and debt ledgers, the valuation path and
// the liquidation protocol. It is the sole writer of position state; every
// mutating operation runs inside a single engine-wide non-reentrant region
// and either commits in full or leaves no trace.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	guard         nativecommon.Guard
	moduleAddress crypto.Address
	stable        StableToken
	assets        []crypto.Address
	tokens        map[string]CollateralToken
	feeds         map[string]*feedAdapter
}

// NewEngine constructs the risk engine. The collateral asset, token and feed
// lists are parallel; mismatched lengths, nil entries or duplicate assets
// fail construction. The asset set is immutable afterwards.
func NewEngine(moduleAddr crypto.Address, stableToken StableToken, assets []crypto.Address, tokens []CollateralToken, feeds []PriceFeed) (*Engine, error) {
	if stableToken == nil {
		return nil, errNilStableToken
	}
	if len(assets) != len(feeds) || len(assets) != len(tokens) {
		return nil, ErrAssetFeedMismatch
	}
	e := &Engine{
		emitter:       events.NoopEmitter{},
		moduleAddress: moduleAddr,
		stable:        stableToken,
		tokens:        make(map[string]CollateralToken, len(assets)),
		feeds:         make(map[string]*feedAdapter, len(assets)),
	}
	for i, asset := range assets {
		if tokens[i] == nil || feeds[i] == nil {
			return nil, ErrAssetFeedMismatch
		}
		key := assetKey(asset)
		if _, dup := e.feeds[key]; dup {
			return nil, ErrAssetFeedMismatch
		}
		e.tokens[key] = tokens[i]
		e.feeds[key] = newFeedAdapter(feeds[i])
		e.assets = append(e.assets, asset)
	}
	return e, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeartbeat enables oracle staleness checking against the supplied
// heartbeat for every feed. Zero disables the check.
func (e *Engine) SetHeartbeat(heartbeat time.Duration) {
	for _, adapter := range e.feeds {
		adapter.heartbeat = heartbeat
	}
}

// SetNowFunc overrides the time source used for staleness checks. Primarily
// intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	for _, adapter := range e.feeds {
		adapter.nowFn = now
	}
}

// ModuleAddress returns the custody account holding pulled collateral.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// CollateralAssets returns the allowed collateral asset identifiers in
// configuration order.
func (e *Engine) CollateralAssets() []crypto.Address {
	return append([]crypto.Address(nil), e.assets...)
}

// DepositCollateral records the deposit and pulls the asset from the user
// into the module custody account. Deposits never require a health check.
func (e *Engine) DepositCollateral(user, asset crypto.Address, amount *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	token, ok := e.tokens[assetKey(asset)]
	if !ok {
		return ErrAssetNotAllowed
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	stageDeposit(pos, asset, amount)
	if ok, err := token.TransferFrom(e.moduleAddress, user, e.moduleAddress, amount); err != nil || !ok {
		return transferFailed(err)
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	e.emit(newCollateralDepositedEvent(user, asset, amount))
	return nil
}

// MintDsc increases the user's debt and mints the stable token to them. The
// resulting health factor must stay at or above the minimum or the whole
// operation fails with HealthFactorBroken.
func (e *Engine) MintDsc(user crypto.Address, amount *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	pos.Debt = new(big.Int).Add(pos.Debt, amount)
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if ok, err := e.stable.Mint(e.moduleAddress, user, amount); err != nil || !ok {
		return transferFailed(err)
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	e.emit(newDebtMintedEvent(user, amount))
	return nil
}

// DepositCollateralAndMintDsc composes deposit and mint inside one failure
// boundary: either both sub-operations persist or neither does.
func (e *Engine) DepositCollateralAndMintDsc(user, asset crypto.Address, collateralAmount, mintAmount *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if collateralAmount == nil || collateralAmount.Sign() <= 0 || mintAmount == nil || mintAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	token, ok := e.tokens[assetKey(asset)]
	if !ok {
		return ErrAssetNotAllowed
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	stageDeposit(pos, asset, collateralAmount)
	pos.Debt = new(big.Int).Add(pos.Debt, mintAmount)
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if ok, err := token.TransferFrom(e.moduleAddress, user, e.moduleAddress, collateralAmount); err != nil || !ok {
		return transferFailed(err)
	}
	if ok, err := e.stable.Mint(e.moduleAddress, user, mintAmount); err != nil || !ok {
		// Return the already-pulled collateral before reporting failure.
		refundOK, refundErr := token.Transfer(e.moduleAddress, user, collateralAmount)
		return compensated(err, refundOK, refundErr)
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	e.emit(newCollateralDepositedEvent(user, asset, collateralAmount))
	e.emit(newDebtMintedEvent(user, mintAmount))
	return nil
}

// RedeemCollateral releases collateral back to the user. The remaining
// position must stay healthy.
func (e *Engine) RedeemCollateral(user, asset crypto.Address, amount *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	token, ok := e.tokens[assetKey(asset)]
	if !ok {
		return ErrAssetNotAllowed
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	if err := stageWithdraw(pos, asset, amount); err != nil {
		return err
	}
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if ok, err := token.Transfer(e.moduleAddress, user, amount); err != nil || !ok {
		return transferFailed(err)
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	e.emit(newCollateralRedeemedEvent(user, user, asset, amount))
	return nil
}

// RedeemCollateralForDsc burns debt first and then redeems collateral, so the
// burn frees the headroom the redeem consumes.
func (e *Engine) RedeemCollateralForDsc(user, asset crypto.Address, collateralAmount, debtAmount *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if collateralAmount == nil || collateralAmount.Sign() <= 0 || debtAmount == nil || debtAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	token, ok := e.tokens[assetKey(asset)]
	if !ok {
		return ErrAssetNotAllowed
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	if pos.Debt.Cmp(debtAmount) < 0 {
		return ErrDebtUnderflow
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, debtAmount)
	if err := stageWithdraw(pos, asset, collateralAmount); err != nil {
		return err
	}
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.burnFrom(user, debtAmount); err != nil {
		return err
	}
	if ok, err := token.Transfer(e.moduleAddress, user, collateralAmount); err != nil || !ok {
		// Restore the burned stable balance before reporting failure.
		refundOK, refundErr := e.stable.Mint(e.moduleAddress, user, debtAmount)
		return compensated(err, refundOK, refundErr)
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	e.emit(newDebtBurnedEvent(user, debtAmount))
	e.emit(newCollateralRedeemedEvent(user, user, asset, collateralAmount))
	return nil
}

// BurnDsc reduces the user's debt and burns the stable token pulled from
// their balance. The health check runs for defense in depth even though
// burning can only improve the ratio.
func (e *Engine) BurnDsc(user crypto.Address, amount *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	if pos.Debt.Cmp(amount) < 0 {
		return ErrDebtUnderflow
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, amount)
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.burnFrom(user, amount); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	e.emit(newDebtBurnedEvent(user, amount))
	return nil
}

// Liquidate lets a third party repay part of an unhealthy debtor's debt in
// exchange for a bonus-adjusted slice of the debtor's collateral. The
// debtor's health factor must strictly improve and the liquidator's own
// position must remain healthy.
func (e *Engine) Liquidate(liquidator, debtor, asset crypto.Address, debtToCover *big.Int) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return ErrInvalidAmount
	}
	token, ok := e.tokens[assetKey(asset)]
	if !ok {
		return ErrAssetNotAllowed
	}
	debtorPos, err := e.loadPosition(debtor)
	if err != nil {
		return err
	}
	startingHealth, err := e.positionHealthFactor(debtorPos)
	if err != nil {
		return err
	}
	if healthy(startingHealth) {
		return ErrHealthFactorOK
	}
	if debtorPos.Debt.Cmp(debtToCover) < 0 {
		return ErrDebtUnderflow
	}
	tokenAmount, err := e.TokenAmountFromUsd(asset, debtToCover)
	if err != nil {
		return err
	}
	bonus := mulDiv(tokenAmount, big.NewInt(liquidationBonus), big.NewInt(liquidationPrecision))
	seizeAmount := new(big.Int).Add(tokenAmount, bonus)
	if err := stageWithdraw(debtorPos, asset, seizeAmount); err != nil {
		return err
	}
	debtorPos.Debt = new(big.Int).Sub(debtorPos.Debt, debtToCover)
	endingHealth, err := e.positionHealthFactor(debtorPos)
	if err != nil {
		return err
	}
	if endingHealth.Cmp(startingHealth) <= 0 {
		return ErrHealthFactorNotImproved
	}
	// A self-liquidating debtor is judged on the staged position; loading it
	// from state again would see the pre-liquidation health factor.
	liquidatorHealth := endingHealth
	if !sameAddress(liquidator, debtor) {
		liquidatorPos, err := e.loadPosition(liquidator)
		if err != nil {
			return err
		}
		liquidatorHealth, err = e.positionHealthFactor(liquidatorPos)
		if err != nil {
			return err
		}
	}
	if !healthy(liquidatorHealth) {
		return &HealthFactorError{Value: liquidatorHealth}
	}
	if err := e.burnFrom(liquidator, debtToCover); err != nil {
		return err
	}
	if ok, err := token.Transfer(e.moduleAddress, liquidator, seizeAmount); err != nil || !ok {
		// Restore the liquidator's burned stable balance before failing.
		refundOK, refundErr := e.stable.Mint(e.moduleAddress, liquidator, debtToCover)
		return compensated(err, refundOK, refundErr)
	}
	if err := e.state.PutPosition(debtorPos); err != nil {
		return err
	}
	e.emit(newDebtBurnedEvent(debtor, debtToCover))
	e.emit(newCollateralRedeemedEvent(debtor, liquidator, asset, seizeAmount))
	e.emit(newPositionLiquidatedEvent(liquidator, debtor, asset, debtToCover, seizeAmount))
	return nil
}

// AccountHealthFactor reports the user's current health factor.
func (e *Engine) AccountHealthFactor(user crypto.Address) (*big.Int, error) {
	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return e.positionHealthFactor(pos)
}

// AccountInformation reports the user's total debt and collateral value.
func (e *Engine) AccountInformation(user crypto.Address) (debt, collateralValue *big.Int, err error) {
	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, nil, err
	}
	collateralValue, err = e.accountCollateralValue(pos)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(pos.Debt), collateralValue, nil
}

// CollateralBalanceOf reports the user's recorded balance for one asset.
func (e *Engine) CollateralBalanceOf(user, asset crypto.Address) (*big.Int, error) {
	if _, ok := e.feeds[assetKey(asset)]; !ok {
		return nil, ErrAssetNotAllowed
	}
	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return pos.CollateralAmount(asset), nil
}

func (e *Engine) positionHealthFactor(pos *Position) (*big.Int, error) {
	collateralValue, err := e.accountCollateralValue(pos)
	if err != nil {
		return nil, err
	}
	return HealthFactor(pos.Debt, collateralValue), nil
}

func (e *Engine) checkHealth(pos *Position) error {
	healthFactor, err := e.positionHealthFactor(pos)
	if err != nil {
		return err
	}
	if !healthy(healthFactor) {
		return &HealthFactorError{Value: healthFactor}
	}
	return nil
}

// burnFrom pulls amount of the stable token from the holder into the module
// account and burns it there.
func (e *Engine) burnFrom(holder crypto.Address, amount *big.Int) error {
	if ok, err := e.stable.TransferFrom(e.moduleAddress, holder, e.moduleAddress, amount); err != nil || !ok {
		return transferFailed(err)
	}
	if ok, err := e.stable.Burn(e.moduleAddress, amount); err != nil || !ok {
		// Hand the pulled balance back before reporting failure.
		refundOK, refundErr := e.stable.Transfer(e.moduleAddress, holder, amount)
		return compensated(err, refundOK, refundErr)
	}
	return nil
}

func (e *Engine) loadPosition(addr crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	} else {
		pos = pos.Clone()
	}
	if pos.Collateral == nil {
		pos.Collateral = make(map[string]*big.Int)
	}
	if pos.Debt == nil {
		pos.Debt = big.NewInt(0)
	}
	return pos, nil
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(stableEvent{evt: event})
}

func stageDeposit(pos *Position, asset crypto.Address, amount *big.Int) {
	key := assetKey(asset)
	current := pos.Collateral[key]
	if current == nil {
		current = big.NewInt(0)
	}
	pos.Collateral[key] = new(big.Int).Add(current, amount)
}

func stageWithdraw(pos *Position, asset crypto.Address, amount *big.Int) error {
	key := assetKey(asset)
	current := pos.Collateral[key]
	if current == nil {
		current = big.NewInt(0)
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	pos.Collateral[key] = new(big.Int).Sub(current, amount)
	return nil
}

func sameAddress(a, b crypto.Address) bool {
	return string(a.Bytes()) == string(b.Bytes())
}

func transferFailed(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return ErrTransferFailed
}

// compensated reports a failed second leg together with the outcome of its
// hand-back action. A failed hand-back strands value in the module account,
// so it must surface in the returned error rather than vanish.
func compensated(primary error, refundOK bool, refundErr error) error {
	failure := transferFailed(primary)
	if refundOK && refundErr == nil {
		return failure
	}
	if refundErr == nil {
		refundErr = errors.New("transfer rejected")
	}
	return fmt.Errorf("%w; refund failed: %v", failure, refundErr)
}
