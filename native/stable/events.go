package stable

import (
	"math/big"

	"stablecore/core/types"
	"stablecore/crypto"
)

const (
	EventTypeCollateralDeposited = "stable.collateral.deposited"
	EventTypeCollateralRedeemed  = "stable.collateral.redeemed"
	EventTypeDebtMinted          = "stable.debt.minted"
	EventTypeDebtBurned          = "stable.debt.burned"
	EventTypePositionLiquidated  = "stable.position.liquidated"
)

type stableEvent struct {
	evt *types.Event
}

func (e stableEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e stableEvent) Event() *types.Event { return e.evt }

func newCollateralDepositedEvent(user, asset crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCollateralDeposited,
		Attributes: map[string]string{
			"user":   user.String(),
			"asset":  asset.String(),
			"amount": amount.String(),
		},
	}
}

func newCollateralRedeemedEvent(from, to, asset crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCollateralRedeemed,
		Attributes: map[string]string{
			"from":   from.String(),
			"to":     to.String(),
			"asset":  asset.String(),
			"amount": amount.String(),
		},
	}
}

func newDebtMintedEvent(user crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDebtMinted,
		Attributes: map[string]string{
			"user":   user.String(),
			"amount": amount.String(),
		},
	}
}

func newDebtBurnedEvent(user crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDebtBurned,
		Attributes: map[string]string{
			"user":   user.String(),
			"amount": amount.String(),
		},
	}
}

func newPositionLiquidatedEvent(liquidator, debtor, asset crypto.Address, debtCovered, collateralSeized *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePositionLiquidated,
		Attributes: map[string]string{
			"liquidator":       liquidator.String(),
			"debtor":           debtor.String(),
			"asset":            asset.String(),
			"debtCovered":      debtCovered.String(),
			"collateralSeized": collateralSeized.String(),
		},
	}
}
