package stable

import (
	"math/big"

	"stablecore/crypto"
)

// StableToken is the external synthetic-dollar ledger the engine mints and
// burns against. The engine module account holds the mint/burn authority. A
// false success flag and an error are treated identically as TransferFailed.
type StableToken interface {
	Mint(caller, to crypto.Address, amount *big.Int) (bool, error)
	Burn(caller crypto.Address, amount *big.Int) (bool, error)
	Transfer(caller, to crypto.Address, amount *big.Int) (bool, error)
	TransferFrom(caller, from, to crypto.Address, amount *big.Int) (bool, error)
}

// CollateralToken is the transfer surface of an approved collateral asset.
type CollateralToken interface {
	Transfer(caller, to crypto.Address, amount *big.Int) (bool, error)
	TransferFrom(caller, from, to crypto.Address, amount *big.Int) (bool, error)
}

// Position maintains the collateral and debt bookkeeping for a single
// account. A position with zero debt and zero collateral is simply the zero
// state; it is never deleted.
type Position struct {
	// Address is the account the position belongs to.
	Address crypto.Address
	// Collateral maps asset keys to the deposited token amount in
	// 18-decimal working units.
	Collateral map[string]*big.Int
	// Debt is the total stable amount minted against the collateral.
	Debt *big.Int
}

// Clone returns a deep copy so staged mutations never leak into persisted
// state before commit.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, Collateral: make(map[string]*big.Int, len(p.Collateral))}
	for asset, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[asset] = new(big.Int).Set(amount)
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// CollateralAmount returns the recorded balance for the given asset.
func (p *Position) CollateralAmount(asset crypto.Address) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if amount, ok := p.Collateral[assetKey(asset)]; ok && amount != nil {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

func assetKey(asset crypto.Address) string {
	return string(asset.Bytes())
}
