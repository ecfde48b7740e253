package stable

import (
	"math/big"

	"stablecore/crypto"
)

// UsdValue converts a collateral token amount into its stable-unit value
// using the asset's normalized oracle price.
func (e *Engine) UsdValue(asset crypto.Address, tokenAmount *big.Int) (*big.Int, error) {
	price, err := e.assetPrice(asset)
	if err != nil {
		return nil, err
	}
	if tokenAmount == nil {
		return big.NewInt(0), nil
	}
	return mulDiv(price, tokenAmount, scaleUnit), nil
}

// TokenAmountFromUsd converts a stable-unit value into the equivalent
// collateral token amount. The conversion is the integer-division inverse of
// UsdValue up to one unit of truncation.
func (e *Engine) TokenAmountFromUsd(asset crypto.Address, usdValue *big.Int) (*big.Int, error) {
	price, err := e.assetPrice(asset)
	if err != nil {
		return nil, err
	}
	if usdValue == nil {
		return big.NewInt(0), nil
	}
	return mulDiv(usdValue, scaleUnit, price), nil
}

// AccountCollateralValue sums the stable-unit value of every allowed asset
// deposited by the user.
func (e *Engine) AccountCollateralValue(user crypto.Address) (*big.Int, error) {
	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return e.accountCollateralValue(pos)
}

func (e *Engine) accountCollateralValue(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.assets {
		amount := pos.CollateralAmount(asset)
		if amount.Sign() == 0 {
			continue
		}
		value, err := e.UsdValue(asset, amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (e *Engine) assetPrice(asset crypto.Address) (*big.Int, error) {
	adapter, ok := e.feeds[assetKey(asset)]
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	return adapter.price()
}
