package stable

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"stablecore/crypto"
	"stablecore/storage"
)

var positionKeyPrefix = []byte("stable/position/")

// StoreState persists positions in a key-value database so the engine
// survives restarts. It satisfies the same contract as MemoryState.
type StoreState struct {
	db storage.Database
}

func NewStoreState(db storage.Database) *StoreState {
	return &StoreState{db: db}
}

type storedPosition struct {
	Address    string            `json:"address"`
	Collateral map[string]string `json:"collateral,omitempty"`
	Debt       string            `json:"debt"`
}

func (s *StoreState) GetPosition(addr crypto.Address) (*Position, error) {
	raw, err := s.db.Get(positionKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stable state: load position: %w", err)
	}
	var stored storedPosition
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("stable state: decode position: %w", err)
	}
	return decodePosition(&stored)
}

func (s *StoreState) PutPosition(position *Position) error {
	if position == nil {
		return nil
	}
	stored := encodePosition(position)
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("stable state: encode position: %w", err)
	}
	if err := s.db.Put(positionKey(position.Address), raw); err != nil {
		return fmt.Errorf("stable state: store position: %w", err)
	}
	return nil
}

func positionKey(addr crypto.Address) []byte {
	return append(append([]byte{}, positionKeyPrefix...), addr.Bytes()...)
}

func encodePosition(position *Position) *storedPosition {
	stored := &storedPosition{Address: position.Address.String(), Debt: "0"}
	if position.Debt != nil {
		stored.Debt = position.Debt.String()
	}
	if len(position.Collateral) > 0 {
		stored.Collateral = make(map[string]string, len(position.Collateral))
		for asset, amount := range position.Collateral {
			if amount == nil {
				continue
			}
			stored.Collateral[hex.EncodeToString([]byte(asset))] = amount.String()
		}
	}
	return stored
}

func decodePosition(stored *storedPosition) (*Position, error) {
	addr, err := crypto.DecodeAddress(stored.Address)
	if err != nil {
		return nil, fmt.Errorf("stable state: decode position address: %w", err)
	}
	position := &Position{Address: addr, Collateral: make(map[string]*big.Int, len(stored.Collateral))}
	for asset, amount := range stored.Collateral {
		rawAsset, err := hex.DecodeString(asset)
		if err != nil {
			return nil, fmt.Errorf("stable state: decode asset key: %w", err)
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("stable state: invalid collateral amount %q", amount)
		}
		position.Collateral[string(rawAsset)] = value
	}
	debt, ok := new(big.Int).SetString(stored.Debt, 10)
	if !ok {
		return nil, fmt.Errorf("stable state: invalid debt amount %q", stored.Debt)
	}
	position.Debt = debt
	return position, nil
}
