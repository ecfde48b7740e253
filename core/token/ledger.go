package token

import (
	"errors"
	"math/big"
	"sync"

	"stablecore/crypto"
)

var (
	ErrInvalidAmount         = errors.New("token ledger: amount must be positive")
	ErrInsufficientBalance   = errors.New("token ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	ErrNotOwner              = errors.New("token ledger: caller is not the owner")
)

// Ledger is an in-process fungible token: balances, allowances and an
// owner-gated mint/burn authority. Transfer methods take the acting account as
// an explicit first argument and report failure both as a false success flag
// and as an error, mirroring the external token contract surface the risk
// engine is written against.
type Ledger struct {
	mu          sync.Mutex
	name        string
	symbol      string
	owner       crypto.Address
	totalSupply *big.Int
	balances    map[string]*big.Int
	allowances  map[string]map[string]*big.Int
}

// NewLedger constructs an empty token ledger. The owner is the only account
// allowed to mint and burn.
func NewLedger(name, symbol string, owner crypto.Address) *Ledger {
	return &Ledger{
		name:        name,
		symbol:      symbol,
		owner:       owner,
		totalSupply: big.NewInt(0),
		balances:    make(map[string]*big.Int),
		allowances:  make(map[string]map[string]*big.Int),
	}
}

func (l *Ledger) Name() string   { return l.name }
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) BalanceOf(addr crypto.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(addr))
}

func (l *Ledger) Allowance(owner, spender crypto.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowance(owner, spender))
}

// Approve lets spender move up to amount from the owner's balance.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	inner, ok := l.allowances[key(owner)]
	if !ok {
		inner = make(map[string]*big.Int)
		l.allowances[key(owner)] = inner
	}
	inner[key(spender)] = new(big.Int).Set(amount)
	return nil
}

// Mint credits amount to the recipient. Only the ledger owner may mint.
func (l *Ledger) Mint(caller, to crypto.Address, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if key(caller) != key(l.owner) {
		return false, ErrNotOwner
	}
	l.credit(to, amount)
	l.totalSupply = new(big.Int).Add(l.totalSupply, amount)
	return true, nil
}

// Burn destroys amount from the caller's own balance. Only the owner may burn.
func (l *Ledger) Burn(caller crypto.Address, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if key(caller) != key(l.owner) {
		return false, ErrNotOwner
	}
	if err := l.debit(caller, amount); err != nil {
		return false, err
	}
	l.totalSupply = new(big.Int).Sub(l.totalSupply, amount)
	return true, nil
}

// Transfer moves amount from the caller's balance to the recipient.
func (l *Ledger) Transfer(caller, to crypto.Address, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(caller, amount); err != nil {
		return false, err
	}
	l.credit(to, amount)
	return true, nil
}

// TransferFrom moves amount from the source account to the recipient using the
// caller's allowance.
func (l *Ledger) TransferFrom(caller, from, to crypto.Address, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := l.allowance(from, caller)
	if allowed.Cmp(amount) < 0 {
		return false, ErrInsufficientAllowance
	}
	if err := l.debit(from, amount); err != nil {
		return false, err
	}
	l.credit(to, amount)
	l.allowances[key(from)][key(caller)] = new(big.Int).Sub(allowed, amount)
	return true, nil
}

func (l *Ledger) balance(addr crypto.Address) *big.Int {
	if bal, ok := l.balances[key(addr)]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (l *Ledger) allowance(owner, spender crypto.Address) *big.Int {
	if inner, ok := l.allowances[key(owner)]; ok {
		if allowed, ok := inner[key(spender)]; ok {
			return allowed
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) credit(addr crypto.Address, amount *big.Int) {
	l.balances[key(addr)] = new(big.Int).Add(l.balance(addr), amount)
}

func (l *Ledger) debit(addr crypto.Address, amount *big.Int) error {
	bal := l.balance(addr)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[key(addr)] = new(big.Int).Sub(bal, amount)
	return nil
}

func key(addr crypto.Address) string {
	return string(addr.Bytes())
}
