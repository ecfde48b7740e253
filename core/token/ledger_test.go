package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stablecore/crypto"
)

func makeAddress(fill byte) crypto.Address {
	buf := make([]byte, 20)
	for i := range buf {
		buf[i] = fill
	}
	return crypto.NewAddress(crypto.AccountPrefix, buf)
}

func TestMintIsOwnerGated(t *testing.T) {
	owner := makeAddress(0x01)
	user := makeAddress(0x02)
	ledger := NewLedger("Synth USD", "SUSD", owner)

	ok, err := ledger.Mint(user, user, big.NewInt(100))
	require.False(t, ok)
	require.ErrorIs(t, err, ErrNotOwner)

	ok, err = ledger.Mint(owner, user, big.NewInt(100))
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, int64(100), ledger.BalanceOf(user).Int64())
	require.Equal(t, int64(100), ledger.TotalSupply().Int64())
}

func TestBurnReducesSupply(t *testing.T) {
	owner := makeAddress(0x01)
	ledger := NewLedger("Synth USD", "SUSD", owner)

	_, err := ledger.Mint(owner, owner, big.NewInt(50))
	require.NoError(t, err)

	ok, err := ledger.Burn(owner, big.NewInt(20))
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, int64(30), ledger.BalanceOf(owner).Int64())
	require.Equal(t, int64(30), ledger.TotalSupply().Int64())

	ok, err = ledger.Burn(owner, big.NewInt(100))
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	owner := makeAddress(0x01)
	alice := makeAddress(0x02)
	bob := makeAddress(0x03)
	spender := makeAddress(0x04)
	ledger := NewLedger("Wrapped Ether", "WETH", owner)

	_, err := ledger.Mint(owner, alice, big.NewInt(1000))
	require.NoError(t, err)

	ok, err := ledger.TransferFrom(spender, alice, bob, big.NewInt(10))
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, ledger.Approve(alice, spender, big.NewInt(100)))
	ok, err = ledger.TransferFrom(spender, alice, bob, big.NewInt(60))
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, int64(940), ledger.BalanceOf(alice).Int64())
	require.Equal(t, int64(60), ledger.BalanceOf(bob).Int64())
	require.Equal(t, int64(40), ledger.Allowance(alice, spender).Int64())
}

func TestTransferRejectsZeroAmount(t *testing.T) {
	owner := makeAddress(0x01)
	ledger := NewLedger("Synth USD", "SUSD", owner)
	ok, err := ledger.Transfer(owner, makeAddress(0x02), big.NewInt(0))
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidAmount)
}
