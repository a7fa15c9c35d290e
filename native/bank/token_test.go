package bank

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"subledger/core/state"
	"subledger/storage"
	"subledger/storage/trie"
)

var assetAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newTestToken(t *testing.T, vault [20]byte) *Token {
	t.Helper()
	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	manager := state.NewManager(tr)
	require.NoError(t, manager.RegisterToken("usdx", "Test Dollar", 6, assetAddr))
	token, err := NewToken(manager, "usdx", vault)
	require.NoError(t, err)
	return token
}

func TestNewTokenRequiresRegistration(t *testing.T) {
	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	_, err = NewToken(state.NewManager(tr), "nope", [20]byte{})
	require.ErrorIs(t, err, ErrTokenNotRegistered)
}

func TestTransferFromMovesBalances(t *testing.T) {
	vault := [20]byte{9}
	alice := [20]byte{1}
	token := newTestToken(t, vault)
	require.Equal(t, "USDX", token.Symbol())
	require.NoError(t, token.Mint(alice, big.NewInt(100)))

	ok, err := token.TransferFrom(alice, vault, big.NewInt(60))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = token.TransferFrom(alice, vault, big.NewInt(41))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = token.TransferFrom(alice, vault, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	ok, err = token.Transfer(alice, big.NewInt(10))
	require.NoError(t, err)
	require.True(t, ok)

	bal, err := token.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), bal.Int64())
	bal, err = token.BalanceOf(vault)
	require.NoError(t, err)
	require.Equal(t, int64(50), bal.Int64())
}

func TestMintRejectsOverflow(t *testing.T) {
	token := newTestToken(t, [20]byte{9})
	ceiling := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, token.Mint([20]byte{1}, ceiling))
	require.ErrorIs(t, token.Mint([20]byte{1}, big.NewInt(1)), ErrBalanceOverflow)
}

func TestDecimalsChecksAsset(t *testing.T) {
	token := newTestToken(t, [20]byte{9})
	decimals, err := token.Decimals(context.Background(), assetAddr)
	require.NoError(t, err)
	require.Equal(t, uint8(6), decimals)

	_, err = token.Decimals(context.Background(), common.HexToAddress("0x01"))
	require.ErrorIs(t, err, ErrUnknownAsset)
}
