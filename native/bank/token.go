// Package bank implements the payment asset held in ledger state. It provides
// the transfer primitive the market engine settles against and the decimal
// metadata the price oracle needs.
package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"subledger/core/state"
)

var (
	ErrTokenNotRegistered = errors.New("bank: token not registered")
	ErrUnknownAsset       = errors.New("bank: unknown asset")
	ErrInvalidAmount      = errors.New("bank: amount must be positive")
	ErrBalanceOverflow    = errors.New("bank: balance exceeds 256 bits")
)

type tokenState interface {
	Token(symbol string) (*state.TokenMetadata, error)
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
}

// Token moves balances of a single registered token. Outgoing transfers are
// paid from the vault.
type Token struct {
	state  tokenState
	symbol string
	vault  [20]byte
}

// NewToken binds the token registered under symbol. The vault is the account
// Transfer pays from.
func NewToken(st tokenState, symbol string, vault [20]byte) (*Token, error) {
	if st == nil {
		return nil, fmt.Errorf("bank: state required")
	}
	meta, err := st.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotRegistered, symbol)
	}
	return &Token{state: st, symbol: meta.Symbol, vault: vault}, nil
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// BalanceOf returns the balance held by addr.
func (t *Token) BalanceOf(addr [20]byte) (*big.Int, error) {
	return t.state.Balance(addr[:], t.symbol)
}

// TransferFrom moves amount between two accounts. It reports false without an
// error when the sender's balance is too low.
func (t *Token) TransferFrom(from, to [20]byte, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	fromBal, err := t.state.Balance(from[:], t.symbol)
	if err != nil {
		return false, err
	}
	if fromBal.Cmp(amount) < 0 {
		return false, nil
	}
	if from == to {
		return true, nil
	}
	toBal, err := t.state.Balance(to[:], t.symbol)
	if err != nil {
		return false, err
	}
	credited := new(big.Int).Add(toBal, amount)
	if _, overflow := uint256.FromBig(credited); overflow {
		return false, ErrBalanceOverflow
	}
	if err := t.state.SetBalance(from[:], t.symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return false, err
	}
	if err := t.state.SetBalance(to[:], t.symbol, credited); err != nil {
		return false, err
	}
	return true, nil
}

// Transfer pays amount out of the vault.
func (t *Token) Transfer(to [20]byte, amount *big.Int) (bool, error) {
	return t.TransferFrom(t.vault, to, amount)
}

// Mint credits amount to addr. It is only used for genesis allocations.
func (t *Token) Mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := t.state.Balance(to[:], t.symbol)
	if err != nil {
		return err
	}
	credited := new(big.Int).Add(bal, amount)
	if _, overflow := uint256.FromBig(credited); overflow {
		return ErrBalanceOverflow
	}
	return t.state.SetBalance(to[:], t.symbol, credited)
}

// Decimals resolves the decimals of asset, which must be the address this
// token was registered with.
func (t *Token) Decimals(_ context.Context, asset common.Address) (uint8, error) {
	meta, err := t.state.Token(t.symbol)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, fmt.Errorf("%w: %s", ErrTokenNotRegistered, t.symbol)
	}
	if meta.Address != asset {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return meta.Decimals, nil
}
