package market

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState = errors.New("market engine: state not configured")
	errNoAsset  = errors.New("market engine: asset not configured")
	errNoOracle = errors.New("market engine: oracle not configured")

	ErrNotFound               = errors.New("market engine: not found")
	ErrProviderNotFound       = fmt.Errorf("%w: provider", ErrNotFound)
	ErrSubscriberNotFound     = fmt.Errorf("%w: subscriber", ErrNotFound)
	ErrSubscriptionNotFound   = fmt.Errorf("%w: subscription", ErrNotFound)
	ErrAlreadyExists          = errors.New("market engine: already exists")
	ErrAlreadySubscribed      = errors.New("market engine: already subscribed")
	ErrSubscriptionPaused     = errors.New("market engine: subscription is paused")
	ErrNotOwner               = errors.New("market engine: caller is not the owner")
	ErrNotAdmin               = errors.New("market engine: caller lacks administrative capability")
	ErrZeroOwner              = errors.New("market engine: owner must not be the zero identity")
	ErrInvalidID              = errors.New("market engine: identifier must not be zero")
	ErrZeroAmount             = errors.New("market engine: amount must be positive")
	ErrInvalidAmount          = errors.New("market engine: amount out of range")
	ErrInvalidFee             = errors.New("market engine: invalid fee")
	ErrFeeBelowMinimum        = errors.New("market engine: fee below minimum")
	ErrInsufficientDeposit    = errors.New("market engine: insufficient deposit")
	ErrAmountExceedsDebt      = errors.New("market engine: amount exceeds debt")
	ErrNothingToWithdraw      = errors.New("market engine: nothing to withdraw")
	ErrCapacityExceeded       = errors.New("market engine: provider capacity exceeded")
	ErrProviderInactive       = errors.New("market engine: provider inactive")
	ErrAssetTransferFailed    = errors.New("market engine: asset transfer failed")
	ErrInvalidParams          = errors.New("market engine: invalid parameters")
	ErrSubscriptionsOutOfSync = errors.New("market engine: subscription index out of sync")
)

// Units used by InsufficientDepositError.
const (
	UnitStable = "stable"
	UnitNative = "native"
)

// InsufficientDepositError reports the balance that was available and the
// amount that was required. Subscribe reports stable units; settlement reports
// native asset units.
type InsufficientDepositError struct {
	Current  *big.Int
	Required *big.Int
	Unit     string
}

func (e *InsufficientDepositError) Error() string {
	return fmt.Sprintf("%s: have %s, need %s (%s units)", ErrInsufficientDeposit, bigString(e.Current), bigString(e.Required), e.Unit)
}

func (e *InsufficientDepositError) Unwrap() error { return ErrInsufficientDeposit }

// FeeBelowMinimumError reports the stable value of a proposed fee against the
// configured minimum.
type FeeBelowMinimumError struct {
	Value   *big.Int
	Minimum *big.Int
}

func (e *FeeBelowMinimumError) Error() string {
	return fmt.Sprintf("%s: value %s, minimum %s", ErrFeeBelowMinimum, bigString(e.Value), bigString(e.Minimum))
}

func (e *FeeBelowMinimumError) Unwrap() error { return ErrFeeBelowMinimum }

// AmountExceedsDebtError reports a payment larger than the outstanding debt.
type AmountExceedsDebtError struct {
	Amount *big.Int
	Owed   *big.Int
}

func (e *AmountExceedsDebtError) Error() string {
	return fmt.Sprintf("%s: amount %s, owed %s", ErrAmountExceedsDebt, bigString(e.Amount), bigString(e.Owed))
}

func (e *AmountExceedsDebtError) Unwrap() error { return ErrAmountExceedsDebt }

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
