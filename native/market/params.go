package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Params holds the process-wide configuration of the market. Only the admin
// setters mutate a stored record, and every change applies immediately.
type Params struct {
	// Admin holds the administrative capability.
	Admin [20]byte
	// Vault is the account that holds the asset backing every balance.
	Vault [20]byte
	// Asset is the payment asset as known to the price oracle.
	Asset common.Address
	// MinimumFee is the smallest provider fee, in stable units.
	MinimumFee *big.Int
	// MinimumDeposit is the smallest subscriber balance for a first
	// subscription, in stable units.
	MinimumDeposit *big.Int
	// MaxProviders caps the number of registered providers.
	MaxProviders uint64
	// PeriodLength is the number of ticks in one billing period.
	PeriodLength uint64
}

// DefaultParams returns parameters suitable for local development.
func DefaultParams() Params {
	return Params{
		MinimumFee:     big.NewInt(0),
		MinimumDeposit: big.NewInt(0),
		MaxProviders:   1000,
		PeriodLength:   30,
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.MinimumFee = newBigInt(p.MinimumFee)
	clone.MinimumDeposit = newBigInt(p.MinimumDeposit)
	return clone
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if isZeroAddress(p.Admin) {
		return fmt.Errorf("%w: admin must be set", ErrInvalidParams)
	}
	if isZeroAddress(p.Vault) {
		return fmt.Errorf("%w: vault must be set", ErrInvalidParams)
	}
	if p.PeriodLength == 0 {
		return fmt.Errorf("%w: period length must be positive", ErrInvalidParams)
	}
	if p.MaxProviders == 0 {
		return fmt.Errorf("%w: provider capacity must be positive", ErrInvalidParams)
	}
	if p.MinimumFee != nil && p.MinimumFee.Sign() < 0 {
		return fmt.Errorf("%w: minimum fee must not be negative", ErrInvalidParams)
	}
	if p.MinimumDeposit != nil && p.MinimumDeposit.Sign() < 0 {
		return fmt.Errorf("%w: minimum deposit must not be negative", ErrInvalidParams)
	}
	return nil
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
