package market

import "math/big"

// WithdrawEarnings pays the provider's whole balance to its owner. The
// balance is zeroed before the asset leaves the vault.
func (e *Engine) WithdrawEarnings(caller [20]byte, id ProviderID) (*big.Int, error) {
	var paid *big.Int
	err := e.execute(true, func(now uint64, params *Params) error {
		provider, err := e.getProvider(id)
		if err != nil {
			return err
		}
		if provider.Owner != caller {
			return ErrNotOwner
		}
		amount := newBigInt(provider.Balance)
		if amount.Sign() == 0 {
			return ErrNothingToWithdraw
		}
		provider.Balance = big.NewInt(0)
		if err := e.state.MarketProviderPut(provider); err != nil {
			return err
		}
		if err := e.transferOut(provider.Owner, amount); err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		totals.Withdrawn.Add(totals.Withdrawn, amount)
		if err := e.state.MarketPutTotals(totals); err != nil {
			return err
		}
		e.emit(earningsWithdrawnEvent(provider, amount, now))
		paid = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// CanWithdraw reports whether the provider has a positive balance.
func (e *Engine) CanWithdraw(id ProviderID) (bool, error) {
	var can bool
	err := e.view(func(now uint64, params *Params) error {
		provider, err := e.getProvider(id)
		if err != nil {
			return err
		}
		can = provider.Balance != nil && provider.Balance.Sign() > 0
		return nil
	})
	return can, err
}

// ProcessBillingCycle credits the provider with one period's fee for each of
// its active subscriptions without debiting any subscriber. This flat mode is
// independent of per-subscription accrual and the two are never reconciled.
func (e *Engine) ProcessBillingCycle(caller [20]byte, id ProviderID) (*big.Int, error) {
	var billed *big.Int
	err := e.execute(true, func(now uint64, params *Params) error {
		if !isAdmin(params, caller) {
			return ErrNotAdmin
		}
		provider, err := e.getProvider(id)
		if err != nil {
			return err
		}
		amount := new(big.Int).Mul(newBigInt(provider.FeePerPeriod), new(big.Int).SetUint64(provider.ActiveSubscriptions))
		earnings := new(big.Int).Add(newBigInt(provider.Balance), amount)
		if !fitsUint256(earnings) {
			return ErrInvalidAmount
		}
		provider.Balance = earnings
		if err := e.state.MarketProviderPut(provider); err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		totals.FlatBilled.Add(totals.FlatBilled, amount)
		if err := e.state.MarketPutTotals(totals); err != nil {
			return err
		}
		e.emit(flatBillingEvent(provider, amount, now))
		billed = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return billed, nil
}
