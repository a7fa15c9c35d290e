package market

import "math/big"

// owedSince computes the debt accrued since the last settlement minus any
// voluntary payment made toward it, along with the fixed-point remainder
// the next settlement carries forward.
func owedSince(sub *Subscription, rate *big.Int, now uint64) (*big.Int, *big.Int) {
	if sub == nil || sub.Status != StatusActive {
		return big.NewInt(0), big.NewInt(0)
	}
	accrued, carry := AccruedWithCarry(rate, elapsedSince(sub, now), sub.AccrualCarry)
	return outstanding(accrued, sub.DebtPaid), carry
}

func elapsedSince(sub *Subscription, now uint64) uint64 {
	if sub == nil || sub.Status != StatusActive || now <= sub.LastSettledAt {
		return 0
	}
	return now - sub.LastSettledAt
}

// settle moves the outstanding debt from the subscriber to the provider and
// resets the accrual reference. Records are written back to state; the
// caller owns persisting anything else it changes on them afterwards.
func (e *Engine) settle(sub *Subscription, subscriber *Subscriber, provider *Provider, now uint64, params *Params) (*big.Int, error) {
	rate := RatePerTick(provider.FeePerPeriod, params.PeriodLength)
	owed, carry := owedSince(sub, rate, now)
	balance := newBigInt(subscriber.Balance)
	if balance.Cmp(owed) < 0 {
		return nil, &InsufficientDepositError{Current: balance, Required: owed, Unit: UnitNative}
	}
	earnings := new(big.Int).Add(newBigInt(provider.Balance), owed)
	if !fitsUint256(earnings) {
		return nil, ErrInvalidAmount
	}
	subscriber.Balance = balance.Sub(balance, owed)
	provider.Balance = earnings
	sub.LastSettledAt = now
	sub.DebtPaid = big.NewInt(0)
	sub.AccrualCarry = carry
	if err := e.state.MarketSubscriberPut(subscriber); err != nil {
		return nil, err
	}
	if err := e.state.MarketProviderPut(provider); err != nil {
		return nil, err
	}
	if err := e.state.MarketSubscriptionPut(sub); err != nil {
		return nil, err
	}
	e.emit(subscriptionSettledEvent(sub, owed, now))
	return owed, nil
}

// EstimateCost reports the per-tick rate and the amount owed as of now. A
// paused subscription owes nothing.
func (e *Engine) EstimateCost(key SubscriptionKey) (*Estimate, error) {
	var estimate *Estimate
	err := e.view(func(now uint64, params *Params) error {
		sub, err := e.getSubscription(key)
		if err != nil {
			return err
		}
		provider, err := e.getProvider(sub.ProviderID)
		if err != nil {
			return err
		}
		rate := RatePerTick(provider.FeePerPeriod, params.PeriodLength)
		owed, _ := owedSince(sub, rate, now)
		estimate = &Estimate{
			RatePerTick: rate,
			Owed:        owed,
			Elapsed:     elapsedSince(sub, now),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return estimate, nil
}

// Settle realises the debt of an active subscription without changing its
// state. Anyone may call it. Paused subscriptions settle to zero.
func (e *Engine) Settle(key SubscriptionKey) (*big.Int, error) {
	var settled *big.Int
	err := e.execute(true, func(now uint64, params *Params) error {
		sub, err := e.getSubscription(key)
		if err != nil {
			return err
		}
		provider, err := e.getProvider(sub.ProviderID)
		if err != nil {
			return err
		}
		if sub.Status != StatusActive {
			settled = big.NewInt(0)
			return nil
		}
		subscriber, err := e.getSubscriber(sub.SubscriberID)
		if err != nil {
			return err
		}
		settled, err = e.settle(sub, subscriber, provider, now, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// PayDebt lets the subscriber's owner pay part or all of the outstanding
// debt from an external balance. The payment goes straight to the provider
// and is deducted from what the next settlement collects.
func (e *Engine) PayDebt(caller [20]byte, key SubscriptionKey, amount *big.Int) (*Subscription, error) {
	var result *Subscription
	err := e.execute(true, func(now uint64, params *Params) error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		sub, err := e.getSubscription(key)
		if err != nil {
			return err
		}
		subscriber, err := e.getSubscriber(sub.SubscriberID)
		if err != nil {
			return err
		}
		if subscriber.Owner != caller {
			return ErrNotOwner
		}
		provider, err := e.getProvider(sub.ProviderID)
		if err != nil {
			return err
		}
		owed, _ := owedSince(sub, RatePerTick(provider.FeePerPeriod, params.PeriodLength), now)
		if amount.Cmp(owed) > 0 {
			return &AmountExceedsDebtError{Amount: new(big.Int).Set(amount), Owed: owed}
		}
		earnings := new(big.Int).Add(newBigInt(provider.Balance), amount)
		if !fitsUint256(earnings) {
			return ErrInvalidAmount
		}
		if err := e.transferIn(caller, params, amount); err != nil {
			return err
		}
		provider.Balance = earnings
		if err := e.state.MarketProviderPut(provider); err != nil {
			return err
		}
		sub.DebtPaid = new(big.Int).Add(newBigInt(sub.DebtPaid), amount)
		if err := e.state.MarketSubscriptionPut(sub); err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		totals.DebtPaidIn.Add(totals.DebtPaidIn, amount)
		if err := e.state.MarketPutTotals(totals); err != nil {
			return err
		}
		e.emit(debtPaidEvent(sub, amount, now))
		result = sub.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
