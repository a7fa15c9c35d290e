package market

import (
	"context"
	"fmt"
	"math/big"
)

// RegisterProvider creates a provider owned by caller. The fee is validated
// against the minimum in stable units.
func (e *Engine) RegisterProvider(ctx context.Context, caller [20]byte, id ProviderID, fee *big.Int, plan Plan) (*Provider, error) {
	var created *Provider
	err := e.execute(true, func(now uint64, params *Params) error {
		if isZeroAddress(caller) {
			return ErrZeroOwner
		}
		if id.IsZero() {
			return ErrInvalidID
		}
		if fee == nil || fee.Sign() <= 0 || !fitsUint256(fee) {
			return ErrInvalidFee
		}
		if _, ok, err := e.state.MarketProviderGet(id); err != nil {
			return err
		} else if ok {
			return ErrAlreadyExists
		}
		// Orphaned subscriptions still reference the identifier.
		keys, err := e.state.MarketProviderSubscriptions(id)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			return ErrAlreadyExists
		}
		count, err := e.state.MarketProviderCount()
		if err != nil {
			return err
		}
		if count >= params.MaxProviders {
			return ErrCapacityExceeded
		}
		value, err := e.stableValue(ctx, fee, params)
		if err != nil {
			return err
		}
		if value.Sign() <= 0 {
			return ErrInvalidFee
		}
		if minimum := newBigInt(params.MinimumFee); value.Cmp(minimum) < 0 {
			return &FeeBelowMinimumError{Value: value, Minimum: minimum}
		}
		provider := &Provider{
			ID:           id,
			Owner:        caller,
			FeePerPeriod: new(big.Int).Set(fee),
			Balance:      big.NewInt(0),
			Plan:         plan,
			RegisteredAt: now,
		}
		if err := e.state.MarketProviderPut(provider); err != nil {
			return err
		}
		if err := e.state.MarketSetProviderCount(count + 1); err != nil {
			return err
		}
		e.emit(providerRegisteredEvent(provider))
		created = provider.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RemoveProvider deletes the provider and pays its balance to the owner.
// Outstanding subscriber debt is not settled; it is recorded as
// uncollectible and stays uncollected. The amount paid out is returned.
func (e *Engine) RemoveProvider(caller [20]byte, id ProviderID) (*big.Int, error) {
	var paid *big.Int
	err := e.execute(true, func(now uint64, params *Params) error {
		provider, err := e.getProvider(id)
		if err != nil {
			return err
		}
		if provider.Owner != caller {
			return ErrNotOwner
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		keys, err := e.state.MarketProviderSubscriptions(id)
		if err != nil {
			return err
		}
		rate := RatePerTick(provider.FeePerPeriod, params.PeriodLength)
		for _, key := range keys {
			sub, ok, err := e.state.MarketSubscriptionGet(key)
			if err != nil {
				return err
			}
			if !ok || sub == nil || sub.ProviderID != id {
				return fmt.Errorf("%w: key %s", ErrSubscriptionsOutOfSync, key)
			}
			if sub.Status != StatusActive {
				continue
			}
			owed, _ := owedSince(sub, rate, now)
			if owed.Sign() == 0 {
				continue
			}
			totals.Uncollectible.Add(totals.Uncollectible, owed)
			e.emit(debtUncollectibleEvent(sub, owed, now))
		}

		payout := newBigInt(provider.Balance)
		if err := e.state.MarketProviderDelete(id); err != nil {
			return err
		}
		count, err := e.state.MarketProviderCount()
		if err != nil {
			return err
		}
		if count > 0 {
			count--
		}
		if err := e.state.MarketSetProviderCount(count); err != nil {
			return err
		}
		if payout.Sign() > 0 {
			if err := e.transferOut(provider.Owner, payout); err != nil {
				return err
			}
			totals.Withdrawn.Add(totals.Withdrawn, payout)
		}
		if err := e.state.MarketPutTotals(totals); err != nil {
			return err
		}
		e.emit(providerRemovedEvent(provider, payout, now))
		paid = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// RegisterSubscriber creates an empty subscriber owned by caller.
func (e *Engine) RegisterSubscriber(caller [20]byte, id SubscriberID) (*Subscriber, error) {
	var created *Subscriber
	err := e.execute(true, func(now uint64, params *Params) error {
		if isZeroAddress(caller) {
			return ErrZeroOwner
		}
		if id.IsZero() {
			return ErrInvalidID
		}
		if _, ok, err := e.state.MarketSubscriberGet(id); err != nil {
			return err
		} else if ok {
			return ErrAlreadyExists
		}
		subscriber := &Subscriber{ID: id, Owner: caller, Balance: big.NewInt(0)}
		if err := e.state.MarketSubscriberPut(subscriber); err != nil {
			return err
		}
		e.emit(subscriberRegisteredEvent(subscriber))
		created = subscriber.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Deposit pulls amount of the asset from caller into the vault and credits
// the subscriber. Anyone may fund any subscriber.
func (e *Engine) Deposit(caller [20]byte, id SubscriberID, amount *big.Int) (*Subscriber, error) {
	var updated *Subscriber
	err := e.execute(true, func(now uint64, params *Params) error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		subscriber, err := e.getSubscriber(id)
		if err != nil {
			return err
		}
		balance := new(big.Int).Add(newBigInt(subscriber.Balance), amount)
		if !fitsUint256(balance) {
			return ErrInvalidAmount
		}
		if err := e.transferIn(caller, params, amount); err != nil {
			return err
		}
		subscriber.Balance = balance
		if err := e.state.MarketSubscriberPut(subscriber); err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		totals.Deposited.Add(totals.Deposited, amount)
		if err := e.state.MarketPutTotals(totals); err != nil {
			return err
		}
		e.emit(subscriberDepositEvent(subscriber, amount))
		updated = subscriber.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetProviderStatus activates or deactivates a provider. Only the admin may
// call it. Deactivation records the current tick; existing subscriptions keep
// accruing.
func (e *Engine) SetProviderStatus(caller [20]byte, id ProviderID, active bool) (*Provider, error) {
	var updated *Provider
	err := e.execute(true, func(now uint64, params *Params) error {
		if !isAdmin(params, caller) {
			return ErrNotAdmin
		}
		provider, err := e.getProvider(id)
		if err != nil {
			return err
		}
		switch {
		case active:
			provider.PausedAt = 0
		case provider.PausedAt == 0:
			provider.PausedAt = now
			if provider.PausedAt == 0 {
				// Tick zero would read as active.
				provider.PausedAt = 1
			}
		}
		if err := e.state.MarketProviderPut(provider); err != nil {
			return err
		}
		e.emit(providerStatusEvent(provider, now))
		updated = provider.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
