package market

import (
	"context"
	"math/big"
)

// Subscribe creates or resumes the subscription between a subscriber owned by
// caller and an active provider. A first subscription requires the
// subscriber's balance to be worth at least the minimum deposit; resuming a
// paused subscription does not.
func (e *Engine) Subscribe(ctx context.Context, caller [20]byte, subscriberID SubscriberID, providerID ProviderID) (*Subscription, error) {
	var result *Subscription
	err := e.execute(true, func(now uint64, params *Params) error {
		subscriber, err := e.getSubscriber(subscriberID)
		if err != nil {
			return err
		}
		if subscriber.Owner != caller {
			return ErrNotOwner
		}
		provider, err := e.getProvider(providerID)
		if err != nil {
			return err
		}
		if !provider.Active() {
			return ErrProviderInactive
		}
		key := KeyFor(subscriberID, providerID)
		existing, ok, err := e.state.MarketSubscriptionGet(key)
		if err != nil {
			return err
		}
		var sub *Subscription
		eventType := EventTypeSubscriptionCreated
		switch {
		case ok && existing.Status == StatusActive:
			return ErrAlreadySubscribed
		case ok:
			sub = existing
			sub.Status = StatusActive
			sub.PausedAt = 0
			sub.LastSettledAt = now
			sub.DebtPaid = big.NewInt(0)
			eventType = EventTypeSubscriptionResumed
		default:
			current := big.NewInt(0)
			if subscriber.Balance != nil && subscriber.Balance.Sign() > 0 {
				if current, err = e.stableValue(ctx, subscriber.Balance, params); err != nil {
					return err
				}
			}
			if required := newBigInt(params.MinimumDeposit); current.Cmp(required) < 0 {
				return &InsufficientDepositError{Current: current, Required: required, Unit: UnitStable}
			}
			sub = &Subscription{
				Key:           key,
				ProviderID:    providerID,
				SubscriberID:  subscriberID,
				Status:        StatusActive,
				SubscribedAt:  now,
				LastSettledAt: now,
				DebtPaid:      big.NewInt(0),
				AccrualCarry:  big.NewInt(0),
			}
		}
		if err := e.state.MarketSubscriptionPut(sub); err != nil {
			return err
		}
		subscriber.addKey(key)
		if err := e.state.MarketSubscriberPut(subscriber); err != nil {
			return err
		}
		provider.ActiveSubscriptions++
		if err := e.state.MarketProviderPut(provider); err != nil {
			return err
		}
		if err := e.state.MarketProviderSubscriptionAdd(providerID, key); err != nil {
			return err
		}
		e.emit(subscriptionEvent(eventType, sub, now))
		result = sub.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Pause settles the subscription as of now and moves it to the paused state.
// When the provider has been removed there is nothing to settle and the
// subscription is paused as orphaned. The settled amount is returned.
func (e *Engine) Pause(caller [20]byte, key SubscriptionKey) (*big.Int, error) {
	var settled *big.Int
	err := e.execute(true, func(now uint64, params *Params) error {
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
		if sub.Status != StatusActive {
			return ErrSubscriptionPaused
		}
		provider, ok, err := e.state.MarketProviderGet(sub.ProviderID)
		if err != nil {
			return err
		}
		eventType := EventTypeSubscriptionPaused
		amount := big.NewInt(0)
		if ok && provider != nil {
			if amount, err = e.settle(sub, subscriber, provider, now, params); err != nil {
				return err
			}
			if provider.ActiveSubscriptions > 0 {
				provider.ActiveSubscriptions--
			}
			if err := e.state.MarketProviderPut(provider); err != nil {
				return err
			}
		} else {
			eventType = EventTypeSubscriptionOrphaned
		}
		sub.Status = StatusPaused
		sub.PausedAt = now
		sub.DebtPaid = big.NewInt(0)
		if err := e.state.MarketSubscriptionPut(sub); err != nil {
			return err
		}
		subscriber.removeKey(key)
		if err := e.state.MarketSubscriberPut(subscriber); err != nil {
			return err
		}
		if err := e.state.MarketProviderSubscriptionRemove(sub.ProviderID, key); err != nil {
			return err
		}
		e.emit(subscriptionEvent(eventType, sub, now))
		settled = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}
