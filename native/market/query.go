package market

import (
	"context"
	"math/big"
)

// Provider returns the provider record.
func (e *Engine) Provider(id ProviderID) (*Provider, error) {
	var out *Provider
	err := e.view(func(uint64, *Params) error {
		provider, err := e.getProvider(id)
		out = provider
		return err
	})
	return out, err
}

// Subscriber returns the subscriber record.
func (e *Engine) Subscriber(id SubscriberID) (*Subscriber, error) {
	var out *Subscriber
	err := e.view(func(uint64, *Params) error {
		subscriber, err := e.getSubscriber(id)
		out = subscriber
		return err
	})
	return out, err
}

// Subscription returns the subscription record stored under key.
func (e *Engine) Subscription(key SubscriptionKey) (*Subscription, error) {
	var out *Subscription
	err := e.view(func(uint64, *Params) error {
		sub, err := e.getSubscription(key)
		out = sub
		return err
	})
	return out, err
}

// SubscriptionKey derives the key for a pair without touching state.
func (e *Engine) SubscriptionKey(subscriber SubscriberID, provider ProviderID) SubscriptionKey {
	return KeyFor(subscriber, provider)
}

// ProviderCount returns the number of registered providers and the capacity.
func (e *Engine) ProviderCount() (uint64, uint64, error) {
	var count, capacity uint64
	err := e.view(func(_ uint64, params *Params) error {
		n, err := e.state.MarketProviderCount()
		if err != nil {
			return err
		}
		count, capacity = n, params.MaxProviders
		return nil
	})
	return count, capacity, err
}

// ProviderSubscriptions lists the active subscription keys of a provider,
// including subscriptions orphaned by its removal that were not yet paused.
func (e *Engine) ProviderSubscriptions(id ProviderID) ([]SubscriptionKey, error) {
	var keys []SubscriptionKey
	err := e.view(func(uint64, *Params) error {
		var err error
		keys, err = e.state.MarketProviderSubscriptions(id)
		return err
	})
	return keys, err
}

// StableBalance values the subscriber's balance in stable units.
func (e *Engine) StableBalance(ctx context.Context, id SubscriberID) (*big.Int, error) {
	var value *big.Int
	err := e.view(func(_ uint64, params *Params) error {
		subscriber, err := e.getSubscriber(id)
		if err != nil {
			return err
		}
		if subscriber.Balance == nil || subscriber.Balance.Sign() == 0 {
			value = big.NewInt(0)
			return nil
		}
		value, err = e.stableValue(ctx, subscriber.Balance, params)
		return err
	})
	return value, err
}

// Params returns the current parameters.
func (e *Engine) Params() (Params, error) {
	var out Params
	err := e.view(func(_ uint64, params *Params) error {
		out = params.Clone()
		return nil
	})
	return out, err
}

// Totals returns the value flow counters.
func (e *Engine) Totals() (*Totals, error) {
	var out *Totals
	err := e.view(func(uint64, *Params) error {
		totals, err := e.loadTotals()
		out = totals
		return err
	})
	return out, err
}

// Paused reports whether the module pause switch is set.
func (e *Engine) Paused() bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.pauseView().IsPaused(moduleName)
}
