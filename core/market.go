package core

import (
	"context"
	"log/slog"
	"math/big"

	"subledger/crypto"
	"subledger/native/market"
)

func apply[T any](n *Node, op string, fn func() (T, error), attrs ...slog.Attr) (T, error) {
	var out T
	err := n.mutate(op, func() error {
		var err error
		out, err = fn()
		return err
	}, attrs...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func query[T any](n *Node, op string, fn func() (T, error)) (T, error) {
	var out T
	err := n.read(op, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func callerAttr(caller [20]byte) slog.Attr {
	return slog.String("caller", crypto.FromArray(caller).String())
}

func amountAttr(amount *big.Int) slog.Attr {
	if amount == nil {
		return slog.String("amount", "0")
	}
	return slog.String("amount", amount.String())
}

// RegisterProvider registers a provider owned by caller.
func (n *Node) RegisterProvider(ctx context.Context, caller [20]byte, id market.ProviderID, fee *big.Int, plan market.Plan) (*market.Provider, error) {
	return apply(n, "register_provider", func() (*market.Provider, error) {
		return n.engine.RegisterProvider(ctx, caller, id, fee, plan)
	}, callerAttr(caller), slog.String("provider", id.String()), slog.String("fee", fee.String()))
}

// RemoveProvider removes a provider and pays out its balance.
func (n *Node) RemoveProvider(caller [20]byte, id market.ProviderID) (*big.Int, error) {
	return apply(n, "remove_provider", func() (*big.Int, error) {
		return n.engine.RemoveProvider(caller, id)
	}, callerAttr(caller), slog.String("provider", id.String()))
}

// SetProviderStatus activates or deactivates a provider.
func (n *Node) SetProviderStatus(caller [20]byte, id market.ProviderID, active bool) (*market.Provider, error) {
	return apply(n, "set_provider_status", func() (*market.Provider, error) {
		return n.engine.SetProviderStatus(caller, id, active)
	}, callerAttr(caller), slog.String("provider", id.String()), slog.Bool("active", active))
}

// RegisterSubscriber registers a subscriber owned by caller.
func (n *Node) RegisterSubscriber(caller [20]byte, id market.SubscriberID) (*market.Subscriber, error) {
	return apply(n, "register_subscriber", func() (*market.Subscriber, error) {
		return n.engine.RegisterSubscriber(caller, id)
	}, callerAttr(caller), slog.String("subscriber", id.String()))
}

// Deposit tops up a subscriber balance from caller.
func (n *Node) Deposit(caller [20]byte, id market.SubscriberID, amount *big.Int) (*market.Subscriber, error) {
	return apply(n, "deposit", func() (*market.Subscriber, error) {
		return n.engine.Deposit(caller, id, amount)
	}, callerAttr(caller), slog.String("subscriber", id.String()), amountAttr(amount))
}

// Subscribe creates or resumes the subscription between a subscriber and a provider.
func (n *Node) Subscribe(ctx context.Context, caller [20]byte, subscriber market.SubscriberID, provider market.ProviderID) (*market.Subscription, error) {
	return apply(n, "subscribe", func() (*market.Subscription, error) {
		return n.engine.Subscribe(ctx, caller, subscriber, provider)
	}, callerAttr(caller), slog.String("subscriber", subscriber.String()), slog.String("provider", provider.String()))
}

// Pause settles and pauses a subscription.
func (n *Node) Pause(caller [20]byte, key market.SubscriptionKey) (*big.Int, error) {
	return apply(n, "pause", func() (*big.Int, error) {
		return n.engine.Pause(caller, key)
	}, callerAttr(caller), slog.String("key", key.String()))
}

// Settle realizes the accrued debt of a subscription.
func (n *Node) Settle(key market.SubscriptionKey) (*big.Int, error) {
	return apply(n, "settle", func() (*big.Int, error) {
		return n.engine.Settle(key)
	}, slog.String("key", key.String()))
}

// PayDebt pays part of a subscription's outstanding debt from caller.
func (n *Node) PayDebt(caller [20]byte, key market.SubscriptionKey, amount *big.Int) (*market.Subscription, error) {
	return apply(n, "pay_debt", func() (*market.Subscription, error) {
		return n.engine.PayDebt(caller, key, amount)
	}, callerAttr(caller), slog.String("key", key.String()), amountAttr(amount))
}

// WithdrawEarnings pays a provider's balance to its owner.
func (n *Node) WithdrawEarnings(caller [20]byte, id market.ProviderID) (*big.Int, error) {
	return apply(n, "withdraw_earnings", func() (*big.Int, error) {
		return n.engine.WithdrawEarnings(caller, id)
	}, callerAttr(caller), slog.String("provider", id.String()))
}

// ProcessBillingCycle credits a provider with one flat fee per active subscription.
func (n *Node) ProcessBillingCycle(caller [20]byte, id market.ProviderID) (*big.Int, error) {
	return apply(n, "process_billing_cycle", func() (*big.Int, error) {
		return n.engine.ProcessBillingCycle(caller, id)
	}, callerAttr(caller), slog.String("provider", id.String()))
}

// SetMinimumFee updates the minimum provider fee in stable units.
func (n *Node) SetMinimumFee(caller [20]byte, minimum *big.Int) (market.Params, error) {
	return apply(n, "set_minimum_fee", func() (market.Params, error) {
		return n.engine.SetMinimumFee(caller, minimum)
	}, callerAttr(caller), amountAttr(minimum))
}

// SetMinimumDeposit updates the minimum deposit in stable units.
func (n *Node) SetMinimumDeposit(caller [20]byte, minimum *big.Int) (market.Params, error) {
	return apply(n, "set_minimum_deposit", func() (market.Params, error) {
		return n.engine.SetMinimumDeposit(caller, minimum)
	}, callerAttr(caller), amountAttr(minimum))
}

// SetProviderCapacity updates the provider cap.
func (n *Node) SetProviderCapacity(caller [20]byte, capacity uint64) (market.Params, error) {
	return apply(n, "set_provider_capacity", func() (market.Params, error) {
		return n.engine.SetProviderCapacity(caller, capacity)
	}, callerAttr(caller), slog.Uint64("capacity", capacity))
}

// SetPeriodLength updates the billing period in ticks.
func (n *Node) SetPeriodLength(caller [20]byte, ticks uint64) (market.Params, error) {
	return apply(n, "set_period_length", func() (market.Params, error) {
		return n.engine.SetPeriodLength(caller, ticks)
	}, callerAttr(caller), slog.Uint64("period", ticks))
}

// TransferAdmin hands the admin role to next.
func (n *Node) TransferAdmin(caller [20]byte, next [20]byte) (market.Params, error) {
	return apply(n, "transfer_admin", func() (market.Params, error) {
		return n.engine.TransferAdmin(caller, next)
	}, callerAttr(caller))
}

// SetModulePaused toggles the market pause switch.
func (n *Node) SetModulePaused(caller [20]byte, paused bool) error {
	return n.mutate("set_module_paused", func() error {
		return n.engine.SetModulePaused(caller, paused)
	}, callerAttr(caller), slog.Bool("paused", paused))
}

// EstimateCost reports what a subscription currently owes.
func (n *Node) EstimateCost(key market.SubscriptionKey) (*market.Estimate, error) {
	return query(n, "estimate_cost", func() (*market.Estimate, error) { return n.engine.EstimateCost(key) })
}

// CanWithdraw reports whether a provider has a positive balance.
func (n *Node) CanWithdraw(id market.ProviderID) (bool, error) {
	return query(n, "can_withdraw", func() (bool, error) { return n.engine.CanWithdraw(id) })
}

// Provider returns a provider record.
func (n *Node) Provider(id market.ProviderID) (*market.Provider, error) {
	return query(n, "provider", func() (*market.Provider, error) { return n.engine.Provider(id) })
}

// Subscriber returns a subscriber record.
func (n *Node) Subscriber(id market.SubscriberID) (*market.Subscriber, error) {
	return query(n, "subscriber", func() (*market.Subscriber, error) { return n.engine.Subscriber(id) })
}

// Subscription returns a subscription record.
func (n *Node) Subscription(key market.SubscriptionKey) (*market.Subscription, error) {
	return query(n, "subscription", func() (*market.Subscription, error) { return n.engine.Subscription(key) })
}

// SubscriptionKey derives the key for a pair.
func (n *Node) SubscriptionKey(subscriber market.SubscriberID, provider market.ProviderID) market.SubscriptionKey {
	return market.KeyFor(subscriber, provider)
}

// ProviderCount returns the registered provider count and the capacity.
func (n *Node) ProviderCount() (uint64, uint64, error) {
	var count, capacity uint64
	err := n.read("provider_count", func() error {
		var err error
		count, capacity, err = n.engine.ProviderCount()
		return err
	})
	return count, capacity, err
}

// ProviderSubscriptions lists the active subscription keys of a provider.
func (n *Node) ProviderSubscriptions(id market.ProviderID) ([]market.SubscriptionKey, error) {
	return query(n, "provider_subscriptions", func() ([]market.SubscriptionKey, error) {
		return n.engine.ProviderSubscriptions(id)
	})
}

// StableBalance values a subscriber balance in stable units.
func (n *Node) StableBalance(ctx context.Context, id market.SubscriberID) (*big.Int, error) {
	return query(n, "stable_balance", func() (*big.Int, error) { return n.engine.StableBalance(ctx, id) })
}

// Params returns the persisted market parameters.
func (n *Node) Params() (market.Params, error) {
	return query(n, "params", n.engine.Params)
}

// Totals returns the ledger-wide flow totals.
func (n *Node) Totals() (*market.Totals, error) {
	return query(n, "totals", n.engine.Totals)
}

// Paused reports whether the market is paused.
func (n *Node) Paused() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Paused()
}

// AssetBalance returns the token balance held by addr.
func (n *Node) AssetBalance(addr [20]byte) (*big.Int, error) {
	return query(n, "asset_balance", func() (*big.Int, error) { return n.token.BalanceOf(addr) })
}
