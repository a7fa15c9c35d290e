package market

import (
	"math/big"
	"strconv"

	"subledger/core/events"
	"subledger/core/types"
	"subledger/crypto"
)

const (
	EventTypeProviderRegistered   = "market.provider.registered"
	EventTypeProviderRemoved      = "market.provider.removed"
	EventTypeProviderStatus       = "market.provider.status"
	EventTypeSubscriberRegistered = "market.subscriber.registered"
	EventTypeSubscriberDeposit    = "market.subscriber.deposit"
	EventTypeSubscriptionCreated  = "market.subscription.created"
	EventTypeSubscriptionResumed  = "market.subscription.resumed"
	EventTypeSubscriptionPaused   = "market.subscription.paused"
	EventTypeSubscriptionSettled  = "market.subscription.settled"
	EventTypeSubscriptionOrphaned = "market.subscription.orphaned"
	EventTypeDebtPaid             = "market.debt.paid"
	EventTypeDebtUncollectible    = "market.debt.uncollectible"
	EventTypeEarningsWithdrawn    = "market.earnings.withdrawn"
	EventTypeFlatBilling          = "market.billing.flat"
	EventTypeParamsUpdated        = "market.params.updated"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func addr(owner [20]byte) string { return crypto.FromArray(owner).String() }

func amount(v *big.Int) string { return bigString(v) }

func tick(v uint64) string { return strconv.FormatUint(v, 10) }

func providerRegisteredEvent(p *Provider) *types.Event {
	return &types.Event{
		Type: EventTypeProviderRegistered,
		Attributes: map[string]string{
			"provider":     p.ID.String(),
			"owner":        addr(p.Owner),
			"feePerPeriod": amount(p.FeePerPeriod),
			"plan":         p.Plan.String(),
			"tick":         tick(p.RegisteredAt),
		},
	}
}

func providerRemovedEvent(p *Provider, paidOut *big.Int, now uint64) *types.Event {
	return &types.Event{
		Type: EventTypeProviderRemoved,
		Attributes: map[string]string{
			"provider": p.ID.String(),
			"owner":    addr(p.Owner),
			"paidOut":  amount(paidOut),
			"tick":     tick(now),
		},
	}
}

func providerStatusEvent(p *Provider, now uint64) *types.Event {
	return &types.Event{
		Type: EventTypeProviderStatus,
		Attributes: map[string]string{
			"provider": p.ID.String(),
			"active":   strconv.FormatBool(p.Active()),
			"tick":     tick(now),
		},
	}
}

func subscriberRegisteredEvent(s *Subscriber) *types.Event {
	return &types.Event{
		Type: EventTypeSubscriberRegistered,
		Attributes: map[string]string{
			"subscriber": s.ID.String(),
			"owner":      addr(s.Owner),
		},
	}
}

func subscriberDepositEvent(s *Subscriber, deposited *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSubscriberDeposit,
		Attributes: map[string]string{
			"subscriber": s.ID.String(),
			"amount":     amount(deposited),
			"balance":    amount(s.Balance),
		},
	}
}

func subscriptionEvent(eventType string, sub *Subscription, now uint64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"key":        sub.Key.String(),
			"provider":   sub.ProviderID.String(),
			"subscriber": sub.SubscriberID.String(),
			"tick":       tick(now),
		},
	}
}

func subscriptionSettledEvent(sub *Subscription, owed *big.Int, now uint64) *types.Event {
	evt := subscriptionEvent(EventTypeSubscriptionSettled, sub, now)
	evt.Attributes["amount"] = amount(owed)
	return evt
}

func debtPaidEvent(sub *Subscription, paid *big.Int, now uint64) *types.Event {
	evt := subscriptionEvent(EventTypeDebtPaid, sub, now)
	evt.Attributes["amount"] = amount(paid)
	evt.Attributes["debtPaid"] = amount(sub.DebtPaid)
	return evt
}

func debtUncollectibleEvent(sub *Subscription, owed *big.Int, now uint64) *types.Event {
	evt := subscriptionEvent(EventTypeDebtUncollectible, sub, now)
	evt.Attributes["amount"] = amount(owed)
	return evt
}

func earningsWithdrawnEvent(p *Provider, paid *big.Int, now uint64) *types.Event {
	return &types.Event{
		Type: EventTypeEarningsWithdrawn,
		Attributes: map[string]string{
			"provider": p.ID.String(),
			"owner":    addr(p.Owner),
			"amount":   amount(paid),
			"tick":     tick(now),
		},
	}
}

func flatBillingEvent(p *Provider, billed *big.Int, now uint64) *types.Event {
	return &types.Event{
		Type: EventTypeFlatBilling,
		Attributes: map[string]string{
			"provider":      p.ID.String(),
			"subscriptions": strconv.FormatUint(p.ActiveSubscriptions, 10),
			"amount":        amount(billed),
			"tick":          tick(now),
		},
	}
}

func paramsUpdatedEvent(field, value string) *types.Event {
	return &types.Event{
		Type: EventTypeParamsUpdated,
		Attributes: map[string]string{
			"field": field,
			"value": value,
		},
	}
}
