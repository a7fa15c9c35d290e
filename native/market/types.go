package market

import (
	"encoding/hex"
	"math/big"
)

// ProviderID identifies a provider. The value is opaque to the ledger.
type ProviderID [32]byte

// SubscriberID identifies a subscriber. The value is opaque to the ledger.
type SubscriberID [32]byte

// SubscriptionKey identifies a (subscriber, provider) relationship.
type SubscriptionKey [32]byte

func (id ProviderID) String() string     { return "0x" + hex.EncodeToString(id[:]) }
func (id SubscriberID) String() string   { return "0x" + hex.EncodeToString(id[:]) }
func (k SubscriptionKey) String() string { return "0x" + hex.EncodeToString(k[:]) }
func (id ProviderID) IsZero() bool       { return id == ProviderID{} }
func (id SubscriberID) IsZero() bool     { return id == SubscriberID{} }

// Plan is a small enumerant attached to a provider. The ledger stores it but
// never interprets it.
type Plan uint8

const (
	PlanBasic Plan = iota
	PlanStandard
	PlanPremium
)

func (p Plan) String() string {
	switch p {
	case PlanBasic:
		return "basic"
	case PlanStandard:
		return "standard"
	case PlanPremium:
		return "premium"
	default:
		return "custom"
	}
}

// Provider sells the recurring service.
type Provider struct {
	ID                  ProviderID
	Owner               [20]byte
	FeePerPeriod        *big.Int
	PausedAt            uint64
	Balance             *big.Int
	Plan                Plan
	ActiveSubscriptions uint64
	RegisteredAt        uint64
}

// Active reports whether the provider accepts subscriptions.
func (p *Provider) Active() bool {
	return p != nil && p.PausedAt == 0
}

// Clone returns a deep copy of the provider.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	clone := *p
	clone.FeePerPeriod = newBigInt(p.FeePerPeriod)
	clone.Balance = newBigInt(p.Balance)
	return &clone
}

// Subscriber consumes the service and holds a prepaid balance.
type Subscriber struct {
	ID            SubscriberID
	Owner         [20]byte
	Balance       *big.Int
	Subscriptions []SubscriptionKey
}

// Clone returns a deep copy of the subscriber.
func (s *Subscriber) Clone() *Subscriber {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Balance = newBigInt(s.Balance)
	clone.Subscriptions = append([]SubscriptionKey(nil), s.Subscriptions...)
	return &clone
}

func (s *Subscriber) addKey(key SubscriptionKey) {
	for _, existing := range s.Subscriptions {
		if existing == key {
			return
		}
	}
	s.Subscriptions = append(s.Subscriptions, key)
}

func (s *Subscriber) removeKey(key SubscriptionKey) {
	for i, existing := range s.Subscriptions {
		if existing == key {
			s.Subscriptions = append(s.Subscriptions[:i], s.Subscriptions[i+1:]...)
			return
		}
	}
}

// SubscriptionStatus tags the single subscription table. A key with no record
// is in the NonExistent state.
type SubscriptionStatus uint8

const (
	StatusActive SubscriptionStatus = iota + 1
	StatusPaused
)

func (s SubscriptionStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Subscription is the relationship record. PausedAt is zero while active.
// DebtPaid accumulates voluntary payments made since LastSettledAt.
// AccrualCarry holds the accrued amount below one unit, scaled by Precision,
// that the last settlement could not collect.
type Subscription struct {
	Key           SubscriptionKey
	ProviderID    ProviderID
	SubscriberID  SubscriberID
	Status        SubscriptionStatus
	SubscribedAt  uint64
	PausedAt      uint64
	LastSettledAt uint64
	DebtPaid      *big.Int
	AccrualCarry  *big.Int `rlp:"optional"`
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	clone := *s
	clone.DebtPaid = newBigInt(s.DebtPaid)
	clone.AccrualCarry = newBigInt(s.AccrualCarry)
	return &clone
}

// Totals tracks every value flow into and out of the ledger.
type Totals struct {
	Deposited     *big.Int
	DebtPaidIn    *big.Int
	FlatBilled    *big.Int
	Withdrawn     *big.Int
	Uncollectible *big.Int
}

// NewTotals returns zeroed totals.
func NewTotals() *Totals {
	return &Totals{
		Deposited:     big.NewInt(0),
		DebtPaidIn:    big.NewInt(0),
		FlatBilled:    big.NewInt(0),
		Withdrawn:     big.NewInt(0),
		Uncollectible: big.NewInt(0),
	}
}

// Clone returns a deep copy of the totals.
func (t *Totals) Clone() *Totals {
	if t == nil {
		return NewTotals()
	}
	return &Totals{
		Deposited:     newBigInt(t.Deposited),
		DebtPaidIn:    newBigInt(t.DebtPaidIn),
		FlatBilled:    newBigInt(t.FlatBilled),
		Withdrawn:     newBigInt(t.Withdrawn),
		Uncollectible: newBigInt(t.Uncollectible),
	}
}

// Inflow is the value that entered provider and subscriber balances.
func (t *Totals) Inflow() *big.Int {
	sum := new(big.Int).Add(newBigInt(t.Deposited), newBigInt(t.DebtPaidIn))
	return sum.Add(sum, newBigInt(t.FlatBilled))
}

// Estimate is the result of an accrual query.
type Estimate struct {
	RatePerTick *big.Int
	Owed        *big.Int
	Elapsed     uint64
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
