package state

import (
	"math/big"

	"subledger/native/market"
)

var (
	marketProviderPrefix      = []byte("market/provider/")
	marketSubscriberPrefix    = []byte("market/subscriber/")
	marketSubscriptionPrefix  = []byte("market/subscription/")
	marketProviderIndexPrefix = []byte("market/provider-subscriptions/")
	marketProviderCountKey    = []byte("market/provider-count")
	marketTotalsKey           = []byte("market/totals")
	marketParamsKey           = []byte("market/params")
)

func prefixedKey(prefix []byte, id []byte) []byte {
	out := make([]byte, len(prefix)+len(id))
	copy(out, prefix)
	copy(out[len(prefix):], id)
	return out
}

func ensureBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// MarketProviderGet loads a provider record.
func (m *Manager) MarketProviderGet(id market.ProviderID) (*market.Provider, bool, error) {
	provider := new(market.Provider)
	ok, err := m.KVGet(prefixedKey(marketProviderPrefix, id[:]), provider)
	if err != nil || !ok {
		return nil, false, err
	}
	provider.FeePerPeriod = ensureBig(provider.FeePerPeriod)
	provider.Balance = ensureBig(provider.Balance)
	return provider, true, nil
}

// MarketProviderPut stores a provider record.
func (m *Manager) MarketProviderPut(provider *market.Provider) error {
	record := provider.Clone()
	return m.KVPut(prefixedKey(marketProviderPrefix, record.ID[:]), record)
}

// MarketProviderDelete removes a provider record.
func (m *Manager) MarketProviderDelete(id market.ProviderID) error {
	return m.KVDelete(prefixedKey(marketProviderPrefix, id[:]))
}

// MarketProviderCount returns the number of registered providers.
func (m *Manager) MarketProviderCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(marketProviderCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarketSetProviderCount stores the provider counter.
func (m *Manager) MarketSetProviderCount(count uint64) error {
	return m.KVPut(marketProviderCountKey, count)
}

// MarketSubscriberGet loads a subscriber record.
func (m *Manager) MarketSubscriberGet(id market.SubscriberID) (*market.Subscriber, bool, error) {
	subscriber := new(market.Subscriber)
	ok, err := m.KVGet(prefixedKey(marketSubscriberPrefix, id[:]), subscriber)
	if err != nil || !ok {
		return nil, false, err
	}
	subscriber.Balance = ensureBig(subscriber.Balance)
	return subscriber, true, nil
}

// MarketSubscriberPut stores a subscriber record.
func (m *Manager) MarketSubscriberPut(subscriber *market.Subscriber) error {
	record := subscriber.Clone()
	return m.KVPut(prefixedKey(marketSubscriberPrefix, record.ID[:]), record)
}

// MarketSubscriptionGet loads the subscription stored under key. Active and
// paused records share the table and are told apart by their status tag.
func (m *Manager) MarketSubscriptionGet(key market.SubscriptionKey) (*market.Subscription, bool, error) {
	sub := new(market.Subscription)
	ok, err := m.KVGet(prefixedKey(marketSubscriptionPrefix, key[:]), sub)
	if err != nil || !ok {
		return nil, false, err
	}
	sub.DebtPaid = ensureBig(sub.DebtPaid)
	sub.AccrualCarry = ensureBig(sub.AccrualCarry)
	return sub, true, nil
}

// MarketSubscriptionPut stores a subscription record.
func (m *Manager) MarketSubscriptionPut(sub *market.Subscription) error {
	record := sub.Clone()
	return m.KVPut(prefixedKey(marketSubscriptionPrefix, record.Key[:]), record)
}

// MarketProviderSubscriptions lists the active subscription keys indexed
// under a provider.
func (m *Manager) MarketProviderSubscriptions(id market.ProviderID) ([]market.SubscriptionKey, error) {
	var raw [][]byte
	if err := m.KVGetList(prefixedKey(marketProviderIndexPrefix, id[:]), &raw); err != nil {
		return nil, err
	}
	keys := make([]market.SubscriptionKey, 0, len(raw))
	for _, entry := range raw {
		var key market.SubscriptionKey
		copy(key[:], entry)
		keys = append(keys, key)
	}
	return keys, nil
}

// MarketProviderSubscriptionAdd indexes key under the provider.
func (m *Manager) MarketProviderSubscriptionAdd(id market.ProviderID, key market.SubscriptionKey) error {
	return m.KVAppend(prefixedKey(marketProviderIndexPrefix, id[:]), key[:])
}

// MarketProviderSubscriptionRemove drops key from the provider index.
func (m *Manager) MarketProviderSubscriptionRemove(id market.ProviderID, key market.SubscriptionKey) error {
	return m.KVRemove(prefixedKey(marketProviderIndexPrefix, id[:]), key[:])
}

// MarketTotals returns the value flow counters, zeroed when never written.
func (m *Manager) MarketTotals() (*market.Totals, error) {
	totals := market.NewTotals()
	ok, err := m.KVGet(marketTotalsKey, totals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return market.NewTotals(), nil
	}
	return totals.Clone(), nil
}

// MarketPutTotals stores the value flow counters.
func (m *Manager) MarketPutTotals(totals *market.Totals) error {
	return m.KVPut(marketTotalsKey, totals.Clone())
}

// MarketParams loads the parameter record.
func (m *Manager) MarketParams() (*market.Params, bool, error) {
	params := new(market.Params)
	ok, err := m.KVGet(marketParamsKey, params)
	if err != nil || !ok {
		return nil, false, err
	}
	clone := params.Clone()
	return &clone, true, nil
}

// MarketPutParams stores the parameter record.
func (m *Manager) MarketPutParams(params market.Params) error {
	clone := params.Clone()
	return m.KVPut(marketParamsKey, &clone)
}
