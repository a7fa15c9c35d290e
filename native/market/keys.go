package market

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// KeyFor derives the subscription key for a (subscriber, provider) pair. Both
// identifiers are fixed width, so the concatenation is unambiguous and the
// key is collision resistant by the hash.
func KeyFor(subscriber SubscriberID, provider ProviderID) SubscriptionKey {
	var key SubscriptionKey
	copy(key[:], ethcrypto.Keccak256(subscriber[:], provider[:]))
	return key
}
