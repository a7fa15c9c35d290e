package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StaticFeed reports a fixed price. It backs local deployments and tests.
type StaticFeed struct {
	mu       sync.RWMutex
	price    *big.Int
	decimals uint8
	now      func() time.Time
}

// NewStaticFeed returns a feed answering price with the given decimals.
func NewStaticFeed(price *big.Int, decimals uint8) *StaticFeed {
	feed := &StaticFeed{decimals: decimals, now: time.Now}
	feed.SetPrice(price)
	return feed
}

// SetPrice replaces the reported price. A nil price is reported as zero.
func (f *StaticFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price == nil {
		f.price = big.NewInt(0)
		return
	}
	f.price = new(big.Int).Set(price)
}

// LatestPrice implements PriceFeed.
func (f *StaticFeed) LatestPrice(context.Context) (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return RoundData{
		RoundID:   big.NewInt(1),
		Answer:    new(big.Int).Set(f.price),
		UpdatedAt: f.now().UTC(),
	}, nil
}

// Decimals implements PriceFeed.
func (f *StaticFeed) Decimals(context.Context) (uint8, error) {
	return f.decimals, nil
}

// StaticAssets is an AssetMetadata backed by a fixed table.
type StaticAssets map[common.Address]uint8

// Decimals implements AssetMetadata.
func (s StaticAssets) Decimals(_ context.Context, asset common.Address) (uint8, error) {
	decimals, ok := s[asset]
	if !ok {
		return 0, fmt.Errorf("unknown asset %s", asset.Hex())
	}
	return decimals, nil
}
