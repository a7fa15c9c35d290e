// Package oracle values amounts of the payment asset in a stable unit of
// account using an external price feed. The valuation is only used to check
// minimum fees and deposits; settlement never goes through it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StableDecimals is the number of decimals of the stable unit, matching the
// usual USD feed convention.
const StableDecimals = 8

const (
	minAssetDecimals = 1
	maxAssetDecimals = 18
	maxFeedDecimals  = 36
)

var (
	ErrZeroAmount           = errors.New("oracle: amount must be positive")
	ErrFeedUnavailable      = errors.New("oracle: price feed unavailable")
	ErrInvalidAssetMetadata = errors.New("oracle: invalid asset metadata")
)

// RoundData mirrors the answer reported by an aggregator round.
type RoundData struct {
	RoundID   *big.Int
	Answer    *big.Int
	UpdatedAt time.Time
}

// PriceFeed is the consumed price feed contract.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (RoundData, error)
	Decimals(ctx context.Context) (uint8, error)
}

// AssetMetadata resolves the decimal count of a payment asset.
type AssetMetadata interface {
	Decimals(ctx context.Context, asset common.Address) (uint8, error)
}

// Adapter normalises feed and asset decimals into stable-unit values. Every
// call re-queries the feed; there is no caching and no staleness check.
type Adapter struct {
	feed   PriceFeed
	assets AssetMetadata
}

// NewAdapter constructs an adapter over the supplied feed and asset metadata.
func NewAdapter(feed PriceFeed, assets AssetMetadata) *Adapter {
	return &Adapter{feed: feed, assets: assets}
}

// ValueInStableUnits returns amount * price / 10^(assetDecimals + feedDecimals - StableDecimals).
func (a *Adapter) ValueInStableUnits(ctx context.Context, amount *big.Int, asset common.Address) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if a == nil || a.feed == nil {
		return nil, fmt.Errorf("%w: feed not configured", ErrFeedUnavailable)
	}
	if a.assets == nil {
		return nil, fmt.Errorf("%w: asset metadata not configured", ErrInvalidAssetMetadata)
	}
	assetDecimals, err := a.assets.Decimals(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetMetadata, err)
	}
	if assetDecimals < minAssetDecimals || assetDecimals > maxAssetDecimals {
		return nil, fmt.Errorf("%w: decimals %d outside [%d,%d]", ErrInvalidAssetMetadata, assetDecimals, minAssetDecimals, maxAssetDecimals)
	}
	round, err := a.feed.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrFeedUnavailable)
	}
	feedDecimals, err := a.feed.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: decimals: %v", ErrFeedUnavailable, err)
	}
	if feedDecimals > maxFeedDecimals {
		return nil, fmt.Errorf("%w: feed decimals %d", ErrFeedUnavailable, feedDecimals)
	}
	return scale(amount, round.Answer, int(assetDecimals)+int(feedDecimals)-StableDecimals), nil
}

func scale(amount, price *big.Int, exponent int) *big.Int {
	value := new(big.Int).Mul(amount, price)
	if exponent == 0 {
		return value
	}
	if exponent < 0 {
		return value.Mul(value, pow10(-exponent))
	}
	return value.Quo(value, pow10(exponent))
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
