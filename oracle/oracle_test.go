package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var testAsset = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type failingFeed struct{}

func (failingFeed) LatestPrice(context.Context) (RoundData, error) {
	return RoundData{}, errors.New("rpc timeout")
}

func (failingFeed) Decimals(context.Context) (uint8, error) { return 8, nil }

func TestValueInStableUnitsNormalisesDecimals(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(NewStaticFeed(big.NewInt(2_000_00000000), 8), StaticAssets{testAsset: 18})

	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	value, err := adapter.ValueInStableUnits(ctx, oneToken, testAsset)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Cmp(big.NewInt(2_000_00000000)) != 0 {
		t.Fatalf("expected 2000 stable units, got %s", value)
	}
}

func TestValueInStableUnitsScalesUpWhenDecimalsAreSmall(t *testing.T) {
	adapter := NewAdapter(NewStaticFeed(big.NewInt(150), 2), StaticAssets{testAsset: 2})
	value, err := adapter.ValueInStableUnits(context.Background(), big.NewInt(100), testAsset)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Cmp(big.NewInt(150_000_000)) != 0 {
		t.Fatalf("expected 1.5 stable units at 8 decimals, got %s", value)
	}
}

func TestValueInStableUnitsFailures(t *testing.T) {
	ctx := context.Background()
	good := NewStaticFeed(big.NewInt(100_000_000), 8)

	if _, err := NewAdapter(good, StaticAssets{testAsset: 6}).ValueInStableUnits(ctx, big.NewInt(0), testAsset); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := NewAdapter(good, StaticAssets{testAsset: 6}).ValueInStableUnits(ctx, nil, testAsset); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount for nil, got %v", err)
	}
	if _, err := NewAdapter(failingFeed{}, StaticAssets{testAsset: 6}).ValueInStableUnits(ctx, big.NewInt(1), testAsset); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
	if _, err := NewAdapter(NewStaticFeed(big.NewInt(-5), 8), StaticAssets{testAsset: 6}).ValueInStableUnits(ctx, big.NewInt(1), testAsset); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable for negative price, got %v", err)
	}
	if _, err := NewAdapter(NewStaticFeed(big.NewInt(0), 8), StaticAssets{testAsset: 6}).ValueInStableUnits(ctx, big.NewInt(1), testAsset); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable for zero price, got %v", err)
	}
	for _, decimals := range []uint8{0, 19} {
		if _, err := NewAdapter(good, StaticAssets{testAsset: decimals}).ValueInStableUnits(ctx, big.NewInt(1), testAsset); !errors.Is(err, ErrInvalidAssetMetadata) {
			t.Fatalf("expected ErrInvalidAssetMetadata for %d decimals, got %v", decimals, err)
		}
	}
	if _, err := NewAdapter(good, StaticAssets{}).ValueInStableUnits(ctx, big.NewInt(1), testAsset); !errors.Is(err, ErrInvalidAssetMetadata) {
		t.Fatalf("expected ErrInvalidAssetMetadata for unknown asset, got %v", err)
	}
}

func TestValueRequeriesFeedOnEveryCall(t *testing.T) {
	feed := NewStaticFeed(big.NewInt(100_000_000), 8)
	adapter := NewAdapter(feed, StaticAssets{testAsset: 8})
	first, err := adapter.ValueInStableUnits(context.Background(), big.NewInt(100_000_000), testAsset)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	feed.SetPrice(big.NewInt(300_000_000))
	second, err := adapter.ValueInStableUnits(context.Background(), big.NewInt(100_000_000), testAsset)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if new(big.Int).Mul(first, big.NewInt(3)).Cmp(second) != 0 {
		t.Fatalf("expected price change to be observed, got %s then %s", first, second)
	}
}
