package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	parsed    abi.ABI
	responses map[common.Address]map[string][]byte
	err       error
}

func newFakeCaller(t *testing.T) *fakeCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return &fakeCaller{parsed: parsed, responses: make(map[common.Address]map[string][]byte)}
}

func (f *fakeCaller) respond(t *testing.T, to common.Address, method string, values ...interface{}) {
	t.Helper()
	encoded, err := f.parsed.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	if f.responses[to] == nil {
		f.responses[to] = make(map[string][]byte)
	}
	f.responses[to][method] = encoded
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if call.To == nil {
		return nil, errors.New("missing destination")
	}
	for name, method := range f.parsed.Methods {
		if bytes.HasPrefix(call.Data, method.ID) {
			out, ok := f.responses[*call.To][name]
			if !ok {
				return nil, fmt.Errorf("execution reverted")
			}
			return out, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func TestChainlinkFeedDecodesLatestRound(t *testing.T) {
	feedAddr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	tokenAddr := common.HexToAddress("0x00000000000000000000000000000000000000e2")

	caller := newFakeCaller(t)
	caller.respond(t, feedAddr, "latestRoundData", big.NewInt(7), big.NewInt(99_500_000), big.NewInt(1_700_000_000), big.NewInt(1_700_000_100), big.NewInt(7))
	caller.respond(t, feedAddr, "decimals", uint8(8))
	caller.respond(t, tokenAddr, "decimals", uint8(6))

	feed, err := NewChainlinkFeed(caller, feedAddr, 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	round, err := feed.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if round.Answer.Cmp(big.NewInt(99_500_000)) != 0 || round.RoundID.Int64() != 7 {
		t.Fatalf("unexpected round %+v", round)
	}
	if round.UpdatedAt.Unix() != 1_700_000_100 {
		t.Fatalf("unexpected updatedAt %v", round.UpdatedAt)
	}

	assets, err := NewERC20Metadata(caller, 0)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	adapter := NewAdapter(feed, assets)
	value, err := adapter.ValueInStableUnits(context.Background(), big.NewInt(2_000_000), tokenAddr)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	// 2 tokens at 0.995 = 1.99 stable units.
	if value.Cmp(big.NewInt(199_000_000)) != 0 {
		t.Fatalf("unexpected value %s", value)
	}
}

func TestChainlinkFeedCallFailureIsFeedUnavailable(t *testing.T) {
	feedAddr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	caller := newFakeCaller(t)
	caller.err = errors.New("connection refused")

	feed, err := NewChainlinkFeed(caller, feedAddr, 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	adapter := NewAdapter(feed, StaticAssets{testAsset: 18})
	if _, err := adapter.ValueInStableUnits(context.Background(), big.NewInt(1), testAsset); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestERC20MetadataFailureIsInvalidAssetMetadata(t *testing.T) {
	feedAddr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	caller := newFakeCaller(t)
	caller.respond(t, feedAddr, "latestRoundData", big.NewInt(1), big.NewInt(100_000_000), big.NewInt(0), big.NewInt(0), big.NewInt(1))
	caller.respond(t, feedAddr, "decimals", uint8(8))

	feed, err := NewChainlinkFeed(caller, feedAddr, 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	assets, err := NewERC20Metadata(caller, 0)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	adapter := NewAdapter(feed, assets)
	if _, err := adapter.ValueInStableUnits(context.Background(), big.NewInt(1), testAsset); !errors.Is(err, ErrInvalidAssetMetadata) {
		t.Fatalf("expected ErrInvalidAssetMetadata, got %v", err)
	}
}
