package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const aggregatorABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

const erc20DecimalsABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the subset of the Ethereum RPC used to read feeds.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// ChainlinkFeed reads an AggregatorV3-compatible price feed contract.
type ChainlinkFeed struct {
	caller  ContractCaller
	address common.Address
	abi     abi.ABI
	timeout time.Duration
}

// NewChainlinkFeed binds the feed deployed at address.
func NewChainlinkFeed(caller ContractCaller, address common.Address, timeout time.Duration) (*ChainlinkFeed, error) {
	if caller == nil {
		return nil, fmt.Errorf("oracle: contract caller required")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("oracle: feed address required")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	return &ChainlinkFeed{caller: caller, address: address, abi: parsed, timeout: timeout}, nil
}

// LatestPrice implements PriceFeed.
func (f *ChainlinkFeed) LatestPrice(ctx context.Context) (RoundData, error) {
	out, err := callView(ctx, f.caller, f.abi, f.address, "latestRoundData", f.timeout)
	if err != nil {
		return RoundData{}, err
	}
	if len(out) != 5 {
		return RoundData{}, fmt.Errorf("latestRoundData: unexpected output arity %d", len(out))
	}
	roundID, ok := out[0].(*big.Int)
	if !ok {
		return RoundData{}, fmt.Errorf("latestRoundData: roundId has type %T", out[0])
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return RoundData{}, fmt.Errorf("latestRoundData: answer has type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return RoundData{}, fmt.Errorf("latestRoundData: updatedAt has type %T", out[3])
	}
	return RoundData{
		RoundID:   roundID,
		Answer:    answer,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

// Decimals implements PriceFeed.
func (f *ChainlinkFeed) Decimals(ctx context.Context) (uint8, error) {
	return decimalsCall(ctx, f.caller, f.abi, f.address, f.timeout)
}

// ERC20Metadata reads decimals from ERC-20 token contracts.
type ERC20Metadata struct {
	caller  ContractCaller
	abi     abi.ABI
	timeout time.Duration
}

// NewERC20Metadata constructs a metadata reader over the caller.
func NewERC20Metadata(caller ContractCaller, timeout time.Duration) (*ERC20Metadata, error) {
	if caller == nil {
		return nil, fmt.Errorf("oracle: contract caller required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20DecimalsABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse erc20 abi: %w", err)
	}
	return &ERC20Metadata{caller: caller, abi: parsed, timeout: timeout}, nil
}

// Decimals implements AssetMetadata.
func (m *ERC20Metadata) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	if asset == (common.Address{}) {
		return 0, fmt.Errorf("asset address required")
	}
	return decimalsCall(ctx, m.caller, m.abi, asset, m.timeout)
}

func decimalsCall(ctx context.Context, caller ContractCaller, parsed abi.ABI, to common.Address, timeout time.Duration) (uint8, error) {
	out, err := callView(ctx, caller, parsed, to, "decimals", timeout)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("decimals: unexpected output arity %d", len(out))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return decimals, nil
}

func callView(ctx context.Context, caller ContractCaller, parsed abi.ABI, to common.Address, method string, timeout time.Duration) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call %s: %w", method, to.Hex(), err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	return out, nil
}
