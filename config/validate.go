package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"subledger/crypto"
	"subledger/native/market"
)

var ErrInvalidConfig = errors.New("config: invalid")

// GenesisAllocation is a parsed Allocation.
type GenesisAllocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if _, err := c.MarketParams(); err != nil {
		return err
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Asset.Symbol) == "" || strings.TrimSpace(c.Asset.Name) == "" {
		return fmt.Errorf("%w: asset symbol and name required", ErrInvalidConfig)
	}
	if c.Asset.Decimals < 1 || c.Asset.Decimals > 18 {
		return fmt.Errorf("%w: asset decimals must be within [1,18]", ErrInvalidConfig)
	}
	switch strings.ToLower(strings.TrimSpace(c.Oracle.Mode)) {
	case OracleModeStatic:
		price, err := parseAmount("oracle static price", c.Oracle.StaticPrice)
		if err != nil {
			return err
		}
		if price.Sign() <= 0 {
			return fmt.Errorf("%w: oracle static price must be positive", ErrInvalidConfig)
		}
	case OracleModeChainlink:
		if strings.TrimSpace(c.Oracle.Endpoint) == "" {
			return fmt.Errorf("%w: oracle endpoint required for chainlink mode", ErrInvalidConfig)
		}
		if !common.IsHexAddress(c.Oracle.FeedAddress) {
			return fmt.Errorf("%w: oracle feed address %q", ErrInvalidConfig, c.Oracle.FeedAddress)
		}
		switch strings.ToLower(strings.TrimSpace(c.Oracle.AssetDecimals)) {
		case "", AssetDecimalsLedger, AssetDecimalsERC20:
		default:
			return fmt.Errorf("%w: unknown oracle asset decimals source %q", ErrInvalidConfig, c.Oracle.AssetDecimals)
		}
	default:
		return fmt.Errorf("%w: unknown oracle mode %q", ErrInvalidConfig, c.Oracle.Mode)
	}
	switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
	case IndexerDriverSQLite, IndexerDriverPostgres:
	default:
		return fmt.Errorf("%w: unknown indexer driver %q", ErrInvalidConfig, c.Indexer.Driver)
	}
	if c.RPCRateLimit < 0 || c.RPCBurst < 0 {
		return fmt.Errorf("%w: rpc rate limit must not be negative", ErrInvalidConfig)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: telemetry sample ratio must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

// AssetAddress returns the payment asset address.
func (c *Config) AssetAddress() (common.Address, error) {
	if !common.IsHexAddress(c.Asset.Address) {
		return common.Address{}, fmt.Errorf("%w: asset address %q", ErrInvalidConfig, c.Asset.Address)
	}
	return common.HexToAddress(c.Asset.Address), nil
}

// MarketParams converts the market section into engine parameters.
func (c *Config) MarketParams() (market.Params, error) {
	params := market.DefaultParams()
	admin, err := parseAddress("market admin", c.Market.Admin)
	if err != nil {
		return params, err
	}
	vault, err := parseAddress("market vault", c.Market.Vault)
	if err != nil {
		return params, err
	}
	asset, err := c.AssetAddress()
	if err != nil {
		return params, err
	}
	minFee, err := parseAmount("market minimum fee", c.Market.MinimumFee)
	if err != nil {
		return params, err
	}
	minDeposit, err := parseAmount("market minimum deposit", c.Market.MinimumDeposit)
	if err != nil {
		return params, err
	}
	params.Admin = admin
	params.Vault = vault
	params.Asset = asset
	params.MinimumFee = minFee
	params.MinimumDeposit = minDeposit
	params.MaxProviders = c.Market.MaxProviders
	params.PeriodLength = c.Market.PeriodLength
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return params, nil
}

// GenesisAllocations parses the asset allocations.
func (c *Config) GenesisAllocations() ([]GenesisAllocation, error) {
	out := make([]GenesisAllocation, 0, len(c.Asset.Allocations))
	for i, alloc := range c.Asset.Allocations {
		addr, err := parseAddress(fmt.Sprintf("allocation %d address", i), alloc.Address)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(fmt.Sprintf("allocation %d amount", i), alloc.Amount)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			return nil, fmt.Errorf("%w: allocation %d amount must be positive", ErrInvalidConfig, i)
		}
		out = append(out, GenesisAllocation{Address: addr, Amount: amount})
	}
	return out, nil
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	return addr.Array(), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s %q is not a non-negative integer", ErrInvalidConfig, field, value)
	}
	return amount, nil
}
