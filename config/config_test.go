package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"subledger/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, OracleModeStatic, cfg.Oracle.Mode)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Market, reloaded.Market)

	params, err := reloaded.MarketParams()
	require.NoError(t, err)
	require.Equal(t, uint64(2_592_000), params.PeriodLength)
	require.Equal(t, int64(100000000), params.MinimumFee.Int64())
}

func TestLoadParsesSections(t *testing.T) {
	admin := crypto.MustNewAddress(crypto.AccountPrefix, bytesOf(0x11)).String()
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
Environment = "staging"
TickIntervalMs = 250

[market]
Admin = "` + admin + `"
Vault = "0x2222222222222222222222222222222222222222"
MinimumFee = "5"
MinimumDeposit = "50"
MaxProviders = 10
PeriodLength = 30

[asset]
Symbol = "usdx"
Name = "Test Dollar"
Decimals = 6
Address = "0x00000000000000000000000000000000000000a5"

[[asset.Allocations]]
Address = "0x3333333333333333333333333333333333333333"
Amount = "1000"

[oracle]
Mode = "chainlink"
Endpoint = "http://127.0.0.1:8545"
FeedAddress = "0x4444444444444444444444444444444444444444"

[indexer]
Driver = "postgres"
DSN = "postgres://localhost/subledger"

[logging]
Level = "debug"

[telemetry]
Traces = true
SampleRatio = 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, int64(250), cfg.TickInterval().Milliseconds())
	require.Equal(t, OracleModeChainlink, cfg.Oracle.Mode)
	require.Equal(t, int64(3000), cfg.OracleCallTimeout().Milliseconds())
	require.Equal(t, IndexerDriverPostgres, cfg.Indexer.Driver)

	params, err := cfg.MarketParams()
	require.NoError(t, err)
	var wantAdmin [20]byte
	copy(wantAdmin[:], bytesOf(0x11))
	require.Equal(t, wantAdmin, params.Admin)
	require.Equal(t, uint64(10), params.MaxProviders)

	allocs, err := cfg.GenesisAllocations()
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, int64(1000), allocs[0].Amount.Int64())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bogus = 1\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero period":     func(c *Config) { c.Market.PeriodLength = 0 },
		"zero capacity":   func(c *Config) { c.Market.MaxProviders = 0 },
		"bad admin":       func(c *Config) { c.Market.Admin = "nope" },
		"negative fee":    func(c *Config) { c.Market.MinimumFee = "-1" },
		"bad allocation":  func(c *Config) { c.Asset.Allocations = []Allocation{{Address: "0x01", Amount: "1"}} },
		"oracle mode":     func(c *Config) { c.Oracle.Mode = "magic" },
		"static price":    func(c *Config) { c.Oracle.StaticPrice = "0" },
		"indexer driver":  func(c *Config) { c.Indexer.Driver = "mysql" },
		"asset decimals":  func(c *Config) { c.Asset.Decimals = 19 },
		"sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 2 },
		"chainlink feed":  func(c *Config) { c.Oracle.Mode = OracleModeChainlink; c.Oracle.Endpoint = "http://x" },
		"asset address":   func(c *Config) { c.Asset.Address = "zz" },
		"zero allocation": func(c *Config) { c.Asset.Allocations = []Allocation{{Address: c.Market.Vault, Amount: "0"}} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrInvalidConfig), name)
	}
	require.NoError(t, Default().Validate())
}

func TestRPCTokenFromEnvironment(t *testing.T) {
	t.Setenv(RPCTokenEnv, "  secret ")
	require.Equal(t, "secret", RPCToken())
}

func bytesOf(b byte) []byte {
	out := make([]byte, crypto.AddressLength)
	for i := range out {
		out[i] = b
	}
	return out
}
