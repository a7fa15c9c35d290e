package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// RPCTokenEnv names the environment variable holding the RPC bearer token.
const RPCTokenEnv = "SUBLEDGER_RPC_TOKEN"

type Config struct {
	RPCAddress     string  `toml:"RPCAddress"`
	RPCRateLimit   float64 `toml:"RPCRateLimit"`
	RPCBurst       int     `toml:"RPCBurst"`
	DataDir        string  `toml:"DataDir"`
	Environment    string  `toml:"Environment"`
	TickIntervalMs uint64  `toml:"TickIntervalMs"`

	Market    Market    `toml:"market"`
	Asset     Asset     `toml:"asset"`
	Oracle    Oracle    `toml:"oracle"`
	Indexer   Indexer   `toml:"indexer"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration suitable for a local development node.
func Default() *Config {
	return &Config{
		RPCAddress:     "127.0.0.1:8645",
		RPCRateLimit:   20,
		RPCBurst:       40,
		DataDir:        "./subledger-data",
		Environment:    "dev",
		TickIntervalMs: 1000,
		Market: Market{
			Admin:          "0x000000000000000000000000000000000000ad01",
			Vault:          "0x000000000000000000000000000000000000fa01",
			MinimumFee:     "100000000",
			MinimumDeposit: "1000000000",
			MaxProviders:   1000,
			PeriodLength:   2_592_000,
		},
		Asset: Asset{
			Symbol:   "USDX",
			Name:     "Subledger Dollar",
			Decimals: 6,
			Address:  "0x00000000000000000000000000000000000000a5",
		},
		Oracle: Oracle{
			Mode:           OracleModeStatic,
			StaticPrice:    "100000000",
			StaticDecimals: 8,
			CallTimeoutMs:  3000,
			AssetDecimals:  AssetDecimalsLedger,
		},
		Indexer: Indexer{
			Driver: IndexerDriverSQLite,
			DSN:    "file:subledger-events.db?_pragma=busy_timeout(5000)",
		},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaults.RPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	if c.TickIntervalMs == 0 {
		c.TickIntervalMs = defaults.TickIntervalMs
	}
	if strings.TrimSpace(c.Oracle.Mode) == "" {
		c.Oracle.Mode = OracleModeStatic
	}
	if strings.TrimSpace(c.Oracle.AssetDecimals) == "" {
		c.Oracle.AssetDecimals = AssetDecimalsLedger
	}
	if c.Oracle.CallTimeoutMs == 0 {
		c.Oracle.CallTimeoutMs = defaults.Oracle.CallTimeoutMs
	}
	if strings.TrimSpace(c.Indexer.Driver) == "" {
		c.Indexer.Driver = IndexerDriverSQLite
	}
	if c.Asset.Allocations == nil {
		c.Asset.Allocations = []Allocation{}
	}
}

// TickInterval returns the wall-clock duration of one tick.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// OracleCallTimeout bounds a single price feed query.
func (c *Config) OracleCallTimeout() time.Duration {
	return time.Duration(c.Oracle.CallTimeoutMs) * time.Millisecond
}

// RPCToken returns the bearer token required by the RPC server. An empty
// token disables authentication.
func RPCToken() string {
	return strings.TrimSpace(os.Getenv(RPCTokenEnv))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
