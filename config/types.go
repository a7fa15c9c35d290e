package config

// Market seeds the persisted market parameters at genesis.
type Market struct {
	Admin          string `toml:"Admin"`
	Vault          string `toml:"Vault"`
	MinimumFee     string `toml:"MinimumFee"`
	MinimumDeposit string `toml:"MinimumDeposit"`
	MaxProviders   uint64 `toml:"MaxProviders"`
	PeriodLength   uint64 `toml:"PeriodLength"`
}

// Allocation credits a genesis balance of the payment asset.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Asset describes the in-state payment token.
type Asset struct {
	Symbol      string       `toml:"Symbol"`
	Name        string       `toml:"Name"`
	Decimals    uint8        `toml:"Decimals"`
	Address     string       `toml:"Address"`
	Allocations []Allocation `toml:"Allocations,omitempty"`
}

// Oracle modes.
const (
	OracleModeStatic    = "static"
	OracleModeChainlink = "chainlink"
)

// Asset decimal sources for chainlink mode.
const (
	AssetDecimalsLedger = "ledger"
	AssetDecimalsERC20  = "erc20"
)

// Oracle selects the price feed used for stable-unit valuation.
type Oracle struct {
	Mode           string `toml:"Mode"`
	Endpoint       string `toml:"Endpoint"`
	FeedAddress    string `toml:"FeedAddress"`
	StaticPrice    string `toml:"StaticPrice"`
	StaticDecimals uint8  `toml:"StaticDecimals"`
	CallTimeoutMs  uint64 `toml:"CallTimeoutMs"`
	// AssetDecimals selects where chainlink mode reads the asset decimals:
	// the in-state token ("ledger") or an ERC-20 contract at the asset address.
	AssetDecimals string `toml:"AssetDecimals"`
}

// Indexer drivers.
const (
	IndexerDriverSQLite   = "sqlite"
	IndexerDriverPostgres = "postgres"
)

// Indexer configures the event journal database.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Logging configures log level and optional rotated file output.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}
