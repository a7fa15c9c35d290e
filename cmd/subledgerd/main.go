package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"subledger/config"
	"subledger/core"
	"subledger/core/events"
	"subledger/indexer"
	"subledger/native/market"
	"subledger/observability"
	"subledger/observability/logging"
	telemetry "subledger/observability/otel"
	"subledger/oracle"
	"subledger/rpc"
	"subledger/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "subledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath, dataDir, rpcAddr string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the node configuration")
	flag.StringVar(&dataDir, "data-dir", "", "override the configured data directory")
	flag.StringVar(&rpcAddr, "rpc", "", "override the configured RPC listen address")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(dataDir) != "" {
		cfg.DataDir = dataDir
	}
	if strings.TrimSpace(rpcAddr) != "" {
		cfg.RPCAddress = rpcAddr
	}

	logger := logging.Setup("subledgerd", cfg.Environment, loggingOptions(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "subledgerd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return err
	}

	journalDB, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
	if err != nil {
		db.Close()
		return fmt.Errorf("open event journal: %w", err)
	}
	journal, err := indexer.New(journalDB)
	if err != nil {
		db.Close()
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn("event journal close failed", slog.Any("error", err))
		}
	}()
	journal.SetLogger(logger)

	genesis, err := buildGenesis(cfg)
	if err != nil {
		db.Close()
		return err
	}
	node, err := core.NewNode(db, genesis, core.Options{
		Logger:  logger,
		Emitter: events.Fanout{journal, observability.Events()},
	})
	if err != nil {
		db.Close()
		return err
	}
	defer node.Close()
	journal.SetHeightFunc(node.Tick)

	valuer, err := buildValuer(cfg, node)
	if err != nil {
		return err
	}
	node.SetValuer(valuer)

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPCAddress, err)
	}
	server := rpc.NewServer(node, journal, rpc.ServerConfig{
		AuthToken: config.RPCToken(),
		RateLimit: cfg.RPCRateLimit,
		Burst:     cfg.RPCBurst,
		Logger:    logger,
	})
	if config.RPCToken() == "" {
		logger.Warn("RPC write methods are unauthenticated", slog.String("env", config.RPCTokenEnv))
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.Serve(ctx, listener)
	}()
	go func() {
		errCh <- core.NewTicker(node, cfg.TickInterval(), logger).Run(ctx)
	}()
	logger.Info("subledgerd started", append(startupAttrs(cfg),
		slog.String("rpc", listener.Addr().String()),
		slog.Uint64("tick", node.Tick()))...)

	var runErr error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
			stop()
		}
	}
	logger.Info("subledgerd stopped", slog.Uint64("tick", node.Tick()), slog.Uint64("height", node.Height()))
	return runErr
}

// startupAttrs describes the effective configuration. Values that may embed
// credentials are masked.
func startupAttrs(cfg *config.Config) []any {
	return []any{
		slog.String("dataDir", cfg.DataDir),
		slog.String("indexerDriver", cfg.Indexer.Driver),
		logging.MaskField("indexerDSN", cfg.Indexer.DSN),
		slog.String("oracleMode", cfg.Oracle.Mode),
		logging.MaskField("oracleEndpoint", cfg.Oracle.Endpoint),
		logging.MaskField("telemetryHeaders", cfg.Telemetry.Headers),
	}
}

func loggingOptions(cfg config.Logging) logging.Options {
	opts := logging.Options{Level: cfg.Level}
	if strings.TrimSpace(cfg.File) != "" {
		opts.File = &logging.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return opts
}

func buildGenesis(cfg *config.Config) (core.Genesis, error) {
	params, err := cfg.MarketParams()
	if err != nil {
		return core.Genesis{}, err
	}
	asset, err := cfg.AssetAddress()
	if err != nil {
		return core.Genesis{}, err
	}
	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return core.Genesis{}, err
	}
	genesis := core.Genesis{
		Params: params,
		Token: core.TokenSpec{
			Symbol:   cfg.Asset.Symbol,
			Name:     cfg.Asset.Name,
			Decimals: cfg.Asset.Decimals,
			Address:  asset,
		},
	}
	for _, alloc := range allocations {
		genesis.Allocations = append(genesis.Allocations, core.Allocation{Address: alloc.Address, Amount: alloc.Amount})
	}
	return genesis, nil
}

func buildValuer(cfg *config.Config, node *core.Node) (market.StableValuer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Oracle.Mode)) {
	case config.OracleModeChainlink:
		client, err := oracle.DialEVMClient(cfg.Oracle.Endpoint)
		if err != nil {
			return nil, err
		}
		feed, err := oracle.NewChainlinkFeed(client, common.HexToAddress(cfg.Oracle.FeedAddress), cfg.OracleCallTimeout())
		if err != nil {
			return nil, err
		}
		var assets oracle.AssetMetadata = node.Assets()
		if strings.EqualFold(strings.TrimSpace(cfg.Oracle.AssetDecimals), config.AssetDecimalsERC20) {
			metadata, err := oracle.NewERC20Metadata(client, cfg.OracleCallTimeout())
			if err != nil {
				return nil, err
			}
			assets = metadata
		}
		return oracle.NewAdapter(feed, assets), nil
	default:
		price, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Oracle.StaticPrice), 10)
		if !ok {
			return nil, fmt.Errorf("invalid static oracle price %q", cfg.Oracle.StaticPrice)
		}
		return oracle.NewAdapter(oracle.NewStaticFeed(price, cfg.Oracle.StaticDecimals), node.Assets()), nil
	}
}
