package main

import (
	"context"
	"log/slog"
	"math/big"
	"testing"

	"subledger/config"
	"subledger/core"
	"subledger/observability/logging"
	"subledger/storage"
)

func TestBuildGenesisFromDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Asset.Allocations = []config.Allocation{{
		Address: "0x00000000000000000000000000000000000000b0",
		Amount:  "2500",
	}}
	genesis, err := buildGenesis(cfg)
	if err != nil {
		t.Fatalf("build genesis: %v", err)
	}
	if genesis.Token.Symbol != "USDX" || genesis.Token.Decimals != 6 {
		t.Fatalf("unexpected token spec %+v", genesis.Token)
	}
	if genesis.Params.Asset != genesis.Token.Address {
		t.Fatalf("params asset %s does not match token %s", genesis.Params.Asset.Hex(), genesis.Token.Address.Hex())
	}
	if len(genesis.Allocations) != 1 || genesis.Allocations[0].Amount.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("unexpected allocations %+v", genesis.Allocations)
	}
}

func TestBuildStaticValuer(t *testing.T) {
	cfg := config.Default()
	genesis, err := buildGenesis(cfg)
	if err != nil {
		t.Fatalf("build genesis: %v", err)
	}
	node, err := core.NewNode(storage.NewMemDB(), genesis, core.Options{})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	valuer, err := buildValuer(cfg, node)
	if err != nil {
		t.Fatalf("build valuer: %v", err)
	}
	// 1 USDX at $1.00 is 1e8 stable units.
	value, err := valuer.ValueInStableUnits(context.Background(), big.NewInt(1_000_000), genesis.Token.Address)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected 100000000 stable units, got %s", value)
	}
}

func TestLoggingOptionsFile(t *testing.T) {
	opts := loggingOptions(config.Logging{Level: "debug"})
	if opts.File != nil {
		t.Fatalf("expected stdout only logging")
	}
	opts = loggingOptions(config.Logging{Level: "info", File: "/tmp/subledgerd.log", MaxSizeMB: 10})
	if opts.File == nil || opts.File.MaxSizeMB != 10 {
		t.Fatalf("expected file options, got %+v", opts.File)
	}
}

func TestStartupAttrsMaskCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Indexer.Driver = config.IndexerDriverPostgres
	cfg.Indexer.DSN = "postgres://ledger:secret@db:5432/events"
	cfg.Oracle.Endpoint = ""
	cfg.Telemetry.Headers = "authorization=Bearer abc"

	values := make(map[string]string)
	for _, attr := range startupAttrs(cfg) {
		a := attr.(slog.Attr)
		values[a.Key] = a.Value.String()
	}
	if values["indexerDSN"] != logging.RedactedValue {
		t.Fatalf("expected DSN masked, got %q", values["indexerDSN"])
	}
	if values["telemetryHeaders"] != logging.RedactedValue {
		t.Fatalf("expected headers masked, got %q", values["telemetryHeaders"])
	}
	if values["oracleEndpoint"] != "" {
		t.Fatalf("empty endpoint must stay visible as empty, got %q", values["oracleEndpoint"])
	}
	if values["indexerDriver"] != config.IndexerDriverPostgres {
		t.Fatalf("expected driver logged verbatim, got %q", values["indexerDriver"])
	}
}
