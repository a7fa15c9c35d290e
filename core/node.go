package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"subledger/core/events"
	"subledger/core/state"
	"subledger/native/bank"
	"subledger/native/market"
	"subledger/observability/metrics"
	"subledger/storage"
	"subledger/storage/trie"
)

var (
	headRootKey   = []byte("head/root")
	headTickKey   = []byte("head/tick")
	headHeightKey = []byte("head/height")
)

// ErrCommitFailed reports that a call succeeded in memory but could not be
// persisted. The in-memory state is rolled back to the last committed root.
var ErrCommitFailed = errors.New("node: commit failed")

// TokenSpec describes the payment asset registered at genesis.
type TokenSpec struct {
	Symbol   string
	Name     string
	Decimals uint8
	Address  common.Address
}

// Allocation credits a genesis balance.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Genesis seeds a fresh ledger. It is ignored when the database already holds
// a committed head.
type Genesis struct {
	Params      market.Params
	Token       TokenSpec
	Allocations []Allocation
}

// Options carries the optional collaborators of a Node.
type Options struct {
	Logger  *slog.Logger
	Emitter events.Emitter
	Valuer  market.StableValuer
}

// Node wires storage, the state manager, the payment token and the market
// engine together. All calls, reads included, are serialized. Emitters and
// valuers run inside a call and must not call back into the node except
// through Tick and Assets; any other method blocks on the node lock.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	engine  *market.Engine
	token   *bank.Token
	logger  *slog.Logger
	metrics *metrics.MarketMetrics

	tick   atomic.Uint64
	height uint64
}

// NewNode opens the ledger stored in db, running genesis if no head exists.
func NewNode(db storage.Database, genesis Genesis, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root, err := readMeta(db, headRootKey)
	if err != nil {
		return nil, err
	}
	fresh := root == nil
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("node: open state: %w", err)
	}
	n := &Node{
		db:      db,
		state:   state.NewManager(tr),
		engine:  market.NewEngine(),
		logger:  logger.With(slog.String("component", "node")),
		metrics: metrics.Market(),
	}
	if !fresh {
		tick, err := readUint64(db, headTickKey)
		if err != nil {
			return nil, err
		}
		height, err := readUint64(db, headHeightKey)
		if err != nil {
			return nil, err
		}
		n.tick.Store(tick)
		n.height = height
	}

	emitter := events.Fanout{hookEmitter{metrics: n.metrics}}
	if opts.Emitter != nil {
		emitter = append(emitter, opts.Emitter)
	}
	n.engine.SetState(n.state)
	n.engine.SetEmitter(emitter)
	n.engine.SetNowFunc(n.Tick)
	if opts.Valuer != nil {
		n.engine.SetValuer(opts.Valuer)
	}

	if fresh {
		if err := n.applyGenesis(genesis); err != nil {
			return nil, err
		}
	} else if err := n.bindToken(genesis.Token.Symbol); err != nil {
		return nil, err
	}
	n.engine.SetAsset(n.token)
	n.refreshGauges()
	n.logger.Info("ledger opened",
		slog.Bool("genesis", fresh),
		slog.Uint64("tick", n.Tick()),
		slog.Uint64("height", n.height),
		slog.String("root", n.state.Root().Hex()))
	return n, nil
}

func (n *Node) applyGenesis(genesis Genesis) error {
	spec := genesis.Token
	if err := n.state.RegisterToken(spec.Symbol, spec.Name, spec.Decimals, spec.Address); err != nil {
		return fmt.Errorf("node: genesis token: %w", err)
	}
	token, err := bank.NewToken(n.state, spec.Symbol, genesis.Params.Vault)
	if err != nil {
		return fmt.Errorf("node: bind token: %w", err)
	}
	n.token = token
	for _, alloc := range genesis.Allocations {
		if err := n.token.Mint(alloc.Address, alloc.Amount); err != nil {
			return fmt.Errorf("node: genesis allocation: %w", err)
		}
	}
	if genesis.Params.Asset == (common.Address{}) {
		genesis.Params.Asset = spec.Address
	}
	if err := n.engine.InitParams(genesis.Params); err != nil {
		return fmt.Errorf("node: genesis params: %w", err)
	}
	return n.commit()
}

func (n *Node) bindToken(symbol string) error {
	token, err := bank.NewToken(n.state, symbol, n.vault())
	if err != nil {
		return fmt.Errorf("node: bind token: %w", err)
	}
	n.token = token
	return nil
}

// SetValuer replaces the stable-unit valuer. The valuer may depend on the
// node's token, so it can be supplied after construction.
func (n *Node) SetValuer(v market.StableValuer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetValuer(v)
}

// Token exposes the payment token.
func (n *Node) Token() *bank.Token { return n.token }

// AssetView resolves payment-asset metadata through the node's token. It
// takes no lock since the market engine consults it inside serialized calls.
type AssetView struct {
	node *Node
}

// Assets returns the node's asset metadata for the oracle adapter.
func (n *Node) Assets() *AssetView { return &AssetView{node: n} }

// Decimals reports the decimals of asset if it is the payment token.
func (v *AssetView) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	return v.node.token.Decimals(ctx, asset)
}

// Tick returns the current tick. It does not take the node lock so it can
// be read from event hooks running inside a call.
func (n *Node) Tick() uint64 { return n.tick.Load() }

// Height returns the number of committed calls.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

// Root returns the last committed state root.
func (n *Node) Root() common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Root()
}

// AdvanceTick moves the clock forward by delta ticks and persists it.
func (n *Node) AdvanceTick(delta uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.tick.Load() + delta
	if next < delta {
		return 0, fmt.Errorf("node: tick overflow")
	}
	if err := n.db.Put(headTickKey, encodeUint64(next)); err != nil {
		return 0, err
	}
	n.tick.Store(next)
	n.metrics.SetTick(next)
	return next, nil
}

// mutate runs a state-changing call and commits it on success.
func (n *Node) mutate(op string, fn func() error, attrs ...slog.Attr) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := fn()
	if err == nil {
		if cerr := n.commit(); cerr != nil {
			err = fmt.Errorf("%w: %w", ErrCommitFailed, cerr)
		}
	}
	n.metrics.ObserveCall(op, err, time.Since(start))
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("operation", op), slog.Uint64("tick", n.Tick()))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	if err != nil {
		args = append(args, slog.Any("error", err))
		if errors.Is(err, ErrCommitFailed) {
			n.logger.Error("ledger commit failed", args...)
		} else {
			n.logger.Warn("ledger call failed", args...)
		}
		return err
	}
	n.logger.Info("ledger call applied", args...)
	n.refreshGauges()
	return nil
}

func (n *Node) read(op string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	err := fn()
	n.metrics.ObserveCall(op, err, time.Since(start))
	return err
}

func (n *Node) commit() error {
	last := n.state.Root()
	root, err := n.state.Commit(n.Tick())
	if err != nil {
		n.rollback(last)
		return err
	}
	height := n.height + 1
	for _, kv := range []struct {
		key   []byte
		value []byte
	}{
		{headRootKey, root.Bytes()},
		{headTickKey, encodeUint64(n.Tick())},
		{headHeightKey, encodeUint64(height)},
	} {
		if err := n.db.Put(kv.key, kv.value); err != nil {
			return err
		}
	}
	n.height = height
	return nil
}

// rollback reloads the last committed root in place so the engine and token
// keep their view of state.
func (n *Node) rollback(root common.Hash) {
	if err := n.state.Reset(root); err != nil {
		n.logger.Error("state rollback failed", slog.String("root", root.Hex()), slog.Any("error", err))
	}
}

func (n *Node) vault() [20]byte {
	params, ok, err := n.state.MarketParams()
	if err != nil || !ok {
		return [20]byte{}
	}
	return params.Vault
}

func (n *Node) refreshGauges() {
	n.metrics.SetTick(n.Tick())
	if count, err := n.state.MarketProviderCount(); err == nil {
		n.metrics.SetProviders(count)
	}
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}

type hookEmitter struct {
	metrics *metrics.MarketMetrics
}

func (h hookEmitter) Emit(evt events.Event) {
	switch evt.EventType() {
	case market.EventTypeSubscriptionSettled:
		h.metrics.ObserveSettlement()
	case market.EventTypeEarningsWithdrawn:
		h.metrics.ObserveWithdrawal()
	}
}

func readMeta(db storage.Database, key []byte) ([]byte, error) {
	value, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("node: read %s: %w", key, err)
	}
	return value, nil
}

func readUint64(db storage.Database, key []byte) (uint64, error) {
	raw, err := readMeta(db, key)
	if err != nil || raw == nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("node: corrupt %s", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}
