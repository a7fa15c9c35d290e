package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"subledger/core/events"
	"subledger/core/types"
	nativecommon "subledger/native/common"
)

const moduleName = "market"

var errParamsNotSet = errors.New("market engine: parameters not initialised")

type engineState interface {
	MarketProviderGet(id ProviderID) (*Provider, bool, error)
	MarketProviderPut(provider *Provider) error
	MarketProviderDelete(id ProviderID) error
	MarketProviderCount() (uint64, error)
	MarketSetProviderCount(count uint64) error
	MarketSubscriberGet(id SubscriberID) (*Subscriber, bool, error)
	MarketSubscriberPut(subscriber *Subscriber) error
	MarketSubscriptionGet(key SubscriptionKey) (*Subscription, bool, error)
	MarketSubscriptionPut(sub *Subscription) error
	MarketProviderSubscriptions(id ProviderID) ([]SubscriptionKey, error)
	MarketProviderSubscriptionAdd(id ProviderID, key SubscriptionKey) error
	MarketProviderSubscriptionRemove(id ProviderID, key SubscriptionKey) error
	MarketTotals() (*Totals, error)
	MarketPutTotals(totals *Totals) error
	MarketParams() (*Params, bool, error)
	MarketPutParams(params Params) error
	IsPaused(module string) bool
	SetModulePaused(module string, paused bool) error
	Snapshot() int
	RevertToSnapshot(id int) error
}

// Asset is the fungible token primitive backing every balance. A false
// return and an error are treated identically by the engine.
type Asset interface {
	// TransferFrom moves amount from one principal to another.
	TransferFrom(from, to [20]byte, amount *big.Int) (bool, error)
	// Transfer moves amount out of the vault to the recipient.
	Transfer(to [20]byte, amount *big.Int) (bool, error)
}

// StableValuer prices asset amounts in stable units.
type StableValuer interface {
	ValueInStableUnits(ctx context.Context, amount *big.Int, asset common.Address) (*big.Int, error)
}

// Engine implements the subscription marketplace: the provider and subscriber
// registry, the subscription state machine, accrual, settlement and
// withdrawals. Every externally callable method runs under a call-scoped
// guard, and mutating methods are all-or-nothing against the state snapshot.
type Engine struct {
	state   engineState
	emitter events.Emitter
	asset   Asset
	valuer  StableValuer
	pauses  nativecommon.PauseView
	nowFn   func() uint64
	guard   nativecommon.CallGuard
	pending []*types.Event
}

// NewEngine constructs a market engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAsset configures the payment asset.
func (e *Engine) SetAsset(asset Asset) { e.asset = asset }

// SetValuer configures the stable-unit price source.
func (e *Engine) SetValuer(valuer StableValuer) { e.valuer = valuer }

// SetPauses overrides the pause view. When unset the state's pause flags are
// consulted.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc configures the tick source.
func (e *Engine) SetNowFunc(now func() uint64) { e.nowFn = now }

// InitParams stores params if no parameter record exists yet. An existing
// record always wins.
func (e *Engine) InitParams(params Params) error {
	if e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.MarketParams(); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := params.Validate(); err != nil {
		return err
	}
	return e.state.MarketPutParams(params.Clone())
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return 0
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	e.pending = append(e.pending, evt)
}

func (e *Engine) pauseView() nativecommon.PauseView {
	if e.pauses != nil {
		return e.pauses
	}
	return e.state
}

// execute runs fn as a single all-or-nothing call. Buffered events are only
// published when fn succeeds.
func (e *Engine) execute(checkPause bool, fn func(now uint64, params *Params) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if checkPause {
		if err := nativecommon.Guard(e.pauseView(), moduleName); err != nil {
			return err
		}
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	snapshot := e.state.Snapshot()
	e.pending = nil
	if err := fn(e.now(), params); err != nil {
		e.pending = nil
		if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}
	pending := e.pending
	e.pending = nil
	for _, evt := range pending {
		e.emitter.Emit(WrapEvent(evt))
	}
	return nil
}

// view runs a read under the call guard so a collaborator cannot observe
// state mid-call.
func (e *Engine) view(fn func(now uint64, params *Params) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	return fn(e.now(), params)
}

func (e *Engine) loadParams() (*Params, error) {
	params, ok, err := e.state.MarketParams()
	if err != nil {
		return nil, err
	}
	if !ok || params == nil {
		return nil, errParamsNotSet
	}
	return params, nil
}

func (e *Engine) loadTotals() (*Totals, error) {
	totals, err := e.state.MarketTotals()
	if err != nil {
		return nil, err
	}
	if totals == nil {
		return NewTotals(), nil
	}
	return totals, nil
}

func (e *Engine) getProvider(id ProviderID) (*Provider, error) {
	provider, ok, err := e.state.MarketProviderGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || provider == nil {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

func (e *Engine) getSubscriber(id SubscriberID) (*Subscriber, error) {
	subscriber, ok, err := e.state.MarketSubscriberGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || subscriber == nil {
		return nil, ErrSubscriberNotFound
	}
	return subscriber, nil
}

func (e *Engine) getSubscription(key SubscriptionKey) (*Subscription, error) {
	sub, ok, err := e.state.MarketSubscriptionGet(key)
	if err != nil {
		return nil, err
	}
	if !ok || sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (e *Engine) stableValue(ctx context.Context, amount *big.Int, params *Params) (*big.Int, error) {
	if e.valuer == nil {
		return nil, errNoOracle
	}
	value, err := e.valuer.ValueInStableUnits(ctx, amount, params.Asset)
	if err != nil {
		return nil, fmt.Errorf("market engine: stable valuation: %w", err)
	}
	if value == nil {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (e *Engine) transferIn(from [20]byte, params *Params, amount *big.Int) error {
	if e.asset == nil {
		return errNoAsset
	}
	ok, err := e.asset.TransferFrom(from, params.Vault, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
	}
	if !ok {
		return ErrAssetTransferFailed
	}
	return nil
}

func (e *Engine) transferOut(to [20]byte, amount *big.Int) error {
	if e.asset == nil {
		return errNoAsset
	}
	ok, err := e.asset.Transfer(to, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
	}
	if !ok {
		return ErrAssetTransferFailed
	}
	return nil
}

func fitsUint256(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

func isAdmin(params *Params, caller [20]byte) bool {
	return params != nil && !isZeroAddress(caller) && params.Admin == caller
}
