package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"subledger/core/events"
	"subledger/native/market"
	"subledger/oracle"
	"subledger/storage"
)

var (
	testAdmin = [20]byte{0xad}
	testVault = [20]byte{0xfa}
	alice     = [20]byte{0xa1}
	bob       = [20]byte{0xb0}
	assetAddr = common.HexToAddress("0x00000000000000000000000000000000000000a5")
)

func testGenesis() Genesis {
	params := market.DefaultParams()
	params.Admin = testAdmin
	params.Vault = testVault
	params.MinimumFee = big.NewInt(1_000)
	params.MinimumDeposit = big.NewInt(5_000)
	params.MaxProviders = 4
	params.PeriodLength = 30
	return Genesis{
		Params: params,
		Token:  TokenSpec{Symbol: "USDX", Name: "Test Dollar", Decimals: 6, Address: assetAddr},
		Allocations: []Allocation{
			{Address: bob, Amount: big.NewInt(1_000_000)},
		},
	}
}

func newTestNode(t *testing.T, db storage.Database, emitter events.Emitter) *Node {
	t.Helper()
	node, err := NewNode(db, testGenesis(), Options{Emitter: emitter})
	require.NoError(t, err)
	node.SetValuer(oracle.NewAdapter(oracle.NewStaticFeed(big.NewInt(100_000_000), 8), node.Assets()))
	return node
}

func TestNodeGenesis(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	require.Equal(t, uint64(1), node.Height())
	require.NotEqual(t, common.Hash{}, node.Root())

	bal, err := node.AssetBalance(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), bal)

	params, err := node.Params()
	require.NoError(t, err)
	require.Equal(t, assetAddr, params.Asset)
	require.Equal(t, uint64(30), params.PeriodLength)
}

func TestNodeSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	recorder := &events.Recorder{}
	node := newTestNode(t, storage.NewMemDB(), recorder)

	providerID := market.ProviderID{0x01}
	subscriberID := market.SubscriberID{0x02}

	_, err := node.RegisterProvider(ctx, alice, providerID, big.NewInt(3_000), market.PlanBasic)
	require.NoError(t, err)
	_, err = node.RegisterSubscriber(bob, subscriberID)
	require.NoError(t, err)
	_, err = node.Deposit(bob, subscriberID, big.NewInt(100_000))
	require.NoError(t, err)
	sub, err := node.Subscribe(ctx, bob, subscriberID, providerID)
	require.NoError(t, err)
	require.Equal(t, node.SubscriptionKey(subscriberID, providerID), sub.Key)

	_, err = node.AdvanceTick(10)
	require.NoError(t, err)

	estimate, err := node.EstimateCost(sub.Key)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), estimate.Owed)

	settled, err := node.Pause(bob, sub.Key)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), settled)

	ok, err := node.CanWithdraw(providerID)
	require.NoError(t, err)
	require.True(t, ok)
	paid, err := node.WithdrawEarnings(alice, providerID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), paid)

	aliceBal, err := node.AssetBalance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), aliceBal)
	vaultBal, err := node.AssetBalance(testVault)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(99_000), vaultBal)

	subscriber, err := node.Subscriber(subscriberID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(99_000), subscriber.Balance)

	require.Equal(t, []string{
		market.EventTypeProviderRegistered,
		market.EventTypeSubscriberRegistered,
		market.EventTypeSubscriberDeposit,
		market.EventTypeSubscriptionCreated,
		market.EventTypeSubscriptionSettled,
		market.EventTypeSubscriptionPaused,
		market.EventTypeEarningsWithdrawn,
	}, recorder.Types())
}

func TestNodeFailedCallDoesNotCommit(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	height := node.Height()
	root := node.Root()

	_, err := node.RegisterSubscriber(bob, market.SubscriberID{})
	require.ErrorIs(t, err, market.ErrInvalidID)
	_, err = node.Deposit(bob, market.SubscriberID{0x09}, big.NewInt(10))
	require.True(t, errors.Is(err, market.ErrNotFound))

	require.Equal(t, height, node.Height())
	require.Equal(t, root, node.Root())
}

func TestNodeRollbackKeepsAssetBinding(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, storage.NewMemDB(), nil)
	token := node.Token()
	root := node.Root()

	require.NoError(t, token.Mint(alice, big.NewInt(77)))
	node.rollback(root)

	require.Same(t, token, node.Token())
	bal, err := node.AssetBalance(alice)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	decimals, err := node.Assets().Decimals(ctx, assetAddr)
	require.NoError(t, err)
	require.Equal(t, uint8(6), decimals)

	id := market.SubscriberID{0x51}
	_, err = node.RegisterSubscriber(bob, id)
	require.NoError(t, err)
	_, err = node.Deposit(bob, id, big.NewInt(100))
	require.NoError(t, err)
	value, err := node.StableBalance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), value)
}

func TestNodeModulePause(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	require.NoError(t, node.SetModulePaused(testAdmin, true))
	require.True(t, node.Paused())

	_, err := node.RegisterSubscriber(bob, market.SubscriberID{0x02})
	require.Error(t, err)

	_, _, err = node.ProviderCount()
	require.NoError(t, err)

	require.NoError(t, node.SetModulePaused(testAdmin, false))
	_, err = node.RegisterSubscriber(bob, market.SubscriberID{0x02})
	require.NoError(t, err)
}

func TestNodeReopensFromLevelDB(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	node := newTestNode(t, db, nil)

	providerID := market.ProviderID{0x0a}
	_, err = node.RegisterProvider(ctx, alice, providerID, big.NewInt(3_000), market.PlanPremium)
	require.NoError(t, err)
	_, err = node.SetPeriodLength(testAdmin, 60)
	require.NoError(t, err)
	_, err = node.AdvanceTick(5)
	require.NoError(t, err)
	root := node.Root()
	height := node.Height()
	node.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	genesis := testGenesis()
	genesis.Params.PeriodLength = 90
	reopened, err := NewNode(db, genesis, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, root, reopened.Root())
	require.Equal(t, height, reopened.Height())
	require.Equal(t, uint64(5), reopened.Tick())

	provider, err := reopened.Provider(providerID)
	require.NoError(t, err)
	require.Equal(t, market.PlanPremium, provider.Plan)
	require.Equal(t, uint64(0), provider.RegisteredAt)

	params, err := reopened.Params()
	require.NoError(t, err)
	require.Equal(t, uint64(60), params.PeriodLength)

	bal, err := reopened.AssetBalance(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), bal)
}
