package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"testing"
)

func TestKeyForIsDeterministicAndOrderSensitive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seen := make(map[SubscriptionKey]struct{})
	for i := 0; i < 200; i++ {
		var sub SubscriberID
		var prov ProviderID
		rng.Read(sub[:])
		rng.Read(prov[:])
		key := KeyFor(sub, prov)
		if key != KeyFor(sub, prov) {
			t.Fatalf("key derivation must be deterministic")
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("unexpected key collision at iteration %d", i)
		}
		seen[key] = struct{}{}
		if SubscriberID(prov) != sub && key == KeyFor(SubscriberID(prov), ProviderID(sub)) {
			t.Fatalf("swapping identifiers must change the key")
		}
	}
}

func TestRandomOperationsPreserveInvariants(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	providers := []ProviderID{providerID(1), providerID(2)}
	for i, id := range providers {
		h.mustProvider(t, id, int64(1500*(i+1)))
	}
	owners := [][20]byte{subAddr, otherAddr}
	subscribers := []SubscriberID{subscriberID(1), subscriberID(2)}
	for i, id := range subscribers {
		h.mustSubscriber(t, owners[i], id, 20_000)
	}

	for step := 0; step < 400; step++ {
		i := rng.Intn(len(subscribers))
		prov := providers[rng.Intn(len(providers))]
		key := KeyFor(subscribers[i], prov)
		switch rng.Intn(6) {
		case 0:
			_, _ = h.engine.Subscribe(ctx, owners[i], subscribers[i], prov)
		case 1:
			_, _ = h.engine.Pause(owners[i], key)
		case 2:
			_, _ = h.engine.Settle(key)
		case 3:
			_, _ = h.engine.Deposit(owners[i], subscribers[i], big.NewInt(int64(rng.Intn(500)+1)))
		case 4:
			_, _ = h.engine.WithdrawEarnings(providerAddr, prov)
		case 5:
			if est, err := h.engine.EstimateCost(key); err == nil && est.Owed.Sign() > 0 {
				_, _ = h.engine.PayDebt(owners[i], key, big.NewInt(1))
			}
		}
		h.advance(uint64(rng.Intn(3)))

		for key, rec := range h.state.subscriptions {
			switch rec.Status {
			case StatusActive:
				if rec.PausedAt != 0 {
					t.Fatalf("step %d: active record %s has paused tick %d", step, key, rec.PausedAt)
				}
			case StatusPaused:
			default:
				t.Fatalf("step %d: record %s has invalid status %d", step, key, rec.Status)
			}
			listed := false
			for _, k := range h.state.subscribers[rec.SubscriberID].Subscriptions {
				if k == key {
					listed = true
				}
			}
			if listed != (rec.Status == StatusActive) {
				t.Fatalf("step %d: subscriber set disagrees with status of %s", step, key)
			}
		}
		for id, p := range h.state.providers {
			var active uint64
			for _, rec := range h.state.subscriptions {
				if rec.ProviderID == id && rec.Status == StatusActive {
					active++
				}
			}
			if p.ActiveSubscriptions != active {
				t.Fatalf("step %d: provider %s counts %d active, found %d", step, id, p.ActiveSubscriptions, active)
			}
		}
		h.checkConservation(t)
	}
}

func TestAccrualIsMonotonicBetweenSettlements(t *testing.T) {
	h := newTestHarness(t)
	prov := providerID(1)
	sub := subscriberID(1)
	h.engine.SetValuer(fixedValuer{unitPrice: 100})
	h.mustProvider(t, prov, 7)
	h.mustSubscriber(t, subAddr, sub, 5000)
	key := h.mustSubscribe(t, subAddr, sub, prov)

	previous := big.NewInt(0)
	for i := 0; i < 100; i++ {
		h.advance(1)
		est, err := h.engine.EstimateCost(key)
		if err != nil {
			t.Fatalf("estimate: %v", err)
		}
		if est.Owed.Cmp(previous) < 0 {
			t.Fatalf("owed decreased from %s to %s at tick %d", previous, est.Owed, h.tick)
		}
		previous = est.Owed
	}
	// 7 per 30 ticks over 100 ticks truncates to 23.
	if previous.Cmp(big.NewInt(23)) != 0 {
		t.Fatalf("expected 23 owed, got %s", previous)
	}
}

func TestPauseResumeWithoutElapsedTicksOwesNothing(t *testing.T) {
	h := newTestHarness(t)
	prov := providerID(1)
	sub := subscriberID(1)
	h.mustProvider(t, prov, 3000)
	h.mustSubscriber(t, subAddr, sub, 5000)
	key := h.mustSubscribe(t, subAddr, sub, prov)
	h.advance(12)
	if _, err := h.engine.Pause(subAddr, key); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.mustSubscribe(t, subAddr, sub, prov)
	settled, err := h.engine.Settle(key)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Sign() != 0 {
		t.Fatalf("expected nothing owed after immediate resume, got %s", settled)
	}
}

func TestSettleIsIdempotentWithinATick(t *testing.T) {
	h := newTestHarness(t)
	prov := providerID(1)
	sub := subscriberID(1)
	h.mustProvider(t, prov, 3000)
	h.mustSubscriber(t, subAddr, sub, 5000)
	key := h.mustSubscribe(t, subAddr, sub, prov)
	h.advance(5)
	first, err := h.engine.Settle(key)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	second, err := h.engine.Settle(key)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if first.Cmp(big.NewInt(500)) != 0 || second.Sign() != 0 {
		t.Fatalf("expected 500 then 0, got %s then %s", first, second)
	}
	if _, err := h.engine.Settle(SubscriptionKey{9}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRatePrecision(t *testing.T) {
	if got := Accrued(RatePerTick(big.NewInt(3000), 30), 10); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000, got %s", got)
	}
	if got := Accrued(RatePerTick(big.NewInt(1), 3), 2); got.Sign() != 0 {
		t.Fatalf("expected truncation to zero, got %s", got)
	}
	if got := Accrued(RatePerTick(big.NewInt(1), 3), 3); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected 1 after a full period, got %s", got)
	}
	if got := RatePerTick(big.NewInt(10), 0); got.Sign() != 0 {
		t.Fatalf("zero period must yield zero rate")
	}
}

func TestSettlementCadenceDoesNotChangeAmountCollected(t *testing.T) {
	cases := []struct {
		fee   int64
		ticks uint64
		want  int64
	}{
		{fee: 100, ticks: 30, want: 99},
		{fee: 7, ticks: 90, want: 20},
		{fee: 1, ticks: 45, want: 1},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("fee=%d/ticks=%d", tc.fee, tc.ticks), func(t *testing.T) {
			frequent := newTestHarness(t)
			once := newTestHarness(t)
			prov := providerID(1)
			sub := subscriberID(1)
			var keys [2]SubscriptionKey
			for i, h := range []*testHarness{frequent, once} {
				h.engine.SetValuer(fixedValuer{unitPrice: 100})
				h.mustProvider(t, prov, tc.fee)
				h.mustSubscriber(t, subAddr, sub, 5000)
				keys[i] = h.mustSubscribe(t, subAddr, sub, prov)
			}

			collected := big.NewInt(0)
			for i := uint64(0); i < tc.ticks; i++ {
				frequent.advance(1)
				settled, err := frequent.engine.Settle(keys[0])
				if err != nil {
					t.Fatalf("settle at tick %d: %v", frequent.tick, err)
				}
				collected.Add(collected, settled)
			}
			if carry := frequent.state.subscriptions[keys[0]].AccrualCarry; carry.Sign() < 0 || carry.Cmp(Precision) >= 0 {
				t.Fatalf("carry %s outside [0, Precision)", carry)
			}

			once.advance(tc.ticks)
			single, err := once.engine.Settle(keys[1])
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if collected.Cmp(single) != 0 {
				t.Fatalf("settling every tick collected %s, one settlement collected %s", collected, single)
			}
			if single.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("expected %d collected, got %s", tc.want, single)
			}
			frequent.checkConservation(t)
			once.checkConservation(t)
		})
	}
}

func TestCarrySurvivesPauseAndResume(t *testing.T) {
	h := newTestHarness(t)
	prov := providerID(1)
	sub := subscriberID(1)
	h.engine.SetValuer(fixedValuer{unitPrice: 100})
	h.mustProvider(t, prov, 1)
	h.mustSubscriber(t, subAddr, sub, 5000)
	key := h.mustSubscribe(t, subAddr, sub, prov)

	// Two thirds of a unit accrue before the pause and are not collected.
	h.advance(20)
	settled, err := h.engine.Pause(subAddr, key)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if settled.Sign() != 0 {
		t.Fatalf("expected nothing collected at pause, got %s", settled)
	}
	h.advance(100)
	h.mustSubscribe(t, subAddr, sub, prov)
	h.advance(11)
	settled, err = h.engine.Settle(key)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected the carried fraction to complete one unit, got %s", settled)
	}
}
