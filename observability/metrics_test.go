package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"subledger/core/types"
)

type testEvent struct{ kind string }

func (e testEvent) EventType() string   { return e.kind }
func (e testEvent) Event() *types.Event { return &types.Event{Type: e.kind} }

func TestRPCObserve(t *testing.T) {
	m := RPC()
	before := testutil.ToFloat64(m.errors.WithLabelValues("market_deposit", "-32010"))
	m.Observe("market_deposit", -32010, time.Millisecond)
	m.Observe("market_deposit", 0, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("market_deposit", "-32010")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("market_deposit", "success")), float64(1))
}

func TestEventsCountsTypes(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("market.debt.paid"))
	m.Emit(testEvent{kind: "market.debt.paid"})
	m.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues("market.debt.paid")))
}
