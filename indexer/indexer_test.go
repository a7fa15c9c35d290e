package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"subledger/core/types"
)

type envelope struct{ evt *types.Event }

func (e envelope) EventType() string   { return e.evt.Type }
func (e envelope) Event() *types.Event { return e.evt }

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "events.db"))
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	ix, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestEmitJournalsEvents(t *testing.T) {
	ix := newTestIndexer(t)
	height := uint64(7)
	ix.SetHeightFunc(func() uint64 { return height })

	ix.Emit(envelope{evt: &types.Event{Type: "market.subscription.created", Attributes: map[string]string{
		"key":        "0xaa",
		"provider":   "0x01",
		"subscriber": "0x02",
	}}})
	height = 9
	ix.Emit(envelope{evt: &types.Event{Type: "market.debt.paid", Attributes: map[string]string{
		"key":    "0xaa",
		"amount": "5",
	}}})
	ix.Emit(bareEvent{})

	records, err := ix.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "market.subscription.created", records[0].Type)
	require.Equal(t, uint64(7), records[0].Height)
	require.Equal(t, "0x01", records[0].Provider)
	require.Less(t, records[0].Seq, records[1].Seq)

	decoded, err := records[1].Decoded()
	require.NoError(t, err)
	require.Equal(t, "5", decoded.Attributes["amount"])
}

func TestListFilters(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, ix.Record(ctx, uint64(i+1), &types.Event{
			Type:       "market.subscription.settled",
			Attributes: map[string]string{"key": fmt.Sprintf("0x%02d", i%2)},
		}))
	}
	require.NoError(t, ix.Record(ctx, 10, &types.Event{Type: "market.params.updated"}))

	byKey, err := ix.List(ctx, Filter{Subscription: "0x01"})
	require.NoError(t, err)
	require.Len(t, byKey, 2)

	byType, err := ix.List(ctx, Filter{Type: "market.params.updated"})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	window, err := ix.List(ctx, Filter{FromHeight: 2, ToHeight: 4})
	require.NoError(t, err)
	require.Len(t, window, 3)

	page, err := ix.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	next, err := ix.List(ctx, Filter{AfterSeq: page[1].Seq, Limit: 10})
	require.NoError(t, err)
	require.Len(t, next, 4)
}
