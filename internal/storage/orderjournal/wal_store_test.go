package orderjournal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

func submitted(id domain.OrderID) domain.OrderEvent {
	return domain.OrderEvent{
		ID:      "evt-" + string(id),
		Venue:   "bitfinex",
		Pair:    "BTC_USD",
		Type:    domain.OrderEventSubmitted,
		OrderID: id,
		Side:    domain.SideBuy,
		Amount:  decimal.RequireFromString("0.01"),
		Price:   decimal.NewFromInt(64000),
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWALStore_RecordAndEventsAfter(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Record(submitted("1")))
	require.NoError(t, store.Record(domain.OrderEvent{
		Venue:   "bitfinex",
		Pair:    "BTC_USD",
		Type:    domain.OrderEventCancelRequested,
		OrderID: "1",
	}))
	assert.Equal(t, uint64(2), store.CurrentIndex())

	entries, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint64(1), entries[0].Index)
	assert.Equal(t, domain.OrderEventSubmitted, entries[0].Event.Type)
	assert.True(t, entries[0].Event.Amount.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, domain.OrderEventCancelRequested, entries[1].Event.Type)

	entries, err = store.EventsAfter(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(2), entries[0].Index)

	entries, err = store.EventsAfter(2)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWALStore_History(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Record(submitted("1")))
	require.NoError(t, store.Record(submitted("2")))
	require.NoError(t, store.Record(domain.OrderEvent{
		Venue:   "bitfinex",
		Type:    domain.OrderEventCancelFailed,
		OrderID: "1",
		Error:   "order not found",
	}))

	history, err := store.History("bitfinex", "1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.OrderEventSubmitted, history[0].Type)
	assert.Equal(t, "order not found", history[1].Error)

	history, err = store.History("binance", "1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestWALStore_ReadAfterReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Record(submitted("7")))
	require.NoError(t, store.Record(domain.OrderEvent{Venue: "bitfinex", Type: domain.OrderEventCancelRequested, OrderID: "7"}))
	require.NoError(t, store.Close())

	store, err = NewWALStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.Equal(t, uint64(2), store.CurrentIndex())

	entries, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.OrderID("7"), entries[1].Event.OrderID)

	history, err := store.History("bitfinex", "7")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// the index keeps growing across restarts
	require.NoError(t, store.Record(submitted("8")))
	entries, err = store.EventsAfter(2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(3), entries[0].Index)
}

func TestWALStore_RecordValidation(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.Error(t, store.Record(domain.OrderEvent{Type: domain.OrderEventSubmitted}))
	require.Error(t, store.Record(domain.OrderEvent{Venue: "bybit"}))
	assert.Equal(t, uint64(0), store.CurrentIndex())
}

func TestWALStore_Uninitialized(t *testing.T) {
	var store *WALStore

	require.Error(t, store.Record(submitted("1")))
	_, err := store.EventsAfter(0)
	require.Error(t, err)
	assert.Equal(t, uint64(0), store.CurrentIndex())
	require.Error(t, store.Close())
}
