package simstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

func TestStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "bitfinex", domain.Pair{From: "BTC", To: "USD"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bitfinex_btc_usd.json"), store.Path())

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	placed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(State{
		Pair:   "BTC_USD",
		Wallet: map[string]string{"USD": "9000", "BTC": "0.01"},
		Orders: map[string]StoredOrder{
			"3": NewStoredOrder(domain.SideBuy, decimal.RequireFromString("0.5"), decimal.NewFromInt(60000), placed),
		},
		NextID: 4,
	}))

	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed")

	state, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "9000", state.Wallet["USD"])
	assert.Equal(t, uint64(4), state.NextID)

	amount, price, err := state.Orders["3"].Decode()
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, price.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, placed, state.Orders["3"].Placed)
}

func TestStore_LoadCorrupted(t *testing.T) {
	store, err := NewStore(t.TempDir(), "bybit", domain.Pair{From: "ETH", To: "USDT"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.Path(), nil, 0o644))
	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{"), 0o644))
	_, err = store.Load()
	require.Error(t, err)
}

func TestStoredOrder_DecodeInvalid(t *testing.T) {
	_, _, err := StoredOrder{Side: "hold", Amount: "1", Price: "1"}.Decode()
	require.Error(t, err)
	_, _, err = StoredOrder{Side: domain.SideSell, Amount: "x", Price: "1"}.Decode()
	require.Error(t, err)
	_, _, err = StoredOrder{Side: domain.SideSell, Amount: "1", Price: ""}.Decode()
	require.Error(t, err)
}

func TestSanitizeScope(t *testing.T) {
	assert.Equal(t, "binance_btc_usdt", sanitizeScope(" Binance_BTC/USDT "))
	assert.Equal(t, "", sanitizeScope("  "))
	assert.Equal(t, "a_b", sanitizeScope("--a..b--"))
}
