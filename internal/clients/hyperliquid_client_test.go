package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const (
	testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress    = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

// offlineURL answers every call with 404; the tests below never reach it.
func offlineURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestNewHyperliquidClient(t *testing.T) {
	t.Run("address derived from the key", func(t *testing.T) {
		client, err := NewHyperliquidClient(&domain.Credentials{Secret: testPrivateKey}, offlineURL(t))
		require.NoError(t, err)
		assert.Equal(t, testAddress, client.AccountAddress())
	})

	t.Run("key without 0x prefix", func(t *testing.T) {
		client, err := NewHyperliquidClient(&domain.Credentials{Secret: strings.TrimPrefix(testPrivateKey, "0x")}, offlineURL(t))
		require.NoError(t, err)
		assert.Equal(t, testAddress, client.AccountAddress())
	})

	t.Run("explicit account address", func(t *testing.T) {
		vault := "0x0000000000000000000000000000000000000001"
		client, err := NewHyperliquidClient(&domain.Credentials{Key: vault, Secret: testPrivateKey}, offlineURL(t))
		require.NoError(t, err)
		assert.Equal(t, vault, client.AccountAddress())
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := NewHyperliquidClient(&domain.Credentials{Secret: "not-a-key"}, offlineURL(t))
		require.Error(t, err)
	})
}

func TestHyperliquidClient_PublicOnly(t *testing.T) {
	client, err := NewHyperliquidClient(nil, offlineURL(t))
	require.NoError(t, err)
	assert.NotEqual(t, testAddress, client.AccountAddress())

	ctx := context.Background()

	_, err = client.SpotBalances(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	err = client.PlaceLimitOrder(ctx, HyperliquidOrder{Coin: "BTC", IsBuy: true, Price: 1, Size: 1, Cloid: "0x00112233445566778899aabbccddeeff"})
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = client.OrderState(ctx, "0x00112233445566778899aabbccddeeff")
	assert.ErrorIs(t, err, ErrNoCredentials)

	assert.ErrorIs(t, client.CancelOrder(ctx, "BTC", 1), ErrNoCredentials)
}
