package clients

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

func newTestBitfinexClient(t *testing.T, handler http.HandlerFunc) *BitfinexClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBitfinexClient(&domain.Credentials{Key: "key", Secret: "secret"}, WithBitfinexBaseURL(srv.URL))
}

func decodePayload(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	payload := r.Header.Get("X-BFX-PAYLOAD")
	require.NotEmpty(t, payload)

	mac := hmac.New(sha512.New384, []byte("secret"))
	mac.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("X-BFX-SIGNATURE"))
	assert.Equal(t, "key", r.Header.Get("X-BFX-APIKEY"))

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, r.URL.Path, body["request"])
	return body
}

func TestBitfinexClient_WalletBalances(t *testing.T) {
	client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/balances", r.URL.Path)
		decodePayload(t, r)
		_, _ = w.Write([]byte(`[{"type":"exchange","currency":"btc","amount":"1.5","available":"1.0"},
			{"type":"deposit","currency":"usd","amount":"10","available":"10"}]`))
	})

	balances, err := client.WalletBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, BitfinexBalance{Type: "exchange", Currency: "btc", Amount: "1.5", Available: "1.0"}, balances[0])
}

func TestBitfinexClient_Ticker(t *testing.T) {
	client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/pubticker/btcusd", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-BFX-APIKEY"))
		_, _ = w.Write([]byte(`{"mid":"100.75","bid":"100.5","ask":"101.0","last_price":"100.7"}`))
	})

	tick, err := client.Ticker(context.Background(), "btcusd")
	require.NoError(t, err)
	assert.Equal(t, "100.5", tick.Bid)
	assert.Equal(t, "101.0", tick.Ask)
}

func TestBitfinexClient_NewOrder(t *testing.T) {
	client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/order/new", r.URL.Path)
		body := decodePayload(t, r)
		assert.Equal(t, "btcusd", body["symbol"])
		assert.Equal(t, "0.12345678", body["amount"])
		assert.Equal(t, "100.5", body["price"])
		assert.Equal(t, "bitfinex", body["exchange"])
		assert.Equal(t, "buy", body["side"])
		assert.Equal(t, "exchange limit", body["type"])
		_, _ = w.Write([]byte(`{"id":448364249,"order_id":448364249,"is_live":true}`))
	})

	order, err := client.NewOrder(context.Background(), BitfinexNewOrder{
		Symbol: "btcusd", Amount: "0.12345678", Price: "100.5",
		Exchange: "bitfinex", Side: "buy", Type: "exchange limit",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(448364249), order.OrderID)
}

func TestBitfinexClient_OrderStatusAndCancel(t *testing.T) {
	client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodePayload(t, r)
		assert.Equal(t, float64(42), body["order_id"])
		switch r.URL.Path {
		case "/v1/order/status":
			_, _ = w.Write([]byte(`{"id":42,"is_live":true,"is_cancelled":false}`))
		case "/v1/order/cancel":
			_, _ = w.Write([]byte(`{"id":42,"is_live":false,"is_cancelled":true}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	status, err := client.OrderStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, status.IsLive)

	cancelled, err := client.CancelOrder(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled)
}

func TestBitfinexClient_Trades(t *testing.T) {
	since := time.Unix(1700000000, 0)
	client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/trades/btcusd", r.URL.Path)
		assert.Equal(t, strconv.FormatInt(since.Unix(), 10), r.URL.Query().Get("timestamp"))
		assert.Equal(t, "50", r.URL.Query().Get("limit_trades"))
		_, _ = w.Write([]byte(`[{"timestamp":1700000003,"tid":3,"price":"103","amount":"0.3","type":"sell"},
			{"timestamp":1700000001,"tid":1,"price":"101","amount":"0.1","type":"buy"}]`))
	})

	trades, err := client.Trades(context.Background(), "btcusd", &since, 50)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1700000003), trades[0].Timestamp)
	assert.Equal(t, "0.1", trades[1].Amount)
}

func TestBitfinexClient_Errors(t *testing.T) {
	t.Run("api error carries status and message", func(t *testing.T) {
		client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid order: not enough exchange balance"}`))
		})
		_, err := client.NewOrder(context.Background(), BitfinexNewOrder{Symbol: "btcusd"})
		var apiErr *BitfinexAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Invalid order: not enough exchange balance", apiErr.Message)
	})

	t.Run("non json error body", func(t *testing.T) {
		client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
		})
		_, err := client.Ticker(context.Background(), "btcusd")
		var apiErr *BitfinexAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "bad gateway", apiErr.Message)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"bid":`))
		})
		_, err := client.Ticker(context.Background(), "btcusd")
		assert.ErrorIs(t, err, ErrUnexpectedPayload)
	})

	t.Run("unparsable base url is an invalid request", func(t *testing.T) {
		client := NewBitfinexClient(&domain.Credentials{Key: "key", Secret: "secret"}, WithBitfinexBaseURL("http://[::1"))

		_, err := client.Trades(context.Background(), "btcusd", nil, 0)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = client.WalletBalances(context.Background())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("oversized body is cut off", func(t *testing.T) {
		client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"bid":"1","pad":"`))
			_, _ = w.Write([]byte(strings.Repeat("x", 2*bitfinexMaxBodySize)))
			_, _ = w.Write([]byte(`"}`))
		})
		_, err := client.Ticker(context.Background(), "btcusd")
		require.ErrorIs(t, err, ErrUnexpectedPayload)
		assert.Contains(t, err.Error(), "body exceeds")
	})

	t.Run("oversized error body keeps the status", func(t *testing.T) {
		client := newTestBitfinexClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(strings.Repeat("<html>", bitfinexMaxBodySize)))
		})
		_, err := client.Ticker(context.Background(), "btcusd")
		var apiErr *BitfinexAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	})

	t.Run("private call without credentials", func(t *testing.T) {
		client := NewBitfinexClient(nil, WithBitfinexBaseURL("http://127.0.0.1:1"))
		_, err := client.WalletBalances(context.Background())
		assert.ErrorIs(t, err, ErrNoCredentials)
	})
}

func TestBitfinexClient_NonceIncreases(t *testing.T) {
	client := NewBitfinexClient(nil)
	prev := client.nextNonce()
	for i := 0; i < 100; i++ {
		n := client.nextNonce()
		require.Greater(t, n, prev)
		prev = n
	}
}
