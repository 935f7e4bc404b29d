package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

// HyperliquidBaseURL mainnet API host.
const HyperliquidBaseURL = "https://api.hyperliquid.xyz"

// HyperliquidBalance raw spot balance. Hold is the part locked in open orders.
type HyperliquidBalance struct {
	Coin  string
	Total string
	Hold  string
}

// HyperliquidCandle raw candle of the info API.
type HyperliquidCandle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Close     string
	Volume    string
}

// HyperliquidOrder limit order placed with a client order id.
type HyperliquidOrder struct {
	Coin  string
	IsBuy bool
	Price float64
	Size  float64
	Cloid string
}

// HyperliquidOrderState status of an order looked up by client order id.
// Found is false when the venue does not know the cloid.
type HyperliquidOrderState struct {
	Found bool
	Open  bool
	Oid   int64
}

// HyperliquidClient wraps the Hyperliquid SDK. Without a private key it signs
// nothing and only serves public info calls.
type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	info        *hyperliquid.Info
	accountAddr string
	private     bool
}

// NewHyperliquidClient builds a client. creds.Secret is the hex private key of the
// signing wallet, creds.Key the account address it trades for; an empty Key
// means the wallet's own address. Nil creds give a public-only client.
func NewHyperliquidClient(creds *domain.Credentials, baseURL string) (*HyperliquidClient, error) {
	if baseURL == "" {
		baseURL = HyperliquidBaseURL
	}

	var (
		privateKey *ecdsa.PrivateKey
		err        error
		private    = creds != nil && creds.Secret != ""
	)
	if private {
		key := creds.Secret
		if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
			key = key[2:]
		}
		privateKey, err = crypto.HexToECDSA(key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid hyperliquid private key")
		}
	} else {
		// throwaway key: the SDK needs a signer even for read-only use
		privateKey, err = crypto.GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "generate hyperliquid session key")
		}
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pub).Hex()
	if private && creds.Key != "" {
		accountAddr = creds.Key
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{
		exchange:    ex,
		info:        ex.Info(),
		accountAddr: accountAddr,
		private:     private,
	}, nil
}

// AccountAddress returns the address private calls act on.
func (c *HyperliquidClient) AccountAddress() string { return c.accountAddr }

// SpotBalances returns the spot clearinghouse balances of the account.
func (c *HyperliquidClient) SpotBalances(ctx context.Context) ([]HyperliquidBalance, error) {
	if !c.private {
		return nil, ErrNoCredentials
	}
	st, err := c.info.SpotUserState(ctx, c.accountAddr)
	if err != nil {
		return nil, errors.Wrap(err, "get spot user state")
	}

	out := make([]HyperliquidBalance, 0, len(st.Balances))
	for _, b := range st.Balances {
		out = append(out, HyperliquidBalance{Coin: b.Coin, Total: b.Total, Hold: b.Hold})
	}
	return out, nil
}

// Mid returns the mid price of coin.
func (c *HyperliquidClient) Mid(ctx context.Context, coin string) (string, error) {
	mids, err := c.info.AllMids(ctx)
	if err != nil {
		return "", errors.Wrap(err, "get mids")
	}
	mid, ok := mids[coin]
	if !ok || mid == "" {
		return "", fmt.Errorf("%w: no mid price for %s", ErrUnexpectedPayload, coin)
	}
	return mid, nil
}

// Candles returns candles of coin between start and end, oldest first.
func (c *HyperliquidClient) Candles(ctx context.Context, coin, interval string, start, end time.Time) ([]HyperliquidCandle, error) {
	candles, err := c.info.CandlesSnapshot(ctx, strings.ToUpper(coin), interval, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "get candles")
	}

	out := make([]HyperliquidCandle, 0, len(candles))
	for _, candle := range candles {
		out = append(out, HyperliquidCandle{
			OpenTime:  time.UnixMilli(candle.TimeOpen).UTC(),
			CloseTime: time.UnixMilli(candle.TimeClose).UTC(),
			Close:     candle.Close,
			Volume:    candle.Volume,
		})
	}
	return out, nil
}

// PlaceLimitOrder places a good-till-cancel limit order.
func (c *HyperliquidClient) PlaceLimitOrder(ctx context.Context, order HyperliquidOrder) error {
	if !c.private {
		return ErrNoCredentials
	}
	cloid := order.Cloid
	req := hyperliquid.CreateOrderRequest{
		Coin:          order.Coin,
		IsBuy:         order.IsBuy,
		Price:         order.Price,
		Size:          order.Size,
		ClientOrderID: &cloid,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifGtc},
		},
	}
	if _, err := c.exchange.Order(ctx, req, nil); err != nil {
		return errors.Wrap(err, "place order")
	}
	return nil
}

// OrderState looks an order up by client order id.
func (c *HyperliquidClient) OrderState(ctx context.Context, cloid string) (*HyperliquidOrderState, error) {
	if !c.private {
		return nil, ErrNoCredentials
	}
	res, err := c.info.QueryOrderByCloid(ctx, c.accountAddr, cloid)
	if err != nil {
		return nil, errors.Wrap(err, "query order by cloid")
	}
	if res == nil || res.Status != hyperliquid.OrderQueryStatusSuccess {
		return &HyperliquidOrderState{}, nil
	}
	return &HyperliquidOrderState{
		Found: true,
		Open:  res.Order.Status == hyperliquid.OrderStatusValueOpen,
		Oid:   res.Order.Order.Oid,
	}, nil
}

// CancelOrder cancels a resting order by venue order id.
func (c *HyperliquidClient) CancelOrder(ctx context.Context, coin string, oid int64) error {
	if !c.private {
		return ErrNoCredentials
	}
	cancels := []hyperliquid.CancelOrderRequest{{Coin: coin, OrderID: oid}}
	if _, err := c.exchange.BulkCancel(ctx, cancels); err != nil {
		return errors.Wrap(err, "cancel order")
	}
	return nil
}
