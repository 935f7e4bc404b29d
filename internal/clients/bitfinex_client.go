package clients

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const (
	BitfinexBaseURL        = "https://api.bitfinex.com"
	bitfinexDefaultTimeout = 15 * time.Second
	// bitfinexMaxBodySize caps a single response; the largest payload is a full trades page.
	bitfinexMaxBodySize = 1 << 20
)

// ErrUnexpectedPayload is wrapped into every error caused by a response body
// that could not be decoded.
var ErrUnexpectedPayload = errors.New("unexpected venue payload")

// ErrNoCredentials is returned by authenticated calls on a public-only client.
var ErrNoCredentials = errors.New("api key and secret are not set")

// ErrInvalidRequest is wrapped into errors raised while building a request,
// before anything is sent. Retrying cannot fix them.
var ErrInvalidRequest = errors.New("invalid venue request")

// BitfinexAPIError non-2xx answer from the Bitfinex API.
type BitfinexAPIError struct {
	StatusCode int
	Message    string
}

func (e *BitfinexAPIError) Error() string {
	return fmt.Sprintf("bitfinex api error (http %d): %s", e.StatusCode, e.Message)
}

// BitfinexBalance raw wallet balance record.
type BitfinexBalance struct {
	Type      string `json:"type"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Available string `json:"available"`
}

// BitfinexTicker raw ticker.
type BitfinexTicker struct {
	Mid       string `json:"mid"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	LastPrice string `json:"last_price"`
	Low       string `json:"low"`
	High      string `json:"high"`
	Volume    string `json:"volume"`
	Timestamp string `json:"timestamp"`
}

// BitfinexNewOrder parameters of /v1/order/new.
type BitfinexNewOrder struct {
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
	Price    string `json:"price"`
	Exchange string `json:"exchange"`
	Side     string `json:"side"`
	Type     string `json:"type"`
}

// BitfinexOrder raw order as returned by order/new, order/status and order/cancel.
type BitfinexOrder struct {
	ID              int64  `json:"id"`
	OrderID         int64  `json:"order_id"`
	Symbol          string `json:"symbol"`
	Exchange        string `json:"exchange"`
	Price           string `json:"price"`
	Side            string `json:"side"`
	Type            string `json:"type"`
	Timestamp       string `json:"timestamp"`
	IsLive          bool   `json:"is_live"`
	IsCancelled     bool   `json:"is_cancelled"`
	OriginalAmount  string `json:"original_amount"`
	RemainingAmount string `json:"remaining_amount"`
	ExecutedAmount  string `json:"executed_amount"`
}

// BitfinexTrade raw public trade.
type BitfinexTrade struct {
	Timestamp int64  `json:"timestamp"`
	TID       int64  `json:"tid"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Exchange  string `json:"exchange"`
	Type      string `json:"type"`
}

// BitfinexClient minimal Bitfinex REST v1 client. It returns raw payloads and
// leaves normalization to the trader.
type BitfinexClient struct {
	creds      *domain.Credentials
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	lastNonce int64
}

// BitfinexOption configures the client.
type BitfinexOption func(*BitfinexClient)

// WithBitfinexBaseURL overrides the API host.
func WithBitfinexBaseURL(u string) BitfinexOption {
	return func(c *BitfinexClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithBitfinexHTTPClient overrides the http client.
func WithBitfinexHTTPClient(hc *http.Client) BitfinexOption {
	return func(c *BitfinexClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewBitfinexClient creates a client. creds may be nil for public data only.
func NewBitfinexClient(creds *domain.Credentials, opts ...BitfinexOption) *BitfinexClient {
	c := &BitfinexClient{
		baseURL:    BitfinexBaseURL,
		httpClient: &http.Client{Timeout: bitfinexDefaultTimeout},
	}
	if creds != nil {
		copied := *creds
		c.creds = &copied
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WalletBalances calls POST /v1/balances.
func (c *BitfinexClient) WalletBalances(ctx context.Context) ([]BitfinexBalance, error) {
	var out []BitfinexBalance
	if err := c.private(ctx, "/v1/balances", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ticker calls GET /v1/pubticker/{symbol}.
func (c *BitfinexClient) Ticker(ctx context.Context, symbol string) (*BitfinexTicker, error) {
	var out BitfinexTicker
	if err := c.public(ctx, "/v1/pubticker/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewOrder calls POST /v1/order/new.
func (c *BitfinexClient) NewOrder(ctx context.Context, order BitfinexNewOrder) (*BitfinexOrder, error) {
	params := map[string]any{
		"symbol":   order.Symbol,
		"amount":   order.Amount,
		"price":    order.Price,
		"exchange": order.Exchange,
		"side":     order.Side,
		"type":     order.Type,
	}
	var out BitfinexOrder
	if err := c.private(ctx, "/v1/order/new", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderStatus calls POST /v1/order/status.
func (c *BitfinexClient) OrderStatus(ctx context.Context, orderID int64) (*BitfinexOrder, error) {
	var out BitfinexOrder
	if err := c.private(ctx, "/v1/order/status", map[string]any{"order_id": orderID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder calls POST /v1/order/cancel.
func (c *BitfinexClient) CancelOrder(ctx context.Context, orderID int64) (*BitfinexOrder, error) {
	var out BitfinexOrder
	if err := c.private(ctx, "/v1/order/cancel", map[string]any{"order_id": orderID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trades calls GET /v1/trades/{symbol}. The feed is newest first.
// A nil since and a zero limit leave the venue defaults.
func (c *BitfinexClient) Trades(ctx context.Context, symbol string, since *time.Time, limit int) ([]BitfinexTrade, error) {
	query := url.Values{}
	if since != nil {
		query.Set("timestamp", strconv.FormatInt(since.Unix(), 10))
	}
	if limit > 0 {
		query.Set("limit_trades", strconv.Itoa(limit))
	}
	var out []BitfinexTrade
	if err := c.public(ctx, "/v1/trades/"+url.PathEscape(symbol), query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BitfinexClient) public(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create HTTP request: %w", ErrInvalidRequest, err)
	}
	return c.do(req, out)
}

func (c *BitfinexClient) private(ctx context.Context, path string, params map[string]any, out any) error {
	if !c.creds.Valid() {
		return ErrNoCredentials
	}

	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["request"] = path
	body["nonce"] = strconv.FormatInt(c.nextNonce(), 10)

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request: %w", ErrInvalidRequest, err)
	}
	payload := base64.StdEncoding.EncodeToString(raw)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: failed to create HTTP request: %w", ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BFX-APIKEY", c.creds.Key)
	req.Header.Set("X-BFX-PAYLOAD", payload)
	req.Header.Set("X-BFX-SIGNATURE", sign(c.creds.Secret, payload))

	return c.do(req, out)
}

func (c *BitfinexClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	// one extra byte tells a truncated body from one that fits exactly
	data, err := io.ReadAll(io.LimitReader(resp.Body, bitfinexMaxBodySize+1))
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if len(data) > bitfinexMaxBodySize {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &BitfinexAPIError{StatusCode: resp.StatusCode, Message: "oversized error body"}
		}
		return fmt.Errorf("%w: %s: body exceeds %d bytes", ErrUnexpectedPayload, req.URL.Path, bitfinexMaxBodySize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseBitfinexError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnexpectedPayload, req.URL.Path, err)
	}
	return nil
}

// nextNonce returns a strictly increasing nonce derived from the clock.
func (c *BitfinexClient) nextNonce() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := time.Now().UnixMicro()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

func sign(secret, payload string) string {
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseBitfinexError(status int, body []byte) error {
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	apiErr := &BitfinexAPIError{StatusCode: status}
	if err := json.Unmarshal(body, &msg); err == nil {
		apiErr.Message = msg.Message
		if apiErr.Message == "" {
			apiErr.Message = msg.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
