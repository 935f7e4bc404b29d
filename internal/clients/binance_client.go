package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

// NewBinanceClient builds a Binance SDK client. Nil creds give a public-only client.
func NewBinanceClient(creds *domain.Credentials, baseURL string) *binance.Client {
	var key, secret string
	if creds != nil {
		key, secret = creds.Key, creds.Secret
	}
	client := binance.NewClient(key, secret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return client
}
