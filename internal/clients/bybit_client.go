package clients

import (
	"github.com/hirokisan/bybit/v2"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

// NewBybitClient builds a Bybit SDK client. Nil creds give a public-only client.
func NewBybitClient(creds *domain.Credentials, baseURL string) *bybit.Client {
	client := bybit.NewClient()
	if creds.Valid() {
		client = client.WithAuth(creds.Key, creds.Secret)
	}
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}

	return client
}
