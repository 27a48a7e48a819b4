package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/config"
	apperrors "marketcache/internal/errors"
	"marketcache/internal/logger"
)

func newTestClient(t *testing.T, cfg config.CoinGeckoConfig, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	return NewClient(cfg, WithHTTPClient(srv.Client()), WithLogger(logger.Nop()))
}

func TestGetPrices(t *testing.T) {
	client := newTestClient(t, config.CoinGeckoConfig{Enabled: true, APIKey: "demo"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum,unknown-coin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "true", r.URL.Query().Get("include_24hr_change"))
		assert.Equal(t, "demo", r.Header.Get("x-cg-demo-api-key"))
		fmt.Fprint(w, `{
			"bitcoin":{"usd":50000,"usd_24h_change":1.5,"usd_24h_vol":123456789,"last_updated_at":1700000000},
			"ethereum":{"usd":3000,"usd_24h_change":-0.5,"usd_24h_vol":98765}
		}`)
	})

	prices, err := client.GetPrices(context.Background(), []string{"bitcoin", "ethereum", "unknown-coin"}, "")
	require.NoError(t, err)
	require.Len(t, prices, 2)

	btc := prices["bitcoin"]
	assert.Equal(t, 50000.0, btc.Price)
	assert.Equal(t, 1.5, btc.Change24h)
	assert.Equal(t, 123456789.0, btc.Volume24h)
	assert.Equal(t, time.Unix(1700000000, 0), btc.UpdatedAt)

	assert.Equal(t, -0.5, prices["ethereum"].Change24h)
	assert.True(t, prices["ethereum"].UpdatedAt.IsZero())
}

func TestGetPricesVsCurrency(t *testing.T) {
	client := newTestClient(t, config.CoinGeckoConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eur", r.URL.Query().Get("vs_currencies"))
		assert.Empty(t, r.Header.Get("x-cg-demo-api-key"))
		fmt.Fprint(w, `{"bitcoin":{"eur":46000}}`)
	})

	prices, err := client.GetPrices(context.Background(), []string{"bitcoin"}, "EUR")
	require.NoError(t, err)
	assert.Equal(t, 46000.0, prices["bitcoin"].Price)
}

func TestGetPricesNoIDs(t *testing.T) {
	client := newTestClient(t, config.CoinGeckoConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	prices, err := client.GetPrices(context.Background(), nil, "usd")
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestDisabledClient(t *testing.T) {
	client := newTestClient(t, config.CoinGeckoConfig{Enabled: false}, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	assert.False(t, client.Configured())
	_, err := client.GetPrices(context.Background(), []string{"bitcoin"}, "usd")
	assert.True(t, apperrors.Is(err, apperrors.ErrProviderUnconfigured))
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   apperrors.ErrorCode
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, apperrors.ErrCodeUpstreamRateLimit},
		{"server error", http.StatusInternalServerError, `oops`, apperrors.ErrCodeUpstreamFetch},
		{"bad json", http.StatusOK, `[`, apperrors.ErrCodeUpstreamInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, config.CoinGeckoConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.GetPrices(context.Background(), []string{"bitcoin"}, "usd")
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, config.CoinGeckoConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		fmt.Fprint(w, `{"gecko_says":"(V3) To the Moon!"}`)
	})

	assert.NoError(t, client.Ping(context.Background()))
}
