// Package coingecko is the fallback price provider. It only serves spot
// prices with 24h change and volume; depth and derivatives data stay with the
// primary provider.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketcache/internal/config"
	apperrors "marketcache/internal/errors"
	"marketcache/internal/logger"
	"marketcache/internal/provider/httpclient"
)

// Name identifies the provider in logs, metrics and errors.
const Name = "coingecko"

// Price is one asset's quote in a single vs currency.
type Price struct {
	ID        string
	Price     float64
	Change24h float64
	Volume24h float64
	UpdatedAt time.Time
}

// Client represents a CoinGecko API client
type Client struct {
	apiKey     string
	baseURL    string
	vsCurrency string
	enabled    bool
	httpClient *http.Client
	fetchLog   *logger.FetchLogger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the retrying default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for per-call fetch logs.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.fetchLog = logger.NewFetchLogger(l) }
}

// NewClient creates a new CoinGecko API client
func NewClient(cfg config.CoinGeckoConfig, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	vs := strings.ToLower(cfg.VsCurrency)
	if vs == "" {
		vs = "usd"
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		vsCurrency: vs,
		enabled:    cfg.Enabled,
		fetchLog:   logger.NewFetchLogger(logger.GetGlobalLogger().WithField("provider", Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.New(30 * time.Second)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Configured reports whether the fallback branch may be used. The public API
// works without a key, so only the enabled flag gates it.
func (c *Client) Configured() bool {
	return c.enabled
}

// HasAPIKey reports whether requests carry a demo/pro key.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// VsCurrency is the quote currency used when the caller passes none.
func (c *Client) VsCurrency() string {
	return c.vsCurrency
}

// GetPrices looks up ids in one batched call. Ids the API does not know are
// absent from the result map.
func (c *Client) GetPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]Price, error) {
	if len(ids) == 0 {
		return map[string]Price{}, nil
	}
	vs := strings.ToLower(strings.TrimSpace(vsCurrency))
	if vs == "" {
		vs = c.vsCurrency
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", vs)
	params.Set("include_24hr_change", "true")
	params.Set("include_24hr_vol", "true")
	params.Set("include_last_updated_at", "true")

	var raw map[string]map[string]float64
	if err := c.call(ctx, "simple_price", "/simple/price", params, &raw); err != nil {
		return nil, err
	}

	prices := make(map[string]Price, len(raw))
	for id, fields := range raw {
		price, ok := fields[vs]
		if !ok {
			continue
		}
		p := Price{
			ID:        id,
			Price:     price,
			Change24h: fields[vs+"_24h_change"],
			Volume24h: fields[vs+"_24h_vol"],
		}
		if ts, ok := fields["last_updated_at"]; ok && ts > 0 {
			p.UpdatedAt = time.Unix(int64(ts), 0)
		}
		prices[id] = p
	}
	return prices, nil
}

// Ping checks API availability.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		GeckoSays string `json:"gecko_says"`
	}
	return c.call(ctx, "ping", "/ping", nil, &out)
}

func (c *Client) call(ctx context.Context, op, endpoint string, params url.Values, out interface{}) error {
	start := time.Now()
	err := c.do(ctx, endpoint, params, out)
	c.fetchLog.LogFetch(Name, op, time.Since(start), err)
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.Upstream(Name, op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if !c.Configured() {
		return apperrors.Unconfigured(Name)
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.NewAppError(apperrors.ErrCodeUpstreamRateLimit, "coingecko rate limit exceeded", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodeUpstreamInvalidData, "failed to decode response", err)
	}
	return nil
}
