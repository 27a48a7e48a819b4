// Package bybit is the primary market data provider: a REST client for the
// Bybit v5 public market and private account endpoints.
package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketcache/internal/config"
	apperrors "marketcache/internal/errors"
	"marketcache/internal/logger"
	"marketcache/internal/provider/httpclient"
)

// Name identifies the provider in logs, metrics and errors.
const Name = "bybit"

const (
	retCodeOK        = 0
	retCodeRateLimit = 10006
)

// Client represents a Bybit v5 API client
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	category   string
	recvWindow string
	httpClient *http.Client
	now        func() time.Time
	fetchLog   *logger.FetchLogger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the retrying default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock sets the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger used for per-call fetch logs.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.fetchLog = logger.NewFetchLogger(l) }
}

// NewClient creates a new Bybit API client
func NewClient(cfg config.BybitConfig, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	category := cfg.Category
	if category == "" {
		category = "linear"
	}
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5 * time.Second
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    baseURL,
		category:   category,
		recvWindow: strconv.FormatInt(recvWindow.Milliseconds(), 10),
		now:        time.Now,
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

// Configured reports whether credentials are present. Without them the
// aggregator and scheduler skip this provider entirely.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// envelope is the common v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// call performs a request and decodes the result object into out. It returns
// the server time carried by the envelope.
func (c *Client) call(ctx context.Context, op, endpoint string, params url.Values, signed bool, out interface{}) (time.Time, error) {
	start := time.Now()
	serverTime, err := c.do(ctx, endpoint, params, signed, out)
	c.fetchLog.LogFetch(Name, op, time.Since(start), err)
	if err != nil {
		if apperrors.IsAppError(err) {
			return time.Time{}, err
		}
		return time.Time{}, apperrors.Upstream(Name, op, err)
	}
	return serverTime, nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, signed bool, out interface{}) (time.Time, error) {
	if signed && !c.Configured() {
		return time.Time{}, apperrors.Unconfigured(Name)
	}

	resp, err := c.makeRequest(ctx, http.MethodGet, endpoint, params, signed)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return time.Time{}, apperrors.NewAppError(apperrors.ErrCodeUpstreamInvalidData, "failed to decode response envelope", err)
	}

	switch env.RetCode {
	case retCodeOK:
	case retCodeRateLimit:
		return time.Time{}, apperrors.NewAppError(apperrors.ErrCodeUpstreamRateLimit, "bybit rate limit exceeded", nil).
			WithContext("ret_msg", env.RetMsg)
	default:
		return time.Time{}, fmt.Errorf("API error retCode=%d: %s", env.RetCode, env.RetMsg)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return time.Time{}, apperrors.NewAppError(apperrors.ErrCodeUpstreamInvalidData, "failed to decode result", err)
		}
	}
	if env.Time == 0 {
		return c.now(), nil
	}
	return time.UnixMilli(env.Time), nil
}

// makeRequest makes an HTTP request to the Bybit API
func (c *Client) makeRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) (*http.Response, error) {
	queryString := ""
	if len(params) > 0 {
		queryString = params.Encode()
	}

	reqURL := c.baseURL + endpoint
	if queryString != "" {
		reqURL += "?" + queryString
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if signed {
		timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(timestamp+c.apiKey+c.recvWindow+queryString))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, apperrors.NewAppError(apperrors.ErrCodeUpstreamRateLimit, "bybit rate limit exceeded", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// sign creates HMAC SHA256 signature
func (c *Client) sign(message string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// ServerTime fetches the exchange clock. It doubles as the health probe.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	return c.call(ctx, "server_time", "/v5/market/time", nil, false, nil)
}

// Ping reports whether the market endpoints answer.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ServerTime(ctx)
	return err
}

func (c *Client) marketParams(symbol string) url.Values {
	params := url.Values{}
	params.Set("category", c.category)
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(strings.TrimSpace(symbol)))
	}
	return params
}
