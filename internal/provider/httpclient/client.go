// Package httpclient builds the retrying HTTP client shared by the provider clients.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"marketcache/internal/logger"
)

// leveledLogger rewrites retry ERROR lines to WARN, since a retried failure is expected.
type leveledLogger struct {
	inner logger.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, keysAndValues...)
}

type Option func(*retryablehttp.Client)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(maxRetries int) Option {
	return func(client *retryablehttp.Client) {
		client.RetryMax = maxRetries
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(client *retryablehttp.Client) {
		if waitMin > 0 {
			client.RetryWaitMin = waitMin
		}
		if waitMax > 0 {
			client.RetryWaitMax = waitMax
		}
	}
}

// WithLogger routes retry logs through l.
func WithLogger(l logger.Logger) Option {
	return func(client *retryablehttp.Client) {
		client.Logger = retryablehttp.LeveledLogger(leveledLogger{inner: l})
	}
}

// WithTransport sets a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(client *retryablehttp.Client) {
		client.HTTPClient.Transport = transport
	}
}

// New returns a stdlib *http.Client that retries connection errors and 5xx
// responses (except 501) with jittered exponential backoff. timeout bounds the
// whole call, retries included.
func New(timeout time.Duration, options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff
	retryClient.Logger = retryablehttp.LeveledLogger(leveledLogger{inner: logger.GetGlobalLogger().WithField("subsystem", "provider-http")})
	retryClient.CheckRetry = DefaultRetryPolicy
	// 重试耗尽后返回最后一次响应，交给调用方解析错误体
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	for _, option := range options {
		option(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

// DefaultRetryPolicy wraps retryablehttp.DefaultRetryPolicy and treats
// 429 Too Many Requests as final, so the provider reports a rate-limit error
// instead of hammering the upstream.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
