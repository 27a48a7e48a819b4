package config

import (
	"fmt"
	"net/url"
	"strings"

	"marketcache/internal/logger"
)

// Validator 配置验证器
type Validator struct {
	config *Config
}

// NewValidator 创建配置验证器
func NewValidator(config *Config) *Validator {
	return &Validator{config: config}
}

// Validate 验证配置，汇总所有错误
func (v *Validator) Validate() error {
	var errors []string

	checks := []struct {
		name string
		fn   func() error
	}{
		{"server", v.validateServer},
		{"cache", v.validateCache},
		{"providers", v.validateProviders},
		{"sync", v.validateSync},
		{"storage", v.validateStorage},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", check.name, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func (v *Validator) validateServer() error {
	server := v.config.Server
	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", server.Port)
	}
	return nil
}

func (v *Validator) validateCache() error {
	c := v.config.Cache
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	for kind, ttl := range c.TTLs {
		if ttl <= 0 {
			return fmt.Errorf("ttl for %s must be positive", kind)
		}
	}
	return nil
}

func (v *Validator) validateProviders() error {
	p := v.config.Providers
	if p.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if p.PrimaryConcurrency <= 0 {
		return fmt.Errorf("primary_concurrency must be positive")
	}
	for name, raw := range map[string]string{"bybit": p.Bybit.BaseURL, "coingecko": p.CoinGecko.BaseURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid %s base_url %q", name, raw)
		}
	}
	if p.Bybit.APIKey != "" && p.Bybit.APISecret == "" {
		return fmt.Errorf("bybit api_secret is required when api_key is set")
	}
	return nil
}

func (v *Validator) validateSync() error {
	s := v.config.Sync
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if s.OrderbookDepth <= 0 {
		return fmt.Errorf("orderbook_depth must be positive")
	}
	return nil
}

func (v *Validator) validateStorage() error {
	switch v.config.Storage.Driver {
	case "postgres", "redis", "none":
		return nil
	default:
		return fmt.Errorf("unknown driver %q", v.config.Storage.Driver)
	}
}

func logLevel(raw string) logger.LogLevel {
	return logger.LogLevel(strings.ToLower(raw))
}
