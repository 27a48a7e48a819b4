package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketcache/internal/logger"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Logging    logger.Config    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Sync       SyncConfig       `yaml:"sync"`
	Storage    StorageConfig    `yaml:"storage"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents the admin HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig represents the in-process TTL cache configuration
type CacheConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StatsOldest   int           `yaml:"stats_oldest"`
	// 按数据类型覆盖默认 TTL，键为 ticker/orderbook/trades/klines/analysis
	TTLs map[string]time.Duration `yaml:"ttls"`
}

// ProvidersConfig groups the upstream market data sources
type ProvidersConfig struct {
	Bybit              BybitConfig     `yaml:"bybit"`
	CoinGecko          CoinGeckoConfig `yaml:"coingecko"`
	FetchTimeout       time.Duration   `yaml:"fetch_timeout"`
	PrimaryConcurrency int             `yaml:"primary_concurrency"`
	HTTP               HTTPConfig      `yaml:"http"`
}

// BybitConfig represents the primary provider configuration
type BybitConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	APISecret          string        `yaml:"api_secret"`
	Category           string        `yaml:"category"`
	RecvWindow         time.Duration `yaml:"recv_window"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// Configured reports whether the primary provider has credentials.
func (b BybitConfig) Configured() bool {
	return b.APIKey != ""
}

// CoinGeckoConfig represents the fallback provider configuration
type CoinGeckoConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	VsCurrency         string `yaml:"vs_currency"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	// 公共接口无需密钥，关闭后整个后备分支视为未配置
	Enabled bool `yaml:"enabled"`
}

// HTTPConfig represents the shared provider HTTP client settings
type HTTPConfig struct {
	RetryMax     int           `yaml:"retry_max"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max"`
}

// SyncConfig represents the background sync scheduler configuration
type SyncConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Interval           time.Duration `yaml:"interval"`
	Symbols            []string      `yaml:"symbols"`
	OrderbookDepth     int           `yaml:"orderbook_depth"`
	Exchange           string        `yaml:"exchange"`
	TickerLifetime     time.Duration `yaml:"ticker_lifetime"`
	OrderbookLifetime  time.Duration `yaml:"orderbook_lifetime"`
	InstrumentLifetime time.Duration `yaml:"instrument_lifetime"`
}

// StorageConfig represents durable snapshot storage configuration
type StorageConfig struct {
	Driver   string         `yaml:"driver"` // postgres, redis, none
	Postgres DatabaseConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "marketcache", Version: "dev", Env: "development"},
		Server: ServerConfig{
			Port:         8090,
			Host:         "0.0.0.0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Logging: logger.DefaultConfig,
		Cache: CacheConfig{
			DefaultTTL:    time.Minute,
			SweepInterval: 5 * time.Minute,
			StatsOldest:   10,
		},
		Providers: ProvidersConfig{
			Bybit: BybitConfig{
				BaseURL:            "https://api.bybit.com",
				Category:           "linear",
				RecvWindow:         5 * time.Second,
				RateLimitPerMinute: 600,
			},
			CoinGecko: CoinGeckoConfig{
				BaseURL:            "https://api.coingecko.com/api/v3",
				VsCurrency:         "usd",
				RateLimitPerMinute: 30,
				Enabled:            true,
			},
			FetchTimeout:       10 * time.Second,
			PrimaryConcurrency: 8,
			HTTP: HTTPConfig{
				RetryMax:     3,
				RetryWaitMin: 500 * time.Millisecond,
				RetryWaitMax: 5 * time.Second,
			},
		},
		Sync: SyncConfig{
			Enabled:            true,
			Interval:           3 * time.Minute,
			Symbols:            []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"},
			OrderbookDepth:     50,
			Exchange:           "bybit",
			TickerLifetime:     10 * time.Minute,
			OrderbookLifetime:  5 * time.Minute,
			InstrumentLifetime: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: "none",
			Postgres: DatabaseConfig{
				Host:    "localhost",
				Port:    5432,
				DBName:  "marketcache",
				SSLMode: "disable",
				MaxOpen: 10,
				MaxIdle: 5,
				Timeout: 5 * time.Second,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "marketcache",
			},
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: true,
			PrometheusPath:    "/metrics",
		},
	}
}

// Load loads configuration from a YAML file, then applies .env and MARKETCACHE_* overrides.
// An empty filename skips the file and starts from Default().
func Load(filename string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	env := NewEnvManager("", "")
	if err := env.Apply(config); err != nil {
		return nil, err
	}

	if err := NewValidator(config).Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
