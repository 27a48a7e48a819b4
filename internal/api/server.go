package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"marketcache/internal/cache"
	"marketcache/internal/config"
	"marketcache/internal/jobs"
	"marketcache/internal/logger"
	"marketcache/internal/market"
	"marketcache/internal/monitoring"
	"marketcache/internal/types"
)

// MarketService is the aggregation surface served under /api/v1.
type MarketService interface {
	GetAggregatedPrices(ctx context.Context, symbols []string, vsCurrency string) map[string]types.AggregatedPrice
	GetTickers(ctx context.Context, symbols []string) []*types.Ticker
	GetTradingData(ctx context.Context, symbol string) *types.TradingDataBundle
	GetMarketAnalysis(ctx context.Context, symbol string) *types.MarketAnalysisBundle
	GetWalletInfo(ctx context.Context) (*types.WalletBalance, error)
	GetDepositWithdrawInfo(ctx context.Context, coin string) ([]types.CoinInfo, error)
	CheckProviderHealth(ctx context.Context) map[string]market.ProviderHealth
	GetRateLimitStatus() map[string]market.RateLimitStatus
}

// SyncService runs sync jobs on demand.
type SyncService interface {
	RunJob(ctx context.Context, job string) (int, error)
	Configured() bool
	Running() bool
	Tick() int64
}

// Pinger reports durable storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. Nil members disable their routes
// with 503 responses.
type Deps struct {
	Market   MarketService
	Cache    *cache.Store
	Sync     SyncService
	Storage  Pinger
	Jobs     *jobs.Runner
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
}

// Server represents the admin and market data HTTP server
type Server struct {
	config      config.ServerConfig
	router      *gin.Engine
	httpServer  *http.Server
	deps        Deps
	log         logger.Logger
	statsOldest int
	metricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithStatsOldest sets how many entries /cache/stats lists when the request
// does not say.
func WithStatsOldest(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.statsOldest = n
		}
	}
}

// WithMetricsPath serves the Prometheus scrape endpoint at path. An empty
// path disables it.
func WithMetricsPath(path string) Option {
	return func(s *Server) { s.metricsPath = path }
}

// NewServer creates the server and registers its routes.
func NewServer(cfg config.ServerConfig, deps Deps, opts ...Option) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	s := &Server{
		config:      cfg,
		router:      gin.New(),
		deps:        deps,
		log:         log.WithField("component", "api"),
		statsOldest: 10,
		metricsPath: "/metrics",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.log))
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.MetricsMiddleware())
	}

	s.router.GET("/health", s.handleHealth)
	if s.metricsPath != "" {
		s.router.GET(s.metricsPath, gin.WrapH(monitoring.Handler(s.deps.Gatherer)))
	}
	s.router.GET("/jobs", s.handleJobs)

	providers := s.router.Group("/providers")
	{
		providers.GET("/health", s.handleProviderHealth)
		providers.GET("/rate-limits", s.handleRateLimits)
	}

	ch := &CacheHandler{store: s.deps.Cache, defaultOldest: s.statsOldest}
	cacheGroup := s.router.Group("/cache")
	{
		cacheGroup.GET("/stats", ch.handleCacheStats)
		cacheGroup.DELETE("", ch.handleCacheClear)
		cacheGroup.DELETE("/:key", ch.handleCacheDelete)
	}

	s.router.POST("/sync/:job", s.handleSync)

	v1 := s.router.Group("/api/v1")
	{
		mkt := v1.Group("/market")
		{
			mkt.GET("/prices", s.handlePrices)
			mkt.GET("/tickers", s.handleTickers)
			mkt.GET("/:symbol/trading", s.handleTradingData)
			mkt.GET("/:symbol/analysis", s.handleAnalysis)
		}

		account := v1.Group("/account")
		{
			account.GET("/wallet", s.handleWallet)
			account.GET("/coins/:coin", s.handleCoinInfo)
		}
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Info("Starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("Shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("HTTP request failed", fields...)
			return
		}
		log.Debug("HTTP request", fields...)
	}
}
