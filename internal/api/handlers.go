package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "marketcache/internal/errors"
	"marketcache/internal/scheduler"
)

const (
	healthTimeout = 5 * time.Second
	maxSymbols    = 100
)

var syncJobs = map[string]bool{
	scheduler.JobTickers:     true,
	scheduler.JobInstruments: true,
	scheduler.JobOrderbooks:  true,
	scheduler.JobCleanup:     true,
}

func unavailable(c *gin.Context, msg string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "UNAVAILABLE",
		"message": msg,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   string(apperrors.ErrCodeInvalidInput),
		"message": msg,
	})
}

// writeError maps an error to its HTTP status and code.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ErrCodeInternal
	if appErr := apperrors.GetAppError(err); appErr != nil {
		status = appErr.HTTPStatus()
		code = appErr.Code
	}
	c.JSON(status, gin.H{
		"error":   string(code),
		"message": err.Error(),
	})
}

// splitSymbols parses a comma separated query value.
func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	storage := "unavailable"
	if s.deps.Storage != nil {
		storage = "ok"
		if err := s.deps.Storage.Ping(ctx); err != nil {
			storage = "error"
		}
	}

	resp := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
		"services": gin.H{
			"storage": storage,
		},
	}
	if s.deps.Cache != nil {
		resp["cache_entries"] = s.deps.Cache.Len()
	}
	if s.deps.Sync != nil {
		resp["sync"] = gin.H{
			"configured": s.deps.Sync.Configured(),
			"running":    s.deps.Sync.Running(),
			"tick":       s.deps.Sync.Tick(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleJobs(c *gin.Context) {
	if s.deps.Jobs == nil {
		unavailable(c, "Job runner not available")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": s.deps.Jobs.ListTasks()})
}

func (s *Server) handleProviderHealth(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{"providers": s.deps.Market.CheckProviderHealth(ctx)})
}

func (s *Server) handleRateLimits(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": s.deps.Market.GetRateLimitStatus()})
}

func (s *Server) handleSync(c *gin.Context) {
	job := c.Param("job")
	if !syncJobs[job] {
		badRequest(c, "unknown sync job "+job)
		return
	}
	if s.deps.Sync == nil || !s.deps.Sync.Configured() {
		writeError(c, apperrors.Unconfigured("primary"))
		return
	}

	start := time.Now()
	n, err := s.deps.Sync.RunJob(c.Request.Context(), job)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":         job,
		"count":       n,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) marketSymbols(c *gin.Context) ([]string, bool) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return nil, false
	}
	symbols := splitSymbols(c.Query("symbols"))
	if len(symbols) == 0 {
		badRequest(c, "symbols is required")
		return nil, false
	}
	if len(symbols) > maxSymbols {
		badRequest(c, "too many symbols")
		return nil, false
	}
	return symbols, true
}

func (s *Server) handlePrices(c *gin.Context) {
	symbols, ok := s.marketSymbols(c)
	if !ok {
		return
	}
	vs := strings.ToLower(c.DefaultQuery("vs", "usd"))

	prices := s.deps.Market.GetAggregatedPrices(c.Request.Context(), symbols, vs)
	c.JSON(http.StatusOK, gin.H{
		"vs_currency": vs,
		"prices":      prices,
		"count":       len(prices),
	})
}

func (s *Server) handleTickers(c *gin.Context) {
	symbols, ok := s.marketSymbols(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbols": symbols,
		"tickers": s.deps.Market.GetTickers(c.Request.Context(), symbols),
	})
}

func (s *Server) handleTradingData(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return
	}
	c.JSON(http.StatusOK, s.deps.Market.GetTradingData(c.Request.Context(), c.Param("symbol")))
}

func (s *Server) handleAnalysis(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return
	}
	c.JSON(http.StatusOK, s.deps.Market.GetMarketAnalysis(c.Request.Context(), c.Param("symbol")))
}

func (s *Server) handleWallet(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return
	}
	wallet, err := s.deps.Market.GetWalletInfo(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (s *Server) handleCoinInfo(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c, "Market service not available")
		return
	}
	coins, err := s.deps.Market.GetDepositWithdrawInfo(c.Request.Context(), strings.ToUpper(c.Param("coin")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins})
}
