package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketcache/internal/cache"
)

// CacheHandler handles cache-related API requests
type CacheHandler struct {
	store         *cache.Store
	defaultOldest int
}

// handleCacheStats returns cache statistics and the oldest live entries
func (h *CacheHandler) handleCacheStats(c *gin.Context) {
	if h.store == nil {
		unavailable(c, "Cache store not available")
		return
	}

	oldest := h.defaultOldest
	if raw := c.Query("oldest"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "INVALID_INPUT",
				"message": "oldest must be a non-negative integer",
			})
			return
		}
		oldest = n
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"stats":     h.store.Stats(oldest),
	})
}

// handleCacheClear drops every entry
func (h *CacheHandler) handleCacheClear(c *gin.Context) {
	if h.store == nil {
		unavailable(c, "Cache store not available")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cleared": h.store.Clear(),
	})
}

// handleCacheDelete drops one entry by key
func (h *CacheHandler) handleCacheDelete(c *gin.Context) {
	if h.store == nil {
		unavailable(c, "Cache store not available")
		return
	}

	key := c.Param("key")
	if !h.store.Delete(key) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_FOUND",
			"message": "no cache entry for key",
			"key":     key,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"key":     key,
	})
}
