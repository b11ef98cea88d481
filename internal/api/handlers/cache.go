package handlers

import (
	"net/http"
	"time"

	"github.com/cairndns/cairndns/internal/api/models"
	"github.com/cairndns/cairndns/internal/cache"
	"github.com/gin-gonic/gin"
)

func cacheStatsResponse(store *cache.Store) *models.CacheStatsResponse {
	stats := store.Stats()
	resp := &models.CacheStatsResponse{
		Entries:    store.Len(),
		MaxEntries: store.MaxEntries(),
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Insertions: stats.Insertions,
		Evictions:  stats.Evictions,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		resp.HitRatio = float64(stats.Hits) / float64(total)
	}
	return resp
}

// CacheInfo godoc
// @Summary Cache summary
// @Description Returns the cached entry count and hit/miss counters
// @Tags cache
// @Produce json
// @Success 200 {object} models.CacheStatsResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /cache [get]
func (h *Handler) CacheInfo(c *gin.Context) {
	store := h.GetStore()

	if store == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "cache not available"})
		return
	}

	c.JSON(http.StatusOK, cacheStatsResponse(store))
}

// ClearCache godoc
// @Summary Flush the cache
// @Description Removes every cached record; subsequent queries go to the upstream
// @Tags cache
// @Produce json
// @Success 200 {object} models.CacheClearResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /cache [delete]
func (h *Handler) ClearCache(c *gin.Context) {
	store := h.GetStore()

	if store == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "cache not available"})
		return
	}

	removed := store.Clear()

	if h.logger != nil {
		h.logger.Info("cache cleared via api", "removed", removed, "client_ip", c.ClientIP())
	}

	c.JSON(http.StatusOK, models.CacheClearResponse{Status: "cleared", Removed: removed})
}

// SaveCache godoc
// @Summary Checkpoint the cache
// @Description Writes the current cache contents to the persistence backend
// @Tags cache
// @Produce json
// @Success 200 {object} models.CacheSaveResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /cache/save [post]
func (h *Handler) SaveCache(c *gin.Context) {
	store := h.GetStore()
	save := h.GetSaveFunc()

	if store == nil || save == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "persistence not enabled"})
		return
	}

	started := time.Now()
	if err := save(c.Request.Context()); err != nil {
		if h.logger != nil {
			h.logger.Error("cache checkpoint via api failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.CacheSaveResponse{
		Status:     "saved",
		Entries:    store.Len(),
		DurationMs: float64(time.Since(started).Microseconds()) / 1000.0,
	})
}
