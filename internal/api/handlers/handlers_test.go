// Package handlers_test provides behavior tests for the API handlers package.
package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cairndns/cairndns/internal/api/handlers"
	"github.com/cairndns/cairndns/internal/api/models"
	"github.com/cairndns/cairndns/internal/cache"
	"github.com/cairndns/cairndns/internal/config"
	"github.com/cairndns/cairndns/internal/dns"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func createTestHandler(_ *testing.T) *handlers.Handler {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 5353,
		},
		Upstream: config.UpstreamConfig{
			Servers: []string{"8.8.8.8"},
		},
	}
	return handlers.New(cfg, nil)
}

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/cache", h.CacheInfo)
	api.DELETE("/cache", h.ClearCache)
	api.POST("/cache/save", h.SaveCache)
	api.POST("/shutdown", h.Shutdown)

	return r
}

func performRequest(r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// populatedStore returns a cache holding n distinct A records.
func populatedStore(t *testing.T, n int) *cache.Store {
	t.Helper()
	store := cache.New(cache.Options{})
	for i := range n {
		name := strings.ToLower(string(rune('a'+i))) + ".example.com"
		rec := dns.NewIPRecord(dns.NewRRHeader(name, dns.ClassIN, 300), net.ParseIP("192.0.2.1"))
		key := cache.NewKey(name, uint16(dns.TypeA), uint16(dns.ClassIN))
		require.NoError(t, store.Put(key, []dns.Record{rec}, nil, nil, 5*time.Minute))
	}
	return store
}

// ============================================================================
// Health Endpoint Tests
// ============================================================================

func TestHealth_ReturnsOK(t *testing.T) {
	h := createTestHandler(t)
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

// ============================================================================
// Stats Endpoint Tests
// ============================================================================

func TestStats_ReturnsRuntimeInfo(t *testing.T) {
	h := createTestHandler(t)
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Uptime)
	assert.Greater(t, resp.GoRoutines, 0)
	assert.Greater(t, resp.CPU.NumCPU, 0)
	assert.Greater(t, resp.Memory.HeapAllocMB, 0.0)
}

func TestStats_ReportsVersion(t *testing.T) {
	h := createTestHandler(t)
	h.SetVersion("1.2.3")
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/stats", "")

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestStats_WithDNSStats(t *testing.T) {
	h := createTestHandler(t)
	h.SetDNSStatsFunc(func() handlers.DNSStatsSnapshot {
		return handlers.DNSStatsSnapshot{
			QueriesTotal:   1500,
			QueriesUDP:     1400,
			QueriesTCP:     100,
			QueriesDropped: 7,
			ResponsesNX:    30,
			ResponsesErr:   5,
			AvgLatencyMs:   0.8,
		}
	})
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1500), resp.DNSStats.QueriesTotal)
	assert.Equal(t, uint64(7), resp.DNSStats.QueriesDropped)
	assert.InDelta(t, 0.8, resp.DNSStats.AvgLatencyMs, 0.001)
}

func TestStats_WithCache(t *testing.T) {
	h := createTestHandler(t)
	store := populatedStore(t, 3)
	h.SetStore(store)
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.CacheStats)
	assert.Equal(t, 3, resp.CacheStats.Entries)
	assert.Equal(t, uint64(3), resp.CacheStats.Insertions)
}

func TestStats_CacheOmittedWithoutStore(t *testing.T) {
	h := createTestHandler(t)
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"cache":`)
}

// ============================================================================
// Cache Endpoint Tests
// ============================================================================

func TestCacheInfo_NoStore(t *testing.T) {
	h := createTestHandler(t)
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/cache", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCacheInfo_ReportsCounters(t *testing.T) {
	h := createTestHandler(t)
	store := populatedStore(t, 2)

	// One hit and one miss so the ratio is meaningful.
	_, ok := store.Get(cache.NewKey("a.example.com", uint16(dns.TypeA), uint16(dns.ClassIN)))
	require.True(t, ok)
	_, ok = store.Get(cache.NewKey("missing.example.com", uint16(dns.TypeA), uint16(dns.ClassIN)))
	require.False(t, ok)

	h.SetStore(store)
	r := setupTestRouter(h)

	w := performRequest(r, "GET", "/api/v1/cache", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.CacheStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Entries)
	assert.Equal(t, uint64(1), resp.Hits)
	assert.Equal(t, uint64(1), resp.Misses)
	assert.InDelta(t, 0.5, resp.HitRatio, 0.001)
}

func TestClearCache_RemovesAllEntries(t *testing.T) {
	h := createTestHandler(t)
	store := populatedStore(t, 5)
	h.SetStore(store)
	r := setupTestRouter(h)

	w := performRequest(r, "DELETE", "/api/v1/cache", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.CacheClearResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cleared", resp.Status)
	assert.Equal(t, 5, resp.Removed)
	assert.Equal(t, 0, store.Len())
}

func TestClearCache_NoStore(t *testing.T) {
	h := createTestHandler(t)
	r := setupTestRouter(h)

	w := performRequest(r, "DELETE", "/api/v1/cache", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSaveCache_PersistenceNotEnabled(t *testing.T) {
	h := createTestHandler(t)
	h.SetStore(populatedStore(t, 1))
	// No save func configured
	r := setupTestRouter(h)

	w := performRequest(r, "POST", "/api/v1/cache/save", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSaveCache_Succeeds(t *testing.T) {
	h := createTestHandler(t)
	h.SetStore(populatedStore(t, 4))

	saved := false
	h.SetSaveFunc(func(ctx context.Context) error {
		saved = true
		return nil
	})
	r := setupTestRouter(h)

	w := performRequest(r, "POST", "/api/v1/cache/save", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, saved)

	var resp models.CacheSaveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "saved", resp.Status)
	assert.Equal(t, 4, resp.Entries)
}

func TestSaveCache_ReportsFailure(t *testing.T) {
	h := createTestHandler(t)
	h.SetStore(populatedStore(t, 1))
	h.SetSaveFunc(func(ctx context.Context) error {
		return errors.New("disk full")
	})
	r := setupTestRouter(h)

	w := performRequest(r, "POST", "/api/v1/cache/save", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "disk full")
}

// ============================================================================
// Shutdown Endpoint Tests
// ============================================================================

func TestShutdown_NotAvailable(t *testing.T) {
	h := createTestHandler(t)
	r := setupTestRouter(h)

	w := performRequest(r, "POST", "/api/v1/shutdown", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestShutdown_InvokesCallback(t *testing.T) {
	h := createTestHandler(t)

	called := make(chan struct{})
	h.SetShutdownFunc(func() {
		close(called)
	})
	r := setupTestRouter(h)

	w := performRequest(r, "POST", "/api/v1/shutdown", "")

	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was not invoked")
	}

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "shutting down", resp.Status)
}
