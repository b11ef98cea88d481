// Package handlers implements the REST API endpoint handlers for CairnDNS.
//
// REST API Endpoints:
//
// System Health:
//   - GET /api/v1/health - Health check status
//   - GET /api/v1/stats - Server statistics (uptime, memory, DNS and cache metrics)
//
// Cache Administration:
//   - GET /api/v1/cache - Cache summary (entry count, hit/miss counters)
//   - DELETE /api/v1/cache - Flush all cached records
//   - POST /api/v1/cache/save - Checkpoint the cache to the persistence backend
//
// Lifecycle:
//   - POST /api/v1/shutdown - Begin a graceful server shutdown
//
// Authentication:
//
// All endpoints except /health support optional API key authentication via
// the X-API-Key header. If configured, the API key is required for all
// endpoints except /health.
//
// Security Considerations:
//
// - API is bound to localhost:8080 by default (not exposed to network)
// - Enable firewall rules to restrict access from trusted networks only
// - Use strong API keys (minimum 32 characters recommended)
// - Rotate API keys regularly
// - Log all API access in production
//
// @title CairnDNS Management API
// @version 1.0
// @description REST API for inspecting and administering the CairnDNS caching resolver.
//
// @contact.name CairnDNS Support
// @contact.url https://github.com/cairndns/cairndns
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cairndns/cairndns/internal/cache"
	"github.com/cairndns/cairndns/internal/config"
)

// DNSStatsSnapshot contains a point-in-time snapshot of DNS statistics.
type DNSStatsSnapshot struct {
	QueriesTotal   uint64
	QueriesUDP     uint64
	QueriesTCP     uint64
	QueriesDropped uint64
	ResponsesNX    uint64
	ResponsesErr   uint64
	AvgLatencyMs   float64
}

// DNSStatsFunc is a function that returns DNS statistics.
type DNSStatsFunc func() DNSStatsSnapshot

// SaveFunc checkpoints the cache to the persistence backend.
type SaveFunc func(ctx context.Context) error

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	// Runtime components (set after server starts)
	version      string
	store        *cache.Store
	dnsStatsFunc DNSStatsFunc // Function to get DNS query statistics
	saveFunc     SaveFunc     // Callback to checkpoint the cache on demand
	shutdownFunc func()       // Callback to begin graceful shutdown
	mu           sync.RWMutex
}

// New creates a new Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetVersion records the build version reported by /stats.
func (h *Handler) SetVersion(v string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = v
}

// Version retrieves the build version.
func (h *Handler) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// SetStore sets the resolver cache for runtime access.
func (h *Handler) SetStore(s *cache.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = s
}

// GetStore retrieves the resolver cache with safe read access.
func (h *Handler) GetStore() *cache.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store
}

// SetDNSStatsFunc sets the function to retrieve DNS statistics.
func (h *Handler) SetDNSStatsFunc(fn DNSStatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dnsStatsFunc = fn
}

// GetDNSStatsFunc retrieves the DNS statistics function.
func (h *Handler) GetDNSStatsFunc() DNSStatsFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dnsStatsFunc
}

// SetSaveFunc sets the callback used by POST /cache/save to flush the
// cache to the persistence backend.
func (h *Handler) SetSaveFunc(fn SaveFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveFunc = fn
}

// GetSaveFunc retrieves the cache checkpoint callback.
func (h *Handler) GetSaveFunc() SaveFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.saveFunc
}

// SetShutdownFunc sets the callback used by POST /shutdown to stop the
// server. The callback must not block.
func (h *Handler) SetShutdownFunc(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFunc = fn
}

// GetShutdownFunc retrieves the shutdown callback.
func (h *Handler) GetShutdownFunc() func() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shutdownFunc
}
