// Package api provides the REST management API for CairnDNS.
// It exposes endpoints for health checks, statistics, cache administration,
// and graceful shutdown via a Gin-based HTTP server.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cairndns/cairndns/internal/api/handlers"
	"github.com/cairndns/cairndns/internal/api/middleware"
	"github.com/cairndns/cairndns/internal/config"
	"github.com/gin-gonic/gin"
)

// Server is the management REST API server.
//
// It listens on its own TCP port, separate from the DNS sockets, so admin
// traffic never competes with resolver load and the DNS path stays free of
// HTTP machinery.
//
// Security note: do not expose the API to untrusted networks without authentication.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the API server around h. A nil h gets a fresh Handler; callers
// normally supply one so runtime components (cache, stats, callbacks) can be
// attached before or after construction.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handler) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}
	if h == nil {
		h = handlers.New(cfg, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	RegisterRoutes(engine, h, cfg)
	MountStatusPage(engine, logger)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
