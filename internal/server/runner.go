package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cairndns/cairndns/internal/api"
	"github.com/cairndns/cairndns/internal/api/handlers"
	"github.com/cairndns/cairndns/internal/cache"
	"github.com/cairndns/cairndns/internal/config"
	"github.com/cairndns/cairndns/internal/persist"
	"github.com/cairndns/cairndns/internal/resolvers"
	"github.com/cairndns/cairndns/internal/upstream"
	"github.com/go-redis/redis/v8"
)

// Runner orchestrates the DNS server startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger

	// Version is reported by the management API and the startup log.
	Version string
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts the DNS server with the given configuration.
//
// Server lifecycle:
//  1. Configure runtime (GOMAXPROCS based on workers setting)
//  2. Build the cache, restoring persisted entries if a backend is configured
//  3. Build the caching forwarding resolver over the pooled upstream client
//  4. Start UDP and optionally TCP servers, the cache sweeper and
//     checkpointer, and the management API
//  5. Wait for shutdown signal (SIGINT/SIGTERM)
//  6. Gracefully stop servers with timeout and take a final checkpoint
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the DNS server and blocks until ctx is canceled or a server error occurs.
//
// This enables callers (tests, supervisors) to drive the same shutdown path
// a signal would. The management API's shutdown endpoint cancels the derived
// context, so all three triggers converge on one code path.
//
// Goroutine lifecycle: spawns the UDP server, optionally the TCP server and
// the API listener, plus the cache sweeper and checkpointer. The DNS servers
// exit when the context is cancelled; the sweeper and checkpointer are
// stopped after them so a final checkpoint can still observe the full cache.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Configure GOMAXPROCS based on worker settings
	desiredProcs := r.configureRuntime(cfg)

	// Calculate concurrency limits
	maxConc := r.calculateMaxConcurrency(cfg, desiredProcs)
	upPool := r.calculateUpstreamPoolSize(cfg, maxConc)

	store := cache.New(cache.Options{MaxEntries: cfg.Cache.MaxEntries})

	adapter := r.openPersistence(cfg)
	if adapter != nil {
		r.restoreCache(ctx, store, adapter)
	}

	client := upstream.New(upstream.Options{
		Servers:            cfg.Upstream.Servers,
		PoolSize:           upPool,
		UDPTimeout:         cfg.Upstream.UDPTimeout,
		TCPTimeout:         cfg.Upstream.TCPTimeout,
		MaxRetries:         cfg.Upstream.MaxRetries,
		DisableTCPFallback: !cfg.Upstream.TCPFallback,
		Logger:             r.logger,
	})
	defer client.Close()

	resolver, err := resolvers.NewCachedForwarding(resolvers.Options{
		Store:  store,
		Client: client,
		Logger: r.logger,
		MinTTL: cfg.Cache.MinTTL,
		MaxTTL: cfg.Cache.MaxTTL,
	})
	if err != nil {
		return err
	}

	// Create server components
	stats := NewDNSStats()
	h := &QueryHandler{Logger: r.logger, Resolver: resolver, Stats: stats, Timeout: cfg.Server.QueryTimeout}

	var limiter *RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = NewRateLimiter(RateLimitSettings{
			CleanupSeconds: cfg.RateLimit.CleanupSeconds,
			MaxClients:     cfg.RateLimit.MaxClients,
			GlobalQPS:      cfg.RateLimit.GlobalQPS,
			GlobalBurst:    cfg.RateLimit.GlobalBurst,
			ClientQPS:      cfg.RateLimit.ClientQPS,
			ClientBurst:    cfg.RateLimit.ClientBurst,
		})
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	r.logStartup(cfg, addr, maxConc, upPool)

	// Background maintenance runs on its own context so it can outlive the
	// DNS sockets during shutdown, long enough for the final checkpoint.
	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()
	var bg sync.WaitGroup

	sweeper := cache.NewSweeper(store, cfg.Cache.SweepInterval, r.logger)
	bg.Go(func() { sweeper.Run(bgCtx) })

	var checkpointer *persist.Checkpointer
	if adapter != nil {
		checkpointer = persist.NewCheckpointer(store, adapter, cfg.Persistence.CheckpointInterval, r.logger)
		bg.Go(func() { checkpointer.Run(bgCtx) })
	}

	// Start servers
	udp := &UDPServer{Logger: r.logger, Handler: h, Limiter: limiter, MaxConcurrency: maxConc}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{Logger: r.logger, Handler: h}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	apiServer := r.startAPI(cfg, store, stats, checkpointer, cancelRun)

	// Wait for shutdown or error
	var runErr error
	select {
	case <-ctx.Done():
		// shutdown requested via signal or the API
	case err := <-errCh:
		if err != nil {
			cancelRun()
			runErr = err
		}
	}

	// Graceful shutdown
	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}

	cancelBG()
	bg.Wait()

	if checkpointer != nil {
		saveCtx, cancelSave := context.WithTimeout(context.Background(), 10*time.Second)
		if err := checkpointer.Checkpoint(saveCtx); err != nil && r.logger != nil {
			r.logger.Error("final cache checkpoint failed", "err", err)
		}
		cancelSave()
	}
	if adapter != nil {
		if err := adapter.Close(); err != nil && r.logger != nil {
			r.logger.Error("closing persistence backend failed", "err", err)
		}
	}

	if apiServer != nil {
		shutCtx, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiServer.Shutdown(shutCtx)
		cancelShut()
	}

	return runErr
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	if r.logger != nil {
		r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)
	}
	return actual
}

// calculateMaxConcurrency determines the maximum concurrent request handlers.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config, procs int) int {
	maxConc := cfg.Server.MaxConcurrency
	if maxConc <= 0 {
		c := procs
		if c <= 0 {
			c = 1
		}
		maxConc = max(min(c*256, 2048), 1)
	}
	return maxConc
}

// calculateUpstreamPoolSize determines the UDP connection pool size for upstream queries.
func (r *Runner) calculateUpstreamPoolSize(cfg *config.Config, maxConc int) int {
	upPool := cfg.Upstream.PoolSize
	if upPool <= 0 {
		upPool = min(max(maxConc, 64), 1024)
	}
	return upPool
}

// openPersistence builds the configured cache persistence adapter. Errors
// are logged and reported as nil so a broken backend degrades to a
// memory-only cache instead of blocking startup.
func (r *Runner) openPersistence(cfg *config.Config) persist.Adapter {
	if !cfg.Persistence.Enabled {
		return nil
	}

	switch cfg.Persistence.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Persistence.RedisAddr,
			Password: cfg.Persistence.RedisPassword,
			DB:       cfg.Persistence.RedisDB,
		})
		adapter, err := persist.NewRedis(persist.RedisOptions{Client: client, Closer: client})
		if err != nil {
			if r.logger != nil {
				r.logger.Error("redis persistence unavailable", "addr", cfg.Persistence.RedisAddr, "err", err)
			}
			_ = client.Close()
			return nil
		}
		if r.logger != nil {
			r.logger.Info("cache persistence enabled", "backend", "redis", "addr", cfg.Persistence.RedisAddr)
		}
		return adapter
	default:
		// Backend is validated by config.Load; anything else here is sqlite.
		adapter, err := persist.NewSQLite(cfg.Persistence.Path)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("sqlite persistence unavailable", "path", cfg.Persistence.Path, "err", err)
			}
			return nil
		}
		if r.logger != nil {
			r.logger.Info("cache persistence enabled", "backend", "sqlite", "path", cfg.Persistence.Path)
		}
		return adapter
	}
}

// restoreCache loads the persisted snapshot into the store. A failed or
// partial load starts the server with whatever could be read.
func (r *Runner) restoreCache(ctx context.Context, store *cache.Store, adapter persist.Adapter) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()
	entries, err := adapter.Load(loadCtx, now)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("cache restore failed, starting empty", "err", err)
		}
		return
	}

	restored := store.Restore(entries, now)
	if r.logger != nil {
		r.logger.Info("cache restored", "entries", restored, "expired", len(entries)-restored)
	}
}

// startAPI wires and starts the management API when enabled. A listener
// that fails to bind logs an error and leaves DNS service running.
func (r *Runner) startAPI(cfg *config.Config, store *cache.Store, stats *DNSStats, cp *persist.Checkpointer, shutdown func()) *api.Server {
	if !cfg.API.Enabled {
		return nil
	}

	h := handlers.New(cfg, r.logger)
	h.SetVersion(r.Version)
	h.SetStore(store)
	h.SetDNSStatsFunc(func() handlers.DNSStatsSnapshot {
		s := stats.Snapshot()
		return handlers.DNSStatsSnapshot{
			QueriesTotal:   s.QueriesTotal,
			QueriesUDP:     s.QueriesUDP,
			QueriesTCP:     s.QueriesTCP,
			QueriesDropped: s.QueriesDropped,
			ResponsesNX:    s.ResponsesNX,
			ResponsesErr:   s.ResponsesErr,
			AvgLatencyMs:   s.AvgLatencyMs,
		}
	})
	if cp != nil {
		h.SetSaveFunc(cp.Checkpoint)
	}
	h.SetShutdownFunc(shutdown)

	srv := api.New(cfg, r.logger, h)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if r.logger != nil {
				r.logger.Error("api server failed", "addr", srv.Addr(), "err", err)
			}
		}
	}()

	if r.logger != nil {
		r.logger.Info("api listening", "addr", srv.Addr())
	}
	return srv
}

// logStartup logs server configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, addr string, maxConc, upPool int) {
	if r.logger != nil {
		r.logger.Info(
			"dns listening",
			"addr", addr,
			"version", r.Version,
			"udp", true,
			"tcp", cfg.Server.EnableTCP,
			"upstreams", cfg.Upstream.Servers,
			"max_concurrency", maxConc,
			"upstream_pool", upPool,
			"cache_max_entries", cfg.Cache.MaxEntries,
		)
	}
}
