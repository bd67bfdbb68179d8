package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/openfolio/billing/config"
	"github.com/openfolio/billing/internal/api"
	"github.com/openfolio/billing/internal/billing"
	"github.com/openfolio/billing/internal/logger"
	"github.com/openfolio/billing/internal/metrics"
	middlewares "github.com/openfolio/billing/internal/middleware"
	"github.com/openfolio/billing/internal/pricecache"
	"github.com/openfolio/billing/internal/ratelimit"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting openfolio billing service",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	// Payment gateway; the service runs without it and reports the
	// configuration error on every payment endpoint.
	var gateway billing.Gateway
	if cfg.Stripe.Configured() {
		gw, err := billing.NewStripeGateway(cfg.Stripe)
		if err != nil {
			logger.Fatal("Failed to initialize payment gateway", "error", err)
		}
		gateway = gw
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payment endpoints will return configuration errors")
	}

	// Optional Redis: price cache and shared rate limiting
	var priceCache *pricecache.Cache
	if cfg.Redis.URL != "" {
		priceCache, err = pricecache.New(cfg.Redis.URL, cfg.Redis.PriceCacheTTL)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer priceCache.Close()
		logger.Info("Price cache enabled", "ttl", cfg.Redis.PriceCacheTTL)
	}

	svc := billing.NewService(cfg.Stripe, gateway, priceCache)

	// Setup HTTP server
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Logging)
	r.Use(middlewares.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	r.Use(middlewares.Security)
	r.Use(middlewares.CORS(cfg.CORS))

	if cfg.RateLimit.Enabled {
		var limiter ratelimit.Limiter
		if cfg.Redis.URL != "" {
			limiter, err = ratelimit.NewRedisLimiter(cfg.Redis.URL, cfg.RateLimit.RequestsPerMinute)
			if err != nil {
				logger.Fatal("Failed to initialize rate limiter", "error", err)
			}
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerMinute)
		}
		defer limiter.Close()
		r.Use(middlewares.RateLimit(limiter))
		logger.Info("Rate limiting enabled", "rpm", cfg.RateLimit.RequestsPerMinute)
	}

	// Initialize API handlers
	apiHandler := api.NewHandler(cfg, svc, Version, BuildTime, GitCommit)
	apiHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		g.Go(func() error {
			logger.Info("Starting metrics server", "address", metricsSrv.Addr, "path", cfg.Metrics.Path)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server forced to shutdown", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error", "error", err)
	}
	logger.Info("Server exited")
}
