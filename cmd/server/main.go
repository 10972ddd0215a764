package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/epikoding/giftpool/internal/cache"
	"github.com/epikoding/giftpool/internal/config"
	"github.com/epikoding/giftpool/internal/gift"
	"github.com/epikoding/giftpool/internal/handler"
	"github.com/epikoding/giftpool/internal/middleware"
	"github.com/epikoding/giftpool/internal/ratelimit"
	"github.com/epikoding/giftpool/internal/scheduler"
	"github.com/epikoding/giftpool/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defer logger.Init("giftpool", true, false, io.Discard).Close()

	cfg := config.Load()

	policy, err := gift.ParsePolicy(cfg.CompletionPolicy)
	if err != nil {
		logger.Fatalf("Invalid COMPLETION_POLICY: %v", err)
	}

	// Initialize storage
	st, err := store.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StorageBackend, err)
	}
	defer st.Close()

	opts := gift.Options{
		Policy:    policy,
		FoldNames: cfg.NameMatching == config.NameMatchingFold,
	}

	// Initialize Redis (fail-open: no view cache, no rate limiting)
	var limiter *ratelimit.Limiter
	redisClient, err := cache.Connect(cfg.RedisURL)
	if err != nil {
		logger.Warningf("Failed to connect to Redis, continuing without cache and rate limits: %v", err)
	} else {
		defer redisClient.Close()
		opts.Cache = cache.NewRedisCache(redisClient, cfg.SessionCacheTTL)
		limiter = ratelimit.NewLimiter(ratelimit.NewRedisCounter(redisClient),
			ratelimit.DefaultLimits(cfg.RateLimitCreate, cfg.RateLimitJoin))
	}

	service := gift.NewService(st, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background reconcile sweeps
	var reconciler *scheduler.ReconcileScheduler
	if cfg.ReconcileEnabled {
		reconciler = scheduler.NewReconcileScheduler(service, cfg.ReconcileInterval)
		go reconciler.Start(ctx)
		defer reconciler.Stop()
	}

	// Setup router
	r := gin.Default()
	r.Use(middleware.RequestID(), middleware.MetricsMiddleware())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Organizer-Secret, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": cfg.StorageBackend})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Scheduler status
	r.GET("/scheduler/status", func(c *gin.Context) {
		if reconciler != nil {
			c.JSON(http.StatusOK, reconciler.GetStatus())
		} else {
			c.JSON(http.StatusOK, gin.H{"enabled": false, "message": "Reconcile scheduler is disabled"})
		}
	})

	handler.RegisterRoutes(r, service, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("API server starting on port %s (storage=%s, policy=%s)", cfg.Port, cfg.StorageBackend, policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}
