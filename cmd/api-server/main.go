package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uniportal/database"
	"uniportal/internal/config"
	"uniportal/internal/fanout"
	"uniportal/internal/microservices/http-api/handler"
	"uniportal/internal/microservices/http-api/middleware"
	"uniportal/internal/microservices/http-api/repository"
	"uniportal/internal/microservices/http-api/service"
	"uniportal/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 5 * time.Minute
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	// Setup structured logging
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		logger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Realtime fan-out: hub for local sockets, Redis for the other instances
	var cache *fanout.RedisDeliveryCache
	if redisClient != nil {
		cache = fanout.NewRedisDeliveryCache(redisClient, cfg.DeliveryCacheSize, cfg.DeliveryCacheTTL)
	}
	hub := websocket.NewHub(cache, logger)
	go hub.Run(ctx)

	broker := fanout.NewRedisBroker(redisClient, cfg.RealtimeChannel, hub, logger)
	go func() {
		if err := broker.Run(ctx); err != nil {
			logger.Error("realtime_bridge_stopped", "error", err)
		}
	}()
	emitter := fanout.NewEmitter(broker, cache, logger)

	notifications := service.NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewUserRepository(db),
		emitter,
		service.WithLogger(logger),
		service.WithSyncLimit(cfg.SyncSnapshotLimit),
		service.WithProtectedSuperAdmin(cfg.ProtectedSuperAdminID),
	)

	limiter := middleware.NewUserRateLimiter(cfg.MutationRateLimit, cfg.MutationRateBurst)
	go sweepLimiter(ctx, limiter, logger)

	router := newRouter(ctx, cfg, db, redisClient, hub, notifications, limiter)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("http_server_starting", "addr", srv.Addr, "env", cfg.GoEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		logger.Error("http_server_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_failed", "error", err)
	}
	logger.Info("server_stopped_gracefully")
}

func newRouter(
	ctx context.Context,
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	hub *websocket.Hub,
	notifications service.NotificationService,
	limiter *middleware.UserRateLimiter,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "database": "ok", "redis": "disabled", "ws_clients": hub.ClientCount()}
		code := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(checkCtx) != nil {
			status["status"], status["database"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(checkCtx).Err(); err != nil {
				status["status"], status["redis"] = "degraded", "unreachable"
			}
		}
		c.JSON(code, status)
	})

	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	api := r.Group("/api", auth)
	handler.NewNotificationHandler(notifications, middleware.RateLimit(limiter)).
		RegisterRoutes(api.Group("/notifications"))

	handler.NewInternalHandler(notifications).
		RegisterRoutes(r.Group("/internal/notifications", auth))

	r.GET("/ws", auth, websocket.WSHandler(ctx, hub))

	return r
}

// connectRedis returns nil when Redis is unreachable; the server then runs
// single-instance without the delivery cache.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis_url_invalid", "error", err)
		return nil
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis_unavailable_running_single_instance", "addr", opts.Addr, "error", err)
		client.Close()
		return nil
	}

	logger.Info("redis_connected", "addr", opts.Addr)
	return client
}

func sweepLimiter(ctx context.Context, limiter *middleware.UserRateLimiter, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := limiter.Sweep(); removed > 0 {
				logger.Debug("rate_limiter_swept", "removed", removed)
			}
		}
	}
}
