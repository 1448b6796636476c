package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seetohshaokang/HabitEase/internal/api/handlers"
	"github.com/seetohshaokang/HabitEase/internal/api/middleware"
	"github.com/seetohshaokang/HabitEase/internal/api/routes"
	"github.com/seetohshaokang/HabitEase/internal/domain/events"
	"github.com/seetohshaokang/HabitEase/internal/domain/habits"
	"github.com/seetohshaokang/HabitEase/internal/infrastructure/cache"
	"github.com/seetohshaokang/HabitEase/internal/infrastructure/persistence/postgres/connection"
	"github.com/seetohshaokang/HabitEase/internal/infrastructure/persistence/postgres/migrations"
	"github.com/seetohshaokang/HabitEase/internal/infrastructure/scheduler"
	"github.com/seetohshaokang/HabitEase/pkg/config"
	"github.com/seetohshaokang/HabitEase/pkg/logger"
	"github.com/seetohshaokang/HabitEase/pkg/security/auth"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware logs all incoming HTTP requests
func RequestLoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("Request completed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", path),
			zap.String("method", method),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	corsCfg := cors.Config{
		AllowMethods: cfg.AllowedMethods,
		AllowHeaders: append(cfg.AllowedHeaders,
			"Accept-Encoding",
			"Content-Type",
			"Authorization",
			middleware.RequestIDHeader,
		),
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Encoding",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"X-Cache",
			middleware.RequestIDHeader,
		},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
			return corsCfg
		}
	}
	corsCfg.AllowOrigins = cfg.AllowedOrigins
	return corsCfg
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	log := logger.NewLogger()
	defer func() { _ = log.Sync() }()

	log.Info("Configuration loaded successfully", zap.String("mode", cfg.Server.Mode))

	loc, err := cfg.Stats.Location()
	if err != nil {
		log.Fatal("Invalid statistics time zone", zap.Error(err))
	}
	calendar := habits.NewCalendar(loc)
	log.Info("Day boundaries resolved", zap.String("timezone", loc.String()))

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(RequestLoggerMiddleware(log))
	router.Use(middleware.NewMetricsMiddleware().CollectMetrics())
	router.Use(cors.New(corsConfig(cfg.CORS)))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Connect to database
	db, err := connection.NewDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.AutoMigrate(db, log.Logger); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the statistics cache, response cache, event channel and
	// rate limiter. Without it the API still serves, uncached and unlimited.
	var (
		habitCache    habits.Cache
		responseCache middleware.ResponseCache
		cacheHealth   routes.CacheHealth
		rateLimiter   auth.RateLimiter
	)
	redisClient, err := cache.NewRedisClient(cache.NewConfigFromEnv(cfg))
	if err != nil {
		log.Warn("Redis unavailable, running without cache", zap.Error(err))
	} else {
		defer redisClient.Close()
		cacheHealth = redisClient
		rateLimiter = auth.NewRateLimiterFromConfig(redisClient.GetClient(), cfg.Auth.RateLimit)
		if cfg.Cache.Enabled {
			habitCache = redisClient
			responseCache = redisClient
		}

		// Cache entries can also be dropped by an explicit cache_invalidate
		// event from another instance or an operator.
		go func() {
			err := redisClient.SubscribeToHabitEvents(ctx, func(event *events.HabitEvent) error {
				log.Debug("Habit event received",
					zap.String("type", event.EventType),
					zap.String("user_id", event.UserID.String()))
				if event.EventType != events.HabitEventCacheInvalidate {
					return nil
				}
				if err := redisClient.InvalidateUserCache(ctx, event.UserID); err != nil {
					log.Error("Failed to invalidate user cache", zap.Error(err))
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Habit event subscription stopped", zap.Error(err))
			}
		}()
	}

	habitsRepo := habits.NewRepository(db)
	habitsService := habits.NewService(habitsRepo, habitCache, calendar, log.Logger,
		habits.WithCacheTTL(cfg.Cache.TTL))

	if cfg.Scheduler.Enabled {
		streakScheduler := scheduler.NewScheduler(habitsService, calendar, log)
		streakScheduler.Start(ctx)
		defer streakScheduler.Stop()
		log.Info("Streak reconciliation scheduler started")
	}

	jwtService := auth.NewJWTService(cfg)
	cacheMiddleware := middleware.NewCacheMiddleware(responseCache, "habits", cfg.Cache.TTL)

	routes.SetupHealthRoutes(router, db, cacheHealth)

	authRoutes := routes.NewAuthRoutes(handlers.NewAuthHandler(jwtService), rateLimiter)
	authRoutes.RegisterRoutes(router)
	log.Info("Registered auth routes at /api/auth")

	if rateLimiter != nil {
		router.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	habitsRoutes := routes.NewHabitsRoutes(handlers.NewHabitsHandler(habitsService), cfg.Auth.JWTSecret)
	habitsRoutes.RegisterRoutes(router, cacheMiddleware)
	log.Info("Registered habits routes at /api/habits")

	for _, route := range router.Routes() {
		log.Debug("Route registered",
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info(fmt.Sprintf("Server starting on port %d", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	log.Info("Server exited properly")
}
