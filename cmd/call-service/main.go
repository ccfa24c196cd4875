package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Loonyc-c/flint-sub001/internal/config"
	wsHandler "github.com/Loonyc-c/flint-sub001/internal/handler/ws"
	"github.com/Loonyc-c/flint-sub001/internal/hub"
	"github.com/Loonyc-c/flint-sub001/internal/middleware"
	"github.com/Loonyc-c/flint-sub001/internal/repository/cockroach"
	redisRepo "github.com/Loonyc-c/flint-sub001/internal/repository/redis"
	"github.com/Loonyc-c/flint-sub001/internal/service/busy"
	"github.com/Loonyc-c/flint-sub001/internal/service/icebreaker"
	"github.com/Loonyc-c/flint-sub001/internal/service/livequeue"
	"github.com/Loonyc-c/flint-sub001/internal/service/matchmaking"
	"github.com/Loonyc-c/flint-sub001/internal/service/stagedcall"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/database"
	"github.com/Loonyc-c/flint-sub001/pkg/jwt"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
	"github.com/Loonyc-c/flint-sub001/pkg/metrics"
)

func main() {
	// Load .env for local development; in containers everything comes from
	// the environment
	_ = godotenv.Load()

	cfg := config.Load()

	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. JWT manager
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewManager(cfg.JWTSecret, constants.AccessTokenExpiry, constants.RefreshTokenExpiry)

	// 2. CockroachDB with exponential backoff retry
	db := connectDB(ctx, cfg.DB)
	defer db.Close()

	matchRepo := cockroach.NewMatchRepository(db.Pool)
	callRepo := cockroach.NewStagedCallRepository(db.Pool)
	promptRepo := cockroach.NewStagePromptRepository(db.Pool)
	userRepo := cockroach.NewUserRepository(db.Pool)
	actionRepo := cockroach.NewCallActionRepository(db.Pool)

	// 3. Redis with degraded mode support
	redisDB, err := database.NewRedisDB(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to create Redis client: %v", err)
	}
	defer redisDB.Close()

	if err := redisDB.HealthCheck(ctx); err != nil {
		log.Printf("Warning: Redis unreachable, running degraded: %v", err)
	} else {
		log.Println("✅ Connected to Redis")
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	busyMirror := redisRepo.NewBusyStateRepository(redisDB)

	// 4. Metrics, hub, services
	appMetrics := metrics.NewMetrics("call-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	connHub := hub.NewHub(appMetrics)
	busyTracker := busy.NewTracker(connHub, busyMirror)

	queue := livequeue.NewQueue(appMetrics)
	matchmakingSvc := matchmaking.NewService(queue, matchRepo, actionRepo, userRepo, connHub, busyTracker)

	coordinator := stagedcall.NewCoordinator(
		stagedcall.DefaultConfig(),
		matchRepo,
		callRepo,
		promptRepo,
		userRepo,
		connHub,
		busyTracker,
		icebreaker.NewFromEnv(),
		appMetrics,
	)

	// Close call records orphaned by a previous process before serving
	if err := coordinator.Recover(ctx); err != nil {
		log.Printf("Warning: startup recovery sweep failed: %v", err)
	}

	wsHandler.NewRouter(connHub, matchmakingSvc, coordinator, busyTracker, busyMirror, appMetrics)

	// 5. Gin router
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"service":     "call-service",
			"connections": connHub.ConnectionCount(),
			"redis":       !redisDB.IsDegraded(),
			"time":        time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	v1 := router.Group("/v1/realtime")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.GET("/ws", connHub.ServeWS)
	}

	// 6. Serve with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Call Service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	// End live sessions first so clients get a shutdown event before the
	// listener closes
	coordinator.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Call Service stopped")
}

// connectDB connects to CockroachDB with exponential backoff retry. The call
// service cannot run without its store, so exhausted retries are fatal.
func connectDB(ctx context.Context, cfg *database.CockroachConfig) *database.CockroachDB {
	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := database.NewCockroachDB(ctx, cfg)
	if err == nil {
		log.Println("✅ Connected to CockroachDB")
		return db
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		log.Printf("⚠️  CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
		time.Sleep(delay)

		db, err = database.NewCockroachDB(ctx, cfg)
		if err == nil {
			log.Printf("✅ Connected to CockroachDB (attempt %d/%d)", attempt, maxRetries)
			return db
		}
	}

	log.Fatalf("Failed to connect to CockroachDB after %d attempts: %v", maxRetries, err)
	return nil
}
