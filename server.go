package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/nlu"
	"github.com/mmdatafocus/feedback_backend/notification"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/mmdatafocus/feedback_backend/qrclaim"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/mmdatafocus/feedback_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// serverDeps are the capabilities the HTTP handlers need.
type serverDeps struct {
	Logger      *logrus.Logger
	Metrics     *observability.PipelineMetrics
	Submitter   *models.ReviewSubmitter
	Processor   *workflow.Processor
	RateLimiter *RateLimiter
	OpsToken    string
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddress,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func newRouter(deps serverDeps) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe and scrapes.
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		// Until the database is connected, app endpoints are unavailable.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Actor-Id", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "X-Correlation-Id")
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	if deps.Logger != nil {
		r.Use(customErrorLogger(deps.Logger))
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	submit := []gin.HandlerFunc{}
	if deps.RateLimiter != nil {
		submit = append(submit, deps.RateLimiter.RateLimitMiddleware)
	}
	submit = append(submit, submitReviewHandler(deps))
	r.POST("/stations/:stationId/reviews", submit...)
	r.PUT("/stations/:stationId/alert-configuration", alertConfigurationHandler(deps))

	r.GET("/claims", listClaimsHandler(deps))
	r.GET("/claims/:id", getClaimHandler(deps))
	r.POST("/claims/:id/claim", claimRewardHandler(deps))

	r.POST("/alerts/:id/acknowledge", alertTransitionHandler(deps, models.AlertStatusAcknowledged))
	r.POST("/alerts/:id/resolve", alertTransitionHandler(deps, models.AlertStatusResolved))
	r.POST("/alerts/:id/escalate", alertTransitionHandler(deps, models.AlertStatusEscalated))

	// Pub/Sub push delivery, one subscription per channel.
	r.POST("/pubsub/:channel", pubSubPushHandler(deps))
	// Ops tooling: replay tasks that were marked DEAD.
	r.POST("/internal/ops/tasks/replay", taskReplayHandler(deps))

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	metrics := observability.Default()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	analyzerConfig := nlu.ConfigFromEnv()
	analyzerConfig.Metrics = metrics
	processor := workflow.NewProcessor(nil, nlu.New(analyzerConfig), notification.NewRouterFromEnv(logger, metrics), logger, metrics)
	matcher := models.NewRewardMatcher(qrclaim.NewEncoder(logger), logger)

	deps := serverDeps{
		Logger:    logger,
		Metrics:   metrics,
		Submitter: models.NewReviewSubmitter(matcher, logger),
		Processor: processor,
		OpsToken:  strings.TrimSpace(os.Getenv("OPS_TOKEN")),
	}

	// Optional rate limiting on review submission.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=30
	if config.EnvBool("RATE_LIMIT_ENABLED", false) {
		redisAddr := os.Getenv("REDIS_ADDRESS")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		limit := int64(config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 30))
		window := time.Duration(config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		deps.RateLimiter = NewRateLimiter(getRedisClient(redisAddr), limit, window)
	}

	// Start listening immediately; until DB is ready, app endpoints return 503.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(deps),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	// Redis backs the contact lock and the manager cache; both degrade to DB-only without it.
	if config.EnvBool("REDIS_ENABLED", true) {
		config.ConnectRedisWithRetry()
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !config.EnvBool("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if config.DBDriver() == config.DriverMySQL {
		for attempt := 1; ; attempt++ {
			err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
			if err == nil {
				break
			}
			sleep := time.Second * time.Duration(1<<min(attempt, 5))
			if sleep > 30*time.Second {
				sleep = 30 * time.Second
			}
			logger.WithFields(logrus.Fields{
				"field":   "database",
				"attempt": attempt,
			}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
			time.Sleep(sleep)
		}
	}

	// Background delivery: the outbox dispatcher publishes after commit, or the direct
	// processor runs tasks in-process when there is no broker.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if config.EnvBool("OUTBOX_DISPATCHER_ENABLED", true) {
		startDelivery(workerCtx, logger, metrics, processor)
	}

	logger.WithFields(logrus.Fields{
		"field":         "http",
		"port":          port,
		"queue_backend": config.QueueBackend(),
	}).Info("feedback api ready")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.CloseNats()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func startDelivery(ctx context.Context, logger *logrus.Logger, metrics *observability.PipelineMetrics, processor *workflow.Processor) {
	db := config.GetDB()
	backend := config.QueueBackend()
	if backend == config.QueueBackendDirect {
		go workflow.NewDirectProcessor(db, logger, processor).Run(ctx)
		return
	}
	publisher, err := workflow.NewPublisher(backend)
	if err != nil {
		config.LogError(logger, "server.go", "startDelivery", "Selecting publisher", backend, err)
		return
	}
	dispatcher := workflow.NewOutboxDispatcher(db, logger, publisher)
	dispatcher.Metrics = metrics
	go dispatcher.Run(ctx)
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware is a fixed window counter per client IP. Redis errors let the request through.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.FullPath() + ":" + c.ClientIP()
	ctx := c.Request.Context()

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		_ = c.Error(fmt.Errorf("rate limiter: %w", err))
		c.Next()
		return
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			_ = c.Error(fmt.Errorf("rate limiter expire: %w", err))
		}
	}

	if count > rl.limit {
		c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
