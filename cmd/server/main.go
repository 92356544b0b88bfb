package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
	"github.com/storyreel/api/internal/resilience"
	"github.com/storyreel/api/internal/service"
	ws "github.com/storyreel/api/internal/websocket"
	"github.com/storyreel/api/internal/worker"
	"github.com/storyreel/api/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Initialize(cfg.Server.LogLevel)

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warnf("Redis not available: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Job registry
	store := registry.NewRedisStore(redisClient)

	// One guard per processor family so quota and breaker state stay isolated
	retryPolicy := resilience.RetryPolicy{
		MaxAttempts:    cfg.Resilience.MaxAttempts,
		InitialBackoff: cfg.Resilience.InitialBackoff,
		MaxBackoff:     cfg.Resilience.MaxBackoff,
	}
	newGuard := func() *client.Guard {
		return client.NewGuard(
			retryPolicy,
			cfg.Resilience.BreakerThreshold,
			cfg.Resilience.BreakerCooldown,
			cfg.Resilience.RateLimit,
			cfg.Resilience.RateWindow,
		)
	}

	clients := map[model.ProcessorFamily]client.ProcessorClient{
		model.ProcessorSpeech:     client.NewSpeechClient(&cfg.Speech, newGuard()),
		model.ProcessorMedia:      client.NewMediaClient(&cfg.Media, newGuard()),
		model.ProcessorGenerative: client.NewGenerativeClient(&cfg.Generative, newGuard()),
	}

	// Artifact prober, R2-backed when credentials are present
	var prober client.ArtifactProber = client.NewHTTPProber()
	if r2, err := client.NewR2Client(&cfg.R2); err != nil {
		logger.Warnf("R2 client unavailable, falling back to HTTP probing: %v", err)
	} else if r2.IsConfigured() {
		prober = client.NewR2AwareProber(r2)
	}

	// Initialize services
	normalizer := service.NewNormalizer()
	applier := service.NewApplier(store, clients, hub)
	dispatcher := service.NewDispatcher(store, clients, cfg.Callback.BaseURL, hub)
	sweeper := service.NewSweeper(store, clients, prober, applier, cfg.Sweeper.StaleThreshold, cfg.Sweeper.AbandonAfter)

	// Initialize handlers
	webhookHandler := handler.NewWebhookHandler(normalizer, applier, store)
	jobHandler := handler.NewJobHandler(dispatcher, store, validate)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		processors := fiber.Map{}
		for family, pc := range clients {
			processors[string(family)] = pc.IsConfigured()
		}
		return c.JSON(fiber.Map{
			"status":     "ok",
			"redis":      redisClient.Ping(c.Context()).Err() == nil,
			"processors": processors,
		})
	})

	// Webhook ingestion from the processors. No auth: the job id in the
	// query string is the correlation key and unknown ids are rejected.
	app.Post("/webhooks/:processor", webhookHandler.Handle)

	// API routes
	api := app.Group("/api")
	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.DispatchLimit(cfg.RateLimit.DispatchPerMin), jobHandler.Dispatch)
	jobs.Get("/:jobId", jobHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start the reconciliation worker and its periodic scheduler
	go startWorkerServer(cfg, sweeper)
	go startScheduler(cfg)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Infof("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logger.Infof("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, sweeper *service.Sweeper) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Cycles are cheap scans; one at a time avoids double probing.
			Concurrency: 1,
			Queues: map[string]int{
				"reconcile": 1,
			},
		},
	)

	sweepWorker := worker.NewSweepWorker(sweeper)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeSweep, sweepWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		logger.Errorf("Asynq worker error: %v", err)
	}
}

func startScheduler(cfg *config.Config) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		&asynq.SchedulerOpts{},
	)

	spec := fmt.Sprintf("@every %s", cfg.Sweeper.Interval)
	if _, err := scheduler.Register(spec, worker.NewSweepTask(), asynq.Queue("reconcile")); err != nil {
		logger.Errorf("Failed to register sweep task: %v", err)
		return
	}

	if err := scheduler.Run(); err != nil {
		logger.Errorf("Asynq scheduler error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
