package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/api/handlers"
	"github.com/incident-agent/backend/internal/cache/redis"
	"github.com/incident-agent/backend/internal/core"
	"github.com/incident-agent/backend/internal/llm"
	"github.com/incident-agent/backend/internal/memory"
	"github.com/incident-agent/backend/internal/metrics"
	"github.com/incident-agent/backend/internal/monitoring"
	"github.com/incident-agent/backend/internal/monitoring/coralogix"
	"github.com/incident-agent/backend/internal/monitoring/prometheus"
	"github.com/incident-agent/backend/internal/nlp"
	"github.com/incident-agent/backend/internal/storage/sqlite"
	"github.com/incident-agent/backend/pkg/config"
	appLogger "github.com/incident-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Incident Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	store := memory.NewContextStore(sqliteClient)

	states, err := sqliteClient.LoadAll()
	if err != nil {
		appLogger.Warn("Failed to load persisted incident states", zap.Error(err))
	} else {
		store.Restore(states)
		appLogger.Info("Restored incident states", zap.Int("count", len(states)))
	}
	metrics.StoredStates.Set(float64(store.Len()))

	var monitoringCache monitoring.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, monitoring cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			monitoringCache = redisClient
		}
	}

	prometheusClient := prometheus.NewClient(cfg.Prometheus.URL, cfg.Prometheus.Step, cfg.Prometheus.Timeout)
	coralogixClient := coralogix.NewClient(cfg.Coralogix.APIURL, cfg.Coralogix.APIKey, cfg.Coralogix.Timeout)
	monitoringSystem := monitoring.NewSystem(prometheusClient, coralogixClient, monitoringCache)

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	processor := nlp.NewProcessor(store, monitoringSystem, llmClient)
	analyzer := core.NewAnalyzer(store, processor)
	manager := core.NewManager(store, analyzer)

	stopCleanup := startRetentionCleanup(store, cfg.Retention)
	defer stopCleanup()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	incidentHandler := handlers.NewIncidentHandler(manager)
	wsHandler := handlers.NewWebSocketHandler(manager)

	api := app.Group("/api/v1")

	api.Post("/incidents", incidentHandler.CreateIncident)
	api.Get("/incidents", incidentHandler.ListIncidents)
	api.Get("/incidents/:id", incidentHandler.GetIncident)
	api.Patch("/incidents/:id", incidentHandler.UpdateIncident)
	api.Post("/incidents/:id/resolve", incidentHandler.ResolveIncident)
	api.Post("/incidents/:id/logs", incidentHandler.AddLog)
	api.Post("/incidents/:id/analyze", incidentHandler.AnalyzeIncident)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/analysis", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

// startRetentionCleanup periodically drops incident states older than
// the retention window. The returned func stops the loop.
func startRetentionCleanup(store *memory.ContextStore, cfg config.RetentionConfig) func() {
	interval := time.Duration(cfg.CleanupIntervalHours) * time.Hour
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				removed := store.Cleanup(cfg.MaxAgeDays)
				if len(removed) > 0 {
					appLogger.Info("Cleaned up stale incident states",
						zap.Int("removed", len(removed)),
						zap.Strings("incident_ids", removed),
					)
				}
				metrics.StoredStates.Set(float64(store.Len()))
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
