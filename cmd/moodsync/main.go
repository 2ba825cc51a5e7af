package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/hazelgrove/moodsync/internal/api"
	"github.com/hazelgrove/moodsync/internal/localstore"
	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/mooddata"
	"github.com/hazelgrove/moodsync/internal/moodlogs"
	"github.com/hazelgrove/moodsync/internal/querycache"
	"github.com/hazelgrove/moodsync/internal/remotestore"
	"github.com/hazelgrove/moodsync/internal/syncer"
)

func main() {
	secretKey := getEnv("SECRET_KEY", "change_me_in_production")
	dbPath := getEnv("DB_PATH", filepath.Join("data", "moodsync.db"))
	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDatabase := getEnv("MONGO_DATABASE", "moodsync")
	port := getEnv("PORT", "8080")
	logMode := getEnv("LOG_MODE", "dev")
	adminKeyHash := getEnv("ADMIN_KEY_HASH", "")
	cacheTTL := getDurationEnv("QUERY_CACHE_TTL", 5*time.Minute)
	probeEvery := getDurationEnv("REACHABILITY_INTERVAL", 30*time.Second)

	logger, err := logging.New(logMode)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	database, err := localstore.Open(dbPath)
	if err != nil {
		log.Fatalf("local cache init failed: %v", err)
	}
	local := localstore.NewStore(database, logger)

	lifecycleCtx, cancelLifecycle := context.WithCancel(context.Background())
	defer cancelLifecycle()

	client, err := remotestore.Connect(lifecycleCtx, mongoURI)
	if err != nil {
		log.Fatalf("remote store init failed: %v", err)
	}
	remote := remotestore.NewAdapter(client, mongoDatabase)

	cache := querycache.New(local, cacheTTL, logger)
	cache.Restore()

	syncService := syncer.NewService(local, remote, logger)
	pushQueue := syncer.NewPushQueue(syncService, logger)
	pushQueue.Start(lifecycleCtx)

	hub := mooddata.NewHub(local, syncService, pushQueue, logger)
	entries := moodlogs.NewService(remote, cache, logger)

	monitor := querycache.NewMonitor(remote.Ping, probeEvery, cache.RefetchAll, logger)
	monitor.Start(lifecycleCtx)

	handler := api.NewHandler(secretKey, hub, entries, cache, local, adminKeyHash, logger)

	app := fiber.New(fiber.Config{
		AppName:               "Moodsync",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	api.RegisterRoutes(app, handler)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		<-sigCtx.Done()
		cache.NotifyBackground()
		cancelLifecycle()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("server shutdown failed: %v", err)
		}
		if err := client.Disconnect(shutdownCtx); err != nil {
			log.Printf("mongo disconnect failed: %v", err)
		}
	}()

	log.Printf("Moodsync listening on http://0.0.0.0:%s (db: %s)", port, dbPath)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s %q, using %s", key, raw, fallback)
		return fallback
	}
	return parsed
}
