package main

import (
	"context"   // Startup deadlines
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Graceful shutdown
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"cashback_bot/internal/api"      // HTTP handlers
	"cashback_bot/internal/bot"      // Telegram gateway
	"cashback_bot/internal/campaign" // Campaign registry
	"cashback_bot/internal/config"   // Configuration
	"cashback_bot/internal/db"       // Persistence gateway
	"cashback_bot/internal/events"   // Event dispatcher
	"cashback_bot/internal/ledger"   // Ledger engine
	"cashback_bot/internal/referral" // Referral attribution
	"cashback_bot/internal/security" // Security log
	"cashback_bot/internal/settings" // Settings store
	"cashback_bot/internal/users"    // User directory
	"cashback_bot/internal/utils"    // Cache

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

var version = "dev" // Set with -ldflags at build time

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	config.SetupLogging(cfg)   // Setup logger

	if cfg.JWTSecret == "" || cfg.AdminPassword == "" {
		logrus.Fatal("JWT_SECRET and ADMIN_PASSWORD must be set")
	}

	// Connect to the database; the server starts degraded when it is down and
	// migrates on whichever (re)connect succeeds first
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	gw, err := db.Open(startCtx, cfg.DBDriver, cfg.DSN(), db.Options{
		MaxRetries: cfg.DBMaxRetries, // Connect attempts per cycle
		OpTimeout:  cfg.DBOpTimeout,  // Per-operation deadline
		OnConnect:  db.Migrate,       // Schema is ensured on every successful dial
	})
	cancel()
	if gw == nil {
		logrus.Fatalf("invalid database configuration: %v", err)
	}
	if err != nil {
		logrus.WithError(err).Error("Database unavailable at startup, continuing degraded")
	}
	defer gw.Close()

	// Setup Redis client; the cache stays disabled without REDIS_ADDR
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.WithError(err).Warn("Redis unreachable, cache misses until it recovers")
		}
		defer redisClient.Close()
	}
	cache := utils.NewCache(redisClient)

	// Core services
	store := settings.NewStore(gw, cache)
	dir := users.NewDirectory(gw)
	engine := ledger.NewEngine(gw, cache)
	registry := campaign.NewRegistry(gw, engine)
	attributor := referral.NewAttributor(gw, engine, store)
	audit := security.NewLog(gw)

	admin, err := api.NewAdminCredentials(cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		logrus.Fatalf("failed to hash admin password: %v", err)
	}
	services := api.Services{
		Gateway:       gw,
		Cache:         cache,
		Users:         dir,
		Ledger:        engine,
		Campaigns:     registry,
		Settings:      store,
		Security:      audit,
		Admin:         admin,
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.WebhookSecret,
		Version:       version,
	}

	// Telegram gateway and webhook
	if cfg.BotToken != "" {
		tg, err := bot.NewGateway(cfg.BotToken, cfg.NotifyRate)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		meCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if name := tg.Username(meCtx); name != "" {
			logrus.WithField("username", name).Info("Bot identity resolved") // Cached for referral links
		}
		cancel()
		dispatcher := events.NewDispatcher(dir, attributor, registry, engine, store, tg, tg, audit)
		services.Updates = bot.NewRouter(dispatcher, engine, registry, tg, tg.Username)
		if cfg.WebhookBaseURL != "" {
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := tg.SetWebhook(hookCtx, cfg.WebhookBaseURL+"/webhook", cfg.WebhookSecret); err != nil {
				logrus.WithError(err).Error("Webhook registration failed")
			}
			cancel()
		} else if err := tg.DeleteWebhook(context.Background()); err != nil {
			logrus.WithError(err).Warn("Webhook removal failed") // Clears a stale registration
		}
	} else {
		logrus.Warn("BOT_TOKEN not set, webhook disabled")
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default() // Gin router instance
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.Register(r, services)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running") // Log server start
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
