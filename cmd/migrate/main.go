package main

import (
	"context" // Connect deadline
	"time"    // Timeouts

	"cashback_bot/internal/config" // Custom import path (Config)
	"cashback_bot/internal/db"     // Custom import path (Database)

	"github.com/sirupsen/logrus" // Structured logging
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	config.SetupLogging(cfg)   // Setup logger

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	gw, err := db.Open(ctx, cfg.DBDriver, cfg.DSN(), db.Options{MaxRetries: cfg.DBMaxRetries, OpTimeout: cfg.DBOpTimeout})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	defer gw.Close()

	// Migrations run without the per-operation deadline
	session, release, err := gw.Session(context.Background())
	if err != nil {
		logrus.Fatalf("failed to open session: %v", err)
	}
	release()
	gdb := session.WithContext(context.Background())

	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("%v", err)
	}
	if cfg.SettingsSeed != "" {
		if _, err := db.SeedSettings(gdb, cfg.SettingsSeed); err != nil {
			logrus.Fatalf("%v", err)
		}
	}
}
