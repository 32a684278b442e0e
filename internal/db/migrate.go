package db

import (
	"encoding/json" // Settings values are stored as JSON text
	"fmt"
	"os"

	"cashback_bot/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3" // Seed file format
	"gorm.io/gorm"     // GORM ORM library
	"gorm.io/gorm/clause"
)

// Models lists every table owned by the bot
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Transaction{},
		&domain.Campaign{},
		&domain.CampaignCompletion{},
		&domain.Setting{},
		&domain.SecurityEvent{},
	}
}

// Migrate performs automatic migration for the database schema
func Migrate(gdb *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}

// SeedSettings inserts the keys of a YAML file into the settings table.
// Keys that already exist are left untouched so admin edits survive a re-run.
func SeedSettings(gdb *gorm.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	rows := make([]domain.Setting, 0, len(values))
	for key, value := range values {
		encoded, err := encodeSettingValue(value)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", key, err)
		}
		rows = append(rows, domain.Setting{Key: key, Value: encoded})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("seed settings: %w", res.Error)
	}
	logrus.WithFields(logrus.Fields{
		"file":     path,
		"inserted": res.RowsAffected,
	}).Info("Settings seeded")
	return int(res.RowsAffected), nil
}

func encodeSettingValue(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
