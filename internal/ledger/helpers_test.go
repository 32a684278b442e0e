package ledger

import (
	"time"

	"cashback_bot/internal/db"

	"gorm.io/gorm"
)

func testGateway(gdb *gorm.DB) *db.Gateway {
	return db.FromDB(gdb, db.Options{OpTimeout: 5 * time.Second})
}

func unavailableGateway() *db.Gateway {
	return db.NewGateway(func() (*gorm.DB, error) { return nil, gorm.ErrInvalidDB }, db.Options{MaxRetries: 1})
}
