package database

import (
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// NewPostgresDB opens the connection pool.
// TranslateError is required: the repositories map gorm.ErrDuplicatedKey
// to the domain duplicate-code error for the retry-on-conflict loop.
func NewPostgresDB(dsn string, maxIdleConns int, maxOpenConns int) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db
}

// Migrate creates or updates the schema for every settlement entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Wallet{},
		&domain.Account{},
		&domain.Card{},
		&domain.Agent{},
		&domain.Merchant{},
		&domain.Terminal{},
		&domain.Transaction{},
		&domain.TransactionRow{},
		&domain.Installment{},
	)
}
