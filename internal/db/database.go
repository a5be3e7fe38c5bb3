package db

import (
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes a new GORM database connection and runs auto-migrations.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("dsn", dsn).Msg("Running database migrations")
	err = db.AutoMigrate(
		&NodeRecord{},
		&NodeMetricGauge{},
	)
	if err != nil {
		return nil, err
	}

	log.Info().Str("dsn", dsn).Msg("Database connection established and migrations completed")
	return db, nil
}
