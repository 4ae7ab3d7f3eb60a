package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sympto/internal/config"
	logging "sympto/internal/logging"
	"sympto/internal/models"
)

// Open connects to the configured database and migrates the draft table.
func Open(conf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(conf)
	if err != nil {
		return nil, err
	}

	// Create our custom GORM logger
	gormLogger := logging.NewGormZapLogger(log)
	gormLogger.LogLevel = logger.Warn

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if conf.Driver == "sqlite" {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent auto-saves.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("Database connection established successfully.", zap.String("driver", conf.Driver))

	if err := runMigrations(db); err != nil {
		Close(db)
		return nil, err
	}
	log.Info("Database migrations completed successfully.")
	return db, nil
}

func dialectorFor(conf config.DatabaseConfig) (gorm.Dialector, error) {
	switch conf.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			conf.Host, conf.User, conf.Password, conf.DBName, conf.Port)
		return postgres.Open(dsn), nil
	case "sqlite", "":
		path := conf.SQLitePath
		if path == "" {
			path = "sympto.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Driver)
	}
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.DraftEntry{}); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
