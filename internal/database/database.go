// Package database stores job and stage history.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rmitchellscott/ditherworks/internal/config"
	"github.com/rmitchellscott/ditherworks/internal/logging"
)

var DB *gorm.DB

// DatabaseConfig selects the history backend. DataDir is only used by sqlite.
type DatabaseConfig struct {
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	DataDir  string
}

// GetDatabaseConfig reads DB_* and DATA_DIR
func GetDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:     config.Get("DB_TYPE", "sqlite"),
		Host:     config.Get("DB_HOST", "localhost"),
		Port:     config.GetInt("DB_PORT", 5432),
		User:     config.Get("DB_USER", "ditherworks"),
		Password: config.Get("DB_PASSWORD", ""),
		DBName:   config.Get("DB_NAME", "ditherworks"),
		SSLMode:  config.Get("DB_SSLMODE", "disable"),
		DataDir:  config.Get("DATA_DIR", "./data"),
	}
}

// Initialize opens the configured database into DB and runs migrations
func Initialize() error {
	cfg := GetDatabaseConfig()

	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db

	logging.InfoWithComponent(logging.ComponentDatabase, "Database initialized successfully", "type", cfg.Type)
	return nil
}

// Open connects to the database described by cfg and migrates it
func Open(cfg *DatabaseConfig) (*gorm.DB, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}
	if err := cfg.tune(db); err != nil {
		_ = CloseDB(db)
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		_ = CloseDB(db)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// SQLitePath is where the sqlite file lives under DataDir.
func (cfg *DatabaseConfig) SQLitePath() string {
	return filepath.Join(cfg.DataDir, "ditherworks.db")
}

func (cfg *DatabaseConfig) dialector() (gorm.Dialector, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode)), nil
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.Open(cfg.SQLitePath() + "?_pragma=foreign_keys(1)"), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// tune sizes the connection pool. Stage rows come from a single recorder, so
// sqlite gets one connection.
func (cfg *DatabaseConfig) tune(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if cfg.Type == "postgres" {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		return nil
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	// Stage rows rely on the cascade from jobs
	var fk int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		return fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("sqlite foreign keys disabled (pragma returned %d)", fk)
	}
	return nil
}

// gormLogger only traces SQL when LOG_LEVEL=debug
func gormLogger() logger.Interface {
	if strings.EqualFold(config.Get("LOG_LEVEL", ""), "debug") {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Warn)
}

func GetDB() *gorm.DB { return DB }

// Close closes the connection opened by Initialize, if any.
func Close() error {
	if DB == nil {
		return nil
	}
	return CloseDB(DB)
}

// CloseDB closes a connection returned by Open
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
