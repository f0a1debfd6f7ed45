package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseConfig configures the primary-store connection, mirroring the
// donor example's config.DatabaseConfig shape.
type DatabaseConfig struct {
	Type     string `mapstructure:"type" validate:"required,oneof=postgres sqlite"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	Path     string `mapstructure:"path"` // sqlite only; ":memory:" for tests
	Pool     PoolConfig `mapstructure:"pool"`
}

type PoolConfig struct {
	MaxOpen     int `mapstructure:"max_open" validate:"min=0"`
	MaxIdle     int `mapstructure:"max_idle" validate:"min=0"`
	MaxLifetime int `mapstructure:"max_lifetime"` // seconds
}

// Open opens a GORM connection per cfg.Type, auto-migrating scheduler_tasks.
func Open(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		dsn := cfg.URL
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		}
		dialector = postgres.Open(dsn)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open primary store: %w", err)
	}

	if cfg.Type == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("underlying db: %w", err)
		}
		if cfg.Pool.MaxOpen > 0 {
			sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpen)
		}
		if cfg.Pool.MaxIdle > 0 {
			sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdle)
		}
	}

	if err := db.AutoMigrate(&TaskModel{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return db, nil
}

// OpenTest opens an in-memory SQLite database for unit tests.
func OpenTest() (*gorm.DB, error) {
	return Open(DatabaseConfig{Type: "sqlite", Path: ":memory:"})
}
