package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/petermazzocco/go-blog-api/internal/config"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

// Open connects to the configured database. SQLite runs in WAL mode with foreign keys
// enforced so post deletion cascades the same way it does on Postgres.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("retrieve sql.DB: %w", err)
		}
		// SQLite has a single writer.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func ensureDir(path string) error {
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0750)
	}
	return nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Permission{},
		&models.Role{},
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Image{},
		&models.RevokedToken{},
	); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_images_post_primary ON images(post_id, is_primary);",
	}
	for _, idx := range indices {
		if err := db.Exec(idx).Error; err != nil {
			logger.Warn("Failed to create index", "error", err)
		}
	}
	return nil
}
