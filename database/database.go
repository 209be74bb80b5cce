package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Haibread/tempvoice/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if needed) the sqlite file at path and migrates the channel tables.
func Open(path string, log *zap.SugaredLogger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer.
	sqldb.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.ParentChannel{}, &models.ParentChannelRole{}, &models.ChildChannel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Infow("Database ready", "path", path)
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}
