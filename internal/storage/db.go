package storage

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"multitalk-worker/log"
)

var DB *gorm.DB

// InitDB opens the job-history database at dbPath and migrates the schema.
func InitDB(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err = db.AutoMigrate(&JobRecord{}); err != nil {
		return err
	}

	DB = db
	log.GetLogger().Info("database initialized", zap.String("path", dbPath))
	return nil
}
