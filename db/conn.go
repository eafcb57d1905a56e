// Package db opens the database backing the metadata index and share tokens
package db

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"bitwise74/photo-api/model"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the database configured under index.* and migrates it.
func New() (*gorm.DB, error) {
	driver := viper.GetString("index.driver")
	dsn := viper.GetString("index.dsn")

	if driver == "sqlite" {
		if err := checkSQLiteMount(dsn, dockerEnvFile); err != nil {
			return nil, err
		}
	}

	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		Close(db)
		return nil, err
	}

	return db, nil
}

// dockerEnvFile exists inside every docker container
var dockerEnvFile = "/.dockerenv"

// checkSQLiteMount fails when running in a container and the database file
// is missing, since a fresh file there would vanish with the container.
// In-memory databases are never checked.
func checkSQLiteMount(dsn, marker string) error {
	if _, err := os.Stat(marker); err != nil {
		return nil
	}

	path := sqlitePath(dsn)
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to %s", path)
	}

	return nil
}

// sqlitePath strips the file: scheme and query options from dsn. It returns
// "" for in-memory databases.
func sqlitePath(dsn string) string {
	path, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" || strings.Contains(query, "mode=memory") {
		return ""
	}

	return path
}

// Open connects without migrating.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported index driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database, %w", driver, err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(model.IndexRecord{}, model.ShareToken{})
	if err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return nil
}

// Close releases the pool behind db. nil is ignored.
func Close(db *gorm.DB) {
	if db == nil {
		return
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
