// Package db opens the call-log database connection.
package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store drivers accepted in configuration.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Connect opens a GORM connection for the configured driver. The sqlite
// driver takes a file path or ":memory:"; mysql takes host/port/database.
// The default, an in-memory sqlite database, keeps the call log scoped to
// one run.
func Connect(driver, path, host string, port int, database string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch driver {
	case DriverSQLite, "":
		if path == "" {
			path = ":memory:"
		}
		db, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
		}
		return db, nil
	case DriverMySQL:
		dsn := fmt.Sprintf("root@tcp(%s:%d)/%s?parseTime=true", host, port, database)
		db, err := gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}
}
