package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Connect opens the configured store via GORM and verifies connectivity.
func Connect(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s DSN is empty", driver)
	}
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		if isMemoryDSN(dsn) {
			// Every pooled connection would otherwise see its own empty database.
			sqlDB.SetMaxOpenConns(1)
		} else if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// ConnectWithFallback dials the store and returns the DB plus a cleanup function.
// When the driver is "memory" or the connection fails, it logs and returns nil with a
// no-op cleanup so callers can fall back to in-memory repositories.
func ConnectWithFallback(ctx context.Context, driver, dsn string, logger *slog.Logger) (*gorm.DB, func()) {
	if driver == DriverMemory {
		if logger != nil {
			logger.Warn("STORE_DRIVER=memory, using in-memory repositories; nothing will be persisted")
		}
		return nil, func() {}
	}
	db, err := Connect(ctx, driver, dsn)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to connect to store, falling back to in-memory repositories",
				slog.String("driver", driver), slog.String("error", err.Error()))
		}
		return nil, func() {}
	}
	sqlDB, err := db.DB()
	if err != nil {
		if logger != nil {
			logger.Warn("failed to unwrap store connection, falling back to in-memory repositories", slog.String("error", err.Error()))
		}
		return nil, func() {}
	}
	if logger != nil {
		logger.Info("store connection established", slog.String("driver", driver))
	}
	return db, func() { _ = sqlDB.Close() }
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		// Opened over lib/pq so driver errors surface as *pq.Error.
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), nil
	case DriverMySQL:
		return mysql.Open(withFoundRows(dsn)), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// withFoundRows makes mysql report matched rather than changed rows, so an update that
// rewrites an identical value is not mistaken for a missing row.
func withFoundRows(dsn string) string {
	if strings.Contains(dsn, "clientFoundRows=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&clientFoundRows=true"
	}
	return dsn + "?clientFoundRows=true"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
