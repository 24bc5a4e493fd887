// Package storagetest opens throwaway migrated stores for adapter tests.
package storagetest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Apurer/tableside/internal/platform/database"
	"github.com/Apurer/tableside/internal/platform/migrations"
	"github.com/Apurer/tableside/internal/platform/storage"
)

// NewSQLite returns a gateway over a private in-memory sqlite database named after the test.
func NewSQLite(t testing.TB) *storage.GormGateway {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(context.Background(), database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return storage.NewGormGateway(db)
}
