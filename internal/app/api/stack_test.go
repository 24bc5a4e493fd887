package api

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
	"github.com/Apurer/tableside/internal/events"
	platformobservability "github.com/Apurer/tableside/internal/platform/observability"
)

func testInstruments() *platformobservability.Instruments {
	return &platformobservability.Instruments{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestBuildStores_MemoryDriver(t *testing.T) {
	st, cleanup := buildStores(context.Background(), Config{StoreDriver: "memory"}, testInstruments().Logger)
	defer cleanup()
	assert.False(t, st.persistent)
	assert.NotNil(t, st.tables)
	assert.NotNil(t, st.inventory)
}

func TestBuildStores_UnreachableStoreFallsBackToMemory(t *testing.T) {
	cfg := Config{StoreDriver: "postgres", StoreDSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"}
	st, cleanup := buildStores(context.Background(), cfg, testInstruments().Logger)
	defer cleanup()
	assert.False(t, st.persistent)
}

func TestBuildEngine_ReloadsStateFromSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := Config{StoreDriver: "sqlite", StoreDSN: filepath.Join(t.TempDir(), "pos.db"), StoreTimeout: time.Second}

	st, cleanup := buildStores(ctx, cfg, testInstruments().Logger)
	require.True(t, st.persistent)
	eng, err := buildEngine(ctx, st, testInstruments())
	require.NoError(t, err)
	table, err := eng.tables.Create(ctx, 4, "Terraza")
	require.NoError(t, err)
	_, err = eng.orders.GetOrCreate(ctx, table.ID, "u1")
	require.NoError(t, err)
	cleanup()

	st, cleanup = buildStores(ctx, cfg, testInstruments().Logger)
	defer cleanup()
	reloaded, err := buildEngine(ctx, st, testInstruments())
	require.NoError(t, err)
	got, err := reloaded.tables.Get(table.ID)
	require.NoError(t, err)
	assert.Equal(t, "Terraza", got.Zone)
	assert.True(t, reloaded.coreOrders.HasActiveOrder(table.ID))
}

func TestBuildEngine_UsesNotifierFromContext(t *testing.T) {
	bus := events.New()
	var seen []string
	bus.OnTableChanged(func(table tablesdomain.CachedTable) { seen = append(seen, table.ID) })
	ctx := events.WithNotifier(context.Background(), bus)

	st, cleanup := buildStores(ctx, Config{StoreDriver: "memory"}, testInstruments().Logger)
	defer cleanup()
	eng, err := buildEngine(ctx, st, testInstruments())
	require.NoError(t, err)
	require.Same(t, bus, eng.notifier)

	table, err := eng.tables.Create(ctx, 2, "Barra")
	require.NoError(t, err)
	assert.Contains(t, seen, table.ID)
}

func TestConnectTemporalClient_Disabled(t *testing.T) {
	_, err := connectTemporalClient(Config{TemporalDisabled: true}, testInstruments())
	require.Error(t, err)
}
