package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/tableside/internal/domains/reservations/adapters/memory"
	"github.com/Apurer/tableside/internal/domains/reservations/domain"
	"github.com/Apurer/tableside/internal/domains/reservations/ports"
	tablesmemory "github.com/Apurer/tableside/internal/domains/tables/adapters/memory"
	tablesapp "github.com/Apurer/tableside/internal/domains/tables/application"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

type fakeOrders struct {
	mu     sync.Mutex
	active map[string]bool
}

func (f *fakeOrders) HasActiveOrder(tableID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[tableID]
}

func (f *fakeOrders) set(tableID string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[tableID] = active
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc    *Service
	tables *tablesapp.Service
	orders *fakeOrders
	clock  *clock
}

var afternoon = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tables := tablesapp.NewService(tablesmemory.NewRepository())
	for i := 0; i < 2; i++ {
		_, err := tables.Create(context.Background(), 4, "Terraza")
		require.NoError(t, err)
	}
	orders := &fakeOrders{active: map[string]bool{}}
	c := &clock{now: afternoon}
	svc := NewService(memory.NewRepository(), tables, orders, WithClock(c.Now))
	return fixture{svc: svc, tables: tables, orders: orders, clock: c}
}

func booking(tableID string, start time.Time, minutes int) CreateInput {
	return CreateInput{TableID: tableID, ClientName: "Ana", Start: start, DurationMinutes: minutes, PartySize: 2}
}

func tableState(t *testing.T, f fixture, id string) tablesdomain.State {
	t.Helper()
	table, err := f.tables.Get(id)
	require.NoError(t, err)
	return table.State
}

func TestCreate_RejectsOverlapAcceptsBoundaryTouch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateReserved, tableState(t, f, "T02"))

	_, err = f.svc.Create(ctx, booking("T02", at(19, 30), 60))
	require.ErrorIs(t, err, ErrOverlap)

	_, err = f.svc.Create(ctx, booking("T02", at(20, 0), 60))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, booking("T01", at(19, 30), 60))
	require.NoError(t, err, "other tables are independent")
}

func TestCreate_DetectsOverlapAcrossMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, booking("T01", at(23, 30), 90))
	require.NoError(t, err)

	overlaps, err := f.svc.Overlaps(ctx, "T01", at(23, 30).Add(time.Hour), 30)
	require.NoError(t, err)
	assert.True(t, overlaps)

	_, err = f.svc.Create(ctx, booking("T01", at(23, 30).Add(90*time.Minute), 30))
	require.NoError(t, err)
}

func TestCreate_ConcurrentOverlappingRequestsAdmitOne(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), booking("T01", at(19, i), 60))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestCreate_Validates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, booking("X09", at(19, 0), 60))
	require.ErrorIs(t, err, ErrTableNotFound)

	in := booking("T01", at(19, 0), 60)
	in.ClientName = ""
	_, err = f.svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreate_DoesNotOverrideOccupiedOrMaintenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tables.UpdateState(ctx, "T01", tablesdomain.StateOccupied)
	require.NoError(t, err)
	f.orders.set("T01", true)
	_, err = f.svc.Create(ctx, booking("T01", at(19, 0), 60))
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateOccupied, tableState(t, f, "T01"))

	_, err = f.tables.UpdateState(ctx, "T02", tablesdomain.StateMaintenance)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateMaintenance, tableState(t, f, "T02"))
}

func TestCreate_WalkInWithoutOrderStaysOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tables.UpdateState(ctx, "T01", tablesdomain.StateOccupied)
	require.NoError(t, err)
	require.False(t, f.orders.HasActiveOrder("T01"))

	_, err = f.svc.Create(ctx, booking("T01", at(19, 0), 60))
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateOccupied, tableState(t, f, "T01"))
}

func TestCancel_SoleReservationFreesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)
	require.Equal(t, tablesdomain.StateReserved, tableState(t, f, "T02"))

	cancelled, err := f.svc.Cancel(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cancelled.State)
	assert.Equal(t, tablesdomain.StateFree, tableState(t, f, "T02"))

	_, err = f.svc.Cancel(ctx, res.ID)
	require.ErrorIs(t, err, ErrNotActive)
	_, err = f.svc.Cancel(ctx, 999)
	require.ErrorIs(t, err, ports.ErrNotFound)

	_, err = f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err, "cancelled reservations no longer block the slot")
}

func TestCancel_KeepsReservedWhileOthersRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, booking("T02", at(21, 0), 60))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateReserved, tableState(t, f, "T02"))
}

func TestCancel_TableHeldByOrderStaysOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)
	_, err = f.tables.UpdateState(ctx, "T02", tablesdomain.StateOccupied)
	require.NoError(t, err)
	f.orders.set("T02", true)

	_, err = f.svc.Cancel(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateOccupied, tableState(t, f, "T02"))
}

func TestActiveByTable_GroupsActiveOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, booking("T01", at(19, 0), 60))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, booking("T01", at(21, 0), 60))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, a.ID)
	require.NoError(t, err)

	grouped, err := f.svc.ActiveByTable(ctx)
	require.NoError(t, err)
	assert.Len(t, grouped["T01"], 1)
	assert.Len(t, grouped["T02"], 1)
}

func TestActiveByTable_SkipsLongElapsedReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, booking("T01", at(19, 0), 60))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, booking("T02", at(19, 0), 60))
	require.NoError(t, err)

	f.clock.Set(at(19, 0).Add(domain.MaxDuration + time.Minute))
	_, err = f.svc.Create(ctx, booking("T02", f.clock.Now().Add(time.Hour), 60))
	require.NoError(t, err)

	grouped, err := f.svc.ActiveByTable(ctx)
	require.NoError(t, err)
	assert.NotContains(t, grouped, "T01")
	require.Len(t, grouped["T02"], 1)
	assert.True(t, grouped["T02"][0].Start.After(f.clock.Now()))
}

func TestReconcile_FollowsTheClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, booking("T01", at(19, 0), 60))
	require.NoError(t, err)
	require.Equal(t, tablesdomain.StateReserved, tableState(t, f, "T01"))

	f.clock.Set(at(19, 15))
	changed, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, tablesdomain.StateOccupied, tableState(t, f, "T01"))

	f.clock.Set(at(20, 0))
	_, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, tablesdomain.StateFree, tableState(t, f, "T01"))
	assert.Equal(t, tablesdomain.StateFree, tableState(t, f, "T02"))
}

func TestReconcile_OnlyClearsStaleReservedWithoutReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.tables.UpdateState(ctx, "T01", tablesdomain.StateReserved)
	require.NoError(t, err)
	_, err = f.tables.UpdateState(ctx, "T02", tablesdomain.StateOccupied)
	require.NoError(t, err)

	changed, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, tablesdomain.StateFree, tableState(t, f, "T01"))
	assert.Equal(t, tablesdomain.StateOccupied, tableState(t, f, "T02"))
}

func TestReconciler_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.tables.UpdateState(context.Background(), "T01", tablesdomain.StateReserved)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewReconciler(f.svc, time.Hour, nil).Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return tableState(t, f, "T01") == tablesdomain.StateFree }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
