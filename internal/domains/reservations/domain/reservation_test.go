package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

var evening = time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)

func reservationAt(start time.Time, minutes int) Reservation {
	return Reservation{TableID: "T02", ClientName: "Ana", Start: start, DurationMinutes: minutes, State: StateActive, PartySize: 2}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	r := reservationAt(evening, 60)

	assert.True(t, r.Overlaps(evening.Add(30*time.Minute), evening.Add(90*time.Minute)))
	assert.True(t, r.Overlaps(evening.Add(-30*time.Minute), evening.Add(time.Minute)))
	assert.True(t, r.Overlaps(evening.Add(10*time.Minute), evening.Add(20*time.Minute)))
	assert.False(t, r.Overlaps(evening.Add(time.Hour), evening.Add(2*time.Hour)))
	assert.False(t, r.Overlaps(evening.Add(-time.Hour), evening))
}

func TestOverlaps_IsSymmetric(t *testing.T) {
	a := reservationAt(evening, 60)
	b := reservationAt(evening.Add(45*time.Minute), 30)
	assert.Equal(t, a.Overlaps(b.Start, b.End()), b.Overlaps(a.Start, a.End()))
	c := reservationAt(evening.Add(time.Hour), 30)
	assert.Equal(t, a.Overlaps(c.Start, c.End()), c.Overlaps(a.Start, a.End()))
}

func TestTimePredicates(t *testing.T) {
	r := reservationAt(evening, 60)
	assert.True(t, r.Contains(evening))
	assert.False(t, r.Contains(evening.Add(time.Hour)))
	assert.True(t, r.IsFuture(evening.Add(-time.Second)))
	assert.True(t, r.Elapsed(evening.Add(time.Hour)))
	assert.False(t, r.Elapsed(evening.Add(59*time.Minute)))
}

func TestDeriveTableState(t *testing.T) {
	running := reservationAt(evening, 60)
	later := reservationAt(evening.Add(3*time.Hour), 60)
	past := reservationAt(evening.Add(-3*time.Hour), 60)
	cancelled := reservationAt(evening, 60)
	cancelled.State = StateCancelled

	assert.Equal(t, tablesdomain.StateOccupied, DeriveTableState([]Reservation{later, running}, evening.Add(time.Minute)))
	assert.Equal(t, tablesdomain.StateReserved, DeriveTableState([]Reservation{past, later}, evening.Add(time.Minute)))
	assert.Equal(t, tablesdomain.StateFree, DeriveTableState([]Reservation{past}, evening))
	assert.Equal(t, tablesdomain.StateFree, DeriveTableState([]Reservation{cancelled}, evening))
}

func TestNewReservation_Validates(t *testing.T) {
	_, err := NewReservation("T01", "", evening, 60, "", 2, "")
	require.ErrorIs(t, err, ErrInvalidClient)
	_, err = NewReservation("T01", "Ana", evening, 0, "", 2, "")
	require.ErrorIs(t, err, ErrInvalidDuration)
	_, err = NewReservation("T01", "Ana", evening, 24*60+1, "", 2, "")
	require.ErrorIs(t, err, ErrInvalidDuration)
	_, err = NewReservation("T01", "Ana", evening, 60, "", 0, "")
	require.ErrorIs(t, err, ErrInvalidPartySize)

	r, err := NewReservation(" T01 ", "Ana", evening, 60, "555", 2, "window")
	require.NoError(t, err)
	assert.Equal(t, "T01", r.TableID)
	assert.Equal(t, StateActive, r.State)
}
