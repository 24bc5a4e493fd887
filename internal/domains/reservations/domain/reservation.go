package domain

import (
	"errors"
	"strings"
	"time"

	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

// State of a reservation. Elapsed reservations stay active; time alone retires them.
type State string

const (
	StateActive    State = "active"
	StateCancelled State = "cancelled"
)

// MaxDuration caps a single reservation. Overlap lookups rely on it to bound their window.
const MaxDuration = 24 * time.Hour

var (
	ErrInvalidTable     = errors.New("reservation table id is required")
	ErrInvalidClient    = errors.New("reservation client name is required")
	ErrInvalidDuration  = errors.New("reservation duration must be between 1 minute and 24 hours")
	ErrInvalidPartySize = errors.New("reservation party size must be greater than zero")
	ErrInvalidStart     = errors.New("reservation start time is required")
)

// Reservation is a time-boxed claim on a table over the half-open interval [Start, End).
type Reservation struct {
	ID              int64
	TableID         string
	ClientName      string
	Start           time.Time
	DurationMinutes int
	State           State
	Phone           string
	PartySize       int
	Notes           string
}

// NewReservation validates the input and builds an active reservation.
func NewReservation(tableID, client string, start time.Time, durationMinutes int, phone string, partySize int, notes string) (*Reservation, error) {
	r := &Reservation{
		TableID:         strings.TrimSpace(tableID),
		ClientName:      strings.TrimSpace(client),
		Start:           start,
		DurationMinutes: durationMinutes,
		State:           StateActive,
		Phone:           strings.TrimSpace(phone),
		PartySize:       partySize,
		Notes:           notes,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate enforces the reservation invariants.
func (r *Reservation) Validate() error {
	switch {
	case r.TableID == "":
		return ErrInvalidTable
	case r.ClientName == "":
		return ErrInvalidClient
	case r.Start.IsZero():
		return ErrInvalidStart
	case r.DurationMinutes <= 0 || time.Duration(r.DurationMinutes)*time.Minute > MaxDuration:
		return ErrInvalidDuration
	case r.PartySize <= 0:
		return ErrInvalidPartySize
	}
	return nil
}

func (r Reservation) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// End is the first instant after the reservation.
func (r Reservation) End() time.Time {
	return r.Start.Add(r.Duration())
}

// Overlaps reports whether [start, end) intersects the reservation. Touching boundaries
// do not overlap.
func (r Reservation) Overlaps(start, end time.Time) bool {
	return start.Before(r.End()) && end.After(r.Start)
}

// Contains reports whether now falls inside the reservation.
func (r Reservation) Contains(now time.Time) bool {
	return !now.Before(r.Start) && now.Before(r.End())
}

func (r Reservation) IsFuture(now time.Time) bool {
	return r.Start.After(now)
}

func (r Reservation) Elapsed(now time.Time) bool {
	return !now.Before(r.End())
}

// DeriveTableState computes the state the reservations imply for their table: occupied
// while one is running, reserved while one is pending, free once all have elapsed.
// Cancelled reservations are ignored.
func DeriveTableState(reservations []Reservation, now time.Time) tablesdomain.State {
	future := false
	for _, r := range reservations {
		if r.State != StateActive {
			continue
		}
		if r.Contains(now) {
			return tablesdomain.StateOccupied
		}
		if r.IsFuture(now) {
			future = true
		}
	}
	if future {
		return tablesdomain.StateReserved
	}
	return tablesdomain.StateFree
}
