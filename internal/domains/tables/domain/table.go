package domain

import (
	"errors"
	"fmt"
	"strings"
)

// State is the occupancy state of a physical table.
type State string

const (
	StateFree        State = "free"
	StateOccupied    State = "occupied"
	StateReserved    State = "reserved"
	StateMaintenance State = "maintenance"
)

var (
	ErrInvalidState    = errors.New("table state is invalid")
	ErrInvalidCapacity = errors.New("table capacity must be greater than zero")
	ErrInvalidZone     = errors.New("table zone is required")
	ErrInvalidID       = errors.New("table id is required")
)

// ParseState accepts only the four known states.
func ParseState(raw string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
	}
	return s, nil
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateFree, StateOccupied, StateReserved, StateMaintenance:
		return true
	default:
		return false
	}
}

// Table is the durable part of a table. ID is the business id used everywhere outside
// storage; RowID is the storage key.
type Table struct {
	RowID    int64
	ID       string
	Zone     string
	State    State
	Capacity int
}

// NewTable validates and builds a free table.
func NewTable(id, zone string, capacity int) (*Table, error) {
	t := &Table{ID: strings.TrimSpace(id), Zone: strings.TrimSpace(zone), State: StateFree, Capacity: capacity}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate enforces the table invariants.
func (t *Table) Validate() error {
	if t.ID == "" {
		return ErrInvalidID
	}
	if t.Zone == "" {
		return ErrInvalidZone
	}
	if t.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if !t.State.Valid() {
		return ErrInvalidState
	}
	return nil
}

// Overrides are operator adjustments that only live in the process cache. They have
// no persistence mapping and are lost on restart.
type Overrides struct {
	Alias             *string
	TemporaryCapacity *int
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.Alias == nil && o.TemporaryCapacity == nil
}

// Clone copies the pointed-to values so callers cannot mutate the cache through them.
func (o Overrides) Clone() Overrides {
	var out Overrides
	if o.Alias != nil {
		alias := *o.Alias
		out.Alias = &alias
	}
	if o.TemporaryCapacity != nil {
		capacity := *o.TemporaryCapacity
		out.TemporaryCapacity = &capacity
	}
	return out
}

// CachedTable is the cache view of a table: the durable fields plus ephemeral overrides.
type CachedTable struct {
	Table
	Overrides
}

// Clone returns a copy sharing nothing with c.
func (c CachedTable) Clone() CachedTable {
	return CachedTable{Table: c.Table, Overrides: c.Overrides.Clone()}
}

// EffectiveCapacity prefers the temporary capacity when one is set.
func (c CachedTable) EffectiveCapacity() int {
	if c.TemporaryCapacity != nil {
		return *c.TemporaryCapacity
	}
	return c.Capacity
}

// DisplayName prefers the alias over the business id.
func (c CachedTable) DisplayName() string {
	if c.Alias != nil && *c.Alias != "" {
		return *c.Alias
	}
	return c.ID
}
