package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// State enumerates order progression.
type State string

const (
	StateOpen       State = "open"
	StateInProgress State = "in_progress"
	StatePaid       State = "paid"
	StateCancelled  State = "cancelled"
	StateClosed     State = "closed"
)

var (
	ErrInvalidState      = errors.New("order state is invalid")
	ErrInvalidTransition = errors.New("order state transition is not allowed")
	ErrInvalidTable      = errors.New("order table id is required")
	ErrInvalidProduct    = errors.New("product id must be greater than zero")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("unit price must not be negative")
	ErrLineNotFound      = errors.New("order has no line for product")
	ErrNotEditable       = errors.New("order is no longer editable")
)

var transitions = map[State][]State{
	StateOpen:       {StateInProgress, StatePaid, StateCancelled},
	StateInProgress: {StatePaid, StateCancelled},
	StatePaid:       {StateClosed},
}

// ParseState accepts only known order states.
func ParseState(raw string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StateOpen, StateInProgress, StatePaid, StateCancelled, StateClosed:
		return s, nil
	case "in-progress":
		return StateInProgress, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
}

// Active reports whether an order in this state still occupies its table.
func (s State) Active() bool {
	return s == StateOpen || s == StateInProgress
}

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Line is one product entry. Name and unit price are snapshots taken when the line was
// added, so historical totals survive later price changes.
type Line struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Notes     string
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the bill of one table. The total is always derived from the lines.
type Order struct {
	ID       int64
	TableID  string
	OpenedAt time.Time
	ClosedAt *time.Time
	State    State
	UserID   string
	Lines    []Line
}

// NewOrder builds an open order for tableID.
func NewOrder(tableID, userID string, openedAt time.Time) (*Order, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, ErrInvalidTable
	}
	return &Order{TableID: tableID, UserID: userID, OpenedAt: openedAt, State: StateOpen}, nil
}

// Total sums the line subtotals; an order without lines totals zero.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount is the number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// AddLine merges into an existing line for the product or appends a new one.
func (o *Order) AddLine(productID int64, name string, unitPrice decimal.Decimal, quantity int, notes string) error {
	if !o.State.Active() {
		return ErrNotEditable
	}
	if productID <= 0 {
		return ErrInvalidProduct
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	if i := o.lineIndex(productID); i >= 0 {
		o.Lines[i].Quantity += quantity
		if notes != "" {
			o.Lines[i].Notes = notes
		}
		return nil
	}
	o.Lines = append(o.Lines, Line{ProductID: productID, Name: name, UnitPrice: unitPrice, Quantity: quantity, Notes: notes})
	return nil
}

// RemoveLine drops the line for productID.
func (o *Order) RemoveLine(productID int64) error {
	if !o.State.Active() {
		return ErrNotEditable
	}
	i := o.lineIndex(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	o.Lines = append(o.Lines[:i:i], o.Lines[i+1:]...)
	return nil
}

// SetQuantity overwrites a line's quantity; zero or less removes the line.
func (o *Order) SetQuantity(productID int64, quantity int) error {
	if quantity <= 0 {
		return o.RemoveLine(productID)
	}
	if !o.State.Active() {
		return ErrNotEditable
	}
	i := o.lineIndex(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	o.Lines[i].Quantity = quantity
	return nil
}

// Transition moves the order to next, stamping ClosedAt when it leaves the active states.
func (o *Order) Transition(next State, at time.Time) error {
	if !o.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, next)
	}
	o.State = next
	if !next.Active() && o.ClosedAt == nil {
		closed := at
		o.ClosedAt = &closed
	}
	return nil
}

// Fingerprint identifies the billable content of the order. Two snapshots with the same
// fingerprint charge the same products at the same prices.
func (o *Order) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s", o.ID, o.TableID)
	for _, l := range o.Lines {
		fmt.Fprintf(h, "|%d:%d:%s", l.ProductID, l.Quantity, l.UnitPrice.String())
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// Clone deep-copies the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	if o.ClosedAt != nil {
		closed := *o.ClosedAt
		clone.ClosedAt = &closed
	}
	return &clone
}

func (o *Order) lineIndex(productID int64) int {
	for i, l := range o.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
