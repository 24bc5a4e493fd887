package facade

import (
	"time"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	paymentsdomain "github.com/Apurer/tableside/internal/domains/payments/domain"
	reservationsdomain "github.com/Apurer/tableside/internal/domains/reservations/domain"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

// TableView is the caller-facing shape of a table, overrides included.
type TableView struct {
	ID                string  `json:"id"`
	Zone              string  `json:"zone"`
	State             string  `json:"state"`
	Capacity          int     `json:"capacity"`
	EffectiveCapacity int     `json:"effectiveCapacity"`
	DisplayName       string  `json:"displayName"`
	Alias             *string `json:"alias,omitempty"`
	TemporaryCapacity *int    `json:"temporaryCapacity,omitempty"`
}

// TablePatch updates a table. Nil fields are left alone; the Clear flags drop an override.
type TablePatch struct {
	Alias                  *string `json:"alias,omitempty"`
	ClearAlias             bool    `json:"clearAlias,omitempty"`
	TemporaryCapacity      *int    `json:"temporaryCapacity,omitempty"`
	ClearTemporaryCapacity bool    `json:"clearTemporaryCapacity,omitempty"`
	Capacity               *int    `json:"capacity,omitempty"`
}

type LineView struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
	Subtotal  string `json:"subtotal"`
}

type OrderView struct {
	ID        int64      `json:"id"`
	TableID   string     `json:"tableId"`
	State     string     `json:"state"`
	UserID    string     `json:"userId,omitempty"`
	OpenedAt  time.Time  `json:"openedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	Lines     []LineView `json:"lines"`
	ItemCount int        `json:"itemCount"`
	Total     string     `json:"total"`
}

// LineRequest adds a product to an order.
type LineRequest struct {
	ProductID int64  `json:"productId" binding:"required"`
	Name      string `json:"name" binding:"required"`
	UnitPrice string `json:"unitPrice" binding:"required"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type ReservationView struct {
	ID              int64     `json:"id"`
	TableID         string    `json:"tableId"`
	ClientName      string    `json:"clientName"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
	State           string    `json:"state"`
	Phone           string    `json:"phone,omitempty"`
	PartySize       int       `json:"partySize"`
	Notes           string    `json:"notes,omitempty"`
}

// ReservationRequest books a table.
type ReservationRequest struct {
	TableID         string    `json:"tableId" binding:"required"`
	ClientName      string    `json:"clientName" binding:"required"`
	Start           time.Time `json:"start" binding:"required"`
	DurationMinutes int       `json:"durationMinutes"`
	Phone           string    `json:"phone,omitempty"`
	PartySize       int       `json:"partySize"`
	Notes           string    `json:"notes,omitempty"`
}

type MovementView struct {
	ProductID     int64  `json:"productId"`
	Kind          string `json:"kind"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
}

type ReceiptView struct {
	SettlementID string         `json:"settlementId"`
	OrderID      int64          `json:"orderId"`
	TableID      string         `json:"tableId"`
	Total        string         `json:"total"`
	PaidAt       time.Time      `json:"paidAt"`
	Movements    []MovementView `json:"movements"`
}

func tableView(t tablesdomain.CachedTable) TableView {
	v := TableView{
		ID:                t.ID,
		Zone:              t.Zone,
		State:             string(t.State),
		Capacity:          t.Capacity,
		EffectiveCapacity: t.EffectiveCapacity(),
		DisplayName:       t.DisplayName(),
	}
	o := t.Overrides.Clone()
	v.Alias = o.Alias
	v.TemporaryCapacity = o.TemporaryCapacity
	return v
}

func tableViews(list []tablesdomain.CachedTable) []TableView {
	views := make([]TableView, 0, len(list))
	for _, t := range list {
		views = append(views, tableView(t))
	}
	return views
}

func orderView(o *ordersdomain.Order) OrderView {
	v := OrderView{
		ID:        o.ID,
		TableID:   o.TableID,
		State:     string(o.State),
		UserID:    o.UserID,
		OpenedAt:  o.OpenedAt,
		Lines:     make([]LineView, 0, len(o.Lines)),
		ItemCount: o.ItemCount(),
		Total:     o.Total().StringFixed(2),
	}
	if o.ClosedAt != nil {
		closed := *o.ClosedAt
		v.ClosedAt = &closed
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, LineView{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Quantity:  l.Quantity,
			Notes:     l.Notes,
			Subtotal:  l.Subtotal().StringFixed(2),
		})
	}
	return v
}

func reservationView(r reservationsdomain.Reservation) ReservationView {
	return ReservationView{
		ID:              r.ID,
		TableID:         r.TableID,
		ClientName:      r.ClientName,
		Start:           r.Start,
		End:             r.End(),
		DurationMinutes: r.DurationMinutes,
		State:           string(r.State),
		Phone:           r.Phone,
		PartySize:       r.PartySize,
		Notes:           r.Notes,
	}
}

func receiptView(r *paymentsdomain.Receipt) ReceiptView {
	v := ReceiptView{
		SettlementID: r.SettlementID,
		OrderID:      r.OrderID,
		TableID:      r.TableID,
		Total:        r.Total.StringFixed(2),
		PaidAt:       r.PaidAt,
		Movements:    make([]MovementView, 0, len(r.Movements)),
	}
	for _, m := range r.Movements {
		v.Movements = append(v.Movements, movementView(m))
	}
	return v
}

func movementView(m inventorydomain.Movement) MovementView {
	return MovementView{
		ProductID:     m.ProductID,
		Kind:          string(m.Kind),
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
	}
}
