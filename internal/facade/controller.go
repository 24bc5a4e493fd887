// Package facade is the surface the presentation layer talks to. It turns business
// rejections into plain results and lets only infrastructure failures through as
// ErrUnavailable.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	ordersapp "github.com/Apurer/tableside/internal/domains/orders/application"
	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	ordersports "github.com/Apurer/tableside/internal/domains/orders/ports"
	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	paymentsdomain "github.com/Apurer/tableside/internal/domains/payments/domain"
	paymentsports "github.com/Apurer/tableside/internal/domains/payments/ports"
	reservationsapp "github.com/Apurer/tableside/internal/domains/reservations/application"
	reservationsdomain "github.com/Apurer/tableside/internal/domains/reservations/domain"
	reservationsports "github.com/Apurer/tableside/internal/domains/reservations/ports"
	tablesapp "github.com/Apurer/tableside/internal/domains/tables/application"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
	tablesports "github.com/Apurer/tableside/internal/domains/tables/ports"
	"github.com/Apurer/tableside/internal/events"
)

// ErrUnavailable is the single failure signal for storage and connectivity problems.
var ErrUnavailable = errors.New("service temporarily unavailable")

// Tables is the slice of the table cache the controller drives.
type Tables interface {
	List() []tablesdomain.CachedTable
	Get(id string) (tablesdomain.CachedTable, error)
	Create(ctx context.Context, capacity int, zone string) (tablesdomain.CachedTable, error)
	Delete(ctx context.Context, id string) error
	SetAlias(ctx context.Context, id string, alias *string) (tablesdomain.CachedTable, error)
	SetTemporaryCapacity(ctx context.Context, id string, capacity *int) (tablesdomain.CachedTable, error)
	UpdateCapacity(ctx context.Context, id string, capacity int) (tablesdomain.CachedTable, error)
	UpdateState(ctx context.Context, id string, state tablesdomain.State) (tablesdomain.CachedTable, error)
	Release(ctx context.Context, id string) (tablesdomain.CachedTable, error)
}

// Reservations is the slice of the scheduler the controller drives.
type Reservations interface {
	Create(ctx context.Context, in reservationsapp.CreateInput) (reservationsdomain.Reservation, error)
	Cancel(ctx context.Context, id int64) (reservationsdomain.Reservation, error)
	Get(ctx context.Context, id int64) (reservationsdomain.Reservation, error)
	ForTable(ctx context.Context, tableID string) ([]reservationsdomain.Reservation, error)
}

// Subscriber hands out change subscriptions.
type Subscriber interface {
	OnTableChanged(fn func(tablesdomain.CachedTable)) *events.Subscription
	OnTableListChanged(fn func([]tablesdomain.CachedTable)) *events.Subscription
	OnOrderChanged(fn func(*ordersdomain.Order)) *events.Subscription
}

type Controller struct {
	tables       Tables
	orders       ordersports.Service
	reservations Reservations
	settler      paymentsports.Settler
	subscriber   Subscriber
	logger       *slog.Logger
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithSubscriber(s Subscriber) Option {
	return func(c *Controller) {
		if s != nil {
			c.subscriber = s
		}
	}
}

func NewController(tables Tables, orders ordersports.Service, reservations Reservations, settler paymentsports.Settler, opts ...Option) *Controller {
	c := &Controller{
		tables:       tables,
		orders:       orders,
		reservations: reservations,
		settler:      settler,
		subscriber:   events.New(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// GetTable returns the cached table.
func (c *Controller) GetTable(id string) (TableView, bool) {
	t, err := c.tables.Get(id)
	if err != nil {
		return TableView{}, false
	}
	return tableView(t), true
}

func (c *Controller) ListTables() []TableView {
	return tableViews(c.tables.List())
}

// CreateTable adds a table to zone and returns it with its generated id.
func (c *Controller) CreateTable(ctx context.Context, capacity int, zone string) (TableView, bool, error) {
	t, err := c.tables.Create(ctx, capacity, zone)
	if ok, err := c.outcome(ctx, "create_table", err); !ok {
		return TableView{}, false, err
	}
	return tableView(t), true, nil
}

// DeleteTable removes a table that is not occupied.
func (c *Controller) DeleteTable(ctx context.Context, id string) (bool, error) {
	return c.outcome(ctx, "delete_table", c.tables.Delete(ctx, id))
}

// UpdateTable applies patch. Everything is validated before anything changes; the
// persisted capacity is written first so a storage failure leaves the overrides as
// they were.
func (c *Controller) UpdateTable(ctx context.Context, id string, patch TablePatch) (TableView, bool, error) {
	current, err := c.tables.Get(id)
	if err != nil {
		return TableView{}, false, nil
	}
	if patch.Capacity != nil && *patch.Capacity <= 0 {
		return TableView{}, false, nil
	}
	if !patch.ClearTemporaryCapacity && patch.TemporaryCapacity != nil && *patch.TemporaryCapacity <= 0 {
		return TableView{}, false, nil
	}

	if patch.Capacity != nil {
		current, err = c.tables.UpdateCapacity(ctx, id, *patch.Capacity)
		if ok, err := c.outcome(ctx, "update_table", err); !ok {
			return TableView{}, false, err
		}
	}
	switch {
	case patch.ClearAlias:
		current, err = c.tables.SetAlias(ctx, id, nil)
	case patch.Alias != nil:
		current, err = c.tables.SetAlias(ctx, id, patch.Alias)
	}
	if ok, err := c.outcome(ctx, "update_table", err); !ok {
		return TableView{}, false, err
	}
	switch {
	case patch.ClearTemporaryCapacity:
		current, err = c.tables.SetTemporaryCapacity(ctx, id, nil)
	case patch.TemporaryCapacity != nil:
		current, err = c.tables.SetTemporaryCapacity(ctx, id, patch.TemporaryCapacity)
	}
	if ok, err := c.outcome(ctx, "update_table", err); !ok {
		return TableView{}, false, err
	}
	return tableView(current), true, nil
}

// ReleaseTable frees the table. An active order is cancelled first. It reports false
// when there was nothing to release.
func (c *Controller) ReleaseTable(ctx context.Context, id string) (bool, error) {
	current, err := c.tables.Get(id)
	if err != nil {
		return false, nil
	}
	if c.orders.HasActiveOrder(id) {
		_, err := c.orders.Close(ctx, id, ordersdomain.StateCancelled)
		return c.outcome(ctx, "release_table", err)
	}
	if current.State == tablesdomain.StateFree && current.Overrides.IsZero() {
		return false, nil
	}
	_, err = c.tables.Release(ctx, id)
	return c.outcome(ctx, "release_table", err)
}

// ChangeTableState sets the state by hand. A table holding an active order stays occupied.
func (c *Controller) ChangeTableState(ctx context.Context, id, state string) (TableView, bool, error) {
	target, err := tablesdomain.ParseState(state)
	if err != nil {
		return TableView{}, false, nil
	}
	if target != tablesdomain.StateOccupied && c.orders.HasActiveOrder(id) {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "table has an active order",
			slog.String("table.id", id), slog.String("state", string(target)))
		return TableView{}, false, nil
	}
	t, err := c.tables.UpdateState(ctx, id, target)
	if ok, err := c.outcome(ctx, "change_table_state", err); !ok {
		return TableView{}, false, err
	}
	return tableView(t), true, nil
}

// CreateReservation books a table unless the interval overlaps an active reservation.
func (c *Controller) CreateReservation(ctx context.Context, req ReservationRequest) (ReservationView, bool, error) {
	r, err := c.reservations.Create(ctx, reservationsapp.CreateInput{
		TableID:         req.TableID,
		ClientName:      req.ClientName,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		Phone:           req.Phone,
		PartySize:       req.PartySize,
		Notes:           req.Notes,
	})
	if ok, err := c.outcome(ctx, "create_reservation", err); !ok {
		return ReservationView{}, false, err
	}
	return reservationView(r), true, nil
}

func (c *Controller) CancelReservation(ctx context.Context, id int64) (bool, error) {
	_, err := c.reservations.Cancel(ctx, id)
	return c.outcome(ctx, "cancel_reservation", err)
}

func (c *Controller) Reservation(ctx context.Context, id int64) (ReservationView, bool, error) {
	r, err := c.reservations.Get(ctx, id)
	if ok, err := c.outcome(ctx, "get_reservation", err); !ok {
		return ReservationView{}, false, err
	}
	return reservationView(r), true, nil
}

// ListReservations returns the table's active reservations ordered by start.
func (c *Controller) ListReservations(ctx context.Context, tableID string) ([]ReservationView, error) {
	list, err := c.reservations.ForTable(ctx, tableID)
	if ok, err := c.outcome(ctx, "list_reservations", err); !ok {
		return nil, err
	}
	views := make([]ReservationView, 0, len(list))
	for _, r := range list {
		views = append(views, reservationView(r))
	}
	return views, nil
}

// OpenOrder returns the table's active order, opening one when there is none.
func (c *Controller) OpenOrder(ctx context.Context, tableID, userID string) (OrderView, bool, error) {
	return c.order(ctx, "open_order", func() (*ordersdomain.Order, error) {
		return c.orders.GetOrCreate(ctx, tableID, userID)
	})
}

func (c *Controller) AddOrderLine(ctx context.Context, orderID int64, req LineRequest) (OrderView, bool, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(req.UnitPrice))
	if err != nil {
		return OrderView{}, false, nil
	}
	return c.order(ctx, "add_order_line", func() (*ordersdomain.Order, error) {
		return c.orders.AddLine(ctx, orderID, ordersdomain.Line{
			ProductID: req.ProductID,
			Name:      req.Name,
			UnitPrice: price,
			Quantity:  req.Quantity,
			Notes:     req.Notes,
		})
	})
}

func (c *Controller) RemoveOrderLine(ctx context.Context, orderID, productID int64) (OrderView, bool, error) {
	return c.order(ctx, "remove_order_line", func() (*ordersdomain.Order, error) {
		return c.orders.RemoveLine(ctx, orderID, productID)
	})
}

func (c *Controller) SetLineQuantity(ctx context.Context, orderID, productID int64, quantity int) (OrderView, bool, error) {
	return c.order(ctx, "set_line_quantity", func() (*ordersdomain.Order, error) {
		return c.orders.SetQuantity(ctx, orderID, productID, quantity)
	})
}

func (c *Controller) ChangeOrderState(ctx context.Context, orderID int64, state string) (OrderView, bool, error) {
	target, err := ordersdomain.ParseState(state)
	if err != nil {
		return OrderView{}, false, nil
	}
	return c.order(ctx, "change_order_state", func() (*ordersdomain.Order, error) {
		return c.orders.ChangeState(ctx, orderID, target)
	})
}

// CloseOrder ends the table's active order as paid or cancelled without touching stock.
func (c *Controller) CloseOrder(ctx context.Context, tableID, outcome string) (OrderView, bool, error) {
	target, err := ordersdomain.ParseState(outcome)
	if err != nil {
		return OrderView{}, false, nil
	}
	return c.order(ctx, "close_order", func() (*ordersdomain.Order, error) {
		return c.orders.Close(ctx, tableID, target)
	})
}

func (c *Controller) ActiveOrder(tableID string) (OrderView, bool) {
	o, err := c.orders.ActiveOrder(tableID)
	if err != nil {
		return OrderView{}, false
	}
	return orderView(o), true
}

func (c *Controller) Order(ctx context.Context, orderID int64) (OrderView, bool, error) {
	return c.order(ctx, "get_order", func() (*ordersdomain.Order, error) {
		return c.orders.Get(ctx, orderID)
	})
}

// OrderHistory lists the table's orders, newest first.
func (c *Controller) OrderHistory(ctx context.Context, tableID string, limit int) ([]OrderView, error) {
	list, err := c.orders.History(ctx, tableID, limit)
	if ok, err := c.outcome(ctx, "order_history", err); !ok {
		return nil, err
	}
	views := make([]OrderView, 0, len(list))
	for _, o := range list {
		views = append(views, orderView(o))
	}
	return views, nil
}

// Settle charges the table's active order, deducting stock for every line.
func (c *Controller) Settle(ctx context.Context, tableID, userID string) (ReceiptView, bool, error) {
	receipt, err := c.settler.Settle(ctx, paymentsdomain.SettleInput{TableID: tableID, UserID: userID})
	if ok, err := c.outcome(ctx, "settle", err); !ok {
		return ReceiptView{}, false, err
	}
	return receiptView(receipt), true, nil
}

// OnTableChanged subscribes fn to single-table changes. The returned func unsubscribes.
func (c *Controller) OnTableChanged(fn func(TableView)) func() {
	sub := c.subscriber.OnTableChanged(func(t tablesdomain.CachedTable) { fn(tableView(t)) })
	return sub.Unsubscribe
}

func (c *Controller) OnTableListChanged(fn func([]TableView)) func() {
	sub := c.subscriber.OnTableListChanged(func(list []tablesdomain.CachedTable) { fn(tableViews(list)) })
	return sub.Unsubscribe
}

func (c *Controller) OnOrderChanged(fn func(OrderView)) func() {
	sub := c.subscriber.OnOrderChanged(func(o *ordersdomain.Order) {
		if o != nil {
			fn(orderView(o))
		}
	})
	return sub.Unsubscribe
}

func (c *Controller) order(ctx context.Context, op string, call func() (*ordersdomain.Order, error)) (OrderView, bool, error) {
	o, err := call()
	if ok, err := c.outcome(ctx, op, err); !ok {
		return OrderView{}, false, err
	}
	return orderView(o), true, nil
}

// outcome reports true for success, false for a business rejection, and false with
// ErrUnavailable for anything else.
func (c *Controller) outcome(ctx context.Context, op string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if isRejection(err) {
		c.logger.LogAttrs(ctx, slog.LevelDebug, "request rejected", slog.String("operation", op), slog.String("reason", err.Error()))
		return false, nil
	}
	c.logger.LogAttrs(ctx, slog.LevelError, "request failed", slog.String("operation", op), slog.String("error", err.Error()))
	return false, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

var rejections = []error{
	tablesports.ErrNotFound,
	tablesapp.ErrInvalidInput,
	tablesapp.ErrTableOccupied,
	tablesapp.ErrIDExhausted,
	ordersports.ErrNotFound,
	ordersports.ErrOrderChanged,
	ordersapp.ErrInvalidInput,
	ordersapp.ErrInvalidTransition,
	ordersapp.ErrTableNotFound,
	ordersapp.ErrTableUnavailable,
	reservationsports.ErrNotFound,
	reservationsapp.ErrInvalidInput,
	reservationsapp.ErrOverlap,
	reservationsapp.ErrNotActive,
	reservationsapp.ErrTableNotFound,
	paymentsapp.ErrInvalidInput,
	paymentsapp.ErrNoActiveOrder,
	paymentsapp.ErrEmptyOrder,
	paymentsapp.ErrInsufficientStock,
	paymentsapp.ErrUnknownProduct,
	paymentsapp.ErrOrderChanged,
}

func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
