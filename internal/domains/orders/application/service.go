package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Apurer/tableside/internal/domains/orders/domain"
	"github.com/Apurer/tableside/internal/domains/orders/ports"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
	"github.com/Apurer/tableside/internal/shared/locks"
)

// Service owns the active order of every table. Each mutation works on a clone that is
// persisted before it replaces the cached order, so a failed write leaves the previous
// order in place. Mutations of one table are serialized by a per-table lock; the map lock
// is only taken for lookups and the final swap.
type Service struct {
	repo      ports.Repository
	tables    ports.TableDirectory
	publisher ports.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	active map[string]*domain.Order
	byID   map[int64]string

	keys *locks.Keyed
}

// Option customizes the order lifecycle service.
type Option func(*Service)

// WithLogger sets the structured logger used by the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher routes order change events to p.
func WithPublisher(p ports.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the orders service with its repository and the table cache it drives.
func NewService(repo ports.Repository, tables ports.TableDirectory, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		tables:    tables,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
		active:    map[string]*domain.Order{},
		byID:      map[int64]string{},
		keys:      locks.NewKeyed(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ ports.Service = (*Service)(nil)

// Load restores the active orders from storage. When storage holds more than one active
// order for a table, the newest wins and the others are reported.
func (s *Service) Load(ctx context.Context) error {
	stored, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logStorageError(ctx, "orders.load", "", 0, err)
		return err
	}
	active := make(map[string]*domain.Order, len(stored))
	byID := make(map[int64]string, len(stored))
	for _, o := range stored {
		if prev, ok := active[o.TableID]; ok {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "multiple active orders for table, keeping newest",
				slog.String("table.id", o.TableID), slog.Int64("kept", max(prev.ID, o.ID)), slog.Int64("ignored", min(prev.ID, o.ID)))
			if prev.ID > o.ID {
				continue
			}
			delete(byID, prev.ID)
		}
		active[o.TableID] = o
		byID[o.ID] = o.TableID
	}
	s.mu.Lock()
	s.active = active
	s.byID = byID
	s.mu.Unlock()
	s.logger.LogAttrs(ctx, slog.LevelInfo, "active orders loaded", slog.Int("count", len(active)))
	return nil
}

// GetOrCreate returns the table's active order, opening one when there is none. Opening
// an order marks the table occupied.
func (s *Service) GetOrCreate(ctx context.Context, tableID, userID string) (*domain.Order, error) {
	unlock := s.keys.Lock(tableID)
	table, err := s.tables.Get(tableID)
	if err != nil {
		unlock()
		return nil, mapError(err)
	}
	if existing := s.cached(tableID); existing != nil {
		unlock()
		// A previous occupy may have failed after the order was stored; repair it, but
		// never over maintenance.
		if table.State == tablesdomain.StateFree || table.State == tablesdomain.StateReserved {
			if err := s.occupy(ctx, tableID); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if table.State == tablesdomain.StateMaintenance {
		unlock()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "refusing to open order on table under maintenance", slog.String("table.id", tableID))
		return nil, ErrTableUnavailable
	}

	order, err := domain.NewOrder(tableID, userID, s.now())
	if err != nil {
		unlock()
		return nil, mapError(err)
	}
	saved, err := s.repo.Save(ctx, order)
	if err != nil {
		unlock()
		s.logStorageError(ctx, "orders.create", tableID, 0, err)
		return nil, err
	}
	s.store(saved)
	unlock()

	s.logger.LogAttrs(ctx, slog.LevelInfo, "order opened",
		slog.Int64("order.id", saved.ID), slog.String("table.id", tableID), slog.String("user.id", userID))
	if err := s.occupy(ctx, tableID); err != nil {
		return nil, err
	}
	s.publisher.PublishOrderChanged(saved)
	return saved.Clone(), nil
}

// AddLine merges the line into the order, increasing the quantity when the product is
// already on it.
func (s *Service) AddLine(ctx context.Context, orderID int64, line domain.Line) (*domain.Order, error) {
	return s.mutate(ctx, "orders.add_line", orderID, func(o *domain.Order) error {
		return o.AddLine(line.ProductID, line.Name, line.UnitPrice, line.Quantity, line.Notes)
	})
}

// RemoveLine drops the product's line from an open order.
func (s *Service) RemoveLine(ctx context.Context, orderID, productID int64) (*domain.Order, error) {
	return s.mutate(ctx, "orders.remove_line", orderID, func(o *domain.Order) error {
		return o.RemoveLine(productID)
	})
}

// SetQuantity overwrites a line's quantity; zero or less removes the line.
func (s *Service) SetQuantity(ctx context.Context, orderID, productID int64, quantity int) (*domain.Order, error) {
	return s.mutate(ctx, "orders.set_quantity", orderID, func(o *domain.Order) error {
		return o.SetQuantity(productID, quantity)
	})
}

// Close ends the table's active order as paid or cancelled, evicts it and frees the table.
func (s *Service) Close(ctx context.Context, tableID string, outcome domain.State) (*domain.Order, error) {
	if outcome != domain.StatePaid && outcome != domain.StateCancelled {
		return nil, fmt.Errorf("%w: close outcome must be paid or cancelled, got %q", ErrInvalidInput, outcome)
	}
	unlock := s.keys.Lock(tableID)
	current := s.cached(tableID)
	if current == nil {
		unlock()
		return nil, ports.ErrNotFound
	}
	closed, err := s.finish(ctx, current, outcome)
	unlock()
	if err != nil {
		return nil, err
	}
	return s.afterClose(ctx, closed), nil
}

// ChangeState applies one step of the order state machine. Moving an active order to paid
// or cancelled closes it; paid orders already evicted from the cache can still be closed.
func (s *Service) ChangeState(ctx context.Context, orderID int64, state domain.State) (*domain.Order, error) {
	if tableID, ok := s.tableOf(orderID); ok {
		unlock := s.keys.Lock(tableID)
		current := s.cached(tableID)
		if current == nil || current.ID != orderID {
			unlock()
			return s.changeStoredState(ctx, orderID, state)
		}
		if !state.Active() {
			closed, err := s.finish(ctx, current, state)
			unlock()
			if err != nil {
				return nil, err
			}
			return s.afterClose(ctx, closed), nil
		}
		next := current.Clone()
		if err := next.Transition(state, s.now()); err != nil {
			unlock()
			return nil, s.rejectTransition(ctx, current, state, err)
		}
		saved, err := s.repo.Save(ctx, next)
		if err != nil {
			unlock()
			s.logStorageError(ctx, "orders.change_state", tableID, orderID, err)
			return nil, err
		}
		s.store(saved)
		unlock()
		s.publisher.PublishOrderChanged(saved)
		return saved.Clone(), nil
	}
	return s.changeStoredState(ctx, orderID, state)
}

// MarkPaid settles the order when it still carries the priced content. It is safe to
// repeat: an order that is already paid in storage is returned as is.
func (s *Service) MarkPaid(ctx context.Context, orderID int64, fingerprint string) (*domain.Order, error) {
	tableID, ok := s.tableOf(orderID)
	if !ok {
		return s.storedPaid(ctx, orderID)
	}
	unlock := s.keys.Lock(tableID)
	current := s.cached(tableID)
	if current == nil || current.ID != orderID {
		unlock()
		return s.storedPaid(ctx, orderID)
	}
	if fingerprint != "" && current.Fingerprint() != fingerprint {
		unlock()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "order changed during settlement",
			slog.Int64("order.id", orderID), slog.String("table.id", tableID))
		return nil, ports.ErrOrderChanged
	}
	closed, err := s.finish(ctx, current, domain.StatePaid)
	unlock()
	if err != nil {
		return nil, err
	}
	return s.afterClose(ctx, closed), nil
}

// ActiveOrder returns a copy of the table's active order.
func (s *Service) ActiveOrder(tableID string) (*domain.Order, error) {
	if o := s.cached(tableID); o != nil {
		return o, nil
	}
	return nil, ports.ErrNotFound
}

// HasActiveOrder reports whether the table holds a live order.
func (s *Service) HasActiveOrder(tableID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[tableID]
	return ok
}

// ListActive returns copies of every active order ordered by id.
func (s *Service) ListActive() []*domain.Order {
	s.mu.RLock()
	list := make([]*domain.Order, 0, len(s.active))
	for _, o := range s.active {
		list = append(list, o.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Get looks in the active cache first and falls back to stored history.
func (s *Service) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	if tableID, ok := s.tableOf(orderID); ok {
		if o := s.cached(tableID); o != nil && o.ID == orderID {
			return o, nil
		}
	}
	return s.repo.GetByID(ctx, orderID)
}

// History lists the table's orders, newest first.
func (s *Service) History(ctx context.Context, tableID string, limit int) ([]*domain.Order, error) {
	return s.repo.ListByTable(ctx, tableID, limit)
}

func (s *Service) mutate(ctx context.Context, op string, orderID int64, apply func(*domain.Order) error) (*domain.Order, error) {
	tableID, ok := s.tableOf(orderID)
	if !ok {
		return nil, ports.ErrNotFound
	}
	unlock := s.keys.Lock(tableID)
	current := s.cached(tableID)
	if current == nil || current.ID != orderID {
		unlock()
		return nil, ports.ErrNotFound
	}
	next := current.Clone()
	if err := apply(next); err != nil {
		unlock()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "order change rejected",
			slog.String("operation", op), slog.Int64("order.id", orderID), slog.String("error", err.Error()))
		return nil, mapError(err)
	}
	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		unlock()
		s.logStorageError(ctx, op, tableID, orderID, err)
		return nil, err
	}
	s.store(saved)
	unlock()
	s.publisher.PublishOrderChanged(saved)
	return saved.Clone(), nil
}

// finish persists the terminal state and evicts the order. Caller holds the table lock.
func (s *Service) finish(ctx context.Context, current *domain.Order, outcome domain.State) (*domain.Order, error) {
	next := current.Clone()
	if err := next.Transition(outcome, s.now()); err != nil {
		return nil, s.rejectTransition(ctx, current, outcome, err)
	}
	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		s.logStorageError(ctx, "orders.close", current.TableID, current.ID, err)
		return nil, err
	}
	s.evict(saved)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "order closed",
		slog.Int64("order.id", saved.ID), slog.String("table.id", saved.TableID),
		slog.String("outcome", string(outcome)), slog.String("total", saved.Total().StringFixed(2)))
	return saved, nil
}

// afterClose frees the table and notifies. A release failure is logged rather than
// returned because the order itself is already final in storage.
func (s *Service) afterClose(ctx context.Context, closed *domain.Order) *domain.Order {
	if _, err := s.tables.Release(ctx, closed.TableID); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to release table after closing order",
			slog.String("operation", "orders.release_table"), slog.String("table.id", closed.TableID),
			slog.Int64("order.id", closed.ID), slog.String("error", err.Error()))
	}
	s.publisher.PublishOrderChanged(closed)
	return closed.Clone()
}

func (s *Service) changeStoredState(ctx context.Context, orderID int64, state domain.State) (*domain.Order, error) {
	unlock := s.keys.Lock(historyKey(orderID))
	defer unlock()
	stored, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logStorageError(ctx, "orders.get", "", orderID, err)
		}
		return nil, err
	}
	if stored.State.Active() {
		// Active in storage but not in the cache: the cache was not hydrated. Refuse rather
		// than bypass the table lock.
		return nil, s.rejectTransition(ctx, stored, state, domain.ErrInvalidTransition)
	}
	next := stored.Clone()
	if err := next.Transition(state, s.now()); err != nil {
		return nil, s.rejectTransition(ctx, stored, state, err)
	}
	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		s.logStorageError(ctx, "orders.change_state", stored.TableID, orderID, err)
		return nil, err
	}
	s.publisher.PublishOrderChanged(saved)
	return saved.Clone(), nil
}

func (s *Service) storedPaid(ctx context.Context, orderID int64) (*domain.Order, error) {
	stored, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logStorageError(ctx, "orders.get", "", orderID, err)
		}
		return nil, err
	}
	if stored.State == domain.StatePaid || stored.State == domain.StateClosed {
		return stored, nil
	}
	return nil, s.rejectTransition(ctx, stored, domain.StatePaid, domain.ErrInvalidTransition)
}

func (s *Service) occupy(ctx context.Context, tableID string) error {
	if _, err := s.tables.UpdateState(ctx, tableID, tablesdomain.StateOccupied); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to mark table occupied",
			slog.String("operation", "orders.occupy_table"), slog.String("table.id", tableID), slog.String("error", err.Error()))
		return mapError(err)
	}
	return nil
}

func (s *Service) rejectTransition(ctx context.Context, o *domain.Order, to domain.State, err error) error {
	s.logger.LogAttrs(ctx, slog.LevelWarn, "rejected order transition",
		slog.Int64("order.id", o.ID), slog.String("from", string(o.State)), slog.String("to", string(to)))
	return mapError(err)
}

func (s *Service) cached(tableID string) *domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.active[tableID]; ok {
		return o.Clone()
	}
	return nil
}

func (s *Service) tableOf(orderID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tableID, ok := s.byID[orderID]
	return tableID, ok
}

func (s *Service) store(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[o.TableID] = o.Clone()
	s.byID[o.ID] = o.TableID
}

func (s *Service) evict(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, o.TableID)
	delete(s.byID, o.ID)
}

func (s *Service) logStorageError(ctx context.Context, op, tableID string, orderID int64, err error) {
	attrs := []slog.Attr{slog.String("operation", op), slog.String("error", err.Error())}
	if tableID != "" {
		attrs = append(attrs, slog.String("table.id", tableID))
	}
	if orderID != 0 {
		attrs = append(attrs, slog.Int64("order.id", orderID))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, "order storage failure", attrs...)
}

func historyKey(orderID int64) string {
	return "order:" + strconv.FormatInt(orderID, 10)
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderChanged(*domain.Order) {}
