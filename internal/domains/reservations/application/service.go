package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/Apurer/tableside/internal/domains/reservations/domain"
	"github.com/Apurer/tableside/internal/domains/reservations/ports"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
	"github.com/Apurer/tableside/internal/shared/locks"
)

var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// trigger tells applyDerived what prompted the recomputation.
type trigger int

const (
	triggerReconcile trigger = iota
	triggerCreate
	triggerCancel
)

// CreateInput carries the fields of a new reservation.
type CreateInput struct {
	TableID         string
	ClientName      string
	Start           time.Time
	DurationMinutes int
	Phone           string
	PartySize       int
	Notes           string
}

// Service schedules reservations and keeps table state in line with them. Creations and
// cancellations on one table are serialized so two overlapping requests cannot both pass
// the overlap check.
type Service struct {
	repo   ports.Repository
	tables ports.TableDirectory
	orders ports.ActiveOrderChecker
	logger *slog.Logger
	now    func() time.Time
	keys   *locks.Keyed
}

// Option customizes the reservation scheduler.
type Option func(*Service)

// WithLogger sets the structured logger used by the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
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

// NewService wires the scheduler with its repository, the table cache, and the order check
// that keeps tables with live orders occupied.
func NewService(repo ports.Repository, tables ports.TableDirectory, orders ports.ActiveOrderChecker, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		tables: tables,
		orders: orders,
		logger: slog.Default(),
		now:    time.Now,
		keys:   locks.NewKeyed(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create stores an active reservation unless it overlaps another one on the table, then
// refreshes the table state from its reservations.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Reservation, error) {
	res, err := domain.NewReservation(in.TableID, in.ClientName, in.Start.UTC().Truncate(time.Second),
		in.DurationMinutes, in.Phone, in.PartySize, in.Notes)
	if err != nil {
		return domain.Reservation{}, mapError(err)
	}
	if _, err := s.tables.Get(res.TableID); err != nil {
		return domain.Reservation{}, mapError(err)
	}

	unlock := s.keys.Lock(res.TableID)
	conflict, err := s.conflicting(ctx, res.TableID, res.Start, res.End())
	if err != nil {
		unlock()
		s.logStorageError(ctx, "reservations.overlap", res.TableID, err)
		return domain.Reservation{}, err
	}
	if conflict != nil {
		unlock()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "reservation rejected, interval overlaps",
			slog.String("table.id", res.TableID), slog.Int64("conflicts_with", conflict.ID),
			slog.Time("start", res.Start), slog.Int("duration_minutes", res.DurationMinutes))
		return domain.Reservation{}, ErrOverlap
	}
	saved, err := s.repo.Insert(ctx, *res)
	unlock()
	if err != nil {
		s.logStorageError(ctx, "reservations.create", res.TableID, err)
		return domain.Reservation{}, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "reservation created",
		slog.Int64("reservation.id", saved.ID), slog.String("table.id", saved.TableID), slog.Time("start", saved.Start))
	if err := s.refreshTable(ctx, saved.TableID, triggerCreate); err != nil {
		return saved, err
	}
	return saved, nil
}

// Overlaps reports whether [start, start+duration) intersects an active reservation of
// the table.
func (s *Service) Overlaps(ctx context.Context, tableID string, start time.Time, durationMinutes int) (bool, error) {
	start = start.UTC().Truncate(time.Second)
	conflict, err := s.conflicting(ctx, tableID, start, start.Add(time.Duration(durationMinutes)*time.Minute))
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

// Cancel marks the reservation cancelled and recomputes the table state from the
// reservations that remain.
func (s *Service) Cancel(ctx context.Context, id int64) (domain.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	unlock := s.keys.Lock(res.TableID)
	res, err = s.repo.GetByID(ctx, id)
	if err != nil {
		unlock()
		return domain.Reservation{}, err
	}
	if res.State != domain.StateActive {
		unlock()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "reservation already cancelled", slog.Int64("reservation.id", id))
		return domain.Reservation{}, ErrNotActive
	}
	if err := s.repo.UpdateState(ctx, id, domain.StateCancelled); err != nil {
		unlock()
		s.logStorageError(ctx, "reservations.cancel", res.TableID, err)
		return domain.Reservation{}, err
	}
	unlock()
	res.State = domain.StateCancelled

	s.logger.LogAttrs(ctx, slog.LevelInfo, "reservation cancelled",
		slog.Int64("reservation.id", id), slog.String("table.id", res.TableID))
	if err := s.refreshTable(ctx, res.TableID, triggerCancel); err != nil {
		return res, err
	}
	return res, nil
}

// Get returns one reservation.
func (s *Service) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

// ActiveByTable groups the active reservations that can still affect a table by table,
// with one storage read. Those that started more than MaxDuration ago are skipped.
func (s *Service) ActiveByTable(ctx context.Context) (map[string][]domain.Reservation, error) {
	active, err := s.repo.ListActiveSince(ctx, s.now().Add(-domain.MaxDuration))
	if err != nil {
		s.logStorageError(ctx, "reservations.active_by_table", "", err)
		return nil, err
	}
	grouped := make(map[string][]domain.Reservation)
	for _, r := range active {
		grouped[r.TableID] = append(grouped[r.TableID], r)
	}
	return grouped, nil
}

// ForTable lists the table's active reservations that have not been over for more than
// MaxDuration, ordered by start.
func (s *Service) ForTable(ctx context.Context, tableID string) ([]domain.Reservation, error) {
	list, err := s.repo.ListActiveStarting(ctx, tableID, s.now().Add(-domain.MaxDuration), endOfTime)
	if err != nil {
		s.logStorageError(ctx, "reservations.for_table", tableID, err)
		return nil, err
	}
	return list, nil
}

// Reconcile applies the reservation-derived state to every table using one batch read.
// It returns how many tables changed state.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	grouped, err := s.ActiveByTable(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	var firstErr error
	for _, table := range s.tables.List() {
		reservations, ok := grouped[table.ID]
		if !ok {
			reservations = []domain.Reservation{}
		}
		didChange, err := s.applyDerived(ctx, table, reservations, triggerReconcile)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if didChange {
			changed++
		}
	}
	if changed > 0 {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "reservation reconciliation applied", slog.Int("tables_changed", changed))
	}
	return changed, firstErr
}

// refreshTable recomputes one table from its stored reservations after a reservation change.
func (s *Service) refreshTable(ctx context.Context, tableID string, by trigger) error {
	table, err := s.tables.Get(tableID)
	if err != nil {
		return mapError(err)
	}
	reservations, err := s.ForTable(ctx, tableID)
	if err != nil {
		return err
	}
	_, err = s.applyDerived(ctx, table, reservations, by)
	return err
}

// applyDerived decides the table's state from its reservations. Maintenance and tables
// held by a live order are never touched, and a new reservation leaves an occupied table
// occupied even when nobody has ordered yet. Without reservations a create or cancel frees
// the table, while the periodic pass only clears a stale reserved.
func (s *Service) applyDerived(ctx context.Context, table tablesdomain.CachedTable, reservations []domain.Reservation, by trigger) (bool, error) {
	if table.State == tablesdomain.StateMaintenance {
		return false, nil
	}
	if s.orders != nil && s.orders.HasActiveOrder(table.ID) {
		return false, nil
	}
	if by == triggerCreate && table.State == tablesdomain.StateOccupied {
		return false, nil
	}
	var target tablesdomain.State
	if len(reservations) == 0 {
		if by == triggerReconcile && table.State != tablesdomain.StateReserved {
			return false, nil
		}
		target = tablesdomain.StateFree
	} else {
		target = domain.DeriveTableState(reservations, s.now())
	}
	if target == table.State {
		return false, nil
	}
	changed, err := s.tables.ApplyDerivedState(ctx, table.ID, target)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to apply reservation state",
			slog.String("operation", "reservations.apply_state"), slog.String("table.id", table.ID), slog.String("error", err.Error()))
		return false, err
	}
	return changed, nil
}

// conflicting returns the first active reservation of the table intersecting [start, end).
// Reservations never exceed MaxDuration, so only those starting after start-MaxDuration
// can reach into the interval.
func (s *Service) conflicting(ctx context.Context, tableID string, start, end time.Time) (*domain.Reservation, error) {
	candidates, err := s.repo.ListActiveStarting(ctx, tableID, start.Add(-domain.MaxDuration), end)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].Overlaps(start, end) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *Service) logStorageError(ctx context.Context, op, tableID string, err error) {
	attrs := []slog.Attr{slog.String("operation", op), slog.String("error", err.Error())}
	if tableID != "" {
		attrs = append(attrs, slog.String("table.id", tableID))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, "reservation storage failure", attrs...)
}
