package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Apurer/tableside/internal/domains/tables/domain"
	"github.com/Apurer/tableside/internal/domains/tables/ports"
	"github.com/Apurer/tableside/internal/platform/storage"
	"github.com/Apurer/tableside/internal/shared/locks"
)

// maxIDAttempts bounds the collision retries when generating a business id.
const maxIDAttempts = 20

// Service is the table cache: the in-memory source of truth for tables, mirrored to
// storage. Storage is always written first and the cache swapped afterwards, so a failed
// write leaves the cache untouched. The cache lock is never held across a storage call;
// per-table locks serialize mutations of one table.
type Service struct {
	repo      ports.Repository
	publisher ports.Publisher
	logger    *slog.Logger

	mu     sync.RWMutex
	tables map[string]*domain.CachedTable

	keys     *locks.Keyed
	createMu sync.Mutex
}

// Option customizes the table cache.
type Option func(*Service)

// WithLogger sets the structured logger used by the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher routes table change events to p.
func WithPublisher(p ports.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// NewService wires the table cache over its repository. Call Load before serving reads.
func NewService(repo ports.Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		tables:    map[string]*domain.CachedTable{},
		keys:      locks.NewKeyed(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load replaces the cache with the stored tables. Overrides of tables that survive the
// reload are kept.
func (s *Service) Load(ctx context.Context) error {
	stored, err := s.repo.List(ctx)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to load tables", slog.String("operation", "tables.load"), slog.String("error", err.Error()))
		return err
	}
	s.mu.Lock()
	next := make(map[string]*domain.CachedTable, len(stored))
	for _, t := range stored {
		entry := &domain.CachedTable{Table: t}
		if prev, ok := s.tables[t.ID]; ok {
			entry.Overrides = prev.Overrides
		}
		next[t.ID] = entry
	}
	s.tables = next
	s.mu.Unlock()

	s.logger.LogAttrs(ctx, slog.LevelInfo, "tables loaded", slog.Int("count", len(stored)))
	s.publisher.PublishTableListChanged(s.List())
	return nil
}

// List returns a snapshot ordered by storage row id.
func (s *Service) List() []domain.CachedTable {
	s.mu.RLock()
	list := make([]domain.CachedTable, 0, len(s.tables))
	for _, t := range s.tables {
		list = append(list, t.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].RowID == list[j].RowID {
			return list[i].ID < list[j].ID
		}
		return list[i].RowID < list[j].RowID
	})
	return list
}

// Get returns a copy of the cached table.
func (s *Service) Get(id string) (domain.CachedTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	if !ok {
		return domain.CachedTable{}, ports.ErrNotFound
	}
	return t.Clone(), nil
}

// Create stores a new free table with the next business id of the zone.
func (s *Service) Create(ctx context.Context, capacity int, zone string) (domain.CachedTable, error) {
	zone = strings.TrimSpace(zone)
	if _, err := domain.NewTable("pending", zone, capacity); err != nil {
		return domain.CachedTable{}, mapError(err)
	}
	prefix := domain.ZonePrefix(zone)

	s.createMu.Lock()
	defer s.createMu.Unlock()

	seq := domain.NextSequence(prefix, s.idsInZone(zone))
	for attempt := 0; attempt < maxIDAttempts; attempt, seq = attempt+1, seq+1 {
		id := domain.FormatID(prefix, seq)
		if s.cached(id) {
			continue
		}
		table, err := domain.NewTable(id, zone, capacity)
		if err != nil {
			return domain.CachedTable{}, mapError(err)
		}
		saved, err := s.repo.Insert(ctx, *table)
		if errors.Is(err, storage.ErrDuplicate) {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "table id collision, retrying", slog.String("table.id", id))
			continue
		}
		if err != nil {
			s.logStorageError(ctx, "tables.create", id, err)
			return domain.CachedTable{}, err
		}

		entry := &domain.CachedTable{Table: saved}
		s.mu.Lock()
		s.tables[saved.ID] = entry
		snapshot := entry.Clone()
		s.mu.Unlock()

		s.logger.LogAttrs(ctx, slog.LevelInfo, "table created", slog.String("table.id", saved.ID), slog.String("zone", zone))
		s.publisher.PublishTableChanged(snapshot)
		s.publisher.PublishTableListChanged(s.List())
		return snapshot, nil
	}
	return domain.CachedTable{}, fmt.Errorf("%w: %s", ErrIDExhausted, zone)
}

// Delete removes a table that is not occupied.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.keys.Lock(id)
	current, err := s.Get(id)
	if err != nil {
		unlock()
		return err
	}
	if current.State == domain.StateOccupied {
		unlock()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "refusing to delete occupied table", slog.String("table.id", id))
		return ErrTableOccupied
	}
	if err := s.repo.Delete(ctx, current.RowID); err != nil && !errors.Is(err, ports.ErrNotFound) {
		unlock()
		s.logStorageError(ctx, "tables.delete", id, err)
		return err
	}
	s.mu.Lock()
	delete(s.tables, id)
	s.mu.Unlock()
	unlock()

	s.logger.LogAttrs(ctx, slog.LevelInfo, "table deleted", slog.String("table.id", id))
	s.publisher.PublishTableListChanged(s.List())
	return nil
}

// SetAlias sets or, with nil or an empty alias, clears the display alias. Cache only.
func (s *Service) SetAlias(ctx context.Context, id string, alias *string) (domain.CachedTable, error) {
	var value *string
	if alias != nil && strings.TrimSpace(*alias) != "" {
		trimmed := strings.TrimSpace(*alias)
		value = &trimmed
	}
	return s.mutateOverrides(ctx, id, func(o *domain.Overrides) { o.Alias = value })
}

// SetTemporaryCapacity sets or, with nil, clears the temporary capacity. Cache only.
func (s *Service) SetTemporaryCapacity(ctx context.Context, id string, capacity *int) (domain.CachedTable, error) {
	var value *int
	if capacity != nil {
		if *capacity <= 0 {
			return domain.CachedTable{}, mapError(domain.ErrInvalidCapacity)
		}
		n := *capacity
		value = &n
	}
	return s.mutateOverrides(ctx, id, func(o *domain.Overrides) { o.TemporaryCapacity = value })
}

// UpdateCapacity changes the persisted seating capacity.
func (s *Service) UpdateCapacity(ctx context.Context, id string, capacity int) (domain.CachedTable, error) {
	if capacity <= 0 {
		return domain.CachedTable{}, mapError(domain.ErrInvalidCapacity)
	}
	unlock := s.keys.Lock(id)
	current, err := s.Get(id)
	if err != nil {
		unlock()
		return domain.CachedTable{}, err
	}
	if current.Capacity != capacity {
		if err := s.repo.UpdateCapacity(ctx, current.RowID, capacity); err != nil {
			unlock()
			s.logStorageError(ctx, "tables.update_capacity", id, err)
			return domain.CachedTable{}, err
		}
	}
	updated, ok := s.swap(id, func(t *domain.CachedTable) { t.Capacity = capacity })
	unlock()
	if !ok {
		return domain.CachedTable{}, ports.ErrNotFound
	}
	s.publisher.PublishTableChanged(updated)
	return updated, nil
}

// UpdateState persists and caches an explicit state change.
func (s *Service) UpdateState(ctx context.Context, id string, state domain.State) (domain.CachedTable, error) {
	if !state.Valid() {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "rejected invalid table state", slog.String("table.id", id), slog.String("state", string(state)))
		return domain.CachedTable{}, mapError(fmt.Errorf("%w: %q", domain.ErrInvalidState, state))
	}
	updated, _, err := s.setState(ctx, id, func(domain.CachedTable) (domain.State, bool) { return state, true }, false)
	return updated, err
}

// ApplyDerivedState applies a state computed by the engine. Tables under maintenance are
// left alone. It reports whether the state changed.
func (s *Service) ApplyDerivedState(ctx context.Context, id string, state domain.State) (bool, error) {
	if !state.Valid() {
		return false, mapError(domain.ErrInvalidState)
	}
	_, changed, err := s.setState(ctx, id, func(current domain.CachedTable) (domain.State, bool) {
		if current.State == domain.StateMaintenance {
			return "", false
		}
		return state, true
	}, false)
	return changed, err
}

// Release frees the table and clears its overrides.
func (s *Service) Release(ctx context.Context, id string) (domain.CachedTable, error) {
	updated, _, err := s.setState(ctx, id, func(domain.CachedTable) (domain.State, bool) { return domain.StateFree, true }, true)
	return updated, err
}

// setState is the single write path for table state. decide sees the current table under
// the per-table lock and returns the target state, or false to leave the table alone.
func (s *Service) setState(ctx context.Context, id string, decide func(domain.CachedTable) (domain.State, bool), clearOverrides bool) (domain.CachedTable, bool, error) {
	unlock := s.keys.Lock(id)
	current, err := s.Get(id)
	if err != nil {
		unlock()
		return domain.CachedTable{}, false, err
	}
	target, apply := decide(current)
	if !apply || (target == current.State && (!clearOverrides || current.Overrides.IsZero())) {
		unlock()
		return current, false, nil
	}
	if target != current.State {
		if err := s.repo.UpdateState(ctx, current.RowID, target); err != nil {
			unlock()
			s.logStorageError(ctx, "tables.update_state", id, err)
			return domain.CachedTable{}, false, err
		}
	}
	updated, ok := s.swap(id, func(t *domain.CachedTable) {
		t.State = target
		if clearOverrides {
			t.Overrides = domain.Overrides{}
		}
	})
	unlock()
	if !ok {
		return domain.CachedTable{}, false, ports.ErrNotFound
	}
	if target != current.State {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "table state changed",
			slog.String("table.id", id), slog.String("from", string(current.State)), slog.String("to", string(target)))
	}
	s.publisher.PublishTableChanged(updated)
	return updated, target != current.State, nil
}

func (s *Service) mutateOverrides(ctx context.Context, id string, mutate func(*domain.Overrides)) (domain.CachedTable, error) {
	unlock := s.keys.Lock(id)
	updated, ok := s.swap(id, func(t *domain.CachedTable) { mutate(&t.Overrides) })
	unlock()
	if !ok {
		return domain.CachedTable{}, ports.ErrNotFound
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "table overrides changed", slog.String("table.id", id))
	s.publisher.PublishTableChanged(updated)
	return updated, nil
}

// swap replaces the cache entry with a mutated copy and returns a snapshot of it.
func (s *Service) swap(id string, mutate func(*domain.CachedTable)) (domain.CachedTable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tables[id]
	if !ok {
		return domain.CachedTable{}, false
	}
	next := current.Clone()
	mutate(&next)
	s.tables[id] = &next
	return next.Clone(), true
}

func (s *Service) idsInZone(zone string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for _, t := range s.tables {
		if strings.EqualFold(t.Zone, zone) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (s *Service) cached(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[id]
	return ok
}

func (s *Service) logStorageError(ctx context.Context, op, id string, err error) {
	s.logger.LogAttrs(ctx, slog.LevelError, "table storage failure",
		slog.String("operation", op), slog.String("table.id", id), slog.String("error", err.Error()))
}

type nopPublisher struct{}

func (nopPublisher) PublishTableChanged(domain.CachedTable)     {}
func (nopPublisher) PublishTableListChanged([]domain.CachedTable) {}
