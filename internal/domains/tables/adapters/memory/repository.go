package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Apurer/tableside/internal/domains/tables/domain"
	"github.com/Apurer/tableside/internal/domains/tables/ports"
	"github.com/Apurer/tableside/internal/platform/storage"
)

var _ ports.Repository = (*Repository)(nil)

// Repository is an in-memory table persistence adapter.
type Repository struct {
	mu     sync.RWMutex
	tables map[int64]domain.Table
	nextID int64
}

func NewRepository() *Repository {
	return &Repository{tables: map[int64]domain.Table{}}
}

func (r *Repository) List(_ context.Context) ([]domain.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]domain.Table, 0, len(r.tables))
	for _, t := range r.tables {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RowID < list[j].RowID })
	return list, nil
}

func (r *Repository) Insert(_ context.Context, table domain.Table) (domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tables {
		if existing.ID == table.ID {
			return domain.Table{}, storage.ErrDuplicate
		}
	}
	r.nextID++
	table.RowID = r.nextID
	r.tables[table.RowID] = table
	return table, nil
}

func (r *Repository) UpdateState(_ context.Context, rowID int64, state domain.State) error {
	return r.update(rowID, func(t *domain.Table) { t.State = state })
}

func (r *Repository) UpdateCapacity(_ context.Context, rowID int64, capacity int) error {
	return r.update(rowID, func(t *domain.Table) { t.Capacity = capacity })
}

func (r *Repository) Delete(_ context.Context, rowID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[rowID]; !ok {
		return ports.ErrNotFound
	}
	delete(r.tables, rowID)
	return nil
}

func (r *Repository) update(rowID int64, mutate func(*domain.Table)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[rowID]
	if !ok {
		return ports.ErrNotFound
	}
	mutate(&t)
	r.tables[rowID] = t
	return nil
}
