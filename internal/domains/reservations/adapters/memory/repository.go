package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Apurer/tableside/internal/domains/reservations/domain"
	"github.com/Apurer/tableside/internal/domains/reservations/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository is an in-memory reservation persistence adapter.
type Repository struct {
	mu           sync.RWMutex
	reservations map[int64]domain.Reservation
	nextID       int64
}

func NewRepository() *Repository {
	return &Repository{reservations: map[int64]domain.Reservation{}}
}

func (r *Repository) Insert(_ context.Context, res domain.Reservation) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	res.ID = r.nextID
	r.reservations[res.ID] = res
	return res, nil
}

func (r *Repository) GetByID(_ context.Context, id int64) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return domain.Reservation{}, ports.ErrNotFound
	}
	return res, nil
}

func (r *Repository) UpdateState(_ context.Context, id int64, state domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return ports.ErrNotFound
	}
	res.State = state
	r.reservations[id] = res
	return nil
}

func (r *Repository) ListActiveStarting(_ context.Context, tableID string, from, to time.Time) ([]domain.Reservation, error) {
	return r.active(func(res domain.Reservation) bool {
		return res.TableID == tableID && !res.Start.Before(from) && res.Start.Before(to)
	}), nil
}

func (r *Repository) ListActiveSince(_ context.Context, from time.Time) ([]domain.Reservation, error) {
	return r.active(func(res domain.Reservation) bool { return !res.Start.Before(from) }), nil
}

func (r *Repository) active(keep func(domain.Reservation) bool) []domain.Reservation {
	r.mu.RLock()
	list := make([]domain.Reservation, 0)
	for _, res := range r.reservations {
		if res.State == domain.StateActive && keep(res) {
			list = append(list, res)
		}
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].TableID != list[j].TableID {
			return list[i].TableID < list[j].TableID
		}
		return list[i].Start.Before(list[j].Start)
	})
	return list
}
