package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Apurer/tableside/internal/domains/inventory/domain"
	"github.com/Apurer/tableside/internal/domains/inventory/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository keeps products and stock movements in memory.
type Repository struct {
	mu         sync.Mutex
	products   map[int64]domain.Product
	movements  []domain.Movement
	nextID     int64
	nextMoveID int64
	now        func() time.Time
}

func NewRepository() *Repository {
	return &Repository{products: map[int64]domain.Product{}, now: time.Now}
}

func (r *Repository) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, ports.ErrNotFound
	}
	return p, nil
}

func (r *Repository) SaveProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if _, ok := r.products[p.ID]; !ok {
		return domain.Product{}, ports.ErrNotFound
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *Repository) ListProducts(_ context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	list := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		list = append(list, p)
	}
	r.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *Repository) Deduct(_ context.Context, req ports.DeductRequest) ([]domain.Movement, error) {
	demand, err := domain.MergeDemand(req.Demand)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.bySettlement(req.SettlementID, domain.MovementSale); len(existing) > 0 {
		return existing, nil
	}
	for _, d := range demand {
		if _, ok := r.products[d.ProductID]; !ok {
			return nil, fmt.Errorf("%w: %d", ports.ErrNotFound, d.ProductID)
		}
	}
	if err := domain.CheckDemand(r.products, demand); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	moves := make([]domain.Movement, 0, len(demand))
	for _, d := range demand {
		p := r.products[d.ProductID]
		moves = append(moves, r.record(domain.Movement{
			ProductID:     p.ID,
			Kind:          domain.MovementSale,
			Quantity:      d.Quantity,
			PreviousStock: p.Stock,
			NewStock:      p.Stock - d.Quantity,
			UserID:        req.UserID,
			OrderID:       req.OrderID,
			SettlementID:  req.SettlementID,
			CreatedAt:     now,
		}))
		p.Stock -= d.Quantity
		r.products[p.ID] = p
	}
	return moves, nil
}

func (r *Repository) Restock(_ context.Context, settlementID, userID string) ([]domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if done := r.bySettlement(settlementID, domain.MovementCompensation); len(done) > 0 {
		return done, nil
	}
	now := r.now().UTC()
	var moves []domain.Movement
	for _, sale := range r.bySettlement(settlementID, domain.MovementSale) {
		p, ok := r.products[sale.ProductID]
		if !ok {
			continue
		}
		moves = append(moves, r.record(domain.Movement{
			ProductID:     p.ID,
			Kind:          domain.MovementCompensation,
			Quantity:      sale.Quantity,
			PreviousStock: p.Stock,
			NewStock:      p.Stock + sale.Quantity,
			UserID:        userID,
			OrderID:       sale.OrderID,
			SettlementID:  settlementID,
			CreatedAt:     now,
		}))
		p.Stock += sale.Quantity
		r.products[p.ID] = p
	}
	return moves, nil
}

func (r *Repository) MovementsBySettlement(_ context.Context, settlementID string) ([]domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []domain.Movement
	for _, m := range r.movements {
		if m.SettlementID == settlementID {
			list = append(list, m)
		}
	}
	return list, nil
}

// record appends m with a fresh id. Caller holds r.mu.
func (r *Repository) record(m domain.Movement) domain.Movement {
	r.nextMoveID++
	m.ID = r.nextMoveID
	r.movements = append(r.movements, m)
	return m
}

// bySettlement filters movements of one kind. Caller holds r.mu.
func (r *Repository) bySettlement(settlementID string, kind domain.MovementKind) []domain.Movement {
	var list []domain.Movement
	for _, m := range r.movements {
		if m.SettlementID == settlementID && m.Kind == kind {
			list = append(list, m)
		}
	}
	return list
}
