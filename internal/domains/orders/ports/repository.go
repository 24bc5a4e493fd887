package ports

import (
	"context"
	"errors"

	"github.com/Apurer/tableside/internal/domains/orders/domain"
)

var ErrNotFound = errors.New("order not found")

// Repository persists order headers together with their lines.
type Repository interface {
	// Save inserts the order when its ID is zero, otherwise updates it. Lines are fully
	// replaced in the same transaction as the header.
	Save(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	ListActive(ctx context.Context) ([]*domain.Order, error)
	ListByTable(ctx context.Context, tableID string, limit int) ([]*domain.Order, error)
}
