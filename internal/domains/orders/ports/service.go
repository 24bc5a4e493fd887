package ports

import (
	"context"
	"errors"

	"github.com/Apurer/tableside/internal/domains/orders/domain"
)

// ErrOrderChanged is returned by MarkPaid when the order was edited after it was priced.
var ErrOrderChanged = errors.New("order changed since it was priced")

// Service exposes the order lifecycle to adapters.
type Service interface {
	GetOrCreate(ctx context.Context, tableID, userID string) (*domain.Order, error)
	AddLine(ctx context.Context, orderID int64, line domain.Line) (*domain.Order, error)
	RemoveLine(ctx context.Context, orderID, productID int64) (*domain.Order, error)
	SetQuantity(ctx context.Context, orderID, productID int64, quantity int) (*domain.Order, error)
	Close(ctx context.Context, tableID string, outcome domain.State) (*domain.Order, error)
	ChangeState(ctx context.Context, orderID int64, state domain.State) (*domain.Order, error)
	// MarkPaid closes the order as paid provided its content still matches fingerprint.
	// Calling it again for an order that is already paid returns the paid order.
	MarkPaid(ctx context.Context, orderID int64, fingerprint string) (*domain.Order, error)
	ActiveOrder(tableID string) (*domain.Order, error)
	HasActiveOrder(tableID string) bool
	Get(ctx context.Context, orderID int64) (*domain.Order, error)
	History(ctx context.Context, tableID string, limit int) ([]*domain.Order, error)
}
