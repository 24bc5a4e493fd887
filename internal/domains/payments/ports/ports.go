package ports

import (
	"context"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	inventoryports "github.com/Apurer/tableside/internal/domains/inventory/ports"
	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
)

// Settler pays the active order of a table. Implementations either run the steps inline
// or hand them to a durable workflow.
type Settler interface {
	Settle(ctx context.Context, in domain.SettleInput) (*domain.Receipt, error)
}

// Steps are the individually retryable parts of a settlement.
type Steps interface {
	Prepare(ctx context.Context, in domain.SettleInput) (domain.Plan, error)
	DeductStock(ctx context.Context, plan domain.Plan) ([]inventorydomain.Movement, error)
	MarkPaid(ctx context.Context, plan domain.Plan) (*domain.Receipt, error)
	Compensate(ctx context.Context, plan domain.Plan) error
}

// Inventory is the stock collaborator.
type Inventory interface {
	Deduct(ctx context.Context, req inventoryports.DeductRequest) ([]inventorydomain.Movement, error)
	Restock(ctx context.Context, settlementID, userID string) ([]inventorydomain.Movement, error)
}

// Orders is the part of the order lifecycle a settlement drives.
type Orders interface {
	ActiveOrder(tableID string) (*ordersdomain.Order, error)
	MarkPaid(ctx context.Context, orderID int64, fingerprint string) (*ordersdomain.Order, error)
}
