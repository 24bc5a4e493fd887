package ports

import (
	"context"
	"errors"

	"github.com/Apurer/tableside/internal/domains/inventory/domain"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// DeductRequest groups the stock decrements of one settlement attempt.
type DeductRequest struct {
	SettlementID string
	OrderID      int64
	UserID       string
	Demand       []domain.Demand
}

// Repository owns product stock. Deduct and Restock are idempotent per settlement id: a
// repeated call returns the movements recorded by the first one.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	// SaveProduct inserts when the id is zero and updates otherwise.
	SaveProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// Deduct checks every demand first and then applies all decrements atomically. It
	// fails with domain.ErrInsufficientStock without touching stock.
	Deduct(ctx context.Context, req DeductRequest) ([]domain.Movement, error)
	// Restock reverses the sale movements of a settlement.
	Restock(ctx context.Context, settlementID, userID string) ([]domain.Movement, error)
	MovementsBySettlement(ctx context.Context, settlementID string) ([]domain.Movement, error)
}
