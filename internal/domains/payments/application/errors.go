package application

import (
	"errors"
	"fmt"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	inventoryports "github.com/Apurer/tableside/internal/domains/inventory/ports"
	ordersports "github.com/Apurer/tableside/internal/domains/orders/ports"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
)

var (
	// ErrInvalidInput signals a malformed settlement request.
	ErrInvalidInput = errors.New("invalid settlement input")
	// ErrNoActiveOrder is returned when the table has nothing to settle.
	ErrNoActiveOrder = errors.New("table has no active order")
	// ErrEmptyOrder is returned for an order without lines.
	ErrEmptyOrder = errors.New("order has no lines")
	// ErrInsufficientStock is returned when a line cannot be covered; nothing was deducted.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnknownProduct is returned when a line references a product the inventory lacks.
	ErrUnknownProduct = errors.New("order references an unknown product")
	// ErrOrderChanged is returned when the order was edited while it was being settled.
	ErrOrderChanged = errors.New("order changed during settlement")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrInvalidTable),
		errors.Is(err, inventorydomain.ErrInvalidProduct),
		errors.Is(err, inventorydomain.ErrInvalidQuantity):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
	case errors.Is(err, inventoryports.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrUnknownProduct, err)
	case errors.Is(err, ordersports.ErrOrderChanged):
		return fmt.Errorf("%w: %w", ErrOrderChanged, err)
	case errors.Is(err, ordersports.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNoActiveOrder, err)
	}
	return err
}
