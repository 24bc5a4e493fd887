package application

import (
	"errors"
	"fmt"

	"github.com/Apurer/tableside/internal/domains/orders/domain"
	tablesports "github.com/Apurer/tableside/internal/domains/tables/ports"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput = errors.New("invalid order input")
	// ErrInvalidTransition is returned for state changes outside the order state machine.
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrTableNotFound is returned when the order references an unknown table.
	ErrTableNotFound = errors.New("table not found")
	// ErrTableUnavailable is returned when opening an order on a table under maintenance.
	ErrTableUnavailable = errors.New("table is under maintenance")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrNotEditable) {
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	if errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInvalidTable) ||
		errors.Is(err, domain.ErrInvalidProduct) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrInvalidPrice) ||
		errors.Is(err, domain.ErrLineNotFound) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if errors.Is(err, tablesports.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrTableNotFound, err)
	}
	return err
}
