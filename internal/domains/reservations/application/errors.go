package application

import (
	"errors"
	"fmt"

	"github.com/Apurer/tableside/internal/domains/reservations/domain"
	tablesports "github.com/Apurer/tableside/internal/domains/tables/ports"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput = errors.New("invalid reservation input")
	// ErrOverlap is returned when the requested interval intersects an active reservation.
	ErrOverlap = errors.New("reservation overlaps an existing reservation")
	// ErrNotActive is returned when cancelling a reservation that is already cancelled.
	ErrNotActive = errors.New("reservation is not active")
	// ErrTableNotFound is returned when the reservation references an unknown table.
	ErrTableNotFound = errors.New("table not found")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidTable) ||
		errors.Is(err, domain.ErrInvalidClient) ||
		errors.Is(err, domain.ErrInvalidDuration) ||
		errors.Is(err, domain.ErrInvalidPartySize) ||
		errors.Is(err, domain.ErrInvalidStart) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if errors.Is(err, tablesports.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrTableNotFound, err)
	}
	return err
}
