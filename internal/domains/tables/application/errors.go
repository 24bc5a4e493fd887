package application

import (
	"errors"
	"fmt"

	"github.com/Apurer/tableside/internal/domains/tables/domain"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput = errors.New("invalid table input")
	// ErrTableOccupied is returned when deleting a table that is in use.
	ErrTableOccupied = errors.New("table is occupied")
	// ErrIDExhausted is returned when no free business id could be found for a zone.
	ErrIDExhausted = errors.New("no free table id in zone")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInvalidCapacity) ||
		errors.Is(err, domain.ErrInvalidZone) ||
		errors.Is(err, domain.ErrInvalidID) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
