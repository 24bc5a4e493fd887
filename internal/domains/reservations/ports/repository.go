package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Apurer/tableside/internal/domains/reservations/domain"
)

var ErrNotFound = errors.New("reservation not found")

// Repository persists reservations.
type Repository interface {
	Insert(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	GetByID(ctx context.Context, id int64) (domain.Reservation, error)
	UpdateState(ctx context.Context, id int64, state domain.State) error
	// ListActiveStarting returns the table's active reservations whose start lies in [from, to).
	ListActiveStarting(ctx context.Context, tableID string, from, to time.Time) ([]domain.Reservation, error)
	// ListActiveSince returns every active reservation starting at or after from, ordered
	// by table then start.
	ListActiveSince(ctx context.Context, from time.Time) ([]domain.Reservation, error)
}
