package ports

import (
	"context"
	"errors"

	"github.com/Apurer/tableside/internal/domains/tables/domain"
)

var ErrNotFound = errors.New("table not found")

// Repository persists the durable table fields. Overrides never reach it.
type Repository interface {
	List(ctx context.Context) ([]domain.Table, error)
	// Insert stores a new table and returns it with its row id. A business id collision
	// is reported as storage.ErrDuplicate.
	Insert(ctx context.Context, table domain.Table) (domain.Table, error)
	UpdateState(ctx context.Context, rowID int64, state domain.State) error
	UpdateCapacity(ctx context.Context, rowID int64, capacity int) error
	Delete(ctx context.Context, rowID int64) error
}
