package ports

import (
	"context"

	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

// TableDirectory is the slice of the table cache the scheduler drives.
type TableDirectory interface {
	Get(id string) (tablesdomain.CachedTable, error)
	List() []tablesdomain.CachedTable
	ApplyDerivedState(ctx context.Context, id string, state tablesdomain.State) (bool, error)
}

// ActiveOrderChecker tells the scheduler whether a live order holds the table.
type ActiveOrderChecker interface {
	HasActiveOrder(tableID string) bool
}
