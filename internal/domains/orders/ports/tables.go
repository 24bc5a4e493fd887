package ports

import (
	"context"

	"github.com/Apurer/tableside/internal/domains/orders/domain"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

// TableDirectory is the slice of the table cache the order lifecycle drives.
type TableDirectory interface {
	Get(id string) (tablesdomain.CachedTable, error)
	UpdateState(ctx context.Context, id string, state tablesdomain.State) (tablesdomain.CachedTable, error)
	Release(ctx context.Context, id string) (tablesdomain.CachedTable, error)
}

// Publisher receives order notifications after a change has been stored.
type Publisher interface {
	PublishOrderChanged(order *domain.Order)
}
