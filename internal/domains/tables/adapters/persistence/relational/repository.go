package relational

import (
	"context"

	"github.com/Apurer/tableside/internal/domains/tables/domain"
	"github.com/Apurer/tableside/internal/domains/tables/ports"
	"github.com/Apurer/tableside/internal/platform/storage"
)

const tableName = "venue_tables"

var _ ports.Repository = (*Repository)(nil)

// Repository persists tables through the storage gateway.
type Repository struct {
	gw storage.Gateway
}

func NewRepository(gw storage.Gateway) *Repository {
	return &Repository{gw: gw}
}

func (r *Repository) List(ctx context.Context) ([]domain.Table, error) {
	rows, err := r.gw.Query(ctx, "SELECT id, business_id, zone, state, capacity FROM "+tableName+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	list := make([]domain.Table, 0, len(rows))
	for _, row := range rows {
		list = append(list, toDomain(row))
	}
	return list, nil
}

func (r *Repository) Insert(ctx context.Context, table domain.Table) (domain.Table, error) {
	id, err := r.gw.Insert(ctx, tableName, map[string]any{
		"business_id": table.ID,
		"zone":        table.Zone,
		"state":       string(table.State),
		"capacity":    table.Capacity,
	})
	if err != nil {
		return domain.Table{}, err
	}
	table.RowID = id
	return table, nil
}

func (r *Repository) UpdateState(ctx context.Context, rowID int64, state domain.State) error {
	return r.update(ctx, rowID, map[string]any{"state": string(state)})
}

func (r *Repository) UpdateCapacity(ctx context.Context, rowID int64, capacity int) error {
	return r.update(ctx, rowID, map[string]any{"capacity": capacity})
}

func (r *Repository) Delete(ctx context.Context, rowID int64) error {
	ok, err := r.gw.Delete(ctx, tableName, rowID)
	if err != nil {
		return err
	}
	if !ok {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) update(ctx context.Context, rowID int64, fields map[string]any) error {
	ok, err := r.gw.Update(ctx, tableName, rowID, fields)
	if err != nil {
		return err
	}
	if !ok {
		return ports.ErrNotFound
	}
	return nil
}

func toDomain(row storage.Row) domain.Table {
	return domain.Table{
		RowID:    row.Int64("id"),
		ID:       row.String("business_id"),
		Zone:     row.String("zone"),
		State:    domain.State(row.String("state")),
		Capacity: row.Int("capacity"),
	}
}
