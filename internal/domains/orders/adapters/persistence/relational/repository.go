package relational

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Apurer/tableside/internal/domains/orders/domain"
	"github.com/Apurer/tableside/internal/domains/orders/ports"
	"github.com/Apurer/tableside/internal/platform/storage"
)

const (
	ordersTable = "orders"
	linesTable  = "order_lines"

	headerColumns = "id, table_id, state, user_id, opened_at, closed_at"
	lineColumns   = "order_id, position, product_id, name, unit_price, quantity, notes"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists orders through the storage gateway. Every save rewrites the lines
// of the order inside the header's transaction.
type Repository struct {
	gw storage.Gateway
}

func NewRepository(gw storage.Gateway) *Repository {
	return &Repository{gw: gw}
}

func (r *Repository) Save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("order is nil")
	}
	saved := order.Clone()
	err := r.gw.Transaction(ctx, func(tx storage.Gateway) error {
		header := map[string]any{
			"table_id":  saved.TableID,
			"state":     string(saved.State),
			"user_id":   saved.UserID,
			"opened_at": normalize(saved.OpenedAt),
			"closed_at": nullableTime(saved.ClosedAt),
		}
		if saved.ID == 0 {
			id, err := tx.Insert(ctx, ordersTable, header)
			if err != nil {
				return err
			}
			saved.ID = id
		} else {
			ok, err := tx.Update(ctx, ordersTable, saved.ID, header)
			if err != nil {
				return err
			}
			if !ok {
				return ports.ErrNotFound
			}
		}
		if _, err := tx.Execute(ctx, "DELETE FROM "+linesTable+" WHERE order_id = ?", saved.ID); err != nil {
			return err
		}
		for i, line := range saved.Lines {
			if _, err := tx.Insert(ctx, linesTable, map[string]any{
				"order_id":   saved.ID,
				"position":   i,
				"product_id": line.ProductID,
				"name":       line.Name,
				"unit_price": line.UnitPrice,
				"quantity":   line.Quantity,
				"notes":      line.Notes,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved.OpenedAt = normalize(saved.OpenedAt)
	saved.ClosedAt = normalizePtr(saved.ClosedAt)
	return saved, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	orders, err := r.load(ctx, "SELECT "+headerColumns+" FROM "+ordersTable+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ports.ErrNotFound
	}
	return orders[0], nil
}

func (r *Repository) ListActive(ctx context.Context) ([]*domain.Order, error) {
	return r.load(ctx, "SELECT "+headerColumns+" FROM "+ordersTable+" WHERE state IN (?, ?) ORDER BY id",
		string(domain.StateOpen), string(domain.StateInProgress))
}

func (r *Repository) ListByTable(ctx context.Context, tableID string, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.load(ctx, "SELECT "+headerColumns+" FROM "+ordersTable+" WHERE table_id = ? ORDER BY id DESC LIMIT ?", tableID, limit)
}

// load reads headers, then fetches the lines of every header with one batch query.
func (r *Repository) load(ctx context.Context, sql string, args ...any) ([]*domain.Order, error) {
	rows, err := r.gw.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	orders := make([]*domain.Order, 0, len(rows))
	byID := make(map[int64]*domain.Order, len(rows))
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		o := headerFromRow(row)
		orders = append(orders, o)
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	lineRows, err := r.gw.Query(ctx, "SELECT "+lineColumns+" FROM "+linesTable+
		" WHERE order_id IN ("+placeholders+") ORDER BY order_id, position", ids...)
	if err != nil {
		return nil, err
	}
	for _, row := range lineRows {
		o, ok := byID[row.Int64("order_id")]
		if !ok {
			continue
		}
		o.Lines = append(o.Lines, domain.Line{
			ProductID: row.Int64("product_id"),
			Name:      row.String("name"),
			UnitPrice: row.Decimal("unit_price"),
			Quantity:  row.Int("quantity"),
			Notes:     row.String("notes"),
		})
	}
	return orders, nil
}

func headerFromRow(row storage.Row) *domain.Order {
	o := &domain.Order{
		ID:       row.Int64("id"),
		TableID:  row.String("table_id"),
		State:    domain.State(row.String("state")),
		UserID:   row.String("user_id"),
		OpenedAt: row.Time("opened_at"),
	}
	if closed, ok := row.NullTime("closed_at"); ok {
		o.ClosedAt = &closed
	}
	return o
}

// Timestamps are stored in UTC with second precision so every driver round-trips them.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return normalize(*t)
}

func normalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := normalize(*t)
	return &n
}
