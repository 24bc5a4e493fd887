package relational

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Apurer/tableside/internal/domains/inventory/domain"
	"github.com/Apurer/tableside/internal/domains/inventory/ports"
	"github.com/Apurer/tableside/internal/platform/storage"
)

const (
	productsTable   = "products"
	movementsTable  = "stock_movements"
	productColumns  = "id, name, price, stock, category"
	movementColumns = "id, product_id, kind, quantity, previous_stock, new_stock, user_id, order_id, settlement_id, created_at"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists products and stock movements through the storage gateway.
type Repository struct {
	gw  storage.Gateway
	now func() time.Time
}

func NewRepository(gw storage.Gateway) *Repository {
	return &Repository{gw: gw, now: time.Now}
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	rows, err := r.gw.Query(ctx, "SELECT "+productColumns+" FROM "+productsTable+" WHERE id = ?", id)
	if err != nil {
		return domain.Product{}, err
	}
	if len(rows) == 0 {
		return domain.Product{}, ports.ErrNotFound
	}
	return productFromRow(rows[0]), nil
}

func (r *Repository) SaveProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	fields := map[string]any{
		"name":     p.Name,
		"price":    p.Price,
		"stock":    p.Stock,
		"category": p.Category,
	}
	if p.ID == 0 {
		id, err := r.gw.Insert(ctx, productsTable, fields)
		if err != nil {
			return domain.Product{}, err
		}
		p.ID = id
		return p, nil
	}
	ok, err := r.gw.Update(ctx, productsTable, p.ID, fields)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, ports.ErrNotFound
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.gw.Query(ctx, "SELECT "+productColumns+" FROM "+productsTable+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	list := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		list = append(list, productFromRow(row))
	}
	return list, nil
}

// Deduct runs the check and every decrement in one transaction. The conditional update
// still guards each row, so a concurrent writer that drains stock after the check makes
// the whole transaction roll back instead of driving stock negative.
func (r *Repository) Deduct(ctx context.Context, req ports.DeductRequest) ([]domain.Movement, error) {
	demand, err := domain.MergeDemand(req.Demand)
	if err != nil {
		return nil, err
	}
	if len(demand) == 0 {
		return nil, nil
	}
	var moves []domain.Movement
	err = r.gw.Transaction(ctx, func(tx storage.Gateway) error {
		existing, err := movements(ctx, tx, req.SettlementID, domain.MovementSale)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			moves = existing
			return nil
		}
		products, err := productsByID(ctx, tx, demand)
		if err != nil {
			return err
		}
		if err := domain.CheckDemand(products, demand); err != nil {
			return err
		}
		now := normalize(r.now())
		moves = make([]domain.Movement, 0, len(demand))
		for _, d := range demand {
			p := products[d.ProductID]
			affected, err := tx.Execute(ctx, "UPDATE "+productsTable+" SET stock = stock - ? WHERE id = ? AND stock >= ?",
				d.Quantity, d.ProductID, d.Quantity)
			if err != nil {
				return err
			}
			if affected == 0 {
				return &domain.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: d.Quantity}
			}
			m, err := insertMovement(ctx, tx, domain.Movement{
				ProductID:     p.ID,
				Kind:          domain.MovementSale,
				Quantity:      d.Quantity,
				PreviousStock: p.Stock,
				NewStock:      p.Stock - d.Quantity,
				UserID:        req.UserID,
				OrderID:       req.OrderID,
				SettlementID:  req.SettlementID,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			moves = append(moves, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

func (r *Repository) Restock(ctx context.Context, settlementID, userID string) ([]domain.Movement, error) {
	var moves []domain.Movement
	err := r.gw.Transaction(ctx, func(tx storage.Gateway) error {
		done, err := movements(ctx, tx, settlementID, domain.MovementCompensation)
		if err != nil {
			return err
		}
		if len(done) > 0 {
			moves = done
			return nil
		}
		sales, err := movements(ctx, tx, settlementID, domain.MovementSale)
		if err != nil {
			return err
		}
		now := normalize(r.now())
		for _, sale := range sales {
			rows, err := tx.Query(ctx, "SELECT stock FROM "+productsTable+" WHERE id = ?", sale.ProductID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			previous := rows[0].Int("stock")
			if _, err := tx.Execute(ctx, "UPDATE "+productsTable+" SET stock = stock + ? WHERE id = ?",
				sale.Quantity, sale.ProductID); err != nil {
				return err
			}
			m, err := insertMovement(ctx, tx, domain.Movement{
				ProductID:     sale.ProductID,
				Kind:          domain.MovementCompensation,
				Quantity:      sale.Quantity,
				PreviousStock: previous,
				NewStock:      previous + sale.Quantity,
				UserID:        userID,
				OrderID:       sale.OrderID,
				SettlementID:  settlementID,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			moves = append(moves, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

func (r *Repository) MovementsBySettlement(ctx context.Context, settlementID string) ([]domain.Movement, error) {
	rows, err := r.gw.Query(ctx, "SELECT "+movementColumns+" FROM "+movementsTable+" WHERE settlement_id = ? ORDER BY id", settlementID)
	if err != nil {
		return nil, err
	}
	return movementsFromRows(rows), nil
}

func movements(ctx context.Context, gw storage.Gateway, settlementID string, kind domain.MovementKind) ([]domain.Movement, error) {
	rows, err := gw.Query(ctx, "SELECT "+movementColumns+" FROM "+movementsTable+
		" WHERE settlement_id = ? AND kind = ? ORDER BY id", settlementID, string(kind))
	if err != nil {
		return nil, err
	}
	return movementsFromRows(rows), nil
}

func productsByID(ctx context.Context, gw storage.Gateway, demand []domain.Demand) (map[int64]domain.Product, error) {
	ids := make([]any, 0, len(demand))
	for _, d := range demand {
		ids = append(ids, d.ProductID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	rows, err := gw.Query(ctx, "SELECT "+productColumns+" FROM "+productsTable+" WHERE id IN ("+placeholders+")", ids...)
	if err != nil {
		return nil, err
	}
	products := make(map[int64]domain.Product, len(rows))
	for _, row := range rows {
		p := productFromRow(row)
		products[p.ID] = p
	}
	for _, d := range demand {
		if _, ok := products[d.ProductID]; !ok {
			return nil, fmt.Errorf("%w: %d", ports.ErrNotFound, d.ProductID)
		}
	}
	return products, nil
}

func insertMovement(ctx context.Context, gw storage.Gateway, m domain.Movement) (domain.Movement, error) {
	id, err := gw.Insert(ctx, movementsTable, map[string]any{
		"product_id":     m.ProductID,
		"kind":           string(m.Kind),
		"quantity":       m.Quantity,
		"previous_stock": m.PreviousStock,
		"new_stock":      m.NewStock,
		"user_id":        m.UserID,
		"order_id":       m.OrderID,
		"settlement_id":  m.SettlementID,
		"created_at":     m.CreatedAt,
	})
	if err != nil {
		return domain.Movement{}, err
	}
	m.ID = id
	return m, nil
}

func productFromRow(row storage.Row) domain.Product {
	return domain.Product{
		ID:       row.Int64("id"),
		Name:     row.String("name"),
		Price:    row.Decimal("price"),
		Stock:    row.Int("stock"),
		Category: row.String("category"),
	}
}

func movementsFromRows(rows []storage.Row) []domain.Movement {
	list := make([]domain.Movement, 0, len(rows))
	for _, row := range rows {
		list = append(list, domain.Movement{
			ID:            row.Int64("id"),
			ProductID:     row.Int64("product_id"),
			Kind:          domain.MovementKind(row.String("kind")),
			Quantity:      row.Int("quantity"),
			PreviousStock: row.Int("previous_stock"),
			NewStock:      row.Int("new_stock"),
			UserID:        row.String("user_id"),
			OrderID:       row.Int64("order_id"),
			SettlementID:  row.String("settlement_id"),
			CreatedAt:     row.Time("created_at"),
		})
	}
	return list
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
