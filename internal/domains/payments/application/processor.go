package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	inventoryports "github.com/Apurer/tableside/internal/domains/inventory/ports"
	ordersports "github.com/Apurer/tableside/internal/domains/orders/ports"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
	"github.com/Apurer/tableside/internal/domains/payments/ports"
	"github.com/Apurer/tableside/internal/shared/locks"
)

// Processor settles table bills: stock is deducted, the order is marked paid, and closing
// the order frees the table and emits the change events. When marking paid fails after
// stock was taken, the deduction is reversed so the order stays open with stock intact.
type Processor struct {
	orders    ports.Orders
	inventory ports.Inventory
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
	keys      *locks.Keyed
}

// Option customizes the payment processor.
type Option func(*Processor)

// WithLogger sets the structured logger used by the processor.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithIDGenerator overrides how settlement ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(p *Processor) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithClock overrides the time source used to stamp settlements.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor wires the processor with the orders it settles and the stock it deducts.
func NewProcessor(orders ports.Orders, inventory ports.Inventory, opts ...Option) *Processor {
	p := &Processor{
		orders:    orders,
		inventory: inventory,
		logger:    slog.Default(),
		newID:     uuid.NewString,
		now:       time.Now,
		keys:      locks.NewKeyed(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

var (
	_ ports.Settler = (*Processor)(nil)
	_ ports.Steps   = (*Processor)(nil)
)

// Settle runs every step in process. Settlements of the same table are serialized.
func (p *Processor) Settle(ctx context.Context, in domain.SettleInput) (*domain.Receipt, error) {
	if err := in.Validate(); err != nil {
		return nil, mapError(err)
	}
	unlock := p.keys.Lock(in.TableID)
	defer unlock()

	plan, err := p.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	movements, err := p.DeductStock(ctx, plan)
	if err != nil {
		return nil, err
	}
	receipt, err := p.MarkPaid(ctx, plan)
	if err != nil {
		if cerr := p.Compensate(ctx, plan); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}
	receipt.Movements = movements
	return receipt, nil
}

// Prepare prices the table's active order and assigns the settlement id.
func (p *Processor) Prepare(ctx context.Context, in domain.SettleInput) (domain.Plan, error) {
	if err := in.Validate(); err != nil {
		return domain.Plan{}, mapError(err)
	}
	order, err := p.orders.ActiveOrder(in.TableID)
	if err != nil {
		return domain.Plan{}, mapError(err)
	}
	if len(order.Lines) == 0 {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "refusing to settle empty order",
			slog.Int64("order.id", order.ID), slog.String("table.id", in.TableID))
		return domain.Plan{}, ErrEmptyOrder
	}
	demand := make([]inventorydomain.Demand, 0, len(order.Lines))
	for _, l := range order.Lines {
		demand = append(demand, inventorydomain.Demand{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return domain.Plan{
		SettlementID: p.newID(),
		OrderID:      order.ID,
		TableID:      in.TableID,
		UserID:       in.UserID,
		Fingerprint:  order.Fingerprint(),
		Total:        order.Total(),
		Demand:       demand,
	}, nil
}

// DeductStock takes the plan's demand out of stock. Nothing is deducted when any line is
// short.
func (p *Processor) DeductStock(ctx context.Context, plan domain.Plan) ([]inventorydomain.Movement, error) {
	movements, err := p.inventory.Deduct(ctx, inventoryports.DeductRequest{
		SettlementID: plan.SettlementID,
		OrderID:      plan.OrderID,
		UserID:       plan.UserID,
		Demand:       plan.Demand,
	})
	if err != nil {
		var short *inventorydomain.InsufficientStockError
		if errors.As(err, &short) {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "settlement rejected: insufficient stock",
				slog.String("settlement.id", plan.SettlementID), slog.Int64("order.id", plan.OrderID),
				slog.Int64("product.id", short.ProductID), slog.Int("available", short.Available), slog.Int("requested", short.Requested))
		} else {
			p.logFailure(ctx, "payments.deduct_stock", plan, err)
		}
		return nil, mapError(err)
	}
	return movements, nil
}

// MarkPaid closes the order, which also frees the table.
func (p *Processor) MarkPaid(ctx context.Context, plan domain.Plan) (*domain.Receipt, error) {
	order, err := p.orders.MarkPaid(ctx, plan.OrderID, plan.Fingerprint)
	if err != nil {
		if !errors.Is(err, ordersports.ErrOrderChanged) {
			p.logFailure(ctx, "payments.mark_paid", plan, err)
		}
		return nil, mapError(err)
	}
	paidAt := p.now().UTC()
	if order.ClosedAt != nil {
		paidAt = order.ClosedAt.UTC()
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "order settled",
		slog.String("settlement.id", plan.SettlementID), slog.Int64("order.id", order.ID),
		slog.String("table.id", plan.TableID), slog.String("total", order.Total().StringFixed(2)))
	return &domain.Receipt{
		SettlementID: plan.SettlementID,
		OrderID:      order.ID,
		TableID:      plan.TableID,
		Total:        order.Total(),
		PaidAt:       paidAt,
	}, nil
}

// Compensate returns the plan's deducted stock. Repeating it is harmless.
func (p *Processor) Compensate(ctx context.Context, plan domain.Plan) error {
	movements, err := p.inventory.Restock(ctx, plan.SettlementID, plan.UserID)
	if err != nil {
		p.logFailure(ctx, "payments.compensate", plan, err)
		return err
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "settlement stock restored",
		slog.String("settlement.id", plan.SettlementID), slog.Int64("order.id", plan.OrderID), slog.Int("movements", len(movements)))
	return nil
}

func (p *Processor) logFailure(ctx context.Context, op string, plan domain.Plan, err error) {
	p.logger.LogAttrs(ctx, slog.LevelError, "settlement step failed",
		slog.String("operation", op), slog.String("settlement.id", plan.SettlementID),
		slog.Int64("order.id", plan.OrderID), slog.String("table.id", plan.TableID), slog.String("error", err.Error()))
}
