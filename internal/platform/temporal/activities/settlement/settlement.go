package settlement

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
	paymentsports "github.com/Apurer/tableside/internal/domains/payments/ports"
)

const (
	// PrepareActivityName prices the active order of a table.
	PrepareActivityName = "payments.activities.PrepareSettlement"
	// DeductStockActivityName takes the priced demand out of stock.
	DeductStockActivityName = "payments.activities.DeductStock"
	// MarkPaidActivityName closes the order as paid and frees its table.
	MarkPaidActivityName = "payments.activities.MarkOrderPaid"
	// CompensateActivityName returns stock taken by a settlement that could not finish.
	CompensateActivityName = "payments.activities.CompensateStock"
)

// Application error types carried across the workflow boundary. Each marks a business
// failure that retrying cannot fix.
const (
	ErrTypeInvalidInput      = "InvalidInput"
	ErrTypeNoActiveOrder     = "NoActiveOrder"
	ErrTypeEmptyOrder        = "EmptyOrder"
	ErrTypeInsufficientStock = "InsufficientStock"
	ErrTypeUnknownProduct    = "UnknownProduct"
	ErrTypeOrderChanged      = "OrderChanged"
)

// Activities exposes the settlement steps to Temporal.
type Activities struct {
	steps paymentsports.Steps
}

func NewActivities(steps paymentsports.Steps) *Activities {
	return &Activities{steps: steps}
}

// Register adds every settlement activity to r under its public name.
func (a *Activities) Register(r worker.ActivityRegistry) {
	r.RegisterActivityWithOptions(a.Prepare, activity.RegisterOptions{Name: PrepareActivityName})
	r.RegisterActivityWithOptions(a.DeductStock, activity.RegisterOptions{Name: DeductStockActivityName})
	r.RegisterActivityWithOptions(a.MarkPaid, activity.RegisterOptions{Name: MarkPaidActivityName})
	r.RegisterActivityWithOptions(a.Compensate, activity.RegisterOptions{Name: CompensateActivityName})
}

func (a *Activities) Prepare(ctx context.Context, in domain.SettleInput) (domain.Plan, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.steps == nil {
		return domain.Plan{}, errors.New("settlement activities not initialized")
	}
	plan, err := a.steps.Prepare(ctx, in)
	if err != nil {
		logger.Warn("PrepareSettlement failed", "tableId", in.TableID, "error", err)
		return domain.Plan{}, classify(err)
	}
	logger.Info("PrepareSettlement completed", "tableId", in.TableID, "orderId", plan.OrderID, "settlementId", plan.SettlementID)
	return plan, nil
}

func (a *Activities) DeductStock(ctx context.Context, plan domain.Plan) ([]inventorydomain.Movement, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.steps == nil {
		return nil, errors.New("settlement activities not initialized")
	}
	movements, err := a.steps.DeductStock(ctx, plan)
	if err != nil {
		logger.Warn("DeductStock failed", "settlementId", plan.SettlementID, "error", err)
		return nil, classify(err)
	}
	logger.Info("DeductStock completed", "settlementId", plan.SettlementID, "movements", len(movements))
	return movements, nil
}

func (a *Activities) MarkPaid(ctx context.Context, plan domain.Plan) (*domain.Receipt, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.steps == nil {
		return nil, errors.New("settlement activities not initialized")
	}
	receipt, err := a.steps.MarkPaid(ctx, plan)
	if err != nil {
		logger.Warn("MarkOrderPaid failed", "settlementId", plan.SettlementID, "orderId", plan.OrderID, "error", err)
		return nil, classify(err)
	}
	logger.Info("MarkOrderPaid completed", "settlementId", plan.SettlementID, "orderId", plan.OrderID)
	return receipt, nil
}

func (a *Activities) Compensate(ctx context.Context, plan domain.Plan) error {
	logger := activity.GetLogger(ctx)
	if a == nil || a.steps == nil {
		return errors.New("settlement activities not initialized")
	}
	if err := a.steps.Compensate(ctx, plan); err != nil {
		logger.Error("CompensateStock failed", "settlementId", plan.SettlementID, "error", err)
		return err
	}
	logger.Info("CompensateStock completed", "settlementId", plan.SettlementID)
	return nil
}

// classify turns business failures into non-retryable application errors; anything else
// is left for the retry policy.
func classify(err error) error {
	var typ string
	switch {
	case errors.Is(err, paymentsapp.ErrInsufficientStock):
		typ = ErrTypeInsufficientStock
	case errors.Is(err, paymentsapp.ErrNoActiveOrder):
		typ = ErrTypeNoActiveOrder
	case errors.Is(err, paymentsapp.ErrEmptyOrder):
		typ = ErrTypeEmptyOrder
	case errors.Is(err, paymentsapp.ErrUnknownProduct):
		typ = ErrTypeUnknownProduct
	case errors.Is(err, paymentsapp.ErrOrderChanged):
		typ = ErrTypeOrderChanged
	case errors.Is(err, paymentsapp.ErrInvalidInput):
		typ = ErrTypeInvalidInput
	default:
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), typ, err)
}
