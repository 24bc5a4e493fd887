package sequences

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
	settlementactivities "github.com/Apurer/tableside/internal/platform/temporal/activities/settlement"
)

// RunSettlementSequence prices the order, takes its stock and marks it paid. When marking
// paid fails once stock is gone, the deduction is compensated before the error returns.
// Deduct and mark-paid are idempotent per plan, so both may be retried.
func RunSettlementSequence(ctx workflow.Context, input domain.SettleInput) (*domain.Receipt, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("settlement sequence started", "tableId", input.TableID)
	stepOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Second,
			MaximumAttempts:    3,
		},
	}
	compensateOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    10,
		},
	}
	stepCtx := workflow.WithActivityOptions(ctx, stepOptions)

	var plan domain.Plan
	if err := workflow.ExecuteActivity(stepCtx, settlementactivities.PrepareActivityName, input).Get(ctx, &plan); err != nil {
		logger.Warn("settlement sequence could not price order", "tableId", input.TableID, "error", err)
		return nil, err
	}

	var movements []inventorydomain.Movement
	if err := workflow.ExecuteActivity(stepCtx, settlementactivities.DeductStockActivityName, plan).Get(ctx, &movements); err != nil {
		logger.Warn("settlement sequence stock deduction failed", "settlementId", plan.SettlementID, "error", err)
		return nil, err
	}

	var receipt domain.Receipt
	if err := workflow.ExecuteActivity(stepCtx, settlementactivities.MarkPaidActivityName, plan).Get(ctx, &receipt); err != nil {
		logger.Warn("settlement sequence mark paid failed, compensating", "settlementId", plan.SettlementID, "error", err)
		compensateCtx := workflow.WithActivityOptions(ctx, compensateOptions)
		if cerr := workflow.ExecuteActivity(compensateCtx, settlementactivities.CompensateActivityName, plan).Get(ctx, nil); cerr != nil {
			logger.Error("settlement sequence compensation failed", "settlementId", plan.SettlementID, "error", cerr)
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}
	receipt.Movements = movements
	logger.Info("settlement sequence completed", "settlementId", plan.SettlementID, "orderId", plan.OrderID)
	return &receipt, nil
}
