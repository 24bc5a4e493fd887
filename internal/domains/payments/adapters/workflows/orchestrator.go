package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
	"github.com/Apurer/tableside/internal/domains/payments/ports"
	settlementactivities "github.com/Apurer/tableside/internal/platform/temporal/activities/settlement"
	settlementworkflows "github.com/Apurer/tableside/internal/platform/temporal/workflows/settlement"
)

var (
	_ ports.Settler = (*TemporalSettlement)(nil)
	_ ports.Settler = (*InlineSettlement)(nil)
)

// TemporalSettlement runs settlements as Temporal workflows. The workflow id is derived
// from the table and its active order, so concurrent requests for the same bill attach to
// one execution.
type TemporalSettlement struct {
	client    client.Client
	orders    ports.Orders
	taskQueue string
}

func NewTemporalSettlement(c client.Client, orders ports.Orders) *TemporalSettlement {
	return &TemporalSettlement{client: c, orders: orders, taskQueue: settlementworkflows.SettlementTaskQueue}
}

func (o *TemporalSettlement) Settle(ctx context.Context, in domain.SettleInput) (*domain.Receipt, error) {
	if o == nil || o.client == nil || o.orders == nil {
		return nil, errors.New("temporal settlement not configured")
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", paymentsapp.ErrInvalidInput, err)
	}
	order, err := o.orders.ActiveOrder(in.TableID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", paymentsapp.ErrNoActiveOrder, err)
	}
	workflowID := buildSettlementWorkflowID(in.TableID, order.ID)
	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: o.taskQueue,
		// A failed settlement, for example one short on stock, may be tried again.
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}
	run, err := o.client.ExecuteWorkflow(
		ctx,
		options,
		settlementworkflows.SettlementWorkflowName,
		settlementworkflows.SettlementWorkflowInput{Command: in, TraceID: workflowTraceID(ctx)},
	)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &alreadyStarted) {
			return nil, err
		}
		run = o.client.GetWorkflow(ctx, workflowID, alreadyStarted.RunId)
	}
	var receipt domain.Receipt
	if err := run.Get(ctx, &receipt); err != nil {
		return nil, fromWorkflowError(err)
	}
	return &receipt, nil
}

// InlineSettlement runs the processor in process, for tests and when Temporal is disabled.
type InlineSettlement struct {
	processor ports.Settler
}

func NewInlineSettlement(processor ports.Settler) *InlineSettlement {
	return &InlineSettlement{processor: processor}
}

func (o *InlineSettlement) Settle(ctx context.Context, in domain.SettleInput) (*domain.Receipt, error) {
	if o == nil || o.processor == nil {
		return nil, errors.New("inline settlement not configured")
	}
	return o.processor.Settle(ctx, in)
}

// fromWorkflowError restores the business sentinel carried by a non-retryable activity
// failure.
func fromWorkflowError(err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}
	var sentinel error
	switch appErr.Type() {
	case settlementactivities.ErrTypeInsufficientStock:
		sentinel = paymentsapp.ErrInsufficientStock
	case settlementactivities.ErrTypeNoActiveOrder:
		sentinel = paymentsapp.ErrNoActiveOrder
	case settlementactivities.ErrTypeEmptyOrder:
		sentinel = paymentsapp.ErrEmptyOrder
	case settlementactivities.ErrTypeUnknownProduct:
		sentinel = paymentsapp.ErrUnknownProduct
	case settlementactivities.ErrTypeOrderChanged:
		sentinel = paymentsapp.ErrOrderChanged
	case settlementactivities.ErrTypeInvalidInput:
		sentinel = paymentsapp.ErrInvalidInput
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, appErr.Error())
}

func buildSettlementWorkflowID(tableID string, orderID int64) string {
	return fmt.Sprintf("settlement-%s-%d", tableID, orderID)
}

func workflowTraceID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	spanCtx := span.SpanContext()
	if !spanCtx.IsValid() || !spanCtx.TraceID().IsValid() {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return spanCtx.TraceID().String()
}
