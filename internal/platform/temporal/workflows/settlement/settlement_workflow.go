package settlement

import (
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Apurer/tableside/internal/domains/payments/domain"
	"github.com/Apurer/tableside/internal/platform/temporal/sequences"
)

const (
	// SettlementWorkflowName is the public identifier for registering the workflow.
	SettlementWorkflowName = "payments.workflows.Settlement"
	// SettlementTaskQueue is the queue consumed by the worker processing settlements.
	SettlementTaskQueue = "TABLE_SETTLEMENT"
)

// SettlementWorkflowInput carries the settlement request.
type SettlementWorkflowInput struct {
	Command domain.SettleInput
	TraceID string
}

// Register adds the settlement workflow to r under SettlementWorkflowName.
func Register(r worker.WorkflowRegistry) {
	r.RegisterWorkflowWithOptions(SettlementWorkflow, workflow.RegisterOptions{Name: SettlementWorkflowName})
}

// SettlementWorkflow pays the active order of a table.
func SettlementWorkflow(ctx workflow.Context, input SettlementWorkflowInput) (*domain.Receipt, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SettlementWorkflow started", withTraceID(input.TraceID, "tableId", input.Command.TableID)...)
	receipt, err := sequences.RunSettlementSequence(ctx, input.Command)
	if err != nil {
		logger.Error("SettlementWorkflow failed", withTraceID(input.TraceID, "tableId", input.Command.TableID, "error", err)...)
		return nil, err
	}
	logger.Info("SettlementWorkflow completed", withTraceID(input.TraceID, "settlementId", receipt.SettlementID, "orderId", receipt.OrderID)...)
	return receipt, nil
}

func withTraceID(traceID string, keyvals ...interface{}) []interface{} {
	if traceID == "" {
		return keyvals
	}
	return append(keyvals, "traceId", traceID)
}
