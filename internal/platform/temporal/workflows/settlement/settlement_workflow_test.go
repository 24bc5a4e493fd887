package settlement

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	inventorymemory "github.com/Apurer/tableside/internal/domains/inventory/adapters/memory"
	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	ordersmemory "github.com/Apurer/tableside/internal/domains/orders/adapters/memory"
	ordersapp "github.com/Apurer/tableside/internal/domains/orders/application"
	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
	paymentsports "github.com/Apurer/tableside/internal/domains/payments/ports"
	tablesmemory "github.com/Apurer/tableside/internal/domains/tables/adapters/memory"
	tablesapp "github.com/Apurer/tableside/internal/domains/tables/application"
	settlementactivities "github.com/Apurer/tableside/internal/platform/temporal/activities/settlement"
	"github.com/Apurer/tableside/internal/platform/storage"
)

type venue struct {
	orders    *ordersapp.Service
	inventory *inventorymemory.Repository
	productID int64
}

func newVenue(t *testing.T, stock, ordered int) venue {
	t.Helper()
	ctx := context.Background()
	tables := tablesapp.NewService(tablesmemory.NewRepository())
	_, err := tables.Create(ctx, 2, "Barra")
	require.NoError(t, err)
	orders := ordersapp.NewService(ordersmemory.NewRepository(), tables)
	inventory := inventorymemory.NewRepository()
	product, err := inventory.SaveProduct(ctx, inventorydomain.Product{Name: "Beer", Price: decimal.RequireFromString("3.00"), Stock: stock})
	require.NoError(t, err)

	order, err := orders.GetOrCreate(ctx, "B01", "u1")
	require.NoError(t, err)
	_, err = orders.AddLine(ctx, order.ID, ordersdomain.Line{ProductID: product.ID, Name: "Beer", UnitPrice: product.Price, Quantity: ordered})
	require.NoError(t, err)
	return venue{orders: orders, inventory: inventory, productID: product.ID}
}

func (v venue) stock(t *testing.T) int {
	t.Helper()
	p, err := v.inventory.GetProduct(context.Background(), v.productID)
	require.NoError(t, err)
	return p.Stock
}

func newEnv(orders paymentsports.Orders, inventory paymentsports.Inventory) *testsuite.TestWorkflowEnvironment {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SettlementWorkflow)
	settlementactivities.NewActivities(paymentsapp.NewProcessor(orders, inventory)).Register(env)
	return env
}

func TestSettlementWorkflow_Completes(t *testing.T) {
	v := newVenue(t, 10, 4)
	env := newEnv(v.orders, v.inventory)

	env.ExecuteWorkflow(SettlementWorkflow, SettlementWorkflowInput{Command: domain.SettleInput{TableID: "B01", UserID: "u1"}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var receipt domain.Receipt
	require.NoError(t, env.GetWorkflowResult(&receipt))
	assert.True(t, decimal.RequireFromString("12").Equal(receipt.Total))
	assert.NotEmpty(t, receipt.SettlementID)
	require.Len(t, receipt.Movements, 1)
	assert.Equal(t, 6, v.stock(t))
	assert.False(t, v.orders.HasActiveOrder("B01"))
}

func TestSettlementWorkflow_InsufficientStockIsNotRetried(t *testing.T) {
	v := newVenue(t, 3, 10)
	env := newEnv(v.orders, v.inventory)

	env.ExecuteWorkflow(SettlementWorkflow, SettlementWorkflowInput{Command: domain.SettleInput{TableID: "B01"}})
	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, settlementactivities.ErrTypeInsufficientStock, appErr.Type())
	assert.True(t, appErr.NonRetryable())

	assert.Equal(t, 3, v.stock(t))
	assert.True(t, v.orders.HasActiveOrder("B01"))
}

type unavailableOrders struct {
	paymentsports.Orders
}

func (unavailableOrders) MarkPaid(context.Context, int64, string) (*ordersdomain.Order, error) {
	return nil, storage.ErrUnavailable
}

func TestSettlementWorkflow_CompensatesAfterMarkPaidFailure(t *testing.T) {
	v := newVenue(t, 10, 4)
	env := newEnv(unavailableOrders{Orders: v.orders}, v.inventory)

	env.ExecuteWorkflow(SettlementWorkflow, SettlementWorkflowInput{Command: domain.SettleInput{TableID: "B01"}})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	assert.Equal(t, 10, v.stock(t))
	assert.True(t, v.orders.HasActiveOrder("B01"))
}
