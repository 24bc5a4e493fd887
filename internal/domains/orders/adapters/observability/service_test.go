package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	ordersports "github.com/Apurer/tableside/internal/domains/orders/ports"
)

type stubService struct {
	ordersports.Service
	order *ordersdomain.Order
	err   error
}

func (s stubService) GetOrCreate(context.Context, string, string) (*ordersdomain.Order, error) {
	return s.order, s.err
}

func (s stubService) Close(context.Context, string, ordersdomain.State) (*ordersdomain.Order, error) {
	return s.order, s.err
}

func TestService_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	order := &ordersdomain.Order{ID: 7, TableID: "T01", State: ordersdomain.StateOpen}
	svc := New(stubService{order: order}, WithTracer(provider.Tracer("test")))

	got, err := svc.GetOrCreate(context.Background(), "T01", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "OrderService.GetOrCreate", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestService_MarksFailedSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	svc := New(stubService{err: ordersports.ErrNotFound}, WithTracer(provider.Tracer("test")))
	_, err := svc.Close(context.Background(), "T01", ordersdomain.StatePaid)
	require.ErrorIs(t, err, ordersports.ErrNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
