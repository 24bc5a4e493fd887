package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	ordersports "github.com/Apurer/tableside/internal/domains/orders/ports"
)

const tracerName = "github.com/Apurer/tableside/internal/domains/orders/adapters/observability/service"

// Service decorates the order lifecycle with tracing, logging, and metrics.
type Service struct {
	inner   ordersports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wraps the core order service.
func New(inner ordersports.Service, opts ...Option) ordersports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return s
}

func (s *Service) GetOrCreate(ctx context.Context, tableID, userID string) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrCreate", trace.WithAttributes(attribute.String("table.id", tableID)))
	defer span.End()

	result, err := s.inner.GetOrCreate(ctx, tableID, userID)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to open order", slog.String("table.id", tableID))
	}
	span.SetAttributes(attribute.Int64("order.id", result.ID))
	return result, nil
}

func (s *Service) AddLine(ctx context.Context, orderID int64, line ordersdomain.Line) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.AddLine",
		trace.WithAttributes(attribute.Int64("order.id", orderID), attribute.Int64("product.id", line.ProductID)))
	defer span.End()

	result, err := s.inner.AddLine(ctx, orderID, line)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to add order line", slog.Int64("order.id", orderID))
	}
	s.metrics.recordLineChange(ctx, "add")
	s.logInfo(ctx, "order line added", slog.Int64("order.id", orderID), slog.Int64("product.id", line.ProductID),
		slog.String("total", result.Total().StringFixed(2)))
	return result, nil
}

func (s *Service) RemoveLine(ctx context.Context, orderID, productID int64) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.RemoveLine",
		trace.WithAttributes(attribute.Int64("order.id", orderID), attribute.Int64("product.id", productID)))
	defer span.End()

	result, err := s.inner.RemoveLine(ctx, orderID, productID)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to remove order line", slog.Int64("order.id", orderID))
	}
	s.metrics.recordLineChange(ctx, "remove")
	return result, nil
}

func (s *Service) SetQuantity(ctx context.Context, orderID, productID int64, quantity int) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.SetQuantity",
		trace.WithAttributes(attribute.Int64("order.id", orderID), attribute.Int64("product.id", productID), attribute.Int("quantity", quantity)))
	defer span.End()

	result, err := s.inner.SetQuantity(ctx, orderID, productID, quantity)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to set line quantity", slog.Int64("order.id", orderID))
	}
	s.metrics.recordLineChange(ctx, "set_quantity")
	return result, nil
}

func (s *Service) Close(ctx context.Context, tableID string, outcome ordersdomain.State) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Close",
		trace.WithAttributes(attribute.String("table.id", tableID), attribute.String("order.outcome", string(outcome))))
	defer span.End()

	result, err := s.inner.Close(ctx, tableID, outcome)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to close order", slog.String("table.id", tableID))
	}
	s.metrics.recordClosed(ctx, result.State)
	return result, nil
}

func (s *Service) ChangeState(ctx context.Context, orderID int64, state ordersdomain.State) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ChangeState",
		trace.WithAttributes(attribute.Int64("order.id", orderID), attribute.String("order.state", string(state))))
	defer span.End()

	result, err := s.inner.ChangeState(ctx, orderID, state)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to change order state", slog.Int64("order.id", orderID))
	}
	if !result.State.Active() {
		s.metrics.recordClosed(ctx, result.State)
	}
	return result, nil
}

func (s *Service) MarkPaid(ctx context.Context, orderID int64, fingerprint string) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.MarkPaid", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	result, err := s.inner.MarkPaid(ctx, orderID, fingerprint)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to mark order paid", slog.Int64("order.id", orderID))
	}
	s.metrics.recordClosed(ctx, result.State)
	return result, nil
}

func (s *Service) ActiveOrder(tableID string) (*ordersdomain.Order, error) {
	return s.inner.ActiveOrder(tableID)
}

func (s *Service) HasActiveOrder(tableID string) bool {
	return s.inner.HasActiveOrder(tableID)
}

func (s *Service) Get(ctx context.Context, orderID int64) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	result, err := s.inner.Get(ctx, orderID)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load order", slog.Int64("order.id", orderID))
	}
	return result, nil
}

func (s *Service) History(ctx context.Context, tableID string, limit int) ([]*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.History", trace.WithAttributes(attribute.String("table.id", tableID)))
	defer span.End()

	result, err := s.inner.History(ctx, tableID, limit)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to list order history", slog.String("table.id", tableID))
	}
	span.SetAttributes(attribute.Int("orders.count", len(result)))
	return result, nil
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.logger != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
	}
	return err
}

type serviceMetrics struct {
	linesChanged metric.Int64Counter
	ordersClosed metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	linesChanged, _ := m.Int64Counter("orders.service.lines_changed", metric.WithDescription("Number of order line mutations"))
	ordersClosed, _ := m.Int64Counter("orders.service.orders_closed", metric.WithDescription("Number of orders leaving the active states"))
	return serviceMetrics{linesChanged: linesChanged, ordersClosed: ordersClosed}
}

func (m serviceMetrics) recordLineChange(ctx context.Context, kind string) {
	if m.linesChanged != nil {
		m.linesChanged.Add(ctx, 1, metric.WithAttributes(attribute.String("change", kind)))
	}
}

func (m serviceMetrics) recordClosed(ctx context.Context, state ordersdomain.State) {
	if m.ordersClosed != nil {
		m.ordersClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("order.state", string(state))))
	}
}

var _ ordersports.Service = (*Service)(nil)
