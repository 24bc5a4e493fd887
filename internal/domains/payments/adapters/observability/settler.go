package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Apurer/tableside/internal/domains/payments/application"
	"github.com/Apurer/tableside/internal/domains/payments/domain"
	"github.com/Apurer/tableside/internal/domains/payments/ports"
)

const tracerName = "github.com/Apurer/tableside/internal/domains/payments/adapters/observability/settler"

// Settler decorates a settlement port with tracing, logging, and metrics.
type Settler struct {
	inner   ports.Settler
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics settlerMetrics
}

type Option func(*Settler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Settler) {
		s.logger = logger
	}
}

func WithTracer(tr trace.Tracer) Option {
	return func(s *Settler) {
		s.tracer = tr
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Settler) {
		s.metrics = newSettlerMetrics(m)
	}
}

func New(inner ports.Settler, opts ...Option) ports.Settler {
	s := &Settler{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		metrics: newSettlerMetrics(nil),
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

func (s *Settler) Settle(ctx context.Context, in domain.SettleInput) (*domain.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "Settler.Settle", trace.WithAttributes(attribute.String("table.id", in.TableID)))
	defer span.End()

	receipt, err := s.inner.Settle(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		reason := failureReason(err)
		s.metrics.recordFailure(ctx, reason)
		if s.logger != nil {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "settlement failed",
				slog.String("table.id", in.TableID), slog.String("reason", reason), slog.String("error", err.Error()))
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.String("settlement.id", receipt.SettlementID),
		attribute.Int64("order.id", receipt.OrderID),
		attribute.String("settlement.total", receipt.Total.StringFixed(2)),
	)
	s.metrics.recordSettlement(ctx)
	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "settlement completed",
			slog.String("settlement.id", receipt.SettlementID), slog.Int64("order.id", receipt.OrderID),
			slog.String("table.id", receipt.TableID), slog.String("total", receipt.Total.StringFixed(2)))
	}
	return receipt, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, application.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, application.ErrNoActiveOrder):
		return "no_active_order"
	case errors.Is(err, application.ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, application.ErrOrderChanged):
		return "order_changed"
	case errors.Is(err, application.ErrInvalidInput):
		return "invalid_input"
	}
	return "error"
}

type settlerMetrics struct {
	settlements metric.Int64Counter
	failures    metric.Int64Counter
}

func newSettlerMetrics(m metric.Meter) settlerMetrics {
	if m == nil {
		return settlerMetrics{}
	}
	settlements, _ := m.Int64Counter("payments.settlements", metric.WithDescription("Number of completed settlements"))
	failures, _ := m.Int64Counter("payments.settlement_failures", metric.WithDescription("Number of rejected or failed settlements"))
	return settlerMetrics{settlements: settlements, failures: failures}
}

func (m settlerMetrics) recordSettlement(ctx context.Context) {
	if m.settlements != nil {
		m.settlements.Add(ctx, 1)
	}
}

func (m settlerMetrics) recordFailure(ctx context.Context, reason string) {
	if m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

var _ ports.Settler = (*Settler)(nil)
