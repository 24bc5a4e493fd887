package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	workerlog "go.temporal.io/sdk/log"

	inventorymemory "github.com/Apurer/tableside/internal/domains/inventory/adapters/memory"
	inventoryrelational "github.com/Apurer/tableside/internal/domains/inventory/adapters/persistence/relational"
	inventoryports "github.com/Apurer/tableside/internal/domains/inventory/ports"
	ordersmemory "github.com/Apurer/tableside/internal/domains/orders/adapters/memory"
	ordersobs "github.com/Apurer/tableside/internal/domains/orders/adapters/observability"
	ordersrelational "github.com/Apurer/tableside/internal/domains/orders/adapters/persistence/relational"
	ordersapp "github.com/Apurer/tableside/internal/domains/orders/application"
	ordersports "github.com/Apurer/tableside/internal/domains/orders/ports"
	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	reservationsmemory "github.com/Apurer/tableside/internal/domains/reservations/adapters/memory"
	reservationsrelational "github.com/Apurer/tableside/internal/domains/reservations/adapters/persistence/relational"
	reservationsapp "github.com/Apurer/tableside/internal/domains/reservations/application"
	reservationsports "github.com/Apurer/tableside/internal/domains/reservations/ports"
	tablesmemory "github.com/Apurer/tableside/internal/domains/tables/adapters/memory"
	tablesrelational "github.com/Apurer/tableside/internal/domains/tables/adapters/persistence/relational"
	tablesapp "github.com/Apurer/tableside/internal/domains/tables/application"
	tablesports "github.com/Apurer/tableside/internal/domains/tables/ports"
	"github.com/Apurer/tableside/internal/events"
	"github.com/Apurer/tableside/internal/platform/database"
	"github.com/Apurer/tableside/internal/platform/migrations"
	platformobservability "github.com/Apurer/tableside/internal/platform/observability"
	"github.com/Apurer/tableside/internal/platform/storage"
)

// stores bundles one repository per domain, all backed by the same store.
type stores struct {
	tables       tablesports.Repository
	orders       ordersports.Repository
	reservations reservationsports.Repository
	inventory    inventoryports.Repository
	persistent   bool
}

func memoryStores() stores {
	return stores{
		tables:       tablesmemory.NewRepository(),
		orders:       ordersmemory.NewRepository(),
		reservations: reservationsmemory.NewRepository(),
		inventory:    inventorymemory.NewRepository(),
	}
}

// buildStores connects the configured store, migrates it, and wraps it in the gateway.
// Any failure falls back to in-memory repositories so the process still serves.
func buildStores(ctx context.Context, cfg Config, logger *slog.Logger) (stores, func()) {
	db, cleanup := database.ConnectWithFallback(ctx, cfg.StoreDriver, cfg.StoreDSN, logger)
	if db == nil {
		return memoryStores(), cleanup
	}
	if err := migrations.Run(db); err != nil {
		logger.Warn("failed to migrate store, falling back to in-memory repositories", slog.String("error", err.Error()))
		cleanup()
		return memoryStores(), func() {}
	}
	gw := storage.NewGormGateway(db, storage.WithTimeout(cfg.StoreTimeout))
	return stores{
		tables:       tablesrelational.NewRepository(gw),
		orders:       ordersrelational.NewRepository(gw),
		reservations: reservationsrelational.NewRepository(gw),
		inventory:    inventoryrelational.NewRepository(gw),
		persistent:   true,
	}, cleanup
}

// engine is the in-process state: the caches, the notifier, and the services over them.
type engine struct {
	notifier     *events.Notifier
	tables       *tablesapp.Service
	coreOrders   *ordersapp.Service
	orders       ordersports.Service
	reservations *reservationsapp.Service
	processor    *paymentsapp.Processor
}

// buildEngine wires the services and hydrates the table and order caches.
func buildEngine(ctx context.Context, st stores, instruments *platformobservability.Instruments) (*engine, error) {
	logger := instruments.Logger
	notifier, ok := events.FromContext(ctx)
	if !ok {
		notifier = events.New(events.WithLogger(logger))
	}
	tables := tablesapp.NewService(st.tables,
		tablesapp.WithLogger(logger),
		tablesapp.WithPublisher(notifier),
	)
	coreOrders := ordersapp.NewService(st.orders, tables,
		ordersapp.WithLogger(logger),
		ordersapp.WithPublisher(notifier),
	)
	if err := tables.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	if err := coreOrders.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load active orders: %w", err)
	}
	orders := ordersobs.New(
		coreOrders,
		ordersobs.WithLogger(logger),
		ordersobs.WithTracer(instruments.Tracer("internal.orders.application")),
		ordersobs.WithMeter(instruments.Meter("internal.orders.application")),
	)
	reservations := reservationsapp.NewService(st.reservations, tables, coreOrders, reservationsapp.WithLogger(logger))
	processor := paymentsapp.NewProcessor(orders, st.inventory, paymentsapp.WithLogger(logger))
	return &engine{
		notifier:     notifier,
		tables:       tables,
		coreOrders:   coreOrders,
		orders:       orders,
		reservations: reservations,
		processor:    processor,
	}, nil
}

func connectTemporalClient(cfg Config, instruments *platformobservability.Instruments) (client.Client, error) {
	if cfg.TemporalDisabled {
		return nil, errors.New("temporal disabled via TEMPORAL_DISABLED env")
	}
	tracerOptions := temporalotel.TracerOptions{}
	if instruments != nil {
		tracerOptions.Tracer = instruments.Tracer("temporal-client")
	}
	tracingInterceptor, err := temporalotel.NewTracingInterceptor(tracerOptions)
	if err != nil {
		return nil, err
	}
	options := client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    workerlog.NewStructuredLogger(effectiveLogger(instruments)),
	}
	options.Interceptors = append(options.Interceptors, tracingInterceptor)
	return client.Dial(options)
}

func effectiveLogger(instruments *platformobservability.Instruments) *slog.Logger {
	if instruments != nil && instruments.Logger != nil {
		return instruments.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
