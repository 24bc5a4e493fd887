package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	tablesideserver "github.com/Apurer/tableside/go"
	paymentsobs "github.com/Apurer/tableside/internal/domains/payments/adapters/observability"
	paymentsworkflows "github.com/Apurer/tableside/internal/domains/payments/adapters/workflows"
	paymentsports "github.com/Apurer/tableside/internal/domains/payments/ports"
	reservationsapp "github.com/Apurer/tableside/internal/domains/reservations/application"
	"github.com/Apurer/tableside/internal/facade"
	platformobservability "github.com/Apurer/tableside/internal/platform/observability"
	settlementactivities "github.com/Apurer/tableside/internal/platform/temporal/activities/settlement"
	settlementworkflows "github.com/Apurer/tableside/internal/platform/temporal/workflows/settlement"
)

// Run boots the tableside HTTP API with observability, storage, and settlement workflows wired.
// It returns when ctx is cancelled or the server fails.
func Run(ctx context.Context) error {
	const serviceName = "tableside-api"
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer shutdownObservability(instruments, shutdown)
	logger := instruments.Logger

	st, cleanupStore := buildStores(ctx, cfg, logger)
	defer cleanupStore()
	eng, err := buildEngine(ctx, st, instruments)
	if err != nil {
		return err
	}

	var settler paymentsports.Settler = paymentsworkflows.NewInlineSettlement(eng.processor)
	if temporalClient, err := connectTemporalClient(cfg, instruments); err != nil {
		logger.Warn("Temporal workflows unavailable, settling inline", slog.String("error", err.Error()))
	} else {
		defer temporalClient.Close()
		w := newSettlementWorker(temporalClient, eng)
		if err := w.Start(); err != nil {
			logger.Warn("failed to start settlement worker, settling inline", slog.String("error", err.Error()))
		} else {
			defer w.Stop()
			settler = paymentsworkflows.NewTemporalSettlement(temporalClient, eng.orders)
			logger.Info("Temporal workflows enabled", slog.String("namespace", cfg.TemporalNamespace))
		}
	}
	settler = paymentsobs.New(
		settler,
		paymentsobs.WithLogger(logger),
		paymentsobs.WithTracer(instruments.Tracer("internal.payments.application")),
		paymentsobs.WithMeter(instruments.Meter("internal.payments.application")),
	)

	controller := facade.NewController(eng.tables, eng.orders, eng.reservations, settler,
		facade.WithLogger(logger),
		facade.WithSubscriber(eng.notifier),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reconciler := reservationsapp.NewReconciler(eng.reservations, cfg.ReconcileInterval, logger)
	go reconciler.Run(runCtx)

	hub := tablesideserver.NewEventHub(controller,
		tablesideserver.WithHubLogger(logger),
		tablesideserver.WithAllowedOrigins(cfg.AllowedOrigins...),
	)
	defer hub.Close()
	auth := tablesideserver.NewAuthenticator(cfg.JWTSecret)
	if auth == nil {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery(), otelgin.Middleware(serviceName))
	router := tablesideserver.NewRouterWithGinEngine(ginEngine, tablesideserver.ApiHandleFunctions{
		TablesAPI:       tablesideserver.NewTablesAPI(controller),
		OrdersAPI:       tablesideserver.NewOrdersAPI(controller),
		ReservationsAPI: tablesideserver.NewReservationsAPI(controller),
		Events:          hub,
		Auth:            auth,
	})

	addr := ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("tableside API listening", slog.String("addr", addr), slog.Bool("persistent", st.persistent))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("tableside API server exited", slog.String("addr", addr), slog.String("error", err.Error()))
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		logger.Info("tableside API shutting down")
		return server.Shutdown(shutdownCtx)
	}
}

// RunWorker runs a standalone settlement worker until interrupted. Its caches are its own,
// so it only drains settlements left on the queue while no API process is running; the API
// reloads tables and orders from the store when it starts.
func RunWorker(ctx context.Context) error {
	const serviceName = "tableside-worker"
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer shutdownObservability(instruments, shutdown)
	logger := instruments.Logger

	st, cleanupStore := buildStores(ctx, cfg, logger)
	defer cleanupStore()
	if !st.persistent {
		logger.Warn("worker running against in-memory repositories; settlements will not reach the API process")
	}
	eng, err := buildEngine(ctx, st, instruments)
	if err != nil {
		return err
	}
	temporalClient, err := connectTemporalClient(cfg, instruments)
	if err != nil {
		logger.Error("failed to create Temporal client", slog.String("error", err.Error()))
		return err
	}
	defer temporalClient.Close()

	w := newSettlementWorker(temporalClient, eng)
	logger.Info("worker listening", slog.String("taskQueue", settlementworkflows.SettlementTaskQueue), slog.String("namespace", cfg.TemporalNamespace))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Temporal worker exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Temporal worker stopped")
	return nil
}

// Reconcile runs one reservation reconciliation pass against the configured store.
func Reconcile(ctx context.Context) (int, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return 0, err
	}
	instruments, shutdown, err := platformobservability.Init(ctx, "tableside-reconciler")
	if err != nil {
		return 0, fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer shutdownObservability(instruments, shutdown)

	st, cleanupStore := buildStores(ctx, cfg, instruments.Logger)
	defer cleanupStore()
	if !st.persistent {
		return 0, errors.New("no persistent store configured; nothing to reconcile")
	}
	eng, err := buildEngine(ctx, st, instruments)
	if err != nil {
		return 0, err
	}
	return eng.reservations.Reconcile(ctx)
}

func newSettlementWorker(c client.Client, eng *engine) worker.Worker {
	w := worker.New(c, settlementworkflows.SettlementTaskQueue, worker.Options{})
	settlementworkflows.Register(w)
	settlementactivities.NewActivities(eng.processor).Register(w)
	return w
}

func shutdownObservability(instruments *platformobservability.Instruments, shutdown func(context.Context) error) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
	}
}
