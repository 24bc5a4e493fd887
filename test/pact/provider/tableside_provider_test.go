//go:build pact
// +build pact

package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	pacttest "github.com/Apurer/tableside/test/pact"

	tablesideserver "github.com/Apurer/tableside/go"
	inventorymemory "github.com/Apurer/tableside/internal/domains/inventory/adapters/memory"
	ordersmemory "github.com/Apurer/tableside/internal/domains/orders/adapters/memory"
	ordersobs "github.com/Apurer/tableside/internal/domains/orders/adapters/observability"
	ordersapp "github.com/Apurer/tableside/internal/domains/orders/application"
	paymentsobs "github.com/Apurer/tableside/internal/domains/payments/adapters/observability"
	paymentsworkflows "github.com/Apurer/tableside/internal/domains/payments/adapters/workflows"
	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	reservationsmemory "github.com/Apurer/tableside/internal/domains/reservations/adapters/memory"
	reservationsapp "github.com/Apurer/tableside/internal/domains/reservations/application"
	tablesmemory "github.com/Apurer/tableside/internal/domains/tables/adapters/memory"
	tablesapp "github.com/Apurer/tableside/internal/domains/tables/application"
	"github.com/Apurer/tableside/internal/events"
	"github.com/Apurer/tableside/internal/facade"

	"github.com/gin-gonic/gin"
	"github.com/pact-foundation/pact-go/v2/models"
	pactprovider "github.com/pact-foundation/pact-go/v2/provider"
	"github.com/stretchr/testify/require"
)

func TestTablesideProviderPact(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app := newContractProviderApp(t)
	pactFile := filepath.ToSlash(pacttest.PactFile(t))
	if _, err := os.Stat(pactFile); errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pact file not found at %s - run the pact consumer tests first", pactFile)
	} else {
		require.NoError(t, err)
	}

	verifier := pactprovider.NewVerifier()
	stateHandlers := models.StateHandlers{
		pacttest.StateNoTables: func(setup bool, _ models.ProviderState) (models.ProviderStateResponse, error) {
			app.reset(t)
			return nil, nil
		},
		pacttest.StateTableExists: func(setup bool, _ models.ProviderState) (models.ProviderStateResponse, error) {
			app.reset(t)
			if setup {
				app.seedTable(t)
			}
			return nil, nil
		},
		pacttest.StateTableOrdered: func(setup bool, _ models.ProviderState) (models.ProviderStateResponse, error) {
			app.reset(t)
			if setup {
				app.seedTable(t)
				_, ok, err := app.controller().OpenOrder(context.Background(), pacttest.ExistingTableID, "pact-waiter")
				require.NoError(t, err)
				require.True(t, ok)
			}
			return nil, nil
		},
	}

	err := verifier.VerifyProvider(t, pactprovider.VerifyRequest{
		ProviderBaseURL: app.server.URL,
		Provider:        pacttest.ProviderName,
		PactFiles:       []string{pactFile},
		StateHandlers:   stateHandlers,
		BeforeEach: func() error {
			app.reset(t)
			return nil
		},
	})
	require.NoError(t, err)
}

// contractProviderApp serves a fresh in-memory engine per provider state.
type contractProviderApp struct {
	mu      sync.RWMutex
	current *facade.Controller
	router  http.Handler
	hub     *tablesideserver.EventHub
	server  *httptest.Server
	buses   *events.Registry
	state   int
}

func newContractProviderApp(t testing.TB) *contractProviderApp {
	t.Helper()
	app := &contractProviderApp{buses: events.NewRegistry()}
	app.reset(t)
	app.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.mu.RLock()
		router := app.router
		app.mu.RUnlock()
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(app.server.Close)
	t.Cleanup(func() { app.hub.Close() })
	return app
}

func (a *contractProviderApp) reset(t testing.TB) {
	t.Helper()
	a.state++
	bus := fmt.Sprintf("state-%d", a.state)
	notifier := a.buses.Get(bus)
	tables := tablesapp.NewService(tablesmemory.NewRepository(), tablesapp.WithPublisher(notifier))
	coreOrders := ordersapp.NewService(ordersmemory.NewRepository(), tables, ordersapp.WithPublisher(notifier))
	orders := ordersobs.New(coreOrders)
	reservations := reservationsapp.NewService(reservationsmemory.NewRepository(), tables, coreOrders)
	processor := paymentsapp.NewProcessor(orders, inventorymemory.NewRepository())
	settler := paymentsobs.New(paymentsworkflows.NewInlineSettlement(processor))
	controller := facade.NewController(tables, orders, reservations, settler, facade.WithSubscriber(notifier))
	hub := tablesideserver.NewEventHub(controller)

	router := gin.New()
	router.Use(gin.Recovery())
	router = tablesideserver.NewRouterWithGinEngine(router, tablesideserver.ApiHandleFunctions{
		TablesAPI:       tablesideserver.NewTablesAPI(controller),
		OrdersAPI:       tablesideserver.NewOrdersAPI(controller),
		ReservationsAPI: tablesideserver.NewReservationsAPI(controller),
		Events:          hub,
	})

	a.mu.Lock()
	previous := a.hub
	a.current, a.router, a.hub = controller, router, hub
	a.mu.Unlock()
	if previous != nil {
		previous.Close()
	}
	a.buses.Drop(fmt.Sprintf("state-%d", a.state-1))
}

func (a *contractProviderApp) controller() *facade.Controller {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *contractProviderApp) seedTable(t testing.TB) {
	t.Helper()
	table, ok, err := a.controller().CreateTable(context.Background(), pacttest.ExampleCapacity, pacttest.ExampleZone)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pacttest.ExistingTableID, table.ID)
}
