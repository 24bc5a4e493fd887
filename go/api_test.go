package tablesideserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventorymemory "github.com/Apurer/tableside/internal/domains/inventory/adapters/memory"
	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
	ordersmemory "github.com/Apurer/tableside/internal/domains/orders/adapters/memory"
	ordersapp "github.com/Apurer/tableside/internal/domains/orders/application"
	paymentsapp "github.com/Apurer/tableside/internal/domains/payments/application"
	reservationsmemory "github.com/Apurer/tableside/internal/domains/reservations/adapters/memory"
	reservationsapp "github.com/Apurer/tableside/internal/domains/reservations/application"
	tablesmemory "github.com/Apurer/tableside/internal/domains/tables/adapters/memory"
	tablesapp "github.com/Apurer/tableside/internal/domains/tables/application"
	"github.com/Apurer/tableside/internal/events"
	"github.com/Apurer/tableside/internal/facade"
	apierrors "github.com/Apurer/tableside/internal/shared/errors"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testApp struct {
	router     *gin.Engine
	controller *facade.Controller
	inventory  *inventorymemory.Repository
	hub        *EventHub
	auth       *Authenticator
}

func newTestApp(t *testing.T, secret string) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	notifier := events.New()
	clock := func() time.Time { return testNow }
	tables := tablesapp.NewService(tablesmemory.NewRepository(), tablesapp.WithPublisher(notifier))
	orders := ordersapp.NewService(ordersmemory.NewRepository(), tables,
		ordersapp.WithPublisher(notifier), ordersapp.WithClock(clock))
	reservations := reservationsapp.NewService(reservationsmemory.NewRepository(), tables, orders,
		reservationsapp.WithClock(clock))
	inventory := inventorymemory.NewRepository()
	processor := paymentsapp.NewProcessor(orders, inventory, paymentsapp.WithClock(clock))
	controller := facade.NewController(tables, orders, reservations, processor, facade.WithSubscriber(notifier))

	auth := NewAuthenticator(secret, WithAuthClock(clock))
	hub := NewEventHub(controller)
	t.Cleanup(hub.Close)
	router := NewRouterWithGinEngine(gin.New(), ApiHandleFunctions{
		TablesAPI:       NewTablesAPI(controller),
		OrdersAPI:       NewOrdersAPI(controller),
		ReservationsAPI: NewReservationsAPI(controller),
		Events:          hub,
		Auth:            auth,
	})
	return &testApp{router: router, controller: controller, inventory: inventory, hub: hub, auth: auth}
}

func (a *testApp) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTablesAPI_CreateGetAndList(t *testing.T) {
	app := newTestApp(t, "")

	rec := app.do(t, http.MethodPost, "/v1/tables", map[string]any{"capacity": 4, "zone": "Terraza"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "T01", decode[facade.TableView](t, rec).ID)
	rec = app.do(t, http.MethodPost, "/v1/tables", map[string]any{"capacity": 4, "zone": "Terraza"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "T02", decode[facade.TableView](t, rec).ID)

	rec = app.do(t, http.MethodGet, "/v1/tables/T02", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", decode[facade.TableView](t, rec).State)

	rec = app.do(t, http.MethodGet, "/v1/tables", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]facade.TableView](t, rec), 2)

	rec = app.do(t, http.MethodGet, "/v1/tables/X09", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
	problem := decode[apierrors.ProblemDetail](t, rec)
	assert.Equal(t, apierrors.TypeNotFound, problem.Type)
	assert.Equal(t, "/v1/tables/X09", problem.Instance)

	rec = app.do(t, http.MethodPost, "/v1/tables", map[string]any{"capacity": 0, "zone": "Terraza"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTablesAPI_UpdateReleaseAndDelete(t *testing.T) {
	app := newTestApp(t, "")
	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/v1/tables", map[string]any{"capacity": 4, "zone": "Barra"}, "").Code)

	rec := app.do(t, http.MethodPatch, "/v1/tables/B01", map[string]any{"alias": "Corner", "temporaryCapacity": 6}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[facade.TableView](t, rec)
	assert.Equal(t, "Corner", view.DisplayName)
	assert.Equal(t, 6, view.EffectiveCapacity)

	assert.Equal(t, http.StatusUnprocessableEntity, app.do(t, http.MethodPatch, "/v1/tables/B01", map[string]any{"capacity": -1}, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPatch, "/v1/tables/B09", map[string]any{"alias": "x"}, "").Code)

	rec = app.do(t, http.MethodPost, "/v1/tables/B01/release", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[facade.TableView](t, rec).Alias)
	assert.Equal(t, http.StatusConflict, app.do(t, http.MethodPost, "/v1/tables/B01/release", nil, "").Code)

	rec = app.do(t, http.MethodPut, "/v1/tables/B01/state", map[string]any{"state": "maintenance"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "maintenance", decode[facade.TableView](t, rec).State)
	assert.Equal(t, http.StatusConflict, app.do(t, http.MethodPost, "/v1/tables/B01/order", nil, "").Code)

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/v1/tables/B01", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/v1/tables/B01", nil, "").Code)
}

func TestOrdersAPI_RequiresToken(t *testing.T) {
	app := newTestApp(t, "s3cret")

	rec := app.do(t, http.MethodGet, "/v1/tables", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apierrors.TypeUnauthorized, decode[apierrors.ProblemDetail](t, rec).Type)

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/v1/tables", nil, "not-a-token").Code)

	other := NewAuthenticator("other-secret", WithAuthClock(func() time.Time { return testNow }))
	forged, err := other.Issue("mallory", "waiter")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/v1/tables", nil, forged).Code)

	token, err := app.auth.Issue("u7", "waiter")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/v1/tables", nil, token).Code)
}

func TestOrdersAPI_OrderAndSettleFlow(t *testing.T) {
	app := newTestApp(t, "s3cret")
	token, err := app.auth.Issue("u7", "waiter")
	require.NoError(t, err)
	ctx := context.Background()
	_, _, err = app.controller.CreateTable(ctx, 4, "Terraza")
	require.NoError(t, err)
	beer, err := app.inventory.SaveProduct(ctx, inventorydomain.Product{Name: "Beer", Price: decimal.RequireFromString("3.00"), Stock: 5})
	require.NoError(t, err)

	rec := app.do(t, http.MethodPost, "/v1/tables/T01/order", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := decode[facade.OrderView](t, rec)
	assert.Equal(t, "u7", order.UserID)
	linesPath := "/v1/orders/" + jsonNumber(order.ID) + "/lines"

	rec = app.do(t, http.MethodPost, linesPath, facade.LineRequest{ProductID: beer.ID, Name: "Beer", UnitPrice: "3.00", Quantity: 8}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "24.00", decode[facade.OrderView](t, rec).Total)

	rec = app.do(t, http.MethodPost, "/v1/tables/T01/settlement", nil, token)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierrors.TypeConflict, decode[apierrors.ProblemDetail](t, rec).Type)

	rec = app.do(t, http.MethodPut, linesPath+"/"+jsonNumber(beer.ID), map[string]any{"quantity": 2}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "6.00", decode[facade.OrderView](t, rec).Total)

	rec = app.do(t, http.MethodPost, "/v1/tables/T01/settlement", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[facade.ReceiptView](t, rec)
	assert.Equal(t, "6.00", receipt.Total)
	require.Len(t, receipt.Movements, 1)
	assert.Equal(t, 3, receipt.Movements[0].NewStock)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/v1/tables/T01/order", nil, token).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPost, "/v1/tables/T01/settlement", nil, token).Code)

	rec = app.do(t, http.MethodGet, "/v1/orders/"+jsonNumber(order.ID), nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decode[facade.OrderView](t, rec).State)

	rec = app.do(t, http.MethodPut, "/v1/orders/"+jsonNumber(order.ID)+"/state", map[string]any{"state": "closed"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "closed", decode[facade.OrderView](t, rec).State)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/v1/orders/999", nil, token).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/v1/orders/abc", nil, token).Code)
}

func TestOrdersAPI_CloseOrderCancels(t *testing.T) {
	app := newTestApp(t, "")
	_, _, err := app.controller.CreateTable(context.Background(), 2, "Salon")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/v1/tables/S01/order", nil, "").Code)

	assert.Equal(t, http.StatusUnprocessableEntity,
		app.do(t, http.MethodPost, "/v1/tables/S01/order/close", map[string]any{"outcome": "closed"}, "").Code)
	rec := app.do(t, http.MethodPost, "/v1/tables/S01/order/close", map[string]any{"outcome": "cancelled"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[facade.OrderView](t, rec).State)
	assert.Equal(t, http.StatusNotFound,
		app.do(t, http.MethodPost, "/v1/tables/S01/order/close", map[string]any{"outcome": "cancelled"}, "").Code)

	rec = app.do(t, http.MethodGet, "/v1/tables/S01/orders?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]facade.OrderView](t, rec), 1)
}

func TestReservationsAPI_OverlapAndCancel(t *testing.T) {
	app := newTestApp(t, "")
	_, _, err := app.controller.CreateTable(context.Background(), 4, "Terraza")
	require.NoError(t, err)
	at := func(hour, minute int) time.Time { return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC) }
	body := func(start time.Time) facade.ReservationRequest {
		return facade.ReservationRequest{TableID: "T01", ClientName: "Ana", Start: start, DurationMinutes: 60, PartySize: 2}
	}

	rec := app.do(t, http.MethodPost, "/v1/reservations", body(at(19, 0)), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[facade.ReservationView](t, rec)

	assert.Equal(t, http.StatusConflict, app.do(t, http.MethodPost, "/v1/reservations", body(at(19, 30)), "").Code)
	assert.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/v1/reservations", body(at(20, 0)), "").Code)

	missing := body(at(22, 0))
	missing.TableID = "Z01"
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPost, "/v1/reservations", missing, "").Code)

	rec = app.do(t, http.MethodGet, "/v1/tables/T01/reservations", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]facade.ReservationView](t, rec), 2)

	path := "/v1/reservations/" + jsonNumber(first.ID)
	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, path, nil, "").Code)
	assert.Equal(t, http.StatusConflict, app.do(t, http.MethodDelete, path, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/v1/reservations/4040", nil, "").Code)

	rec = app.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[facade.ReservationView](t, rec).State)
}

func jsonNumber(n int64) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}

func TestAPI_RejectsInvalidBodiesWithValidationProblem(t *testing.T) {
	app := newTestApp(t, "")

	rec := app.do(t, http.MethodPost, "/v1/tables", map[string]any{"capacity": 4}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[apierrors.ProblemDetail](t, rec)
	assert.Equal(t, apierrors.TypeValidation, problem.Type)
	assert.Equal(t, map[string]any{"zone": "required"}, problem.Extensions["fields"])

	rec = app.do(t, http.MethodPost, "/v1/reservations", map[string]any{"tableId": "T01", "durationMinutes": 60}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[apierrors.ProblemDetail](t, rec).Extensions["fields"]
	assert.Equal(t, map[string]any{"clientName": "required", "start": "required"}, fields)
}
