package tablesideserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Route is the information for every URI.
type Route struct {
	// Name is the name of this Route.
	Name string
	// Method is the string for the HTTP method. ex) GET, POST etc..
	Method string
	// Pattern is the pattern of the URI.
	Pattern string
	// HandlerFunc is the handler function of this route.
	HandlerFunc gin.HandlerFunc
}

// ApiHandleFunctions groups the handlers of every API section. Auth is optional; without
// it requests carry no acting user.
type ApiHandleFunctions struct {
	TablesAPI       TablesAPI
	OrdersAPI       OrdersAPI
	ReservationsAPI ReservationsAPI
	Events          *EventHub
	Auth            *Authenticator
}

// NewRouter returns a new router.
func NewRouter(handleFunctions ApiHandleFunctions) *gin.Engine {
	return NewRouterWithGinEngine(gin.Default(), handleFunctions)
}

// NewRouterWithGinEngine adds the routes to an existing engine.
func NewRouterWithGinEngine(router *gin.Engine, handleFunctions ApiHandleFunctions) *gin.Engine {
	v1 := router.Group("/v1")
	if handleFunctions.Auth != nil {
		v1.Use(handleFunctions.Auth.Middleware())
	}
	for _, route := range getRoutes(handleFunctions) {
		if route.HandlerFunc == nil {
			route.HandlerFunc = DefaultHandleFunc
		}
		v1.Handle(route.Method, route.Pattern, route.HandlerFunc)
	}

	if handleFunctions.Events != nil {
		ws := router.Group("/ws")
		if handleFunctions.Auth != nil {
			ws.Use(handleFunctions.Auth.Middleware())
		}
		ws.GET("/events", handleFunctions.Events.Serve)
	}
	return router
}

// DefaultHandleFunc is the default handler for routes without an implementation.
func DefaultHandleFunc(c *gin.Context) {
	c.String(http.StatusNotImplemented, "501 not implemented")
}

func getRoutes(handleFunctions ApiHandleFunctions) []Route {
	tables := handleFunctions.TablesAPI
	orders := handleFunctions.OrdersAPI
	reservations := handleFunctions.ReservationsAPI
	return []Route{
		{"ListTables", http.MethodGet, "/tables", tables.ListTables},
		{"CreateTable", http.MethodPost, "/tables", tables.CreateTable},
		{"GetTable", http.MethodGet, "/tables/:tableId", tables.GetTable},
		{"UpdateTable", http.MethodPatch, "/tables/:tableId", tables.UpdateTable},
		{"DeleteTable", http.MethodDelete, "/tables/:tableId", tables.DeleteTable},
		{"ChangeTableState", http.MethodPut, "/tables/:tableId/state", tables.ChangeTableState},
		{"ReleaseTable", http.MethodPost, "/tables/:tableId/release", tables.ReleaseTable},
		{"GetActiveOrder", http.MethodGet, "/tables/:tableId/order", orders.GetActiveOrder},
		{"OpenOrder", http.MethodPost, "/tables/:tableId/order", orders.OpenOrder},
		{"CloseOrder", http.MethodPost, "/tables/:tableId/order/close", orders.CloseOrder},
		{"SettleTable", http.MethodPost, "/tables/:tableId/settlement", orders.Settle},
		{"OrderHistory", http.MethodGet, "/tables/:tableId/orders", orders.History},
		{"ListTableReservations", http.MethodGet, "/tables/:tableId/reservations", reservations.ListForTable},
		{"GetOrder", http.MethodGet, "/orders/:orderId", orders.GetOrder},
		{"AddOrderLine", http.MethodPost, "/orders/:orderId/lines", orders.AddLine},
		{"SetLineQuantity", http.MethodPut, "/orders/:orderId/lines/:productId", orders.SetLineQuantity},
		{"RemoveOrderLine", http.MethodDelete, "/orders/:orderId/lines/:productId", orders.RemoveLine},
		{"ChangeOrderState", http.MethodPut, "/orders/:orderId/state", orders.ChangeState},
		{"CreateReservation", http.MethodPost, "/reservations", reservations.CreateReservation},
		{"GetReservation", http.MethodGet, "/reservations/:reservationId", reservations.GetReservation},
		{"CancelReservation", http.MethodDelete, "/reservations/:reservationId", reservations.CancelReservation},
	}
}
