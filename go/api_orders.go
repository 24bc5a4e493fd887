package tablesideserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Apurer/tableside/internal/facade"
)

const defaultHistoryLimit = 20

// OrdersAPI exposes the order lifecycle and settlement.
type OrdersAPI struct {
	controller *facade.Controller
}

// NewOrdersAPI wires dependencies.
func NewOrdersAPI(controller *facade.Controller) OrdersAPI {
	return OrdersAPI{controller: controller}
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type orderStateRequest struct {
	State string `json:"state" binding:"required"`
}

type closeOrderRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// Get /v1/tables/:tableId/order
func (api *OrdersAPI) GetActiveOrder(c *gin.Context) {
	id := c.Param("tableId")
	order, ok := api.controller.ActiveOrder(id)
	if !ok {
		respondMissing(c, "active order for table", id)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Post /v1/tables/:tableId/order
// Returns the active order, opening one when the table has none
func (api *OrdersAPI) OpenOrder(c *gin.Context) {
	id := c.Param("tableId")
	order, ok, err := api.controller.OpenOrder(c.Request.Context(), id, actingUser(c))
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if _, exists := api.controller.GetTable(id); !exists {
			respondMissing(c, "table", id)
			return
		}
		respondRejected(c, "table is under maintenance")
		return
	}
	c.JSON(http.StatusOK, order)
}

// Post /v1/tables/:tableId/order/close
// Ends the active order as paid or cancelled without touching stock
func (api *OrdersAPI) CloseOrder(c *gin.Context) {
	id := c.Param("tableId")
	var payload closeOrderRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	order, ok, err := api.controller.CloseOrder(c.Request.Context(), id, payload.Outcome)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if _, active := api.controller.ActiveOrder(id); !active {
			respondMissing(c, "active order for table", id)
			return
		}
		respondUnprocessable(c, "outcome must be paid or cancelled")
		return
	}
	c.JSON(http.StatusOK, order)
}

// Post /v1/tables/:tableId/settlement
// Charges the active order and deducts stock for every line
func (api *OrdersAPI) Settle(c *gin.Context) {
	id := c.Param("tableId")
	receipt, ok, err := api.controller.Settle(c.Request.Context(), id, actingUser(c))
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if _, active := api.controller.ActiveOrder(id); !active {
			respondMissing(c, "active order for table", id)
			return
		}
		respondRejected(c, "settlement rejected: the order is empty, changed, or stock is insufficient")
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// Get /v1/tables/:tableId/orders
func (api *OrdersAPI) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondUnprocessable(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	orders, err := api.controller.OrderHistory(c.Request.Context(), c.Param("tableId"), limit)
	if respondFacadeError(c, err) {
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Get /v1/orders/:orderId
func (api *OrdersAPI) GetOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	order, found, err := api.controller.Order(c.Request.Context(), id)
	if respondFacadeError(c, err) {
		return
	}
	if !found {
		respondMissing(c, "order", id)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Post /v1/orders/:orderId/lines
// Adds a product, merging with an existing line for the same product
func (api *OrdersAPI) AddLine(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	var payload facade.LineRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	order, ok, err := api.controller.AddOrderLine(c.Request.Context(), id, payload)
	api.respondLineChange(c, id, order, ok, err)
}

// Put /v1/orders/:orderId/lines/:productId
func (api *OrdersAPI) SetLineQuantity(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "productId")
	if !ok {
		return
	}
	var payload quantityRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	order, ok, err := api.controller.SetLineQuantity(c.Request.Context(), id, productID, payload.Quantity)
	api.respondLineChange(c, id, order, ok, err)
}

// Delete /v1/orders/:orderId/lines/:productId
func (api *OrdersAPI) RemoveLine(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "productId")
	if !ok {
		return
	}
	order, ok, err := api.controller.RemoveOrderLine(c.Request.Context(), id, productID)
	api.respondLineChange(c, id, order, ok, err)
}

// Put /v1/orders/:orderId/state
func (api *OrdersAPI) ChangeState(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	var payload orderStateRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	order, ok, err := api.controller.ChangeOrderState(c.Request.Context(), id, payload.State)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if api.orderMissing(c, id) {
			return
		}
		respondRejected(c, "order state transition not allowed")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (api *OrdersAPI) respondLineChange(c *gin.Context, orderID int64, order facade.OrderView, ok bool, err error) {
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if api.orderMissing(c, orderID) {
			return
		}
		respondRejected(c, "order line change rejected")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (api *OrdersAPI) orderMissing(c *gin.Context, orderID int64) bool {
	_, found, err := api.controller.Order(c.Request.Context(), orderID)
	if respondFacadeError(c, err) {
		return true
	}
	if found {
		return false
	}
	respondMissing(c, "order", orderID)
	return true
}
