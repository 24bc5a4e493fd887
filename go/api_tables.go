package tablesideserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Apurer/tableside/internal/facade"
)

// TablesAPI exposes the table cache.
type TablesAPI struct {
	controller *facade.Controller
}

// NewTablesAPI wires dependencies.
func NewTablesAPI(controller *facade.Controller) TablesAPI {
	return TablesAPI{controller: controller}
}

type createTableRequest struct {
	Capacity int    `json:"capacity"`
	Zone     string `json:"zone" binding:"required"`
}

type changeStateRequest struct {
	State string `json:"state" binding:"required"`
}

// Get /v1/tables
func (api *TablesAPI) ListTables(c *gin.Context) {
	c.JSON(http.StatusOK, api.controller.ListTables())
}

// Post /v1/tables
// Creates a table with the next free id of its zone
func (api *TablesAPI) CreateTable(c *gin.Context) {
	var payload createTableRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	table, ok, err := api.controller.CreateTable(c.Request.Context(), payload.Capacity, payload.Zone)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		respondUnprocessable(c, "capacity must be positive and zone must be set")
		return
	}
	c.JSON(http.StatusCreated, table)
}

// Get /v1/tables/:tableId
func (api *TablesAPI) GetTable(c *gin.Context) {
	id := c.Param("tableId")
	table, ok := api.controller.GetTable(id)
	if !ok {
		respondMissing(c, "table", id)
		return
	}
	c.JSON(http.StatusOK, table)
}

// Patch /v1/tables/:tableId
// Changes capacity, alias or temporary capacity
func (api *TablesAPI) UpdateTable(c *gin.Context) {
	id := c.Param("tableId")
	var patch facade.TablePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, err)
		return
	}
	table, ok, err := api.controller.UpdateTable(c.Request.Context(), id, patch)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if api.missing(c, id) {
			return
		}
		respondUnprocessable(c, "capacities must be greater than zero")
		return
	}
	c.JSON(http.StatusOK, table)
}

// Delete /v1/tables/:tableId
func (api *TablesAPI) DeleteTable(c *gin.Context) {
	id := c.Param("tableId")
	ok, err := api.controller.DeleteTable(c.Request.Context(), id)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if api.missing(c, id) {
			return
		}
		respondRejected(c, "table is occupied")
		return
	}
	c.Status(http.StatusNoContent)
}

// Put /v1/tables/:tableId/state
func (api *TablesAPI) ChangeTableState(c *gin.Context) {
	id := c.Param("tableId")
	var payload changeStateRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	table, ok, err := api.controller.ChangeTableState(c.Request.Context(), id, payload.State)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if api.missing(c, id) {
			return
		}
		respondRejected(c, "state change not allowed for this table")
		return
	}
	c.JSON(http.StatusOK, table)
}

// Post /v1/tables/:tableId/release
// Cancels any active order and frees the table
func (api *TablesAPI) ReleaseTable(c *gin.Context) {
	id := c.Param("tableId")
	ok, err := api.controller.ReleaseTable(c.Request.Context(), id)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if api.missing(c, id) {
			return
		}
		respondRejected(c, "table is already free")
		return
	}
	table, _ := api.controller.GetTable(id)
	c.JSON(http.StatusOK, table)
}

// missing writes a 404 when the table does not exist.
func (api *TablesAPI) missing(c *gin.Context, id string) bool {
	if _, ok := api.controller.GetTable(id); ok {
		return false
	}
	respondMissing(c, "table", id)
	return true
}
