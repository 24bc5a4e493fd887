package tablesideserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Apurer/tableside/internal/facade"
)

// ReservationsAPI exposes the reservation scheduler.
type ReservationsAPI struct {
	controller *facade.Controller
}

// NewReservationsAPI wires dependencies.
func NewReservationsAPI(controller *facade.Controller) ReservationsAPI {
	return ReservationsAPI{controller: controller}
}

// Post /v1/reservations
// Books a table unless the interval overlaps an active reservation
func (api *ReservationsAPI) CreateReservation(c *gin.Context) {
	var payload facade.ReservationRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	reservation, ok, err := api.controller.CreateReservation(c.Request.Context(), payload)
	if respondFacadeError(c, err) {
		return
	}
	if !ok {
		if _, exists := api.controller.GetTable(payload.TableID); !exists {
			respondMissing(c, "table", payload.TableID)
			return
		}
		respondRejected(c, "reservation is invalid or overlaps an existing reservation")
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

// Get /v1/reservations/:reservationId
func (api *ReservationsAPI) GetReservation(c *gin.Context) {
	id, ok := parseIDParam(c, "reservationId")
	if !ok {
		return
	}
	reservation, found, err := api.controller.Reservation(c.Request.Context(), id)
	if respondFacadeError(c, err) {
		return
	}
	if !found {
		respondMissing(c, "reservation", id)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

// Delete /v1/reservations/:reservationId
func (api *ReservationsAPI) CancelReservation(c *gin.Context) {
	id, ok := parseIDParam(c, "reservationId")
	if !ok {
		return
	}
	cancelled, err := api.controller.CancelReservation(c.Request.Context(), id)
	if respondFacadeError(c, err) {
		return
	}
	if !cancelled {
		if _, found, err := api.controller.Reservation(c.Request.Context(), id); err == nil && !found {
			respondMissing(c, "reservation", id)
			return
		}
		respondRejected(c, "reservation is already cancelled")
		return
	}
	c.Status(http.StatusNoContent)
}

// Get /v1/tables/:tableId/reservations
func (api *ReservationsAPI) ListForTable(c *gin.Context) {
	id := c.Param("tableId")
	if _, exists := api.controller.GetTable(id); !exists {
		respondMissing(c, "table", id)
		return
	}
	list, err := api.controller.ListReservations(c.Request.Context(), id)
	if respondFacadeError(c, err) {
		return
	}
	c.JSON(http.StatusOK, list)
}
