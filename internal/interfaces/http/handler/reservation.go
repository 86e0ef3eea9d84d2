package handler

import (
	appinvoicing "github.com/faktura/backend/internal/application/invoicing"
	"github.com/faktura/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReservationHandler is the integration surface for the external
// reservation system: invoice lookup and status updates keyed by
// reservation request id, guarded by the shared sync token.
type ReservationHandler struct {
	BaseHandler
	invoices  *appinvoicing.InvoiceService
	syncToken string
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(invoices *appinvoicing.InvoiceService, syncToken string) *ReservationHandler {
	return &ReservationHandler{invoices: invoices, syncToken: syncToken}
}

// RegisterRoutes registers the reservation integration routes
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	reservations := rg.Group("/by-reservation", middleware.SyncToken(h.syncToken))
	{
		reservations.GET("/:reservationId/status", h.GetStatus)
		reservations.POST("/:reservationId/status", h.UpdateStatus)
	}
}

// ReservationStatusRequest carries the new status for the invoice of
// a reservation.
type ReservationStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// GetStatus returns the invoice created for a reservation
func (h *ReservationHandler) GetStatus(c *gin.Context) {
	resp, err := h.invoices.GetByReservation(c.Request.Context(), c.Param("reservationId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateStatus applies a status change to the invoice of a reservation
func (h *ReservationHandler) UpdateStatus(c *gin.Context) {
	var req ReservationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.invoices.UpdateStatusByReservation(c.Request.Context(), c.Param("reservationId"), req.Status)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
