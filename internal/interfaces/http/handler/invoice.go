package handler

import (
	"context"

	appinvoicing "github.com/faktura/backend/internal/application/invoicing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InvoiceHandler handles invoice lifecycle API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoices *appinvoicing.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices *appinvoicing.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// RegisterRoutes registers the invoice routes
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.Create)
		invoices.GET("", h.List)
		invoices.GET("/next-number", h.NextNumber)
		invoices.GET("/:id", h.Get)
		invoices.DELETE("/:id", h.Delete)
		invoices.POST("/:id/status/sent", h.MarkSent)
		invoices.POST("/:id/status/paid", h.MarkPaid)
		invoices.POST("/:id/status/overdue", h.MarkOverdue)
		invoices.DELETE("/:id/status/overdue", h.ClearOverdue)
		invoices.POST("/:id/cancel", h.Cancel)
	}
}

// Create creates a new invoice. A requested number that is already
// taken comes back as 409 with a suggested alternative.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req appinvoicing.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.invoices.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List returns invoices; canceled ones are hidden unless requested.
func (h *InvoiceHandler) List(c *gin.Context) {
	var query appinvoicing.ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoices, total, err := h.invoices.List(c.Request.Context(), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	h.SuccessWithMeta(c, invoices, total, page, pageSize)
}

// Get returns a single invoice by ID
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	resp, err := h.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// NextNumber previews the next free invoice number without allocating it
func (h *InvoiceHandler) NextNumber(c *gin.Context) {
	resp, err := h.invoices.NextNumber(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Delete removes an invoice, its items and its cached PDF
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	if err := h.invoices.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// MarkSent flags the invoice as dispatched
func (h *InvoiceHandler) MarkSent(c *gin.Context) {
	h.transition(c, h.invoices.MarkSent)
}

// MarkPaid records payment
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	h.transition(c, h.invoices.MarkPaid)
}

// MarkOverdue flags the invoice as overdue
func (h *InvoiceHandler) MarkOverdue(c *gin.Context) {
	h.transition(c, h.invoices.MarkOverdue)
}

// ClearOverdue removes the overdue flag
func (h *InvoiceHandler) ClearOverdue(c *gin.Context) {
	h.transition(c, h.invoices.ClearOverdue)
}

// Cancel voids the invoice and archives its PDF
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	// The body is optional; without one the invoice is canceled
	// without a reason.
	var req appinvoicing.CancelInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	resp, err := h.invoices.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *InvoiceHandler) transition(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) (*appinvoicing.InvoiceResponse, error)) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	resp, err := apply(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
