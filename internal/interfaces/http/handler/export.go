package handler

import (
	appinvoicing "github.com/faktura/backend/internal/application/invoicing"
	"github.com/gin-gonic/gin"
)

// ExportHandler handles outbound invoice delivery: recipient mail and
// the DATEV forward to the accountant mailbox.
type ExportHandler struct {
	BaseHandler
	exports *appinvoicing.ExportService
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exports *appinvoicing.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// RegisterRoutes registers the export routes
func (h *ExportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.GET("/:id/email-preview", h.PreviewEmail)
		invoices.POST("/:id/send-email", h.SendEmail)
		invoices.POST("/:id/datev-export", h.ExportDatev)
	}
}

// PreviewEmail resolves account and template without sending
func (h *ExportHandler) PreviewEmail(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	preview, err := h.exports.PreviewEmail(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// SendEmail mails the invoice PDF to its recipient
func (h *ExportHandler) SendEmail(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	// The body is optional; an empty one sends to the stored address.
	var req appinvoicing.SendInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	result, err := h.exports.SendInvoice(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ExportDatev forwards the invoice to the accountant mailbox and
// returns the recorded outcome. SKIPPED and FAILED are outcomes, not
// transport errors, so they come back as 200.
func (h *ExportHandler) ExportDatev(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	result, err := h.exports.ExportDatev(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
