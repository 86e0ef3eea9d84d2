package handler

import (
	"net/http"

	appinvoicing "github.com/faktura/backend/internal/application/invoicing"
	"github.com/gin-gonic/gin"
)

// DocumentHandler serves invoice PDFs
type DocumentHandler struct {
	BaseHandler
	documents *appinvoicing.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documents *appinvoicing.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// RegisterRoutes registers the document routes
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.GET("/:id/pdf", h.GetPDF)
		invoices.POST("/:id/pdf/regenerate", h.Regenerate)
	}
}

// GetPDF streams the invoice document, rendering it on first access.
// mode=download forces a save dialog; the default shows it inline.
func (h *DocumentHandler) GetPDF(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	filename, data, err := h.documents.GetPDF(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.servePDF(c, filename, data)
}

// Regenerate discards the cached document and renders a fresh one
func (h *DocumentHandler) Regenerate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	filename, data, err := h.documents.Regenerate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.servePDF(c, filename, data)
}

func (h *DocumentHandler) servePDF(c *gin.Context, filename string, data []byte) {
	disposition := "inline"
	if c.Query("mode") == "download" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition+`; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
