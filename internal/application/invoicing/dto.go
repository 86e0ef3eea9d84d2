package invoicing

import (
	"time"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/google/uuid"
)

// RecipientRequest is the address snapshot on invoice creation. The
// four identity fields deduplicate against existing recipients.
type RecipientRequest struct {
	Name   string `json:"name" binding:"required"`
	Street string `json:"street" binding:"required"`
	Zip    string `json:"zip" binding:"required"`
	City   string `json:"city" binding:"required"`
	Email  string `json:"email"`
}

// LineItemRequest is one invoice position.
type LineItemRequest struct {
	Description    string  `json:"description" binding:"required"`
	Quantity       float64 `json:"quantity" binding:"required,gt=0"`
	UnitPriceGross float64 `json:"unit_price_gross" binding:"required,gt=0"`
	VATKey         int     `json:"vat_key" binding:"required,oneof=1 2"`
}

// CreateInvoiceRequest creates a new invoice. Number is optional; when
// empty the next free number of the invoice month is allocated.
type CreateInvoiceRequest struct {
	Number               string            `json:"number"`
	Date                 time.Time         `json:"date"`
	Recipient            RecipientRequest  `json:"recipient" binding:"required"`
	CategoryKey          string            `json:"category_key"`
	B2B                  bool              `json:"b2b"`
	VATID                string            `json:"vat_id"`
	Items                []LineItemRequest `json:"items" binding:"required,min=1,dive"`
	ExternalReference    string            `json:"external_reference"`
	ReservationRequestID string            `json:"reservation_request_id"`
}

// CancelInvoiceRequest carries the optional cancellation reason.
type CancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

// ListInvoicesQuery filters the invoice listing.
type ListInvoicesQuery struct {
	IncludeCanceled bool   `form:"include_canceled"`
	CategoryKey     string `form:"category"`
	Page            int    `form:"page"`
	PageSize        int    `form:"page_size"`
	OrderBy         string `form:"order_by"`
	OrderDir        string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// LineItemResponse mirrors one stored invoice position.
type LineItemResponse struct {
	Position       int     `json:"position"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceGross float64 `json:"unit_price_gross"`
	VATKey         int     `json:"vat_key"`
	LineTotalGross float64 `json:"line_total_gross"`
}

// RecipientResponse mirrors a stored recipient.
type RecipientResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Street string    `json:"street"`
	Zip    string    `json:"zip"`
	City   string    `json:"city"`
	Email  string    `json:"email,omitempty"`
}

// InvoiceResponse is the full invoice representation.
type InvoiceResponse struct {
	ID                   uuid.UUID          `json:"id"`
	Number               string             `json:"number"`
	Date                 time.Time          `json:"date"`
	DueDate              time.Time          `json:"due_date"`
	Recipient            *RecipientResponse `json:"recipient,omitempty"`
	CategoryKey          string             `json:"category_key,omitempty"`
	B2B                  bool               `json:"b2b"`
	VATID                string             `json:"vat_id,omitempty"`
	Net19                float64            `json:"net_19"`
	VAT19                float64            `json:"vat_19"`
	Gross19              float64            `json:"gross_19"`
	Net7                 float64            `json:"net_7"`
	VAT7                 float64            `json:"vat_7"`
	Gross7               float64            `json:"gross_7"`
	GrossTotal           float64            `json:"gross_total"`
	Sent                 bool               `json:"sent"`
	SentAt               *time.Time         `json:"sent_at,omitempty"`
	PaidAt               *time.Time         `json:"paid_at,omitempty"`
	OverdueSince         *time.Time         `json:"overdue_since,omitempty"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CancelReason         string             `json:"cancel_reason,omitempty"`
	ExternalReference    string             `json:"external_reference,omitempty"`
	ReservationRequestID *string            `json:"reservation_request_id,omitempty"`
	DatevStatus          string             `json:"datev_status"`
	DatevExportedAt      *time.Time         `json:"datev_exported_at,omitempty"`
	DatevError           string             `json:"datev_error,omitempty"`
	Items                []LineItemResponse `json:"items"`
}

// NumberConflictDetails accompanies a CONFLICT error on creation: the
// requested number is taken, Suggestion is the recomputed next one.
type NumberConflictDetails struct {
	RequestedNumber string `json:"requested_number"`
	Suggestion      string `json:"suggestion"`
}

// NextNumberResponse previews the next free invoice number.
type NextNumberResponse struct {
	Number string `json:"number"`
	Prefix string `json:"prefix"`
}

// ToInvoiceResponse converts a domain invoice into its API shape.
func ToInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                   inv.ID,
		Number:               inv.Number,
		Date:                 inv.Date,
		DueDate:              inv.DueDate(),
		CategoryKey:          inv.CategoryKey,
		B2B:                  inv.B2B,
		VATID:                inv.VATID,
		Net19:                inv.Net19,
		VAT19:                inv.VAT19,
		Gross19:              inv.Gross19,
		Net7:                 inv.Net7,
		VAT7:                 inv.VAT7,
		Gross7:               inv.Gross7,
		GrossTotal:           inv.GrossTotal,
		Sent:                 inv.Sent,
		SentAt:               inv.SentAt,
		PaidAt:               inv.PaidAt,
		OverdueSince:         inv.OverdueSince,
		CanceledAt:           inv.CanceledAt,
		CancelReason:         inv.CancelReason,
		ExternalReference:    inv.ExternalReference,
		ReservationRequestID: inv.ReservationRequestID,
		DatevStatus:          string(inv.DatevStatus),
		DatevExportedAt:      inv.DatevExportedAt,
		DatevError:           inv.DatevError,
		Items:                make([]LineItemResponse, 0, len(inv.Items)),
	}
	if inv.Recipient != nil {
		resp.Recipient = &RecipientResponse{
			ID:     inv.Recipient.ID,
			Name:   inv.Recipient.Name,
			Street: inv.Recipient.Street,
			Zip:    inv.Recipient.Zip,
			City:   inv.Recipient.City,
			Email:  inv.Recipient.Email,
		}
	}
	for _, item := range inv.Items {
		resp.Items = append(resp.Items, LineItemResponse{
			Position:       item.Position,
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceGross: item.UnitPriceGross,
			VATKey:         int(item.VATKey),
			LineTotalGross: item.LineTotalGross,
		})
	}
	return resp
}
