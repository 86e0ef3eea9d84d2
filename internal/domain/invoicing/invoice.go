package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/faktura/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DatevStatus tracks the outcome of the most recent DATEV export
// attempt. Each attempt overwrites the previous result.
type DatevStatus string

const (
	DatevNotSent DatevStatus = "NOT_SENT"
	DatevSuccess DatevStatus = "SUCCESS"
	DatevFailed  DatevStatus = "FAILED"
	DatevSkipped DatevStatus = "SKIPPED"
)

// PaymentTermDays is the payment target printed on invoices and used
// for the {{due_date}} placeholder.
const PaymentTermDays = 14

// datevErrorMaxLen caps the diagnostic recorded on a failed export.
const datevErrorMaxLen = 250

// Invoice is the central aggregate. Sent/paid/overdue/canceled are
// orthogonal timestamp fields, not a single exclusive state machine:
// a paid invoice may still be flagged overdue and later fixed, and
// marking paid does not require sent.
type Invoice struct {
	shared.BaseEntity
	Number      string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"number"`
	Date        time.Time `gorm:"not null" json:"date"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Recipient   *Recipient `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	CategoryKey string    `gorm:"type:varchar(50);index" json:"category_key,omitempty"`
	B2B         bool      `gorm:"column:b2b;not null;default:false" json:"b2b"`
	VATID       string    `gorm:"column:vat_id;type:varchar(30)" json:"vat_id,omitempty"`

	Net19      float64 `gorm:"column:net_19;not null;default:0" json:"net_19"`
	VAT19      float64 `gorm:"column:vat_19;not null;default:0" json:"vat_19"`
	Gross19    float64 `gorm:"column:gross_19;not null;default:0" json:"gross_19"`
	Net7       float64 `gorm:"column:net_7;not null;default:0" json:"net_7"`
	VAT7       float64 `gorm:"column:vat_7;not null;default:0" json:"vat_7"`
	Gross7     float64 `gorm:"column:gross_7;not null;default:0" json:"gross_7"`
	GrossTotal float64 `gorm:"not null;default:0" json:"gross_total"`

	Sent         bool       `gorm:"not null;default:false" json:"sent"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	OverdueSince *time.Time `json:"overdue_since,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`

	ExternalReference    string  `gorm:"type:varchar(100)" json:"external_reference,omitempty"`
	ReservationRequestID *string `gorm:"type:varchar(100);uniqueIndex" json:"reservation_request_id,omitempty"`

	DatevStatus     DatevStatus `gorm:"type:varchar(10);not null;default:'NOT_SENT'" json:"datev_status"`
	DatevExportedAt *time.Time  `json:"datev_exported_at,omitempty"`
	DatevError      string      `gorm:"type:varchar(255)" json:"datev_error,omitempty"`

	Items []LineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// LineItem belongs to exactly one invoice and is immutable once the
// creation transaction commits.
type LineItem struct {
	shared.BaseEntity
	InvoiceID      uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Position       int       `gorm:"not null" json:"position"`
	Description    string    `gorm:"type:text;not null" json:"description"`
	Quantity       float64   `gorm:"not null" json:"quantity"`
	UnitPriceGross float64   `gorm:"not null" json:"unit_price_gross"`
	VATKey         VATKey    `gorm:"column:vat_key;not null" json:"vat_key"`
	LineTotalGross float64   `gorm:"not null" json:"line_total_gross"`
}

// TableName returns the table name for GORM
func (LineItem) TableName() string {
	return "invoice_items"
}

// NewInvoice validates the input, computes totals once and returns the
// aggregate ready for the creation transaction.
func NewInvoice(number string, date time.Time, recipientID uuid.UUID, categoryKey string, b2b bool, vatID string, items []LineItem) (*Invoice, error) {
	if number == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invoice number is required")
	}
	if date.IsZero() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invoice date is required")
	}
	if b2b && strings.TrimSpace(vatID) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "VAT ID is required for B2B invoices")
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	inv := &Invoice{
		BaseEntity:  shared.NewBaseEntity(),
		Number:      number,
		Date:        date,
		RecipientID: recipientID,
		CategoryKey: categoryKey,
		B2B:         b2b,
		VATID:       strings.TrimSpace(vatID),
		DatevStatus: DatevNotSent,
	}

	for i := range items {
		items[i].BaseEntity = shared.NewBaseEntity()
		items[i].InvoiceID = inv.ID
		items[i].Position = i + 1
		items[i].LineTotalGross = items[i].Quantity * items[i].UnitPriceGross
	}
	inv.Items = items

	totals := ComputeTotals(items)
	inv.Net19 = totals.Net19
	inv.VAT19 = totals.VAT19
	inv.Gross19 = totals.Gross19
	inv.Net7 = totals.Net7
	inv.VAT7 = totals.VAT7
	inv.Gross7 = totals.Gross7
	inv.GrossTotal = totals.GrossTotal

	return inv, nil
}

func validateItems(items []LineItem) error {
	if len(items) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "Invoice needs at least one line item")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Item %d: description is required", i+1))
		}
		if item.Quantity <= 0 {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Item %d: quantity must be positive", i+1))
		}
		if item.UnitPriceGross <= 0 {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Item %d: unit price must be positive", i+1))
		}
		if !item.VATKey.IsValid() {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Item %d: VAT key must be 1 (19%%) or 2 (7%%)", i+1))
		}
	}
	return nil
}

// Totals returns the persisted per-rate buckets.
func (i *Invoice) Totals() Totals {
	return Totals{
		Net19:      i.Net19,
		VAT19:      i.VAT19,
		Gross19:    i.Gross19,
		Net7:       i.Net7,
		VAT7:       i.VAT7,
		Gross7:     i.Gross7,
		GrossTotal: i.GrossTotal,
	}
}

// NetTotal is the sum of both net buckets.
func (i *Invoice) NetTotal() float64 {
	return i.Net19 + i.Net7
}

// PayableTotal is the amount the recipient owes: net-only for B2B
// reverse-charge invoices, gross otherwise.
func (i *Invoice) PayableTotal() float64 {
	if i.B2B {
		return i.NetTotal()
	}
	return i.GrossTotal
}

// DocumentName is the stem of the PDF artifact and its metadata title.
func (i *Invoice) DocumentName() string {
	return "RE-" + i.Number
}

// DueDate is the invoice date plus the payment target.
func (i *Invoice) DueDate() time.Time {
	return i.Date.AddDate(0, 0, PaymentTermDays)
}

// IsCanceled reports whether the invoice has been canceled.
func (i *Invoice) IsCanceled() bool {
	return i.CanceledAt != nil
}

// MarkSent records dispatch. Idempotent on the flag; the timestamp is
// only set on the first transition.
func (i *Invoice) MarkSent(now time.Time) {
	if !i.Sent {
		i.Sent = true
		i.SentAt = &now
	}
	i.UpdatedAt = now
}

// MarkPaid records payment. Sent is intentionally not required first.
func (i *Invoice) MarkPaid(now time.Time) {
	if i.PaidAt == nil {
		i.PaidAt = &now
	}
	i.UpdatedAt = now
}

// MarkOverdue flags the invoice as overdue.
func (i *Invoice) MarkOverdue(now time.Time) {
	if i.OverdueSince == nil {
		i.OverdueSince = &now
	}
	i.UpdatedAt = now
}

// ClearOverdue removes the overdue flag.
func (i *Invoice) ClearOverdue(now time.Time) {
	i.OverdueSince = nil
	i.UpdatedAt = now
}

// Cancel marks the invoice canceled. Canceled invoices are excluded
// from default listings but never physically deleted by this path.
func (i *Invoice) Cancel(reason string, now time.Time) error {
	if i.IsCanceled() {
		return shared.NewDomainError("INVALID_STATE", "Invoice is already canceled")
	}
	i.CanceledAt = &now
	i.CancelReason = reason
	i.UpdatedAt = now
	return nil
}

// RecordDatevResult overwrites the export status with the outcome of
// the latest attempt. Diagnostics are truncated to a short string.
func (i *Invoice) RecordDatevResult(status DatevStatus, detail string, now time.Time) {
	i.DatevStatus = status
	i.DatevError = truncate(detail, datevErrorMaxLen)
	if status == DatevSuccess {
		i.DatevExportedAt = &now
		i.DatevError = ""
	}
	i.UpdatedAt = now
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
