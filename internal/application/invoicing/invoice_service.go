// Package invoicing contains the application services around the
// invoice lifecycle: creation with number allocation, status
// transitions, documents, and exports.
package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusNotifier pushes invoice status changes to the external
// reservation system. Implementations never block the caller's
// request path with their errors.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, reservationID, invoiceNumber, status string)
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// DocumentArchiver is the slice of the PDF materializer the lifecycle
// service needs: retiring artifacts of canceled or deleted invoices.
type DocumentArchiver interface {
	Archive(name string, now time.Time) error
	Invalidate(name string) error
}

// NumberConflictError reports that the requested invoice number is
// already taken, carrying a freshly computed alternative.
type NumberConflictError struct {
	Requested  string
	Suggestion string
}

// Error implements the error interface
func (e *NumberConflictError) Error() string {
	return fmt.Sprintf("invoice number %s is already taken, next free is %s", e.Requested, e.Suggestion)
}

// InvoiceService handles invoice lifecycle operations
type InvoiceService struct {
	invoices   invoicing.InvoiceRepository
	recipients invoicing.RecipientRepository
	archiver   DocumentArchiver
	notifier   StatusNotifier
	logger     *zap.Logger
	now        Clock
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoices invoicing.InvoiceRepository,
	recipients invoicing.RecipientRepository,
	archiver DocumentArchiver,
	notifier StatusNotifier,
	logger *zap.Logger,
) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		invoices:   invoices,
		recipients: recipients,
		archiver:   archiver,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *InvoiceService) WithClock(clock Clock) *InvoiceService {
	s.now = clock
	return s
}

// Create allocates a number (unless one was requested), deduplicates
// the recipient and stores the invoice. A lost allocation race or a
// taken manual number comes back as *NumberConflictError with a fresh
// suggestion; the client decides whether to retry with it.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	date := req.Date
	if date.IsZero() {
		date = s.now()
	}
	prefix := invoicing.MonthPrefix(date)

	// Reservation requests are idempotent: the same request id always
	// maps to the invoice created first.
	if req.ReservationRequestID != "" {
		existing, err := s.invoices.FindByReservation(ctx, req.ReservationRequestID)
		if err == nil {
			resp := ToInvoiceResponse(existing)
			return &resp, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	number := strings.TrimSpace(req.Number)
	manual := number != ""
	if manual {
		if !invoicing.ValidNumber(number) {
			return nil, shared.NewDomainError("INVALID_INPUT", "Invoice number must have the form YYYYMM followed by a sequence")
		}
		taken, err := s.invoices.ExistsByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, s.conflict(ctx, number, prefix)
		}
	} else {
		next, err := s.nextNumber(ctx, prefix)
		if err != nil {
			return nil, err
		}
		number = next
	}

	recipient, err := invoicing.NewRecipient(req.Recipient.Name, req.Recipient.Street, req.Recipient.Zip, req.Recipient.City, req.Recipient.Email)
	if err != nil {
		return nil, err
	}
	recipient, err = s.recipients.FindOrCreate(ctx, recipient)
	if err != nil {
		return nil, err
	}

	items := make([]invoicing.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = invoicing.LineItem{
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceGross: item.UnitPriceGross,
			VATKey:         invoicing.VATKey(item.VATKey),
		}
	}

	inv, err := invoicing.NewInvoice(number, date, recipient.ID, req.CategoryKey, req.B2B, req.VATID, items)
	if err != nil {
		return nil, err
	}
	inv.ExternalReference = req.ExternalReference
	if req.ReservationRequestID != "" {
		reservationID := req.ReservationRequestID
		inv.ReservationRequestID = &reservationID
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			// Reservation double-submit: surface the winner instead.
			if req.ReservationRequestID != "" {
				if existing, ferr := s.invoices.FindByReservation(ctx, req.ReservationRequestID); ferr == nil {
					resp := ToInvoiceResponse(existing)
					return &resp, nil
				}
			}
			return nil, s.conflict(ctx, number, prefix)
		}
		return nil, err
	}

	s.logger.Info("invoice created",
		zap.String("number", inv.Number),
		zap.Float64("gross_total", inv.GrossTotal),
		zap.Bool("manual_number", manual))

	inv.Recipient = recipient
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetByID retrieves an invoice by ID
func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetByNumber retrieves an invoice by its number
func (s *InvoiceService) GetByNumber(ctx context.Context, number string) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// List returns invoices matching the query
func (s *InvoiceService) List(ctx context.Context, query ListInvoicesQuery) ([]InvoiceResponse, int64, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 50
	}

	invoices, total, err := s.invoices.List(ctx, invoicing.ListFilter{
		IncludeCanceled: query.IncludeCanceled,
		CategoryKey:     query.CategoryKey,
		Page:            query.Page,
		PageSize:        query.PageSize,
		OrderBy:         query.OrderBy,
		OrderDir:        query.OrderDir,
	})
	if err != nil {
		return nil, 0, err
	}

	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = ToInvoiceResponse(&invoices[i])
	}
	return responses, total, nil
}

// NextNumber previews the next free number for the month of now.
func (s *InvoiceService) NextNumber(ctx context.Context) (*NextNumberResponse, error) {
	prefix := invoicing.MonthPrefix(s.now())
	next, err := s.nextNumber(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return &NextNumberResponse{Number: next, Prefix: prefix}, nil
}

// GetByReservation returns the invoice created for a reservation
// request, if any.
func (s *InvoiceService) GetByReservation(ctx context.Context, reservationID string) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// UpdateStatusByReservation applies a status change keyed by the
// reservation request id. The reservation system uses this path with
// its shared token instead of invoice ids.
func (s *InvoiceService) UpdateStatusByReservation(ctx context.Context, reservationID, status string) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SENT":
		return s.MarkSent(ctx, inv.ID)
	case "PAID":
		return s.MarkPaid(ctx, inv.ID)
	case "OVERDUE":
		return s.MarkOverdue(ctx, inv.ID)
	case "OVERDUE_CLEARED":
		return s.ClearOverdue(ctx, inv.ID)
	case "CANCELED":
		return s.Cancel(ctx, inv.ID, "Von Reservierungssystem storniert")
	default:
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown status: "+status)
	}
}

// MarkSent records that the invoice went out to its recipient
func (s *InvoiceService) MarkSent(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, "SENT", func(inv *invoicing.Invoice, now time.Time) error {
		inv.MarkSent(now)
		return nil
	})
}

// MarkPaid records payment. Payment does not require prior dispatch.
func (s *InvoiceService) MarkPaid(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, "PAID", func(inv *invoicing.Invoice, now time.Time) error {
		inv.MarkPaid(now)
		return nil
	})
}

// MarkOverdue flags the invoice as overdue
func (s *InvoiceService) MarkOverdue(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, "OVERDUE", func(inv *invoicing.Invoice, now time.Time) error {
		inv.MarkOverdue(now)
		return nil
	})
}

// ClearOverdue removes the overdue flag
func (s *InvoiceService) ClearOverdue(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.transition(ctx, id, "OVERDUE_CLEARED", func(inv *invoicing.Invoice, now time.Time) error {
		inv.ClearOverdue(now)
		return nil
	})
}

// Cancel marks the invoice canceled and retires its PDF into the
// archive. The row itself stays for the audit trail.
func (s *InvoiceService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*InvoiceResponse, error) {
	resp, err := s.transition(ctx, id, "CANCELED", func(inv *invoicing.Invoice, now time.Time) error {
		return inv.Cancel(reason, now)
	})
	if err != nil {
		return nil, err
	}

	if s.archiver != nil {
		if err := s.archiver.Archive("RE-"+resp.Number, s.now()); err != nil {
			s.logger.Warn("archiving canceled invoice PDF failed",
				zap.String("number", resp.Number), zap.Error(err))
		}
	}
	return resp, nil
}

// Delete removes the invoice row, its items and the active PDF
// outright. Cancel is the softer alternative that keeps the row and
// archives the PDF.
func (s *InvoiceService) Delete(ctx context.Context, id uuid.UUID) error {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.invoices.Delete(ctx, id); err != nil {
		return err
	}

	if s.archiver != nil {
		if err := s.archiver.Invalidate(inv.DocumentName()); err != nil {
			s.logger.Warn("removing deleted invoice PDF failed",
				zap.String("number", inv.Number), zap.Error(err))
		}
	}

	s.logger.Info("invoice deleted", zap.String("number", inv.Number))
	return nil
}

// transition loads, mutates, saves and notifies in one place.
func (s *InvoiceService) transition(ctx context.Context, id uuid.UUID, status string, mutate func(*invoicing.Invoice, time.Time) error) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsCanceled() && status != "CANCELED" {
		return nil, shared.NewDomainError("INVALID_STATE", "Invoice is canceled")
	}

	if err := mutate(inv, s.now()); err != nil {
		return nil, err
	}
	if err := s.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}

	s.notifyStatus(inv, status)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// notifyStatus fires the external sync without holding up the caller.
func (s *InvoiceService) notifyStatus(inv *invoicing.Invoice, status string) {
	if s.notifier == nil || inv.ReservationRequestID == nil {
		return
	}
	reservationID := *inv.ReservationRequestID
	number := inv.Number
	go s.notifier.NotifyStatus(context.Background(), reservationID, number, status)
}

func (s *InvoiceService) nextNumber(ctx context.Context, prefix string) (string, error) {
	highest, err := s.invoices.HighestNumberWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return invoicing.NextNumber(prefix, highest)
}

func (s *InvoiceService) conflict(ctx context.Context, requested, prefix string) error {
	suggestion, err := s.nextNumber(ctx, prefix)
	if err != nil {
		s.logger.Warn("computing conflict suggestion failed", zap.Error(err))
		suggestion = ""
	}
	return &NumberConflictError{Requested: requested, Suggestion: suggestion}
}
