package invoicing

import (
	"context"
	"errors"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/faktura/backend/internal/infrastructure/pdf"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentService produces and serves invoice PDFs. Rendering is
// expensive, so artifacts are materialized on disk and reused until
// invalidated.
type DocumentService struct {
	invoices   invoicing.InvoiceRepository
	categories invoicing.CategoryRepository
	settings   invoicing.SettingsProvider
	builder    *pdf.DocumentBuilder
	renderer   pdf.Renderer
	store      *pdf.Materializer
	logger     *zap.Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(
	invoices invoicing.InvoiceRepository,
	categories invoicing.CategoryRepository,
	settings invoicing.SettingsProvider,
	builder *pdf.DocumentBuilder,
	renderer pdf.Renderer,
	store *pdf.Materializer,
	logger *zap.Logger,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		invoices:   invoices,
		categories: categories,
		settings:   settings,
		builder:    builder,
		renderer:   renderer,
		store:      store,
		logger:     logger,
	}
}

// GetPDF returns the invoice document, rendering it on first access.
// The filename is the document name plus extension (RE-<number>.pdf).
func (s *DocumentService) GetPDF(ctx context.Context, id uuid.UUID) (string, []byte, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return s.pdfFor(ctx, inv)
}

// GetPDFByNumber is GetPDF keyed by invoice number.
func (s *DocumentService) GetPDFByNumber(ctx context.Context, number string) (string, []byte, error) {
	inv, err := s.invoices.FindByNumber(ctx, number)
	if err != nil {
		return "", nil, err
	}
	return s.pdfFor(ctx, inv)
}

// Regenerate drops the cached artifact and renders a fresh one.
func (s *DocumentService) Regenerate(ctx context.Context, id uuid.UUID) (string, []byte, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if err := s.store.Invalidate(inv.DocumentName()); err != nil {
		return "", nil, err
	}
	return s.pdfFor(ctx, inv)
}

func (s *DocumentService) pdfFor(ctx context.Context, inv *invoicing.Invoice) (string, []byte, error) {
	if inv.IsCanceled() {
		return "", nil, shared.NewDomainError("INVALID_STATE", "Canceled invoices have no active document")
	}

	name := inv.DocumentName()
	data, err := s.store.Get(ctx, name, func(ctx context.Context) ([]byte, error) {
		return s.render(ctx, inv)
	})
	if err != nil {
		return "", nil, err
	}
	return name + ".pdf", data, nil
}

// render assembles the HTML from invoice, settings and category, then
// hands it to the headless browser.
func (s *DocumentService) render(ctx context.Context, inv *invoicing.Invoice) ([]byte, error) {
	header, err := s.settings.HeaderSettings(ctx)
	if err != nil {
		return nil, err
	}
	bank, err := s.settings.BankSettings(ctx)
	if err != nil {
		return nil, err
	}

	var category *invoicing.Category
	if inv.CategoryKey != "" {
		category, err = s.categories.FindByKey(ctx, inv.CategoryKey)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	html, err := s.builder.BuildHTML(inv, header, bank, category)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("rendering invoice PDF", zap.String("number", inv.Number))
	return s.renderer.Render(ctx, html)
}
