package invoicing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/faktura/backend/internal/infrastructure/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default mail template used when neither the category nor the global
// settings define one.
const (
	defaultMailSubject = "Rechnung {{invoice_number}}"
	defaultMailBody    = `Guten Tag {{recipient_name}},

anbei erhalten Sie die Rechnung {{invoice_number}} vom {{date}} über {{amount}}.

Bitte überweisen Sie den Betrag bis zum {{due_date}} auf das angegebene Konto.

Mit freundlichen Grüßen`
)

// SendInvoiceRequest controls a single invoice mail dispatch. Every
// field is optional; empty ones fall back to the stored recipient
// address and the resolved template.
type SendInvoiceRequest struct {
	// To replaces the recipient's stored email for this send.
	To string `json:"to"`
	// Subject and Message override the resolved template. Placeholders
	// are expanded in overrides too.
	Subject string `json:"subject"`
	Message string `json:"message"`
	// HTML sends the body as text/html instead of text/plain.
	HTML bool `json:"html"`
	// IncludeDatev puts the configured DATEV recipient on CC. The
	// DATEV export status is not touched by this; use ExportDatev for
	// the tracked forward.
	IncludeDatev bool `json:"include_datev"`
}

// SendResult reports one dispatch attempt.
type SendResult struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	DryRun  bool     `json:"dry_run"`
}

// EmailPreview shows the fully resolved mail before sending.
type EmailPreview struct {
	To           string `json:"to"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	SMTPHost     string `json:"smtp_host"`
	From         string `json:"from"`
	Attachment   string `json:"attachment"`
	AccountLevel string `json:"account_level"` // category, global, environment
}

// DatevResult reports one DATEV export attempt.
type DatevResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ExportService sends invoices to recipients and forwards them to the
// accountant mailbox (DATEV export). Every DATEV attempt overwrites
// the invoice's export status.
type ExportService struct {
	invoices   invoicing.InvoiceRepository
	categories invoicing.CategoryRepository
	settings   invoicing.SettingsProvider
	documents  *DocumentService
	mailer     mail.Mailer
	notifier   StatusNotifier
	// envAccount is the lowest-priority SMTP fallback, from process
	// configuration. Nil when not configured.
	envAccount *invoicing.SMTPAccount
	// enabled gates actual delivery; when false sends become dry
	// runs and DATEV exports record SKIPPED.
	enabled bool
	logger  *zap.Logger
	now     Clock
}

// NewExportService creates a new ExportService
func NewExportService(
	invoices invoicing.InvoiceRepository,
	categories invoicing.CategoryRepository,
	settings invoicing.SettingsProvider,
	documents *DocumentService,
	mailer mail.Mailer,
	notifier StatusNotifier,
	envAccount *invoicing.SMTPAccount,
	enabled bool,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		invoices:   invoices,
		categories: categories,
		settings:   settings,
		documents:  documents,
		mailer:     mailer,
		notifier:   notifier,
		envAccount: envAccount,
		enabled:    enabled,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *ExportService) WithClock(clock Clock) *ExportService {
	s.now = clock
	return s
}

// SendInvoice mails the invoice PDF to its recipient and marks the
// invoice sent on success. With mail disabled the resolved message is
// logged but nothing is delivered and the sent flag stays untouched.
func (s *ExportService) SendInvoice(ctx context.Context, id uuid.UUID, req SendInvoiceRequest) (*SendResult, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsCanceled() {
		return nil, shared.NewDomainError("INVALID_STATE", "Canceled invoices cannot be sent")
	}

	to := strings.TrimSpace(req.To)
	if to == "" && inv.Recipient != nil {
		to = inv.Recipient.Email
	}
	if to == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recipient has no email address")
	}

	category := s.categoryOf(ctx, inv)
	account, _, err := s.resolveAccount(ctx, category)
	if err != nil {
		return nil, err
	}
	subject, body, err := s.resolveMail(ctx, inv, category)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Subject) != "" || strings.TrimSpace(req.Message) != "" {
		replacer := s.placeholders(ctx, inv, category)
		if strings.TrimSpace(req.Subject) != "" {
			subject = replacer.Replace(req.Subject)
		}
		if strings.TrimSpace(req.Message) != "" {
			body = replacer.Replace(req.Message)
		}
	}

	var cc []string
	if req.IncludeDatev {
		datev, err := s.settings.DatevSettings(ctx)
		if err != nil {
			return nil, err
		}
		if datev == nil || strings.TrimSpace(datev.RecipientEmail) == "" {
			return nil, shared.NewDomainError("INVALID_STATE", "No DATEV recipient configured")
		}
		cc = append(cc, datev.RecipientEmail)
	}

	filename, data, err := s.documents.pdfFor(ctx, inv)
	if err != nil {
		return nil, err
	}

	result := &SendResult{To: []string{to}, Cc: cc, Subject: subject, DryRun: !s.enabled}
	if !s.enabled {
		s.logger.Info("mail disabled, invoice send suppressed",
			zap.String("number", inv.Number), zap.String("to", to))
		return result, nil
	}

	if err := s.mailer.Send(ctx, account, mail.Message{
		To:             []string{to},
		Cc:             cc,
		Subject:        subject,
		Body:           body,
		HTML:           req.HTML,
		AttachmentName: filename,
		Attachment:     data,
	}); err != nil {
		return nil, err
	}

	inv.MarkSent(s.now())
	if err := s.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	if s.notifier != nil && inv.ReservationRequestID != nil {
		reservationID := *inv.ReservationRequestID
		go s.notifier.NotifyStatus(context.Background(), reservationID, inv.Number, "SENT")
	}

	s.logger.Info("invoice mailed", zap.String("number", inv.Number), zap.String("to", to))
	return result, nil
}

// PreviewEmail resolves account, template and placeholders without
// sending anything. Credentials are not exposed.
func (s *ExportService) PreviewEmail(ctx context.Context, id uuid.UUID) (*EmailPreview, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	category := s.categoryOf(ctx, inv)
	account, level, err := s.resolveAccount(ctx, category)
	if err != nil {
		return nil, err
	}
	subject, body, err := s.resolveMail(ctx, inv, category)
	if err != nil {
		return nil, err
	}

	to := ""
	if inv.Recipient != nil {
		to = inv.Recipient.Email
	}

	return &EmailPreview{
		To:           to,
		Subject:      subject,
		Body:         body,
		SMTPHost:     account.Host,
		From:         account.From,
		Attachment:   inv.DocumentName() + ".pdf",
		AccountLevel: level,
	}, nil
}

// ExportDatev forwards the invoice PDF to the accountant mailbox and
// records the outcome on the invoice. The returned result mirrors the
// stored status.
func (s *ExportService) ExportDatev(ctx context.Context, id uuid.UUID) (*DatevResult, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsCanceled() {
		return nil, shared.NewDomainError("INVALID_STATE", "Canceled invoices are not exported")
	}

	if !s.enabled {
		return s.recordDatev(ctx, inv, invoicing.DatevSkipped, "mail delivery is disabled")
	}

	datev, err := s.settings.DatevSettings(ctx)
	if err != nil {
		return nil, err
	}
	if datev == nil || strings.TrimSpace(datev.RecipientEmail) == "" {
		return s.recordDatev(ctx, inv, invoicing.DatevSkipped, "no DATEV recipient configured")
	}

	// A missing SMTP account is a configuration gap, not a transport
	// failure: the export short-circuits to SKIPPED.
	category := s.categoryOf(ctx, inv)
	account, _, err := s.resolveAccount(ctx, category)
	if err != nil {
		var derr *shared.DomainError
		if errors.As(err, &derr) {
			return s.recordDatev(ctx, inv, invoicing.DatevSkipped, derr.Message)
		}
		return nil, err
	}

	filename, data, err := s.documents.pdfFor(ctx, inv)
	if err != nil {
		return s.recordDatev(ctx, inv, invoicing.DatevFailed, err.Error())
	}

	subject := "Beleg " + inv.DocumentName()
	body := "Automatischer Belegexport: Rechnung " + inv.Number +
		" vom " + invoicing.FormatDate(inv.Date) +
		" über " + invoicing.FormatEuro(inv.GrossTotal) + "."

	if err := s.mailer.Send(ctx, account, mail.Message{
		To:             []string{datev.RecipientEmail},
		Subject:        subject,
		Body:           body,
		AttachmentName: filename,
		Attachment:     data,
	}); err != nil {
		return s.recordDatev(ctx, inv, invoicing.DatevFailed, err.Error())
	}

	return s.recordDatev(ctx, inv, invoicing.DatevSuccess, "")
}

func (s *ExportService) recordDatev(ctx context.Context, inv *invoicing.Invoice, status invoicing.DatevStatus, detail string) (*DatevResult, error) {
	inv.RecordDatevResult(status, detail, s.now())
	if err := s.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("DATEV export recorded",
		zap.String("number", inv.Number),
		zap.String("status", string(status)),
		zap.String("detail", detail))

	return &DatevResult{Status: string(status), Detail: detail}, nil
}

// resolveAccount walks the SMTP chain: category override, global
// database settings, environment fallback. Only complete accounts win.
func (s *ExportService) resolveAccount(ctx context.Context, category *invoicing.Category) (*invoicing.SMTPAccount, string, error) {
	if category != nil {
		if account := category.SMTPAccount(); account.IsComplete() {
			return account, "category", nil
		}
	}

	global, err := s.settings.GlobalSMTPAccount(ctx)
	if err != nil {
		return nil, "", err
	}
	if global.IsComplete() {
		return global, "global", nil
	}

	if s.envAccount.IsComplete() {
		return s.envAccount, "environment", nil
	}

	return nil, "", shared.NewDomainError("INVALID_STATE", "No complete SMTP account configured")
}

// resolveMail picks the template (category, global, built-in default)
// and expands the placeholders.
func (s *ExportService) resolveMail(ctx context.Context, inv *invoicing.Invoice, category *invoicing.Category) (subject, body string, err error) {
	var tmpl *invoicing.MailTemplate
	if category != nil {
		tmpl = category.MailTemplate()
	}
	if tmpl == nil {
		tmpl, err = s.settings.GlobalMailTemplate(ctx)
		if err != nil {
			return "", "", err
		}
	}
	if tmpl == nil || (tmpl.Subject == "" && tmpl.Body == "") {
		tmpl = &invoicing.MailTemplate{Subject: defaultMailSubject, Body: defaultMailBody}
	}

	replacer := s.placeholders(ctx, inv, category)
	return replacer.Replace(tmpl.Subject), replacer.Replace(tmpl.Body), nil
}

func (s *ExportService) placeholders(ctx context.Context, inv *invoicing.Invoice, category *invoicing.Category) *strings.Replacer {
	recipientName := ""
	if inv.Recipient != nil {
		recipientName = inv.Recipient.Name
	}
	categoryLabel := ""
	if category != nil {
		categoryLabel = category.Label
	}

	iban, bic := "", ""
	if bank, err := s.settings.BankSettings(ctx); err == nil && bank != nil {
		iban, bic = bank.IBAN, bank.BIC
	}

	return strings.NewReplacer(
		"{{recipient_name}}", recipientName,
		"{{invoice_number}}", inv.Number,
		"{{amount}}", invoicing.FormatEuro(inv.GrossTotal),
		"{{date}}", invoicing.FormatDate(inv.Date),
		"{{due_date}}", invoicing.FormatDate(inv.DueDate()),
		"{{iban}}", iban,
		"{{bic}}", bic,
		"{{category}}", categoryLabel,
	)
}

// categoryOf loads the invoice's category; a missing category is not
// an error, the chain just falls through to the global settings.
func (s *ExportService) categoryOf(ctx context.Context, inv *invoicing.Invoice) *invoicing.Category {
	if inv.CategoryKey == "" {
		return nil
	}
	category, err := s.categories.FindByKey(ctx, inv.CategoryKey)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("category lookup failed", zap.String("key", inv.CategoryKey), zap.Error(err))
		}
		return nil
	}
	return category
}
