package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/infrastructure/pdf"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportFixture struct {
	svc      *ExportService
	invoices *fakeInvoiceRepo
	mailer   *fakeMailer
	notifier *fakeNotifier
	settings *fakeSettings
}

func newExportFixture(t *testing.T, enabled bool) *exportFixture {
	invoices := newFakeInvoiceRepo()
	categories := newFakeCategoryRepo()
	settings := &fakeSettings{
		header: &invoicing.HeaderSettings{CompanyName: "Muster & Söhne"},
		bank:   &invoicing.BankSettings{AccountHolder: "Erika Mustermann", IBAN: "DE89370400440532013000", BIC: "COBADEFFXXX"},
		datev:  &invoicing.DatevSettings{RecipientEmail: "steuer@example.com"},
		smtp:   &invoicing.SMTPAccount{Host: "smtp.example.com", Port: 587, From: "rechnung@example.com"},
	}
	mailer := &fakeMailer{}
	notifier := &fakeNotifier{}

	builder, err := pdf.NewDocumentBuilder(nil)
	require.NoError(t, err)
	store, err := pdf.NewMaterializer(t.TempDir(), nil)
	require.NoError(t, err)
	documents := NewDocumentService(invoices, categories, settings, builder, &fakeRenderer{}, store, nil)

	svc := NewExportService(invoices, categories, settings, documents, mailer, notifier, nil, enabled, nil).
		WithClock(func() time.Time { return testDate })

	return &exportFixture{svc: svc, invoices: invoices, mailer: mailer, notifier: notifier, settings: settings}
}

func (f *exportFixture) seedInvoice(t *testing.T, reservationID string) uuid.UUID {
	items := []invoicing.LineItem{
		{Description: "Beratung", Quantity: 1, UnitPriceGross: 119, VATKey: invoicing.VATKeyStandard},
	}
	inv, err := invoicing.NewInvoice("202608001", testDate, uuid.New(), "", false, "", items)
	require.NoError(t, err)
	if reservationID != "" {
		inv.ReservationRequestID = &reservationID
	}
	require.NoError(t, f.invoices.Create(context.Background(), inv))

	// Attach the recipient the repo would preload.
	stored, err := f.invoices.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	stored.Recipient = &invoicing.Recipient{Name: "Erika Mustermann", Street: "Beispielweg 1", Zip: "10115", City: "Berlin", Email: "erika@example.com"}
	require.NoError(t, f.invoices.Save(context.Background(), stored))
	return inv.ID
}

func TestExportService_SendInvoice(t *testing.T) {
	t.Run("sends the PDF and marks the invoice sent", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")

		result, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{})

		require.NoError(t, err)
		assert.False(t, result.DryRun)
		assert.Equal(t, []string{"erika@example.com"}, result.To)
		assert.Equal(t, "Rechnung 202608001", result.Subject)

		msg, account, ok := f.mailer.lastMessage()
		require.True(t, ok)
		assert.Equal(t, "RE-202608001.pdf", msg.AttachmentName)
		assert.NotEmpty(t, msg.Attachment)
		assert.Contains(t, msg.Body, "119,00 €")
		assert.Contains(t, msg.Body, "19.08.2026") // due date
		assert.Equal(t, "smtp.example.com", account.Host)

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, inv.Sent)
		require.NotNil(t, inv.SentAt)
	})

	t.Run("dry run when mail is disabled", func(t *testing.T) {
		f := newExportFixture(t, false)
		id := f.seedInvoice(t, "")

		result, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{})

		require.NoError(t, err)
		assert.True(t, result.DryRun)
		_, _, ok := f.mailer.lastMessage()
		assert.False(t, ok)

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, inv.Sent)
	})

	t.Run("override recipient address", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")

		result, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{To: "other@example.com"})
		require.NoError(t, err)
		assert.Equal(t, []string{"other@example.com"}, result.To)
	})

	t.Run("per-send subject and message override the template", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")

		result, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{
			Subject: "Zahlungserinnerung {{invoice_number}}",
			Message: "Bitte begleichen Sie {{amount}} bis {{due_date}}.",
		})
		require.NoError(t, err)
		assert.Equal(t, "Zahlungserinnerung 202608001", result.Subject)

		msg, _, ok := f.mailer.lastMessage()
		require.True(t, ok)
		assert.Equal(t, "Bitte begleichen Sie 119,00 € bis 19.08.2026.", msg.Body)
	})

	t.Run("include_datev copies the accountant mailbox", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")

		result, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{IncludeDatev: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"steuer@example.com"}, result.Cc)

		msg, _, ok := f.mailer.lastMessage()
		require.True(t, ok)
		assert.Equal(t, []string{"steuer@example.com"}, msg.Cc)
	})

	t.Run("include_datev without DATEV recipient fails", func(t *testing.T) {
		f := newExportFixture(t, true)
		f.settings.datev = nil
		id := f.seedInvoice(t, "")

		_, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{IncludeDatev: true})
		assert.Error(t, err)
		_, _, ok := f.mailer.lastMessage()
		assert.False(t, ok)
	})

	t.Run("missing recipient email fails", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")
		stored, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		stored.Recipient.Email = ""
		require.NoError(t, f.invoices.Save(context.Background(), stored))

		_, err = f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{})
		assert.Error(t, err)
	})

	t.Run("send failure leaves the invoice unsent", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")
		f.mailer.err = errors.New("connection refused")

		_, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{})
		assert.Error(t, err)

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, inv.Sent)
	})

	t.Run("successful send notifies the reservation system", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "res-9")

		_, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{})
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return f.notifier.count() == 1 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, "res-9/202608001/SENT", f.notifier.last())
	})

	t.Run("no complete SMTP account fails", func(t *testing.T) {
		f := newExportFixture(t, true)
		f.settings.smtp = nil
		id := f.seedInvoice(t, "")

		_, err := f.svc.SendInvoice(context.Background(), id, SendInvoiceRequest{})
		assert.Error(t, err)
	})
}

func TestExportService_PreviewEmail(t *testing.T) {
	f := newExportFixture(t, true)
	id := f.seedInvoice(t, "")

	preview, err := f.svc.PreviewEmail(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "erika@example.com", preview.To)
	assert.Equal(t, "Rechnung 202608001", preview.Subject)
	assert.Contains(t, preview.Body, "Erika Mustermann")
	assert.Contains(t, preview.Body, "119,00 €")
	assert.Equal(t, "smtp.example.com", preview.SMTPHost)
	assert.Equal(t, "global", preview.AccountLevel)
	assert.Equal(t, "RE-202608001.pdf", preview.Attachment)

	// Nothing was sent.
	_, _, ok := f.mailer.lastMessage()
	assert.False(t, ok)
}

func TestExportService_ResolverChain(t *testing.T) {
	t.Run("category account wins over global", func(t *testing.T) {
		f := newExportFixture(t, true)
		category, err := invoicing.NewCategory("workshop", "Workshops")
		require.NoError(t, err)
		category.SMTPHost = "smtp.workshop.example"
		category.SMTPPort = 465
		category.MailFrom = "workshop@example.com"
		f.svc.categories = newFakeCategoryRepo(category)

		id := f.seedInvoice(t, "")
		stored, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		stored.CategoryKey = "workshop"
		require.NoError(t, f.invoices.Save(context.Background(), stored))

		preview, err := f.svc.PreviewEmail(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "smtp.workshop.example", preview.SMTPHost)
		assert.Equal(t, "category", preview.AccountLevel)
	})

	t.Run("environment fallback is last", func(t *testing.T) {
		f := newExportFixture(t, true)
		f.settings.smtp = nil
		f.svc.envAccount = &invoicing.SMTPAccount{Host: "smtp.env.example", Port: 25, From: "env@example.com"}

		id := f.seedInvoice(t, "")
		preview, err := f.svc.PreviewEmail(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "smtp.env.example", preview.SMTPHost)
		assert.Equal(t, "environment", preview.AccountLevel)
	})

	t.Run("category template wins", func(t *testing.T) {
		f := newExportFixture(t, true)
		category, err := invoicing.NewCategory("workshop", "Workshops")
		require.NoError(t, err)
		category.MailSubject = "Workshop-Rechnung {{invoice_number}} ({{category}})"
		f.svc.categories = newFakeCategoryRepo(category)

		id := f.seedInvoice(t, "")
		stored, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		stored.CategoryKey = "workshop"
		require.NoError(t, f.invoices.Save(context.Background(), stored))

		preview, err := f.svc.PreviewEmail(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Workshop-Rechnung 202608001 (Workshops)", preview.Subject)
	})
}

func TestExportService_ExportDatev(t *testing.T) {
	t.Run("success records SUCCESS with timestamp", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")

		result, err := f.svc.ExportDatev(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, "SUCCESS", result.Status)

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, invoicing.DatevSuccess, inv.DatevStatus)
		require.NotNil(t, inv.DatevExportedAt)
		assert.Empty(t, inv.DatevError)

		msg, _, ok := f.mailer.lastMessage()
		require.True(t, ok)
		assert.Equal(t, []string{"steuer@example.com"}, msg.To)
		assert.Equal(t, "RE-202608001.pdf", msg.AttachmentName)
	})

	t.Run("mail disabled records SKIPPED", func(t *testing.T) {
		f := newExportFixture(t, false)
		id := f.seedInvoice(t, "")

		result, err := f.svc.ExportDatev(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, "SKIPPED", result.Status)

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, invoicing.DatevSkipped, inv.DatevStatus)
	})

	t.Run("missing DATEV recipient records SKIPPED", func(t *testing.T) {
		f := newExportFixture(t, true)
		f.settings.datev = nil
		id := f.seedInvoice(t, "")

		result, err := f.svc.ExportDatev(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "SKIPPED", result.Status)
	})

	t.Run("no SMTP account records SKIPPED, not FAILED", func(t *testing.T) {
		f := newExportFixture(t, true)
		f.settings.smtp = nil
		id := f.seedInvoice(t, "")

		result, err := f.svc.ExportDatev(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, "SKIPPED", result.Status)
		assert.Contains(t, result.Detail, "SMTP")

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, invoicing.DatevSkipped, inv.DatevStatus)
		_, _, ok := f.mailer.lastMessage()
		assert.False(t, ok)
	})

	t.Run("send failure records FAILED with detail", func(t *testing.T) {
		f := newExportFixture(t, true)
		f.mailer.err = errors.New("smtp: 550 mailbox unavailable")
		id := f.seedInvoice(t, "")

		result, err := f.svc.ExportDatev(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, "FAILED", result.Status)
		assert.Contains(t, result.Detail, "550")

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, invoicing.DatevFailed, inv.DatevStatus)
		assert.Contains(t, inv.DatevError, "550")
	})

	t.Run("retry after failure overwrites the status", func(t *testing.T) {
		f := newExportFixture(t, true)
		id := f.seedInvoice(t, "")

		f.mailer.err = errors.New("temporary failure")
		_, err := f.svc.ExportDatev(context.Background(), id)
		require.NoError(t, err)

		f.mailer.err = nil
		result, err := f.svc.ExportDatev(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "SUCCESS", result.Status)

		inv, err := f.invoices.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, invoicing.DatevSuccess, inv.DatevStatus)
		assert.Empty(t, inv.DatevError)
	})
}
