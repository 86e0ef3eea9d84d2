package invoicing

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/faktura/backend/internal/infrastructure/mail"
	"github.com/google/uuid"
)

// fakeInvoiceRepo is an in-memory invoicing.InvoiceRepository.
type fakeInvoiceRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*invoicing.Invoice
	failNext error
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{byID: map[uuid.UUID]*invoicing.Invoice{}}
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, inv *invoicing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	for _, existing := range r.byID {
		if existing.Number == inv.Number {
			return shared.ErrConflict
		}
		if inv.ReservationRequestID != nil && existing.ReservationRequestID != nil &&
			*existing.ReservationRequestID == *inv.ReservationRequestID {
			return shared.ErrConflict
		}
	}
	clone := *inv
	r.byID[inv.ID] = &clone
	return nil
}

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *inv
	return &clone, nil
}

func (r *fakeInvoiceRepo) FindByNumber(ctx context.Context, number string) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byID {
		if inv.Number == number {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeInvoiceRepo) FindByReservation(ctx context.Context, reservationID string) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byID {
		if inv.ReservationRequestID != nil && *inv.ReservationRequestID == reservationID {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeInvoiceRepo) HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var numbers []string
	for _, inv := range r.byID {
		if strings.HasPrefix(inv.Number, prefix) {
			numbers = append(numbers, inv.Number)
		}
	}
	if len(numbers) == 0 {
		return "", nil
	}
	sort.Strings(numbers)
	return numbers[len(numbers)-1], nil
}

func (r *fakeInvoiceRepo) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	_, err := r.FindByNumber(ctx, number)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (r *fakeInvoiceRepo) List(ctx context.Context, filter invoicing.ListFilter) ([]invoicing.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []invoicing.Invoice
	for _, inv := range r.byID {
		if inv.IsCanceled() && !filter.IncludeCanceled {
			continue
		}
		if filter.CategoryKey != "" && inv.CategoryKey != filter.CategoryKey {
			continue
		}
		result = append(result, *inv)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number > result[j].Number })
	return result, int64(len(result)), nil
}

func (r *fakeInvoiceRepo) Save(ctx context.Context, inv *invoicing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inv.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *inv
	r.byID[inv.ID] = &clone
	return nil
}

func (r *fakeInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// fakeRecipientRepo deduplicates in memory like the unique index would.
type fakeRecipientRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*invoicing.Recipient
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{byID: map[uuid.UUID]*invoicing.Recipient{}}
}

func (r *fakeRecipientRepo) FindOrCreate(ctx context.Context, rec *invoicing.Recipient) (*invoicing.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Name == rec.Name && existing.Street == rec.Street &&
			existing.Zip == rec.Zip && existing.City == rec.City {
			return existing, nil
		}
	}
	r.byID[rec.ID] = rec
	return rec, nil
}

func (r *fakeRecipientRepo) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

// fakeCategoryRepo serves categories from a map keyed by key.
type fakeCategoryRepo struct {
	byKey map[string]*invoicing.Category
}

func newFakeCategoryRepo(cats ...*invoicing.Category) *fakeCategoryRepo {
	r := &fakeCategoryRepo{byKey: map[string]*invoicing.Category{}}
	for _, c := range cats {
		r.byKey[c.Key] = c
	}
	return r
}

func (r *fakeCategoryRepo) FindByKey(ctx context.Context, key string) (*invoicing.Category, error) {
	c, ok := r.byKey[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (r *fakeCategoryRepo) FindAll(ctx context.Context) ([]invoicing.Category, error) {
	var all []invoicing.Category
	for _, c := range r.byKey {
		all = append(all, *c)
	}
	return all, nil
}

func (r *fakeCategoryRepo) Save(ctx context.Context, c *invoicing.Category) error {
	r.byKey[c.Key] = c
	return nil
}

// fakeSettings returns fixed settings documents.
type fakeSettings struct {
	bank     *invoicing.BankSettings
	header   *invoicing.HeaderSettings
	datev    *invoicing.DatevSettings
	smtp     *invoicing.SMTPAccount
	template *invoicing.MailTemplate
}

func (s *fakeSettings) BankSettings(context.Context) (*invoicing.BankSettings, error) {
	return s.bank, nil
}
func (s *fakeSettings) HeaderSettings(context.Context) (*invoicing.HeaderSettings, error) {
	return s.header, nil
}
func (s *fakeSettings) DatevSettings(context.Context) (*invoicing.DatevSettings, error) {
	return s.datev, nil
}
func (s *fakeSettings) GlobalSMTPAccount(context.Context) (*invoicing.SMTPAccount, error) {
	return s.smtp, nil
}
func (s *fakeSettings) GlobalMailTemplate(context.Context) (*invoicing.MailTemplate, error) {
	return s.template, nil
}

// fakeMailer records sends and can fail on demand.
type fakeMailer struct {
	mu       sync.Mutex
	sent     []mail.Message
	accounts []*invoicing.SMTPAccount
	err      error
}

func (m *fakeMailer) Send(ctx context.Context, account *invoicing.SMTPAccount, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	m.accounts = append(m.accounts, account)
	return nil
}

func (m *fakeMailer) lastMessage() (mail.Message, *invoicing.SMTPAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mail.Message{}, nil, false
	}
	return m.sent[len(m.sent)-1], m.accounts[len(m.accounts)-1], true
}

// fakeNotifier records status notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyStatus(ctx context.Context, reservationID, invoiceNumber, status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, reservationID+"/"+invoiceNumber+"/"+status)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return ""
	}
	return n.calls[len(n.calls)-1]
}

// fakeRenderer avoids spawning a browser in tests.
type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + html[:20]), nil
}
