package invoicing

import "context"

// BankSettings feed the SEPA QR code and the payment block on the
// invoice document.
type BankSettings struct {
	AccountHolder string `json:"account_holder"`
	IBAN          string `json:"iban"`
	BIC           string `json:"bic"`
	BankName      string `json:"bank_name"`
}

// HeaderSettings describe the issuer letterhead and legal footer.
type HeaderSettings struct {
	CompanyName string   `json:"company_name"`
	Street      string   `json:"street"`
	Zip         string   `json:"zip"`
	City        string   `json:"city"`
	Phone       string   `json:"phone"`
	Email       string   `json:"email"`
	TaxNumber   string   `json:"tax_number"`
	FooterLines []string `json:"footer_lines"`
}

// DatevSettings configure the accountant mailbox the export goes to.
type DatevSettings struct {
	RecipientEmail string `json:"recipient_email"`
}

// SMTPAccount is one outbound mail configuration. Accounts compete in
// a priority chain (category > global > environment); only a complete
// account wins.
type SMTPAccount struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

// IsComplete reports whether the account can actually be dialed.
// Username/password stay optional for unauthenticated relays.
func (a *SMTPAccount) IsComplete() bool {
	return a != nil && a.Host != "" && a.Port > 0 && a.From != ""
}

// MailTemplate is a placeholder-templated subject/body pair.
type MailTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SettingsProvider is the read side of the key-value settings store,
// consumed by the renderer and export components. Implementations may
// cache; the handle is constructed once at process start and injected.
type SettingsProvider interface {
	BankSettings(ctx context.Context) (*BankSettings, error)
	HeaderSettings(ctx context.Context) (*HeaderSettings, error)
	DatevSettings(ctx context.Context) (*DatevSettings, error)
	GlobalSMTPAccount(ctx context.Context) (*SMTPAccount, error)
	GlobalMailTemplate(ctx context.Context) (*MailTemplate, error)
}
