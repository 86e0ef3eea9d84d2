package invoicing

import (
	"strings"

	"github.com/faktura/backend/internal/domain/shared"
)

// Category is a business-line tag on an invoice. A category may carry
// its own logo, outbound mail account and message template, each
// overriding the global defaults when fully configured.
type Category struct {
	shared.BaseEntity
	Key      string `gorm:"type:varchar(50);not null;uniqueIndex" json:"key"`
	Label    string `gorm:"type:varchar(100);not null" json:"label"`
	LogoPath string `gorm:"type:varchar(255)" json:"logo_path,omitempty"`

	SMTPHost     string `gorm:"column:smtp_host;type:varchar(200)" json:"smtp_host,omitempty"`
	SMTPPort     int    `gorm:"column:smtp_port" json:"smtp_port,omitempty"`
	SMTPUsername string `gorm:"column:smtp_username;type:varchar(200)" json:"smtp_username,omitempty"`
	SMTPPassword string `gorm:"column:smtp_password;type:varchar(200)" json:"-"`
	MailFrom     string `gorm:"type:varchar(200)" json:"mail_from,omitempty"`
	MailFromName string `gorm:"type:varchar(200)" json:"mail_from_name,omitempty"`

	MailSubject string `gorm:"type:text" json:"mail_subject,omitempty"`
	MailBody    string `gorm:"type:text" json:"mail_body,omitempty"`
}

// TableName returns the table name for GORM
func (Category) TableName() string {
	return "categories"
}

// NewCategory creates a category with the minimal required fields.
func NewCategory(key, label string) (*Category, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Category key is required")
	}
	if strings.TrimSpace(label) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Category label is required")
	}
	return &Category{
		BaseEntity: shared.NewBaseEntity(),
		Key:        key,
		Label:      label,
	}, nil
}

// SMTPAccount returns the category's mail account, or nil when the
// override is not fully configured.
func (c *Category) SMTPAccount() *SMTPAccount {
	acc := &SMTPAccount{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
		FromName: c.MailFromName,
	}
	if !acc.IsComplete() {
		return nil
	}
	return acc
}

// MailTemplate returns the category's message template, or nil when
// neither subject nor body is set.
func (c *Category) MailTemplate() *MailTemplate {
	if c.MailSubject == "" && c.MailBody == "" {
		return nil
	}
	return &MailTemplate{Subject: c.MailSubject, Body: c.MailBody}
}
