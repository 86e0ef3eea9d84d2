package invoicing

import (
	"strings"

	"github.com/faktura/backend/internal/domain/shared"
)

// Recipient is a customer address snapshot. Rows are deduplicated by
// (name, street, zip, city) at invoice-creation time; many invoices
// may reference the same row.
type Recipient struct {
	shared.BaseEntity
	Name   string `gorm:"type:varchar(200);not null;uniqueIndex:idx_recipient_identity,priority:1" json:"name"`
	Street string `gorm:"type:varchar(200);not null;uniqueIndex:idx_recipient_identity,priority:2" json:"street"`
	Zip    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_recipient_identity,priority:3" json:"zip"`
	City   string `gorm:"type:varchar(100);not null;uniqueIndex:idx_recipient_identity,priority:4" json:"city"`
	Email  string `gorm:"type:varchar(200)" json:"email,omitempty"`
}

// TableName returns the table name for GORM
func (Recipient) TableName() string {
	return "recipients"
}

// NewRecipient validates and normalizes the address snapshot.
func NewRecipient(name, street, zip, city, email string) (*Recipient, error) {
	name = strings.TrimSpace(name)
	street = strings.TrimSpace(street)
	zip = strings.TrimSpace(zip)
	city = strings.TrimSpace(city)

	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recipient name is required")
	}
	if street == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recipient street is required")
	}
	if zip == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recipient zip is required")
	}
	if city == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recipient city is required")
	}

	return &Recipient{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Street:     street,
		Zip:        zip,
		City:       city,
		Email:      strings.TrimSpace(email),
	}, nil
}
