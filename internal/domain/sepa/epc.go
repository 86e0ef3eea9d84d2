// Package sepa builds EPC "scan to pay" QR payloads for SEPA credit
// transfers (EPC069-12, version 002).
package sepa

import (
	"strings"

	"github.com/faktura/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Payload holds the fields of one credit-transfer QR code.
type Payload struct {
	// Name is the creditor (account holder) name.
	Name string
	IBAN string
	BIC  string
	// Amount is the EUR amount, rendered with two decimals.
	Amount float64
	// Purpose is the free-text payment reference.
	Purpose string
}

// Encode renders the newline-joined EPC payload. Name and purpose are
// passed through the EPC character filter; IBAN/BIC are normalized.
func (p Payload) Encode() (string, error) {
	name := Transliterate(p.Name)
	if name == "" {
		return "", shared.NewDomainError("INVALID_INPUT", "Creditor name is required for the SEPA QR code")
	}
	iban := stripSpaces(p.IBAN)
	if iban == "" {
		return "", shared.NewDomainError("INVALID_INPUT", "IBAN is required for the SEPA QR code")
	}
	bic := strings.ToUpper(stripSpaces(p.BIC))

	fields := []string{
		"BCD",
		"002",
		"1",
		"SCT",
		bic,
		name,
		iban,
		"EUR" + decimal.NewFromFloat(p.Amount).StringFixed(2),
		"", // structured remittance info is unused
		Transliterate(p.Purpose),
	}
	return strings.Join(fields, "\n"), nil
}

// Transliterate maps text into the restricted EPC character set:
// ASCII letters, digits, space, hyphen, period, comma and slash.
// German umlauts are expanded; everything else is stripped.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case 'ä':
			b.WriteString("ae")
		case 'ö':
			b.WriteString("oe")
		case 'ü':
			b.WriteString("ue")
		case 'Ä':
			b.WriteString("Ae")
		case 'Ö':
			b.WriteString("Oe")
		case 'Ü':
			b.WriteString("Ue")
		case 'ß':
			b.WriteString("ss")
		default:
			if allowedEPCRune(r) {
				b.WriteRune(r)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func allowedEPCRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '-' || r == '.' || r == ',' || r == '/':
		return true
	}
	return false
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
