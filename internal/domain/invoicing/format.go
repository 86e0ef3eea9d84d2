package invoicing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatAmount renders a monetary value in German notation: comma as
// decimal separator, period as thousands separator, two decimals.
// Rounding happens here and nowhere else; stored values keep full
// float precision.
func FormatAmount(v float64) string {
	fixed := decimal.NewFromFloat(v).StringFixed(2)

	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// FormatEuro renders an amount with the trailing currency sign.
func FormatEuro(v float64) string {
	return FormatAmount(v) + " €"
}

// FormatDate renders a date in German day.month.year notation.
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

// AmountFixed renders an amount with a period decimal separator and
// exactly two decimals, as required by the EPC payload.
func AmountFixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
