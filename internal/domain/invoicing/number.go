package invoicing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faktura/backend/internal/domain/shared"
)

// Invoice numbers are YYYYMM plus a zero-padded sequence, scoped to the
// calendar month, e.g. 202608001.
const (
	numberPrefixLen = 6
	numberSeqDigits = 3
)

// MonthPrefix returns the YYYYMM prefix for the given point in time.
func MonthPrefix(t time.Time) string {
	return t.Format("200601")
}

// NextNumber computes the successor of the highest existing number
// sharing the prefix. An empty highest starts the month at sequence 1.
func NextNumber(prefix, highest string) (string, error) {
	if highest == "" {
		return fmt.Sprintf("%s%0*d", prefix, numberSeqDigits, 1), nil
	}
	if !strings.HasPrefix(highest, prefix) {
		return "", shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("invoice number %q does not match month prefix %q", highest, prefix))
	}
	seq, err := strconv.Atoi(highest[len(prefix):])
	if err != nil {
		return "", shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("invoice number %q has a non-numeric sequence", highest))
	}
	return fmt.Sprintf("%s%0*d", prefix, numberSeqDigits, seq+1), nil
}

// ValidNumber reports whether s looks like a YYYYMM### invoice number.
// Manual overrides are checked with this before the uniqueness probe.
func ValidNumber(s string) bool {
	if len(s) < numberPrefixLen+numberSeqDigits {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	month, err := strconv.Atoi(s[4:numberPrefixLen])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	return true
}
