package invoicing

// VATKey identifies one of the two German VAT rates on a line item.
type VATKey int

const (
	// VATKeyStandard is the 19% standard rate
	VATKeyStandard VATKey = 1
	// VATKeyReduced is the 7% reduced rate
	VATKeyReduced VATKey = 2
)

// Rate returns the tax rate for the key, or 0 for an unknown key.
func (k VATKey) Rate() float64 {
	switch k {
	case VATKeyStandard:
		return 0.19
	case VATKeyReduced:
		return 0.07
	default:
		return 0
	}
}

// IsValid reports whether the key is one of the supported rates.
func (k VATKey) IsValid() bool {
	return k == VATKeyStandard || k == VATKeyReduced
}

// Totals holds the per-rate net/VAT/gross buckets of an invoice.
// Values are kept at full float precision; rounding happens only at
// display time (see FormatAmount).
type Totals struct {
	Net19      float64
	VAT19      float64
	Gross19    float64
	Net7       float64
	VAT7       float64
	Gross7     float64
	GrossTotal float64
}

// NetTotal returns the combined net amount across both rate buckets.
func (t Totals) NetTotal() float64 {
	return t.Net19 + t.Net7
}

// ComputeTotals accumulates line items into per-rate buckets.
// Each item's gross is quantity times unit gross price; net is derived
// by dividing out the rate. Callers validate items first; unknown VAT
// keys contribute nothing.
func ComputeTotals(items []LineItem) Totals {
	var t Totals
	for _, item := range items {
		gross := item.Quantity * item.UnitPriceGross
		rate := item.VATKey.Rate()
		if rate == 0 {
			continue
		}
		net := gross / (1 + rate)
		vat := gross - net
		switch item.VATKey {
		case VATKeyStandard:
			t.Net19 += net
			t.VAT19 += vat
			t.Gross19 += gross
		case VATKeyReduced:
			t.Net7 += net
			t.VAT7 += vat
			t.Gross7 += gross
		}
	}
	t.GrossTotal = t.Gross19 + t.Gross7
	return t
}
