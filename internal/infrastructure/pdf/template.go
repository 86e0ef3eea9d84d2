package pdf

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime"
	"os"
	"path/filepath"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/sepa"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrImageSizePx = 256

// DocumentBuilder assembles the self-contained HTML for one invoice.
// Everything is inlined (styles, logo, QR code) so the headless
// browser needs no network access.
type DocumentBuilder struct {
	tmpl   *template.Template
	logger *zap.Logger
	// defaultLogoPath is used when the category has no logo or its
	// file is unreadable.
	defaultLogoPath string
}

// NewDocumentBuilder creates a DocumentBuilder with the built-in layout
func NewDocumentBuilder(logger *zap.Logger) (*DocumentBuilder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.New("invoice").Funcs(template.FuncMap{
		"amount": invoicing.FormatAmount,
		"euro":   invoicing.FormatEuro,
		"date":   invoicing.FormatDate,
	}).Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &DocumentBuilder{tmpl: tmpl, logger: logger}, nil
}

// WithDefaultLogo sets the fallback logo file.
func (b *DocumentBuilder) WithDefaultLogo(path string) *DocumentBuilder {
	b.defaultLogoPath = path
	return b
}

// DocumentData carries everything the invoice layout needs.
type DocumentData struct {
	Invoice  *invoicing.Invoice
	Header   *invoicing.HeaderSettings
	Bank     *invoicing.BankSettings
	Category *invoicing.Category

	// QRDataURL is the inlined PNG of the SEPA payment QR code,
	// empty when bank settings are incomplete.
	QRDataURL template.URL
	// LogoDataURL is the category logo, empty when the category has none.
	LogoDataURL template.URL
}

// BuildHTML renders the invoice document. Bank settings feed both the
// payment block and the QR code; a missing QR degrades to text-only
// payment instructions instead of failing the render.
func (b *DocumentBuilder) BuildHTML(inv *invoicing.Invoice, header *invoicing.HeaderSettings, bank *invoicing.BankSettings, category *invoicing.Category) (string, error) {
	if inv == nil {
		return "", fmt.Errorf("invoice is nil")
	}
	if header == nil {
		header = &invoicing.HeaderSettings{}
	}

	data := DocumentData{
		Invoice:  inv,
		Header:   header,
		Bank:     bank,
		Category: category,
	}

	logoPath := ""
	if category != nil {
		logoPath = category.LogoPath
	}
	data.LogoDataURL = b.loadLogo(logoPath)

	if bank != nil && bank.IBAN != "" {
		payload := sepa.Payload{
			Name:    bank.AccountHolder,
			IBAN:    bank.IBAN,
			BIC:     bank.BIC,
			Amount:  inv.PayableTotal(),
			Purpose: paymentPurpose(inv),
		}
		if encoded, err := payload.Encode(); err != nil {
			b.logger.Warn("skipping payment QR code", zap.String("number", inv.Number), zap.Error(err))
		} else {
			png, err := qrcode.Encode(encoded, qrcode.Medium, qrImageSizePx)
			if err != nil {
				b.logger.Warn("QR encoding failed", zap.String("number", inv.Number), zap.Error(err))
			} else {
				data.QRDataURL = pngDataURL(png)
			}
		}
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute invoice template: %w", err)
	}
	return buf.String(), nil
}

// loadLogo tries the category logo first, then the configured default.
// Both missing just means a text-only letterhead.
func (b *DocumentBuilder) loadLogo(path string) template.URL {
	for _, candidate := range []string{path, b.defaultLogoPath} {
		if candidate == "" {
			continue
		}
		logo, err := os.ReadFile(candidate)
		if err != nil {
			b.logger.Warn("logo unreadable", zap.String("path", candidate), zap.Error(err))
			continue
		}
		return imageDataURL(candidate, logo)
	}
	return ""
}

// paymentPurpose is the transfer reference printed into the SEPA
// payload: "Rechnung {number} / {recipient name}".
func paymentPurpose(inv *invoicing.Invoice) string {
	purpose := "Rechnung " + inv.Number
	if inv.Recipient != nil && inv.Recipient.Name != "" {
		purpose += " / " + inv.Recipient.Name
	}
	return purpose
}

func pngDataURL(png []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}

func imageDataURL(path string, data []byte) template.URL {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// invoiceTemplate is an A4 layout following DIN 5008 form B: address
// window in the upper left, fold marks at 105mm and 210mm, hole mark
// at 148.5mm. The <title> becomes the PDF metadata title.
const invoiceTemplate = `<!DOCTYPE html>
<html lang="de">
<head>
<meta charset="UTF-8">
<title>{{.Invoice.DocumentName}}</title>
<style>
  @page { size: A4; margin: 0; }
  * { box-sizing: border-box; }
  body {
    margin: 0;
    font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
    font-size: 10pt;
    color: #1a1a1a;
    width: 210mm;
    position: relative;
  }
  .mark { position: absolute; left: 0; width: 5mm; border-top: 0.3pt solid #999; }
  .fold-1 { top: 105mm; }
  .hole   { top: 148.5mm; width: 7mm; }
  .fold-2 { top: 210mm; }
  .page { padding: 20mm 20mm 20mm 25mm; }
  .letterhead { display: flex; justify-content: space-between; align-items: flex-start; min-height: 25mm; }
  .letterhead h1 { font-size: 14pt; margin: 0 0 2mm 0; }
  .letterhead .issuer { text-align: right; font-size: 9pt; line-height: 1.5; }
  .letterhead img.logo { max-height: 20mm; max-width: 60mm; }
  .return-address { font-size: 7pt; text-decoration: underline; margin-top: 12mm; color: #555; }
  .address-window { margin-top: 2mm; min-height: 27mm; line-height: 1.5; }
  .meta { text-align: right; font-size: 9pt; margin-top: -20mm; }
  .meta table { margin-left: auto; border-collapse: collapse; }
  .meta td { padding: 0.5mm 0 0.5mm 5mm; }
  h2.subject { font-size: 12pt; margin: 14mm 0 6mm 0; }
  table.items { width: 100%; border-collapse: collapse; }
  table.items th {
    text-align: left; font-size: 9pt; border-bottom: 0.5pt solid #1a1a1a;
    padding: 1.5mm 2mm;
  }
  table.items td { padding: 1.5mm 2mm; border-bottom: 0.25pt solid #ccc; vertical-align: top; }
  table.items .num { text-align: right; white-space: nowrap; }
  table.totals { margin-left: auto; margin-top: 4mm; border-collapse: collapse; font-size: 9.5pt; }
  table.totals td { padding: 1mm 2mm; text-align: right; }
  table.totals tr.grand td { border-top: 0.5pt solid #1a1a1a; font-weight: bold; font-size: 10.5pt; }
  .vat-note { font-size: 8.5pt; color: #444; margin-top: 3mm; }
  .payment { display: flex; gap: 8mm; margin-top: 10mm; align-items: flex-start; }
  .payment .details { line-height: 1.6; }
  .payment img.qr { width: 30mm; height: 30mm; }
  .payment .qr-caption { font-size: 7.5pt; color: #555; text-align: center; width: 30mm; }
  .footer {
    position: absolute; bottom: 12mm; left: 25mm; right: 20mm;
    font-size: 7.5pt; color: #666; border-top: 0.25pt solid #999;
    padding-top: 2mm; display: flex; justify-content: space-between;
  }
</style>
</head>
<body>
<div class="mark fold-1"></div>
<div class="mark hole"></div>
<div class="mark fold-2"></div>
<div class="page">
  <div class="letterhead">
    <div>
      {{if .LogoDataURL}}<img class="logo" src="{{.LogoDataURL}}" alt="">{{else}}<h1>{{.Header.CompanyName}}</h1>{{end}}
    </div>
    <div class="issuer">
      <strong>{{.Header.CompanyName}}</strong><br>
      {{.Header.Street}}<br>
      {{.Header.Zip}} {{.Header.City}}<br>
      {{if .Header.Phone}}Tel. {{.Header.Phone}}<br>{{end}}
      {{if .Header.Email}}{{.Header.Email}}{{end}}
    </div>
  </div>

  <div class="return-address">{{.Header.CompanyName}} &middot; {{.Header.Street}} &middot; {{.Header.Zip}} {{.Header.City}}</div>
  <div class="address-window">
    {{with .Invoice.Recipient}}
      {{.Name}}<br>
      {{.Street}}<br>
      {{.Zip}} {{.City}}
    {{end}}
  </div>

  <div class="meta">
    <table>
      <tr><td>Rechnungsnummer</td><td><strong>{{.Invoice.Number}}</strong></td></tr>
      <tr><td>Rechnungsdatum</td><td>{{date .Invoice.Date}}</td></tr>
      <tr><td>F&auml;llig bis</td><td>{{date .Invoice.DueDate}}</td></tr>
      {{if .Invoice.B2B}}<tr><td>USt-IdNr. Empf&auml;nger</td><td>{{.Invoice.VATID}}</td></tr>{{end}}
      {{if .Header.TaxNumber}}<tr><td>Steuernummer</td><td>{{.Header.TaxNumber}}</td></tr>{{end}}
    </table>
  </div>

  <h2 class="subject">Rechnung {{.Invoice.Number}}</h2>

  <table class="items">
    <thead>
      <tr>
        <th>Pos.</th><th>Beschreibung</th>
        <th class="num">Menge</th><th class="num">Einzelpreis</th>
        <th class="num">MwSt.</th><th class="num">Gesamt</th>
      </tr>
    </thead>
    <tbody>
      {{range .Invoice.Items}}
      <tr>
        <td>{{.Position}}</td>
        <td>{{.Description}}</td>
        <td class="num">{{amount .Quantity}}</td>
        <td class="num">{{euro .UnitPriceGross}}</td>
        <td class="num">{{if eq .VATKey 1}}19%{{else}}7%{{end}}</td>
        <td class="num">{{euro .LineTotalGross}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>

  <table class="totals">
    {{with .Invoice.Totals}}
    {{if .Gross19}}
    <tr><td>Nettobetrag 19%</td><td>{{euro .Net19}}</td></tr>
    <tr><td>MwSt. 19%</td><td>{{euro .VAT19}}</td></tr>
    {{end}}
    {{if .Gross7}}
    <tr><td>Nettobetrag 7%</td><td>{{euro .Net7}}</td></tr>
    <tr><td>MwSt. 7%</td><td>{{euro .VAT7}}</td></tr>
    {{end}}
    {{if $.Invoice.B2B}}
    <tr class="grand"><td>Gesamtbetrag (netto)</td><td>{{euro $.Invoice.NetTotal}}</td></tr>
    {{else}}
    <tr class="grand"><td>Gesamtbetrag</td><td>{{euro .GrossTotal}}</td></tr>
    {{end}}
    {{end}}
  </table>

  {{if .Invoice.B2B}}
  <div class="vat-note">Steuerschuldnerschaft des Leistungsempf&auml;ngers (Reverse Charge).
  Der Rechnungsbetrag versteht sich netto; die Umsatzsteuer ist vom Leistungsempf&auml;nger
  mit der USt-IdNr. {{.Invoice.VATID}} abzuf&uuml;hren.</div>
  {{end}}

  <div class="payment">
    {{if .Bank}}
    <div class="details">
      Bitte &uuml;berweisen Sie den Betrag von <strong>{{euro .Invoice.PayableTotal}}</strong>
      bis zum <strong>{{date .Invoice.DueDate}}</strong> unter Angabe der Rechnungsnummer auf folgendes Konto:<br>
      Kontoinhaber: {{.Bank.AccountHolder}}<br>
      IBAN: {{.Bank.IBAN}}<br>
      {{if .Bank.BIC}}BIC: {{.Bank.BIC}}<br>{{end}}
      {{if .Bank.BankName}}Bank: {{.Bank.BankName}}{{end}}
    </div>
    {{end}}
    {{if .QRDataURL}}
    <div>
      <img class="qr" src="{{.QRDataURL}}" alt="SEPA QR">
      <div class="qr-caption">Mit Banking-App scannen und bezahlen</div>
    </div>
    {{end}}
  </div>

  <div class="footer">
    {{range .Header.FooterLines}}<span>{{.}}</span>{{end}}
  </div>
</div>
</body>
</html>
`
