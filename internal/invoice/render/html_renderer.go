package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="de">
<head>
  <meta charset="utf-8" />
  <title>Rechnung {{.Number}}</title>
  <style>
    :root {
      --primary: {{.Brand.PrimaryColor}};
      --font: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px;
      font-family: var(--font);
      color: #1a1f36;
      background: #f7f9fc;
      -webkit-font-smoothing: antialiased;
    }
    .invoice-card {
      background: #ffffff;
      max-width: 760px;
      margin: 0 auto;
      padding: 60px;
      box-shadow: 0 2px 5px rgba(0,0,0,0.04);
      border-radius: 4px;
    }
    .header {
      display: flex;
      justify-content: space-between;
      margin-bottom: 40px;
    }
    .header-left h1 {
      margin: 0;
      font-size: 24px;
      font-weight: 700;
      color: #1a1f36;
    }
    .header-right {
      text-align: right;
      font-weight: 600;
      color: #8792a2;
      font-size: 16px;
    }
    
    .meta-grid {
      display: flex;
      justify-content: space-between;
      margin-bottom: 40px;
    }
    .col {
      flex: 1;
    }
    .label {
      font-size: 11px;
      text-transform: uppercase;
      color: #8792a2;
      margin-bottom: 6px;
      font-weight: 600;
      letter-spacing: 0.3px;
    }
    .value {
      font-size: 14px;
      line-height: 1.5;
      color: #1a1f36;
    }
    
    .amount-section {
      margin-bottom: 40px;
    }
    .amount-large {
      font-size: 32px;
      font-weight: 700;
      color: #1a1f36;
      margin-bottom: 4px;
    }
    
    table {
      width: 100%;
      border-collapse: collapse;
      margin-bottom: 30px;
    }
    th {
      text-align: left;
      text-transform: uppercase;
      font-size: 11px;
      color: #8792a2;
      border-bottom: 1px solid #e3e8ee;
      padding: 10px 0;
      font-weight: 600;
      letter-spacing: 0.3px;
    }
    td {
      padding: 16px 0;
      border-bottom: 1px solid #e3e8ee;
      font-size: 14px;
      color: #1a1f36;
      vertical-align: top;
    }
    .td-right { text-align: right; }
    
    .item-title { font-weight: 600; margin-bottom: 2px; }
    .item-sub { font-size: 12px; color: #697386; }
    
    .totals {
      width: 100%;
      display: flex;
      flex-direction: column;
      align-items: flex-end;
    }
    .total-row {
      display: flex;
      justify-content: space-between;
      width: 250px;
      padding: 6px 0;
      font-size: 14px;
    }
    .total-label { color: #697386; }
    .total-value { color: #1a1f36; text-align: right; font-weight: 500; }
    .total-final {
      border-top: 1px solid #e3e8ee;
      margin-top: 10px;
      padding-top: 10px;
      font-weight: 700;
      font-size: 16px;
      color: #1a1f36;
    }
    
    .footer {
      margin-top: 60px;
      font-size: 12px;
      color: #8792a2;
      border-top: 1px solid #e3e8ee;
      padding-top: 20px;
    }
    
    /* Spacer utility */
    .mt-4 { margin-top: 4px; }
  </style>
</head>
<body>
  <div class="invoice-card">
    <div class="header">
      <div class="header-left">
        <h1>Rechnung</h1>
        <div class="label mt-4" style="margin-top: 12px;">Rechnungsnummer</div>
        <div class="value">{{.Number}}</div>
      </div>
      <div class="header-right">
        {{if .Brand.LogoURL}}
          <img src="{{.Brand.LogoURL}}" style="max-height: 40px;" alt="{{.Brand.CompanyName}}">
        {{else}}
          {{.Brand.CompanyName}}
        {{end}}
      </div>
    </div>

    <div class="meta-grid">
      <div class="col">
        <div class="label">Rechnungsempfänger</div>
        <div class="value">
          <strong>{{.Recipient.Name}}</strong><br>
          {{if .Recipient.Contact}}{{.Recipient.Contact}}<br>{{end}}
          {{if .Recipient.Address}}{{.Recipient.Address}}<br>{{end}}
          {{.Recipient.Email}}
        </div>
      </div>
      <div class="col" style="flex: 0 0 200px;">
        <div class="label">Fällig am</div>
        <div class="value">{{formatDate .DueAt}}</div>

        <div class="label" style="margin-top: 16px;">Rechnungsdatum</div>
        <div class="value">{{formatDate .IssuedAt}}</div>
      </div>
    </div>

    <div class="amount-section">
      <div class="amount-large">{{formatMoney .Gross}}</div>
      <div class="value" style="color: #697386; margin-bottom: 8px;">fällig am {{formatDate .DueAt}}</div>
    </div>

    <table>
      <thead>
        <tr>
          <th style="width: 50%;">Beschreibung</th>
          <th class="td-right">Menge</th>
          <th class="td-right">Einzelpreis</th>
          <th class="td-right">Betrag</th>
        </tr>
      </thead>
      <tbody>
        {{range .Items}}
        <tr>
          <td>
            <div class="item-title">{{.Title}}</div>
            {{if .SubTitle}}<div class="item-sub">{{.SubTitle}}</div>{{end}}
          </td>
          <td class="td-right">{{.Quantity}}</td>
          <td class="td-right">{{formatMoney .UnitPrice}}</td>
          <td class="td-right" style="font-weight: 500;">{{formatMoney .Amount}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="totals">
      <div class="total-row">
        <span class="total-label">Netto</span>
        <span class="total-value">{{formatMoney .Net}}</span>
      </div>
      <div class="total-row">
        <span class="total-label">MwSt. {{formatPercent .VATPercent}}</span>
        <span class="total-value">{{formatMoney .VAT}}</span>
      </div>
      <div class="total-row total-final">
        <span class="total-label" style="color: #1a1f36;">Gesamtbetrag</span>
        <span class="total-value">{{formatMoney .Gross}}</span>
      </div>
    </div>

    <div class="footer">
      Bitte überweisen Sie den Betrag unter Angabe des Verwendungszwecks {{.Number}}.
      {{if .Brand.FooterLegal}}<br><br>{{.Brand.FooterLegal}}{{end}}
    </div>
  </div>
</body>
</html>
`

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type Brand struct {
	CompanyName  string
	LogoURL      string
	PrimaryColor string
	FooterLegal  string
}

type Recipient struct {
	Name    string
	Contact string
	Email   string
	Address string
}

type Item struct {
	Title     string
	SubTitle  string
	Quantity  int
	UnitPrice int64
	Amount    int64
}

// Document is the render input. Amounts are euro cents.
type Document struct {
	Number     string
	IssuedAt   time.Time
	DueAt      time.Time
	Brand      Brand
	Recipient  Recipient
	Items      []Item
	Net        int64
	VAT        int64
	VATPercent float64
	Gross      int64
}

type Renderer interface {
	RenderHTML(doc Document) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatMoney":   formatMoney,
		"formatDate":    formatDate,
		"formatPercent": formatPercent,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTMLTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(doc Document) (string, error) {
	doc.Brand.PrimaryColor = sanitizeColor(doc.Brand.PrimaryColor)
	if doc.Brand.CompanyName == "" {
		doc.Brand.CompanyName = "LeadGate"
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatMoney renders cents the German way, e.g. "1.312,50 €".
func formatMoney(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}
	whole := cents / 100
	digits := fmt.Sprintf("%d", whole)
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	out := fmt.Sprintf("%s,%02d €", grouped.String(), cents%100)
	if negative {
		return "-" + out
	}
	return out
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("02.01.2006")
}

func formatPercent(value float64) string {
	return strings.Replace(decimal.NewFromFloat(value).String(), ".", ",", 1) + " %"
}

func sanitizeColor(value string) string {
	trimmed := strings.TrimSpace(value)
	if hexColorPattern.MatchString(trimmed) {
		return trimmed
	}
	return "#111827"
}
