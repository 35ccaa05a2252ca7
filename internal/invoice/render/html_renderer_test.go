package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTML(t *testing.T) {
	html, err := NewRenderer().RenderHTML(Document{
		Number:    "LG-2025-06-MUSTER001",
		IssuedAt:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		DueAt:     time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		Recipient: Recipient{Name: "Muster <Immobilien>", Email: "info@muster.example"},
		Items: []Item{
			{Title: "Qualifizierte Leads Juni 2025", Quantity: 7, UnitPrice: 6429, Amount: 45000},
		},
		Net:        45000,
		VAT:        8550,
		VATPercent: 19,
		Gross:      53550,
		Brand:      Brand{PrimaryColor: "red;}"},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "LG-2025-06-MUSTER001")
	assert.Contains(t, html, "535,50 €")
	assert.Contains(t, html, "15.07.2025")
	assert.Contains(t, html, "Muster &lt;Immobilien&gt;")
	assert.Contains(t, html, "#111827")
	assert.Contains(t, html, "19 %")
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0,00 €", formatMoney(0))
	assert.Equal(t, "1.312,50 €", formatMoney(131250))
	assert.Equal(t, "1.250.000,00 €", formatMoney(125000000))
	assert.Equal(t, "-75,00 €", formatMoney(-7500))
}
