package tabular

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payvat/vat-extraction-service/internal/models"
)

func TestParse_EmptyContent(t *testing.T) {
	p := NewParser()
	assert.Nil(t, p.Parse("", "empty.csv", ""))
	assert.Nil(t, p.Parse("   \n  ", "empty.csv", ""))
}

func TestParse_TaxReportMarker(t *testing.T) {
	p := NewParser()

	content := "VAT_EXTRACTION_MARKER,115.00\nIreland,23.00\n"
	result := p.Parse(content, "tax_report.csv", "PURCHASE")
	require.NotNil(t, result)

	assert.Equal(t, models.MethodExcelParser, result.ProcessingMethod)
	assert.Equal(t, models.DocTypePurchaseReceipt, result.DocumentType)
	require.Len(t, result.PurchaseVAT, 2)
	assert.Empty(t, result.SalesVAT)

	total := result.PurchaseVAT[0].Add(result.PurchaseVAT[1])
	assert.True(t, total.Equal(decimal.RequireFromString("138.00")))
	// The explicit extraction marker carries the highest structured
	// confidence.
	assert.InDelta(t, 0.95, result.Confidence, 0.0001)
}

func TestParse_TaxReportWithoutExactMarker(t *testing.T) {
	p := NewParser()

	content := "country,vat\nwoocommerce_tax_report,0\nIreland,46.00\n"
	result := p.Parse(content, "export.csv", "SALES")
	require.NotNil(t, result)

	require.Len(t, result.SalesVAT, 1)
	assert.True(t, result.SalesVAT[0].Equal(decimal.RequireFromString("46.00")))
	assert.InDelta(t, 0.9, result.Confidence, 0.0001)
	assert.Equal(t, models.DocTypeSalesReceipt, result.DocumentType)
}

func TestParse_InvoiceTableWithHeaders(t *testing.T) {
	p := NewParser()

	content := "Supplier Name,Date,VAT,Total\n" +
		"Acme Ltd,15/01/2024,23.00,123.00\n"
	result := p.Parse(content, "sales_invoice.csv", "SALES")
	require.NotNil(t, result)

	require.Len(t, result.SalesVAT, 1)
	assert.True(t, result.SalesVAT[0].Equal(decimal.RequireFromString("23.00")))
	assert.True(t, result.TotalAmount.Equal(decimal.RequireFromString("123.00")))
	require.NotNil(t, result.SupplierName)
	assert.Equal(t, "Acme Ltd", *result.SupplierName)
	require.NotNil(t, result.InvoiceDate)
	assert.Equal(t, 15, result.InvoiceDate.Day())
	assert.Equal(t, models.DocTypeSalesInvoice, result.DocumentType)
	// No VAT number: 0.8 base + 0.05 name + 0.05 date.
	assert.InDelta(t, 0.9, result.Confidence, 0.0001)
	assert.True(t, result.HasFlag(models.FlagMissingVATNumber))
}

func TestParse_InvoiceWithVATNumberColumn(t *testing.T) {
	p := NewParser()

	content := "Company,VAT Number,VAT,Amount\n" +
		"Murphy Hardware,IE1234567A,46.00,246.00\n"
	result := p.Parse(content, "purchases.csv", "PURCHASE")
	require.NotNil(t, result)

	require.Len(t, result.PurchaseVAT, 1)
	require.NotNil(t, result.VATNumber)
	assert.Equal(t, "IE1234567A", *result.VATNumber)
	assert.True(t, result.IrishVATCompliant)
	assert.False(t, result.HasFlag(models.FlagMissingVATNumber))
}

func TestParse_KeyValueExport(t *testing.T) {
	p := NewParser()

	content := "Supplier: Acme Ltd\nGross: 123.00\nVAT: 23.00\n"
	result := p.Parse(content, "summary.txt", "PURCHASE")
	require.NotNil(t, result)

	require.Len(t, result.PurchaseVAT, 1)
	assert.True(t, result.PurchaseVAT[0].Equal(decimal.RequireFromString("23.00")))
}

func TestParse_PatternFallbackKeepsFlags(t *testing.T) {
	p := NewParser()

	// No mappable VAT column; the amount and the VAT mention sit in
	// separate cells, so only the flattened-text fallback finds it.
	content := "Ref,Note\n€45.50,standard VAT applies\n"
	result := p.Parse(content, "export.csv", "")
	require.NotNil(t, result)

	require.Len(t, result.PurchaseVAT, 1)
	assert.True(t, result.PurchaseVAT[0].Equal(decimal.RequireFromString("45.50")))

	// The small-amount classification flag raised during the fallback
	// survives the merge, and flags are not duplicated.
	assert.Contains(t, result.ValidationFlags, models.FlagHeuristicClassification)
	seen := 0
	for _, flag := range result.ValidationFlags {
		if flag == models.FlagMissingVATNumber {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
}

func TestParse_JSONTaxSummary(t *testing.T) {
	p := NewParser()

	content := `{"tax_summary": {"ireland": 46.00}}`
	result := p.Parse(content, "summary.json", "SALES")
	require.NotNil(t, result)

	require.Len(t, result.SalesVAT, 1)
	assert.True(t, result.SalesVAT[0].Equal(decimal.NewFromInt(46)))
}

func TestParse_JSONRowOrderIsStable(t *testing.T) {
	p := NewParser()

	content := `{"vat_breakdown": {"zebra ireland": 10.00, "alpha ireland": 20.00, "mid ireland": 30.00}}`

	first := p.Parse(content, "breakdown.json", "SALES")
	require.NotNil(t, first)
	require.Len(t, first.SalesVAT, 3)

	// Object keys flatten in sorted order, not map iteration order.
	assert.True(t, first.SalesVAT[0].Equal(decimal.NewFromInt(20)))
	assert.True(t, first.SalesVAT[1].Equal(decimal.NewFromInt(30)))
	assert.True(t, first.SalesVAT[2].Equal(decimal.NewFromInt(10)))

	for i := 0; i < 25; i++ {
		again := p.Parse(content, "breakdown.json", "SALES")
		require.NotNil(t, again)
		assert.Equal(t, first.SalesVAT, again.SalesVAT)
		assert.Equal(t, first.ExtractedText, again.ExtractedText)
	}
}

func TestParse_QuotedCSVFields(t *testing.T) {
	p := NewParser()

	// RFC4180 quoting: the embedded comma must not split the name.
	content := "Name,VAT,Total\n\"Smith, Jones & Co\",23.00,123.00\n"
	result := p.Parse(content, "report.csv", "SALES")
	require.NotNil(t, result)

	require.Len(t, result.SalesVAT, 1)
	require.NotNil(t, result.SupplierName)
	assert.Equal(t, "Smith, Jones & Co", *result.SupplierName)
}

func TestParse_NoVATContent(t *testing.T) {
	p := NewParser()

	content := "Item,Qty\nWidgets,4\nSprockets,2\n"
	assert.Nil(t, p.Parse(content, "inventory.csv", ""))
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		file    string
		want    tableFormat
		ok      bool
	}{
		{"csv by comma", "a,b\n1,2", "x.txt", formatCSV, true},
		{"csv by extension", "a\tb", "x.csv", formatCSV, true},
		{"tsv", "a\tb\n1\t2", "x.txt", formatTSV, true},
		{"key value", "VAT: 23\nTotal: 123", "x.txt", formatKeyValue, true},
		{"json object", `{"a": 1}`, "x.txt", formatJSON, true},
		{"json array", `[{"a": 1}]`, "x.txt", formatJSON, true},
		{"empty", "", "x.txt", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := detectFormat(tt.content, tt.file)
			if !tt.ok {
				if tt.want != "" {
					assert.Equal(t, tt.want, got)
				}
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
