package ocr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payvat/vat-extraction-service/internal/models"
)

func TestExtract_NoMatches(t *testing.T) {
	e := NewPatternExtractor()
	assert.Nil(t, e.Extract("nothing fiscal in this text at all", "notes.txt", ""))
}

func TestExtract_ExtractionMarker(t *testing.T) {
	e := NewPatternExtractor()

	result := e.Extract("VAT_EXTRACTION_MARKER: 115.00", "report.txt", "PURCHASE")
	require.NotNil(t, result)

	require.Len(t, result.PurchaseVAT, 1)
	assert.True(t, result.PurchaseVAT[0].Equal(decimal.RequireFromString("115.00")))
	assert.Empty(t, result.SalesVAT)
	assert.Equal(t, models.MethodOCRText, result.ProcessingMethod)
	// Marker confidence exceeds the OCR ceiling, so the cap applies.
	assert.InDelta(t, 0.95, result.Confidence, 0.0001)
	assert.False(t, result.HasFlag(models.FlagHeuristicClassification))
}

func TestExtract_DeduplicatesAcrossPatterns(t *testing.T) {
	e := NewPatternExtractor()

	// 115.00 is matched by both the rate pattern and the labelled
	// pattern; only the higher-confidence hit may survive. 230.00 is a
	// distinct figure and must be kept.
	text := "VAT (23%): 115.00\nVAT: 115.00\nVAT: 230.00"
	result := e.Extract(text, "invoice.txt", "SALES")
	require.NotNil(t, result)

	require.Len(t, result.SalesVAT, 2)
	total := result.SalesVAT[0].Add(result.SalesVAT[1])
	assert.True(t, total.Equal(decimal.RequireFromString("345.00")))
	assert.Equal(t, 23.0, result.VATRate)
}

func TestExtract_RateBands(t *testing.T) {
	e := NewPatternExtractor()

	result := e.Extract("STD23: 46.00\nRED13.5: 13.50", "summary.txt", "SALES")
	require.NotNil(t, result)

	assert.Len(t, result.SalesVAT, 2)
	// Two corroborating matches plus a rate-band hit push confidence to
	// the cap.
	assert.InDelta(t, 0.95, result.Confidence, 0.0001)
}

func TestExtract_HeuristicClassificationFlagged(t *testing.T) {
	e := NewPatternExtractor()

	// No context cues and no category hint: the small amount is guessed
	// to be a purchase and the guess must be flagged.
	result := e.Extract("€50.00 due incl VAT", "scan.txt", "")
	require.NotNil(t, result)

	require.Len(t, result.PurchaseVAT, 1)
	assert.True(t, result.PurchaseVAT[0].Equal(decimal.RequireFromString("50.00")))
	assert.True(t, result.HasFlag(models.FlagHeuristicClassification))
}

func TestExtract_CategoryHintBeatsHeuristic(t *testing.T) {
	e := NewPatternExtractor()

	result := e.Extract("€50.00 due incl VAT", "scan.txt", "SALES")
	require.NotNil(t, result)

	require.Len(t, result.SalesVAT, 1)
	assert.False(t, result.HasFlag(models.FlagHeuristicClassification))
}

func TestExtract_DocumentFields(t *testing.T) {
	e := NewPatternExtractor()

	text := "Murphy Hardware Ltd\n" +
		"Invoice date: 15/01/2024\n" +
		"VAT Reg No: IE1234567A\n" +
		"VAT (23%): 23.00\n" +
		"Total: 123.00\n"
	result := e.Extract(text, "invoice.txt", "")
	require.NotNil(t, result)

	require.NotNil(t, result.VATNumber)
	assert.Equal(t, "IE1234567A", *result.VATNumber)
	require.NotNil(t, result.SupplierName)
	assert.Equal(t, "Murphy Hardware Ltd", *result.SupplierName)
	require.NotNil(t, result.InvoiceDate)
	assert.Equal(t, 15, result.InvoiceDate.Day())
	assert.True(t, result.TotalAmount.Equal(decimal.RequireFromString("123.00")))
	assert.Equal(t, models.DocTypeSalesInvoice, result.DocumentType)
	assert.True(t, result.IrishVATCompliant)
	assert.False(t, result.HasFlag(models.FlagMissingVATNumber))
	assert.False(t, result.HasFlag(models.FlagMissingDate))
}

func TestExtract_MissingFieldsFlagged(t *testing.T) {
	e := NewPatternExtractor()

	result := e.Extract("VAT: 23.00", "scan.txt", "SALES")
	require.NotNil(t, result)

	assert.True(t, result.HasFlag(models.FlagMissingVATNumber))
	assert.True(t, result.HasFlag(models.FlagMissingDate))
	assert.False(t, result.IrishVATCompliant)
}

func TestDeduplicate_KeepsHighestConfidence(t *testing.T) {
	candidates := []match{
		{pattern: patternTable[6], amount: decimal.RequireFromString("115.00")}, // vat_labelled 0.85
		{pattern: patternTable[0], amount: decimal.RequireFromString("115.01")}, // marker 0.99, within 1 cent
		{pattern: patternTable[6], amount: decimal.RequireFromString("200.00")},
	}

	kept := deduplicate(candidates)
	require.Len(t, kept, 2)
	assert.Equal(t, "extraction_marker", kept[0].pattern.name)
	assert.True(t, kept[1].amount.Equal(decimal.RequireFromString("200.00")))
}
