package tabular

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payvat/vat-extraction-service/internal/amounts"
	"github.com/payvat/vat-extraction-service/internal/models"
	"github.com/payvat/vat-extraction-service/internal/ocr"
)

// taxReportMarkers identify machine-generated tax summary exports, e.g.
// marketplace/WooCommerce tax reports. Their layout is unambiguous, so
// extraction from them carries high confidence.
var taxReportMarkers = []string{
	"vat_extraction_marker",
	"woocommerce_tax_report",
	"tax_summary",
	"country_summary",
	"period_summary",
	"vat_breakdown",
}

// Parser extracts VAT data from structured text content: CSV, TSV,
// key-value exports and JSON blobs, plus XLSX via the excelize reader.
type Parser struct {
	patterns *ocr.PatternExtractor
}

// NewParser creates a structured table parser. The OCR pattern library
// is reused as a last-resort fallback over the flattened text.
func NewParser() *Parser {
	return &Parser{patterns: ocr.NewPatternExtractor()}
}

// Parse turns raw file content into an extraction result, or nil when
// the content is unparseable or carries no VAT figures.
func (p *Parser) Parse(content, fileName, category string) *models.ExtractedVATData {
	start := time.Now()

	format, ok := detectFormat(content, fileName)
	if !ok {
		return nil
	}
	rows, err := toRows(content, format)
	if err != nil || len(rows) == 0 {
		return nil
	}

	result := p.extractFromRows(rows, fileName, category)
	if result != nil {
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
	}
	return result
}

// extractFromRows runs tax-report or invoice/receipt extraction over an
// already-built row matrix. Shared by the text formats and XLSX.
func (p *Parser) extractFromRows(rows [][]string, fileName, category string) *models.ExtractedVATData {
	flat := strings.ToLower(flatten(rows))

	if hasAnyMarker(flat) {
		return p.extractTaxReport(rows, flat, category)
	}
	return p.extractInvoice(rows, fileName, category)
}

func hasAnyMarker(flat string) bool {
	for _, marker := range taxReportMarkers {
		if strings.Contains(flat, marker) {
			return true
		}
	}
	return false
}

// extractTaxReport pulls VAT amounts from marker-tagged cells and from
// cells referencing Ireland, routing them to sales or purchase per the
// caller's declared category.
func (p *Parser) extractTaxReport(rows [][]string, flat, category string) *models.ExtractedVATData {
	result := &models.ExtractedVATData{
		ProcessingMethod: models.MethodExcelParser,
		DocumentType:     amounts.CategoryDocumentType(category),
		VATRate:          amounts.DominantVATRate(flat),
		Confidence:       0.9,
	}
	purchase := strings.Contains(strings.ToUpper(category), "PURCHASE")

	exactMarker := strings.Contains(flat, "vat_extraction_marker")
	if exactMarker {
		result.Confidence = 0.95
	}

	for _, row := range rows {
		if !rowIsTagged(row) {
			continue
		}
		for _, cell := range row {
			amount, ok := amounts.Parse(cell)
			if !ok || amount.IsZero() {
				continue
			}
			if purchase {
				result.PurchaseVAT = append(result.PurchaseVAT, amount)
			} else {
				result.SalesVAT = append(result.SalesVAT, amount)
			}
		}
		result.ExtractedText = append(result.ExtractedText, strings.Join(row, " | "))
	}

	if !result.HasVATAmounts() {
		return nil
	}

	if total, ok := amounts.LargestIn(flattenCells(rows)); ok {
		result.TotalAmount = total
	}
	fillBusinessData(result, rows, flat)
	result.DeriveIrishCompliance()
	return result
}

// rowIsTagged reports whether a row carries a tax-report marker or an
// Ireland reference.
func rowIsTagged(row []string) bool {
	for _, cell := range row {
		lower := strings.ToLower(strings.TrimSpace(cell))
		for _, marker := range taxReportMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		if strings.Contains(lower, "ireland") || strings.ToUpper(strings.TrimSpace(cell)) == "IE" {
			return true
		}
	}
	return false
}

// columnMap holds header-name to column-index mappings for invoice mode.
type columnMap struct {
	vat       int
	total     int
	date      int
	business  int
	vatNumber int
}

func (c columnMap) mappedAny() bool {
	return c.vat >= 0 || c.total >= 0 || c.date >= 0 || c.business >= 0 || c.vatNumber >= 0
}

func rowHasNumber(row []string) bool {
	for _, cell := range row {
		if amounts.IsNumeric(cell) {
			return true
		}
	}
	return false
}

// mapHeaders matches the first row's headers against known synonyms.
// Unmatched columns stay at -1.
func mapHeaders(header []string) columnMap {
	cols := columnMap{vat: -1, total: -1, date: -1, business: -1, vatNumber: -1}
	for i, cell := range header {
		lower := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case strings.Contains(lower, "vat number"), strings.Contains(lower, "tax id"),
			strings.Contains(lower, "vat no"), strings.Contains(lower, "vat reg"):
			if cols.vatNumber == -1 {
				cols.vatNumber = i
			}
		case strings.Contains(lower, "vat"), strings.Contains(lower, "tax"):
			if cols.vat == -1 {
				cols.vat = i
			}
		case strings.Contains(lower, "total"), strings.Contains(lower, "amount"):
			if cols.total == -1 {
				cols.total = i
			}
		case strings.Contains(lower, "date"):
			if cols.date == -1 {
				cols.date = i
			}
		case strings.Contains(lower, "business"), strings.Contains(lower, "company"),
			strings.Contains(lower, "name"):
			if cols.business == -1 {
				cols.business = i
			}
		}
	}
	return cols
}

// extractInvoice handles free-form invoice and receipt tables: a header
// row mapped by synonym, then per-row extraction with fallbacks.
func (p *Parser) extractInvoice(rows [][]string, fileName, category string) *models.ExtractedVATData {
	result := &models.ExtractedVATData{
		ProcessingMethod: models.MethodExcelParser,
		DocumentType:     amounts.DetectDocumentType(flatten(rows), fileName),
		Confidence:       0.8,
	}
	flat := flatten(rows)
	result.VATRate = amounts.DominantVATRate(flat)
	purchase := strings.Contains(strings.ToUpper(category), "PURCHASE")

	// A header row never carries figures; a first row with numbers in it
	// is data, whatever its labels look like.
	cols := mapHeaders(rows[0])
	dataRows := rows
	if cols.mappedAny() && !rowHasNumber(rows[0]) {
		dataRows = rows[1:]
	}

	for _, row := range dataRows {
		if vat, ok := rowVATAmount(row, cols); ok {
			if purchase {
				result.PurchaseVAT = append(result.PurchaseVAT, vat)
			} else {
				result.SalesVAT = append(result.SalesVAT, vat)
			}
		}
		if total, ok := rowTotal(row, cols); ok && total.GreaterThan(result.TotalAmount) {
			result.TotalAmount = total
		}
		result.ExtractedText = append(result.ExtractedText, strings.Join(row, " | "))
	}

	fillBusinessData(result, dataRows, flat)
	applyRowFields(result, dataRows, cols)

	// Column extraction found nothing; run the OCR pattern library over
	// the flattened text before giving up.
	if !result.HasVATAmounts() {
		fallback := p.patterns.Extract(flat, fileName, category)
		if fallback == nil {
			return nil
		}
		result.SalesVAT = fallback.SalesVAT
		result.PurchaseVAT = fallback.PurchaseVAT
		if result.TotalAmount.IsZero() {
			result.TotalAmount = fallback.TotalAmount
		}
		for _, flag := range fallback.ValidationFlags {
			if !result.HasFlag(flag) {
				result.ValidationFlags = append(result.ValidationFlags, flag)
			}
		}
	}

	result.Confidence = invoiceConfidence(result)
	result.DeriveIrishCompliance()
	return result
}

// rowVATAmount reads the mapped VAT column first, then any cell that
// mentions vat/tax alongside a parseable number.
func rowVATAmount(row []string, cols columnMap) (decimal.Decimal, bool) {
	if cols.vat >= 0 && cols.vat < len(row) {
		if amount, ok := amounts.Parse(row[cols.vat]); ok && !amount.IsZero() {
			return amount, true
		}
	}
	// Key-value exports put the label and the figure in separate cells.
	if len(row) == 2 {
		lower := strings.ToLower(row[0])
		if (strings.Contains(lower, "vat") || strings.Contains(lower, "tax")) &&
			!strings.Contains(lower, "number") && !strings.Contains(lower, "reg") {
			if amount, ok := amounts.Parse(row[1]); ok && !amount.IsZero() {
				return amount, true
			}
		}
	}
	for _, cell := range row {
		lower := strings.ToLower(cell)
		if !strings.Contains(lower, "vat") && !strings.Contains(lower, "tax") {
			continue
		}
		if amount, ok := amounts.Parse(strings.Map(keepAmountRunes, cell)); ok && !amount.IsZero() {
			return amount, true
		}
	}
	return decimal.Zero, false
}

func keepAmountRunes(r rune) rune {
	if (r >= '0' && r <= '9') || r == '.' || r == ',' {
		return r
	}
	return -1
}

// rowTotal reads the mapped total column, else the largest numeric
// value in the row.
func rowTotal(row []string, cols columnMap) (decimal.Decimal, bool) {
	if cols.total >= 0 && cols.total < len(row) {
		if amount, ok := amounts.Parse(row[cols.total]); ok && !amount.IsZero() {
			return amount, true
		}
	}
	return amounts.LargestIn(row)
}

// applyRowFields pulls date, business name and VAT number out of mapped
// columns when the generic scan missed them.
func applyRowFields(result *models.ExtractedVATData, rows [][]string, cols columnMap) {
	for _, row := range rows {
		if result.InvoiceDate == nil && cols.date >= 0 && cols.date < len(row) {
			result.InvoiceDate = amounts.FindDate(row[cols.date])
		}
		if result.SupplierName == nil && cols.business >= 0 && cols.business < len(row) {
			if name := strings.TrimSpace(row[cols.business]); len(name) >= 3 && !amounts.IsNumeric(name) {
				result.SupplierName = &name
			}
		}
		if result.VATNumber == nil && cols.vatNumber >= 0 && cols.vatNumber < len(row) {
			if number := amounts.FindVATNumber(row[cols.vatNumber]); number != "" {
				result.VATNumber = &number
			}
		}
	}
}

// fillBusinessData extracts VAT number, business name and date from the
// whole table using the shared heuristics.
func fillBusinessData(result *models.ExtractedVATData, rows [][]string, flat string) {
	if result.VATNumber == nil {
		if number := amounts.FindVATNumber(flat); number != "" {
			result.VATNumber = &number
		}
	}
	if result.SupplierName == nil {
		var lines []string
		for _, row := range rows {
			lines = append(lines, row...)
		}
		if name := amounts.FindBusinessName(lines); name != "" {
			result.SupplierName = &name
		}
	}
	if result.InvoiceDate == nil {
		result.InvoiceDate = amounts.FindDate(flat)
	}

	if result.VATNumber == nil {
		result.ValidationFlags = append(result.ValidationFlags, models.FlagMissingVATNumber)
	}
	if result.InvoiceDate == nil {
		result.ValidationFlags = append(result.ValidationFlags, models.FlagMissingDate)
	}
}

// invoiceConfidence starts at 0.8 and rewards corroborating business
// metadata, capped at 0.95.
func invoiceConfidence(result *models.ExtractedVATData) float64 {
	confidence := 0.8
	if result.VATNumber != nil {
		confidence += 0.1
	}
	if result.SupplierName != nil {
		confidence += 0.05
	}
	if result.InvoiceDate != nil {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

// flattenCells collects every cell for whole-table numeric scans.
func flattenCells(rows [][]string) []string {
	var cells []string
	for _, row := range rows {
		cells = append(cells, row...)
	}
	return cells
}
