package tabular

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/payvat/vat-extraction-service/internal/models"
)

// ParseXLSX opens a spreadsheet upload and feeds its first non-empty
// sheet through the same row-matrix extraction used for text formats.
func (p *Parser) ParseXLSX(data []byte, fileName, category string) (*models.ExtractedVATData, error) {
	start := time.Now()

	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer workbook.Close()

	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		result := p.extractFromRows(rows, fileName, category)
		if result != nil {
			result.ProcessingTimeMs = time.Since(start).Milliseconds()
			return result, nil
		}
	}
	return nil, nil
}
