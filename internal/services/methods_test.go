package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payvat/vat-extraction-service/internal/ai"
	"github.com/payvat/vat-extraction-service/internal/ocr"
	"github.com/payvat/vat-extraction-service/internal/tabular"
)

func TestVisionMethodAcceptsEverything(t *testing.T) {
	m := NewVisionMethod(ai.NewVisionExtractor(nil))
	assert.True(t, m.Accepts("image/png", "scan.png"))
	assert.True(t, m.Accepts("application/octet-stream", "mystery.bin"))
}

func TestTabularMethodAccepts(t *testing.T) {
	m := NewTabularMethod(tabular.NewParser())

	assert.True(t, m.Accepts("text/csv", "report"))
	assert.True(t, m.Accepts("application/json", "export"))
	assert.True(t, m.Accepts("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "book"))
	assert.True(t, m.Accepts("application/octet-stream", "report.csv"))
	assert.True(t, m.Accepts("", "book.xlsx"))
	assert.False(t, m.Accepts("image/png", "scan.png"))
	assert.False(t, m.Accepts("application/pdf", "invoice.pdf"))
}

func TestOCRMethodAccepts(t *testing.T) {
	m := NewOCRMethod(ocr.NewPatternExtractor())

	assert.True(t, m.Accepts("image/jpeg", "scan"))
	assert.True(t, m.Accepts("application/pdf", "invoice"))
	assert.True(t, m.Accepts("text/plain", "notes"))
	assert.True(t, m.Accepts("application/octet-stream", "scan.jpg"))
	assert.False(t, m.Accepts("text/csv", "report.csv"))
}

func TestIsXLSX(t *testing.T) {
	assert.True(t, isXLSX("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ""))
	assert.True(t, isXLSX("application/vnd.ms-excel", ""))
	assert.True(t, isXLSX("", "book.xlsx"))
	assert.False(t, isXLSX("text/csv", "report.csv"))
}
