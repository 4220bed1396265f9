package services

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/payvat/vat-extraction-service/internal/ai"
	"github.com/payvat/vat-extraction-service/internal/models"
	"github.com/payvat/vat-extraction-service/internal/ocr"
	"github.com/payvat/vat-extraction-service/internal/tabular"
)

// Method is one extraction strategy. Each strategy declares the input
// shapes it accepts; the validator queries capabilities instead of
// re-implementing mime checks per call site.
type Method interface {
	Tag() models.MethodTag
	Weight() float64
	Accepts(mimeType, fileName string) bool
	Extract(ctx context.Context, doc *models.Document) (*models.ExtractedVATData, error)
}

// VisionMethod wraps the AI document-understanding adapter. It is
// attempted for every document.
type VisionMethod struct {
	extractor *ai.VisionExtractor
}

// NewVisionMethod wraps a vision extractor as a strategy.
func NewVisionMethod(extractor *ai.VisionExtractor) *VisionMethod {
	return &VisionMethod{extractor: extractor}
}

func (m *VisionMethod) Tag() models.MethodTag { return models.TagAIVision }
func (m *VisionMethod) Weight() float64 { return models.WeightAIVision }

func (m *VisionMethod) Accepts(mimeType, fileName string) bool { return true }

func (m *VisionMethod) Extract(ctx context.Context, doc *models.Document) (*models.ExtractedVATData, error) {
	return m.extractor.Extract(ctx, doc)
}

// TabularMethod wraps the structured table parser for spreadsheet and
// delimited-text uploads.
type TabularMethod struct {
	parser *tabular.Parser
}

// NewTabularMethod wraps a table parser as a strategy.
func NewTabularMethod(parser *tabular.Parser) *TabularMethod {
	return &TabularMethod{parser: parser}
}

func (m *TabularMethod) Tag() models.MethodTag { return models.TagStructuredParser }
func (m *TabularMethod) Weight() float64 { return models.WeightStructuredParser }

var spreadsheetMimes = map[string]bool{
	"text/csv":                  true,
	"text/tab-separated-values": true,
	"application/json":          true,
	"application/vnd.ms-excel":  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

func (m *TabularMethod) Accepts(mimeType, fileName string) bool {
	if spreadsheetMimes[strings.ToLower(mimeType)] {
		return true
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".tsv", ".xlsx", ".xls", ".json":
		return true
	}
	return false
}

func (m *TabularMethod) Extract(ctx context.Context, doc *models.Document) (*models.ExtractedVATData, error) {
	if isXLSX(doc.MimeType, doc.FileName) {
		return m.parser.ParseXLSX(doc.Data, doc.FileName, doc.Category)
	}
	return m.parser.Parse(string(doc.Data), doc.FileName, doc.Category), nil
}

func isXLSX(mimeType, fileName string) bool {
	if strings.Contains(strings.ToLower(mimeType), "spreadsheetml") ||
		strings.EqualFold(mimeType, "application/vnd.ms-excel") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	return ext == ".xlsx" || ext == ".xls"
}

// OCRMethod wraps the regex pattern extractor for PDF, image and plain
// text uploads. Text-layer extraction happens upstream; the document
// bytes reaching this method are the extracted text.
type OCRMethod struct {
	extractor *ocr.PatternExtractor
}

// NewOCRMethod wraps a pattern extractor as a strategy.
func NewOCRMethod(extractor *ocr.PatternExtractor) *OCRMethod {
	return &OCRMethod{extractor: extractor}
}

func (m *OCRMethod) Tag() models.MethodTag { return models.TagOCRPatterns }
func (m *OCRMethod) Weight() float64 { return models.WeightOCRPatterns }

func (m *OCRMethod) Accepts(mimeType, fileName string) bool {
	lower := strings.ToLower(mimeType)
	if strings.HasPrefix(lower, "image/") || lower == "application/pdf" || lower == "text/plain" {
		return true
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf", ".png", ".jpg", ".jpeg", ".txt":
		return true
	}
	return false
}

func (m *OCRMethod) Extract(ctx context.Context, doc *models.Document) (*models.ExtractedVATData, error) {
	return m.extractor.Extract(string(doc.Data), doc.FileName, doc.Category), nil
}
