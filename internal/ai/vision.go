package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payvat/vat-extraction-service/internal/amounts"
	"github.com/payvat/vat-extraction-service/internal/models"
)

// VisionExtractor adapts an external document-understanding provider's
// rich output onto the common extraction shape. It owns no document
// intelligence of its own: the provider does the reading, this layer
// does the mapping.
type VisionExtractor struct {
	provider Provider
}

// NewVisionExtractor creates the adaptation layer over a provider.
func NewVisionExtractor(provider Provider) *VisionExtractor {
	return &VisionExtractor{provider: provider}
}

// extractionPrompt instructs the provider to return the logical VAT
// contract as strict JSON.
const extractionPrompt = `You are an expert in Irish VAT compliance reading financial documents.
Extract every VAT figure from this document.

Irish VAT context:
- Standard rate 23%, reduced 13.5%, tourism/hospitality 9%, plus a minimal rate band.
- Irish VAT registration numbers have the form IE followed by 7 digits and 1-2 letters.
- "Sales VAT" is VAT charged on sales (output VAT); "purchase VAT" is VAT paid on purchases (input VAT).

Return ONLY valid JSON (no markdown, no commentary):
{
  "salesVAT": [numbers - VAT amounts charged on sales],
  "purchaseVAT": [numbers - VAT amounts paid on purchases],
  "totalAmount": number (gross document total, 0 if unreadable),
  "vatRate": number (dominant VAT rate as a percentage, 23 if unclear),
  "confidence": number between 0 and 1,
  "extractedText": [notable lines you read, for audit],
  "documentType": "SALES_INVOICE" | "PURCHASE_INVOICE" | "SALES_RECEIPT" | "PURCHASE_RECEIPT" | "OTHER",
  "businessDetails": {"vatNumber": "IE...", "businessName": "..."},
  "transactionData": {"date": "YYYY-MM-DD"},
  "validationFlags": ["NON_IRISH_VAT" if the VAT number is not Irish, "MISSING_VAT_NUMBER", "MISSING_DATE" as applicable]
}

Rules: never invent amounts; use empty arrays when nothing is readable;
amounts are plain numbers without currency symbols.`

// visionResponse mirrors the provider's JSON. Numbers arrive as
// float64, string or null depending on the model, so everything numeric
// is interface{} and coerced below.
type visionResponse struct {
	SalesVAT        []interface{} `json:"salesVAT"`
	PurchaseVAT     []interface{} `json:"purchaseVAT"`
	TotalAmount     interface{}   `json:"totalAmount"`
	VATRate         interface{}   `json:"vatRate"`
	Confidence      interface{}   `json:"confidence"`
	ExtractedText   []string      `json:"extractedText"`
	DocumentType    string        `json:"documentType"`
	BusinessDetails struct {
		VATNumber    string `json:"vatNumber"`
		BusinessName string `json:"businessName"`
	} `json:"businessDetails"`
	TransactionData struct {
		Date string `json:"date"`
	} `json:"transactionData"`
	ValidationFlags []string `json:"validationFlags"`
}

// Extract sends the document to the provider and normalises the reply.
// Any provider failure or malformed response is returned as an error;
// the orchestrator converts it into method absence.
func (e *VisionExtractor) Extract(ctx context.Context, doc *models.Document) (*models.ExtractedVATData, error) {
	start := time.Now()

	prompt := extractionPrompt
	if doc.Category != "" {
		prompt += fmt.Sprintf("\n\nThe uploader categorised this document as %q.", doc.Category)
	}

	response, err := e.provider.ExtractData(ctx, prompt, doc.Data, doc.MimeType)
	if err != nil {
		return nil, fmt.Errorf("vision extraction failed: %w", err)
	}

	parsed, err := parseVisionResponse(response)
	if err != nil {
		return nil, err
	}

	result := mapResponse(parsed)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// parseVisionResponse strips markdown fences and decodes the JSON body.
func parseVisionResponse(response string) (*visionResponse, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var parsed visionResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("malformed vision response: %w", err)
	}
	return &parsed, nil
}

// mapResponse folds the provider shape into ExtractedVATData.
func mapResponse(parsed *visionResponse) *models.ExtractedVATData {
	result := &models.ExtractedVATData{
		ProcessingMethod: models.MethodAIVision,
		SalesVAT:         coerceAmounts(parsed.SalesVAT),
		PurchaseVAT:      coerceAmounts(parsed.PurchaseVAT),
		TotalAmount:      coerceDecimal(parsed.TotalAmount),
		VATRate:          coerceVATRate(parsed.VATRate),
		Confidence:       clamp01(coerceFloat(parsed.Confidence, 0)),
		ExtractedText:    parsed.ExtractedText,
		DocumentType:     coerceDocumentType(parsed.DocumentType),
		ValidationFlags:  parsed.ValidationFlags,
	}

	if number := amounts.FindVATNumber(parsed.BusinessDetails.VATNumber); number != "" {
		result.VATNumber = &number
	} else if raw := strings.TrimSpace(parsed.BusinessDetails.VATNumber); raw != "" {
		// Non-Irish number: keep it, the compliance derivation will
		// reject the prefix.
		result.VATNumber = &raw
	}
	if name := strings.TrimSpace(parsed.BusinessDetails.BusinessName); name != "" {
		result.SupplierName = &name
	}
	if date := amounts.FindDate(parsed.TransactionData.Date); date != nil {
		result.InvoiceDate = date
	} else if t, err := time.Parse("2006-01-02", parsed.TransactionData.Date); err == nil {
		result.InvoiceDate = &t
	}

	result.DeriveIrishCompliance()
	if result.HasFlag(models.FlagNonIrishVAT) {
		result.IrishVATCompliant = false
	}
	return result
}

// coerceAmounts converts loose numeric values into decimals, discarding
// anything negative or unparseable.
func coerceAmounts(values []interface{}) []decimal.Decimal {
	var out []decimal.Decimal
	for _, v := range values {
		d := coerceDecimal(v)
		if d.IsZero() && !isExplicitZero(v) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func isExplicitZero(v interface{}) bool {
	switch val := v.(type) {
	case float64:
		return val == 0
	case string:
		d, ok := amounts.Parse(val)
		return ok && d.IsZero()
	default:
		return false
	}
}

// coerceDecimal handles float64, string (with separators) and
// json.Number inputs. Negative and unparseable values become zero.
func coerceDecimal(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		if val < 0 {
			return decimal.Zero
		}
		return decimal.NewFromFloat(val)
	case string:
		if d, ok := amounts.Parse(val); ok {
			return d
		}
		return decimal.Zero
	case json.Number:
		if d, ok := amounts.Parse(string(val)); ok {
			return d
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

func coerceFloat(v interface{}, fallback float64) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		if f, ok := amounts.ParseFloat(val); ok {
			return f
		}
	}
	return fallback
}

// coerceVATRate treats zero or out-of-band rates as undetectable and
// falls back to the Irish standard rate.
func coerceVATRate(v interface{}) float64 {
	rate := coerceFloat(v, 23)
	if rate < 5 || rate > 30 {
		return 23
	}
	return rate
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func coerceDocumentType(raw string) models.DocumentType {
	switch models.DocumentType(strings.ToUpper(strings.TrimSpace(raw))) {
	case models.DocTypeSalesInvoice:
		return models.DocTypeSalesInvoice
	case models.DocTypePurchaseInvoice:
		return models.DocTypePurchaseInvoice
	case models.DocTypeSalesReceipt:
		return models.DocTypeSalesReceipt
	case models.DocTypePurchaseReceipt:
		return models.DocTypePurchaseReceipt
	default:
		return models.DocTypeOther
	}
}
