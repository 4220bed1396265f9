package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType classifies the kind of financial document a file represents.
type DocumentType string

const (
	DocTypeSalesInvoice    DocumentType = "SALES_INVOICE"
	DocTypePurchaseInvoice DocumentType = "PURCHASE_INVOICE"
	DocTypeSalesReceipt    DocumentType = "SALES_RECEIPT"
	DocTypePurchaseReceipt DocumentType = "PURCHASE_RECEIPT"
	DocTypeOther           DocumentType = "OTHER"
)

// ProcessingMethod identifies which extraction method produced a result.
type ProcessingMethod string

const (
	MethodAIVision    ProcessingMethod = "AI_VISION"
	MethodExcelParser ProcessingMethod = "EXCEL_PARSER"
	MethodOCRText     ProcessingMethod = "OCR_TEXT"
)

// MethodTag names an extraction strategy as seen by the validator.
type MethodTag string

const (
	TagAIVision         MethodTag = "AI_VISION"
	TagStructuredParser MethodTag = "STRUCTURED_PARSER"
	TagOCRPatterns      MethodTag = "OCR_PATTERNS"
)

// Static method weights used when reconciling disagreeing extractions.
// Machine-generated structured data is almost as trusted as AI vision;
// raw OCR pattern matching is the weakest source.
const (
	WeightAIVision         = 1.0
	WeightStructuredParser = 0.9
	WeightOCRPatterns      = 0.7
)

// Validation flags attached to an extraction result.
const (
	FlagMissingVATNumber        = "MISSING_VAT_NUMBER"
	FlagNonIrishVAT             = "NON_IRISH_VAT"
	FlagNoVATFound              = "NO_VAT_FOUND"
	FlagMissingDate             = "MISSING_DATE"
	FlagHeuristicClassification = "HEURISTIC_CLASSIFICATION"
)

// RecommendedAction is the triage outcome surfaced to reviewers.
type RecommendedAction string

const (
	ActionAccept RecommendedAction = "ACCEPT"
	ActionReview RecommendedAction = "REVIEW"
	ActionReject RecommendedAction = "REJECT"
)

// ExtractedVATData is the common result shape every extraction method
// produces. Amounts are always non-negative; parses that come back
// negative or non-finite are discarded at the parsing boundary.
type ExtractedVATData struct {
	SalesVAT    []decimal.Decimal `json:"salesVAT"`
	PurchaseVAT []decimal.Decimal `json:"purchaseVAT"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	VATRate     float64           `json:"vatRate"`
	Confidence  float64           `json:"confidence"`

	ExtractedText []string     `json:"extractedText,omitempty"`
	DocumentType  DocumentType `json:"documentType"`

	VATNumber    *string    `json:"vatNumber,omitempty"`
	InvoiceDate  *time.Time `json:"invoiceDate,omitempty"`
	SupplierName *string    `json:"supplierName,omitempty"`

	ProcessingMethod ProcessingMethod `json:"processingMethod"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`

	ValidationFlags   []string `json:"validationFlags,omitempty"`
	IrishVATCompliant bool     `json:"irishVATCompliant"`
}

// TotalVAT sums the sales and purchase VAT arrays.
func (d *ExtractedVATData) TotalVAT() decimal.Decimal {
	total := decimal.Zero
	for _, v := range d.SalesVAT {
		total = total.Add(v)
	}
	for _, v := range d.PurchaseVAT {
		total = total.Add(v)
	}
	return total
}

// HasVATAmounts reports whether any VAT figure was extracted.
func (d *ExtractedVATData) HasVATAmounts() bool {
	return len(d.SalesVAT) > 0 || len(d.PurchaseVAT) > 0
}

// HasFlag reports whether the given validation flag is present.
func (d *ExtractedVATData) HasFlag(flag string) bool {
	for _, f := range d.ValidationFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// DeriveIrishCompliance sets IrishVATCompliant from the VAT number and the
// extracted amounts. This is the only place the field may be assigned:
// a recognised Irish VAT number must be present and at least one VAT
// amount extracted.
func (d *ExtractedVATData) DeriveIrishCompliance() {
	hasIrishNumber := d.VATNumber != nil && strings.HasPrefix(*d.VATNumber, "IE")
	d.IrishVATCompliant = hasIrishNumber && d.HasVATAmounts()
}

// MethodResult wraps a single method's run for consensus scoring.
type MethodResult struct {
	Method         MethodTag         `json:"method"`
	Result         *ExtractedVATData `json:"result"`
	Confidence     float64           `json:"confidence"`
	Weight         float64           `json:"weight"`
	ProcessingTime time.Duration     `json:"processingTime"`
	Quality        int               `json:"quality"`
}

// ValidationSummary describes how the attempted methods agreed.
type ValidationSummary struct {
	TotalMethods      int               `json:"totalMethods"`
	AgreeingMethods   int               `json:"agreeingMethods"`
	ConflictingFields []string          `json:"conflictingFields"`
	RecommendedAction RecommendedAction `json:"recommendedAction"`
}

// ValidationResult is the final consensus artifact produced by the
// multi-method validator.
type ValidationResult struct {
	FinalResult       *ExtractedVATData `json:"finalResult"`
	Confidence        float64           `json:"confidence"`
	ConsensusReached  bool              `json:"consensusReached"`
	AgreementScore    float64           `json:"agreementScore"`
	MethodResults     []MethodResult    `json:"methodResults"`
	ValidationSummary ValidationSummary `json:"validationSummary"`
}

// Document is the raw upload handed to the validator.
type Document struct {
	Data     []byte
	MimeType string
	FileName string
	Category string // SALES or PURCHASE flavoured hint from the caller
}

// IsPurchaseCategory reports whether the caller-supplied category hint
// routes amounts to the purchase side.
func (doc *Document) IsPurchaseCategory() bool {
	return strings.Contains(strings.ToUpper(doc.Category), "PURCHASE")
}

// IsSalesCategory reports whether the hint routes amounts to sales.
func (doc *Document) IsSalesCategory() bool {
	return strings.Contains(strings.ToUpper(doc.Category), "SALES")
}
