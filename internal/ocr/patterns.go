package ocr

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payvat/vat-extraction-service/internal/amounts"
	"github.com/payvat/vat-extraction-service/internal/models"
)

// vatPattern is one entry of the fixed extraction pattern table.
type vatPattern struct {
	name       string
	regex      *regexp.Regexp
	confidence float64
	rateBand   bool // Irish rate-band marker (STD23/RED13.5/TOU9/MIN)
}

const amountGroup = `([0-9][0-9,]*(?:\.[0-9]{1,2})?)`

// patternTable is ordered by descending confidence. The extraction
// marker is emitted by upstream tax-report generators and is treated as
// near-certain; the bare amount-near-VAT proximity pattern is the
// weakest signal in the table.
var patternTable = []vatPattern{
	{
		name:       "extraction_marker",
		regex:      regexp.MustCompile(`(?i)VAT_EXTRACTION_MARKER[\s:,]*€?\s*` + amountGroup),
		confidence: 0.99,
	},
	{
		name:       "rate_band_standard",
		regex:      regexp.MustCompile(`(?i)\bSTD23\b[\s:,-]*€?\s*` + amountGroup),
		confidence: 0.95,
		rateBand:   true,
	},
	{
		name:       "rate_band_reduced",
		regex:      regexp.MustCompile(`(?i)\bRED13\.5\b[\s:,-]*€?\s*` + amountGroup),
		confidence: 0.95,
		rateBand:   true,
	},
	{
		name:       "rate_band_tourism",
		regex:      regexp.MustCompile(`(?i)\bTOU9\b[\s:,-]*€?\s*` + amountGroup),
		confidence: 0.95,
		rateBand:   true,
	},
	{
		name:       "rate_band_min",
		regex:      regexp.MustCompile(`(?i)\bMIN\b[\s:]+€?\s*` + amountGroup),
		confidence: 0.90,
		rateBand:   true,
	},
	{
		name:       "vat_with_rate",
		regex:      regexp.MustCompile(`(?i)\bVAT\s*\(\s*[0-9]{1,2}(?:\.[0-9]{1,2})?\s*%\s*\)\s*:?\s*€?\s*` + amountGroup),
		confidence: 0.90,
	},
	{
		name:       "vat_labelled",
		regex:      regexp.MustCompile(`(?i)\bVAT\s*:\s*€?\s*` + amountGroup),
		confidence: 0.85,
	},
	{
		name:       "total_vat_phrase",
		regex:      regexp.MustCompile(`(?i)\bTotal[A-Za-z\s]{0,30}VAT\b[^0-9€\n]{0,10}€?\s*` + amountGroup),
		confidence: 0.80,
	},
	{
		name:       "amount_near_vat",
		regex:      regexp.MustCompile(`(?i)€\s*` + amountGroup + `[^\n]{0,50}\bVAT\b`),
		confidence: 0.70,
	},
}

// match is one pattern hit with its surrounding context retained for
// sales/purchase classification.
type match struct {
	pattern vatPattern
	amount  decimal.Decimal
	context string
}

var (
	salesCues    = []string{"invoice", "sales", "charged"}
	purchaseCues = []string{"purchase", "expense", "paid"}
)

// dedupTolerance: two matches within one cent are assumed to be the same
// real figure matched by different patterns.
var dedupTolerance = decimal.NewFromFloat(0.01)

// smallAmountCutoff drives the fallback sales/purchase heuristic.
var smallAmountCutoff = decimal.NewFromInt(100)

// PatternExtractor applies the Irish VAT pattern table to plain text
// obtained from an external OCR or text-layer extraction step.
type PatternExtractor struct{}

// NewPatternExtractor creates a pattern-based extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract runs every pattern over the text and classifies the surviving
// amounts. Returns nil when no pattern produces a usable amount.
func (e *PatternExtractor) Extract(text, fileName, category string) *models.ExtractedVATData {
	start := time.Now()

	collected := collectMatches(text)
	if len(collected) == 0 {
		return nil
	}

	retained := deduplicate(collected)
	if len(retained) == 0 {
		return nil
	}

	result := &models.ExtractedVATData{
		ProcessingMethod: models.MethodOCRText,
		DocumentType:     amounts.DetectDocumentType(text, fileName),
		VATRate:          amounts.DominantVATRate(text),
		ExtractedText:    strings.Split(text, "\n"),
	}

	usedHeuristic := false
	for _, m := range retained {
		side, heuristic := classify(m, category)
		if heuristic {
			usedHeuristic = true
		}
		if side == "purchase" {
			result.PurchaseVAT = append(result.PurchaseVAT, m.amount)
		} else {
			result.SalesVAT = append(result.SalesVAT, m.amount)
		}
	}

	result.Confidence = overallConfidence(retained, text)
	fillDocumentFields(result, text)

	if usedHeuristic {
		result.ValidationFlags = append(result.ValidationFlags, models.FlagHeuristicClassification)
	}
	result.DeriveIrishCompliance()
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result
}

// collectMatches applies all patterns globally, capturing the amount and
// ±50 characters of context around each hit.
func collectMatches(text string) []match {
	var out []match
	for _, p := range patternTable {
		for _, loc := range p.regex.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 {
				continue
			}
			amount, ok := amounts.Parse(text[loc[2]:loc[3]])
			if !ok || amount.IsZero() {
				continue
			}
			ctxStart := loc[0] - 50
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := loc[1] + 50
			if ctxEnd > len(text) {
				ctxEnd = len(text)
			}
			out = append(out, match{
				pattern: p,
				amount:  amount,
				context: strings.ToLower(text[ctxStart:ctxEnd]),
			})
		}
	}
	return out
}

// deduplicate keeps the highest-confidence match per real-world figure:
// candidates sorted by descending pattern confidence, a candidate is
// dropped when its amount is within one cent of an accepted amount.
func deduplicate(candidates []match) []match {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].pattern.confidence > candidates[j].pattern.confidence
	})

	var accepted []match
	for _, cand := range candidates {
		duplicate := false
		for _, kept := range accepted {
			if cand.amount.Sub(kept.amount).Abs().LessThanOrEqual(dedupTolerance) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			accepted = append(accepted, cand)
		}
	}
	return accepted
}

// classify assigns a match to sales or purchase VAT. Context cues win;
// the category hint is the fallback; failing both, small amounts are
// guessed to be incidental purchase expenses. The guess is reported so
// the caller can flag the result for human review.
func classify(m match, category string) (side string, heuristic bool) {
	for _, cue := range salesCues {
		if strings.Contains(m.context, cue) {
			return "sales", false
		}
	}
	for _, cue := range purchaseCues {
		if strings.Contains(m.context, cue) {
			return "purchase", false
		}
	}

	upper := strings.ToUpper(category)
	if strings.Contains(upper, "PURCHASE") {
		return "purchase", false
	}
	if strings.Contains(upper, "SALES") {
		return "sales", false
	}

	if m.amount.LessThan(smallAmountCutoff) {
		return "purchase", true
	}
	return "sales", true
}

// overallConfidence averages the retained pattern confidences and
// applies corroboration boosts, capped at 0.95.
func overallConfidence(retained []match, text string) float64 {
	sum := 0.0
	rateBand := false
	for _, m := range retained {
		sum += m.pattern.confidence
		if m.pattern.rateBand {
			rateBand = true
		}
	}
	confidence := sum / float64(len(retained))

	if len(retained) >= 2 {
		confidence += 0.10
	}
	if rateBand {
		confidence += 0.15
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "total") || strings.Contains(lower, "subtotal") ||
		strings.Contains(lower, "invoice") {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

var totalRegex = regexp.MustCompile(`(?i)\b(?:grand\s+)?total[^0-9€\n]{0,15}€?\s*` + amountGroup)

// fillDocumentFields extracts the gross total, VAT number, supplier
// name and invoice date using the shared heuristics, attaching the
// matching validation flags.
func fillDocumentFields(result *models.ExtractedVATData, text string) {
	for _, m := range totalRegex.FindAllStringSubmatch(text, -1) {
		if total, ok := amounts.Parse(m[1]); ok && total.GreaterThan(result.TotalAmount) {
			result.TotalAmount = total
		}
	}

	if vatNumber := amounts.FindVATNumber(text); vatNumber != "" {
		result.VATNumber = &vatNumber
	} else {
		result.ValidationFlags = append(result.ValidationFlags, models.FlagMissingVATNumber)
	}

	if name := amounts.FindBusinessName(strings.Split(text, "\n")); name != "" {
		result.SupplierName = &name
	}

	if date := amounts.FindDate(text); date != nil {
		result.InvoiceDate = date
	} else {
		result.ValidationFlags = append(result.ValidationFlags, models.FlagMissingDate)
	}
}
