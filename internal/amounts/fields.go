package amounts

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/payvat/vat-extraction-service/internal/models"
)

// vatNumberRegex matches Irish VAT registration numbers: IE prefix,
// seven digits, one or two letters. The prefix may be separated from
// the digits by whitespace in scanned documents.
var vatNumberRegex = regexp.MustCompile(`(?i)\bIE\s*([0-9]{7}[A-Z]{1,2})\b`)

// FindVATNumber extracts the first Irish-format VAT number from text,
// normalising the prefix to uppercase IE with no internal whitespace.
func FindVATNumber(text string) string {
	match := vatNumberRegex.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return "IE" + strings.ToUpper(match[1])
}

var dateFormats = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"02/01/06",
	"2/1/2006",
	"2006/01/02",
}

var dateRegex = regexp.MustCompile(`\b([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{2,4}|[0-9]{4}-[0-9]{2}-[0-9]{2})\b`)

// FindDate extracts the first recognisable invoice date from text.
// Day/month/year ordering is assumed for slash and dash dates.
func FindDate(text string) *time.Time {
	candidate := dateRegex.FindString(text)
	if candidate == "" {
		return nil
	}
	normalised := strings.ReplaceAll(candidate, "-", "/")
	for _, format := range dateFormats {
		attempt := candidate
		if strings.Contains(format, "/") {
			attempt = normalised
		}
		if t, err := time.Parse(format, attempt); err == nil {
			return &t
		}
	}
	return nil
}

// FindBusinessName returns the first line that plausibly names a
// business: long enough, not purely numeric, not a currency amount and
// not a document boilerplate keyword.
func FindBusinessName(lines []string) string {
	for _, line := range lines {
		candidate := strings.TrimSpace(line)
		if len(candidate) < 4 || len(candidate) > 80 {
			continue
		}
		if IsNumeric(candidate) || strings.Contains(candidate, "€") {
			continue
		}
		lower := strings.ToLower(candidate)
		if strings.HasPrefix(lower, "invoice") || strings.HasPrefix(lower, "receipt") ||
			strings.HasPrefix(lower, "total") || strings.HasPrefix(lower, "vat") ||
			strings.HasPrefix(lower, "date") || strings.HasPrefix(lower, "page") {
			continue
		}
		// Must contain at least a few letters to be a name.
		letters := 0
		for _, r := range candidate {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				letters++
			}
		}
		if letters < 3 {
			continue
		}
		return candidate
	}
	return ""
}

var percentRegex = regexp.MustCompile(`([0-9]{1,2}(?:\.[0-9]{1,2})?)\s*%`)

// DominantVATRate finds the most frequently occurring percentage in the
// plausible Irish VAT band (5-30%). Defaults to the 23% standard rate
// when nothing usable appears.
func DominantVATRate(text string) float64 {
	counts := make(map[float64]int)
	for _, match := range percentRegex.FindAllStringSubmatch(text, -1) {
		rate, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if rate < 5 || rate > 30 {
			continue
		}
		counts[rate]++
	}
	if len(counts) == 0 {
		return 23
	}

	rates := make([]float64, 0, len(counts))
	for rate := range counts {
		rates = append(rates, rate)
	}
	sort.Float64s(rates)

	best, bestCount := 23.0, 0
	for _, rate := range rates {
		if counts[rate] > bestCount {
			best, bestCount = rate, counts[rate]
		}
	}
	return best
}

// DetectDocumentType derives the document type from keywords in the
// text and filename. "credit" flips an invoice to the purchase side.
func DetectDocumentType(text, fileName string) models.DocumentType {
	haystack := strings.ToLower(text + " " + fileName)

	switch {
	case strings.Contains(haystack, "invoice"):
		if strings.Contains(haystack, "credit") {
			return models.DocTypePurchaseInvoice
		}
		return models.DocTypeSalesInvoice
	case strings.Contains(haystack, "receipt"):
		return models.DocTypeSalesReceipt
	case strings.Contains(haystack, "statement"), strings.Contains(haystack, "report"):
		return models.DocTypePurchaseReceipt
	default:
		return models.DocTypeOther
	}
}

// CategoryDocumentType maps a caller category hint onto a document type
// for machine-generated tax reports, where the content itself carries
// no invoice/receipt wording.
func CategoryDocumentType(category string) models.DocumentType {
	if strings.Contains(strings.ToUpper(category), "PURCHASE") {
		return models.DocTypePurchaseReceipt
	}
	return models.DocTypeSalesReceipt
}
