package amounts

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse converts a raw money string into a decimal amount. Currency
// symbols and thousands separators are stripped. Negative and
// non-finite values are rejected: VAT figures are always >= 0 and a
// bad parse must never reach a result array.
func Parse(raw string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "€", "")
	cleaned = strings.ReplaceAll(cleaned, "EUR", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, false
	}
	if f, _ := d.Float64(); math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseFloat parses like Parse but rejects NaN/Inf coming in as text too.
func ParseFloat(raw string) (float64, bool) {
	d, ok := Parse(raw)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// numericRegex matches a plain number with optional thousands separators.
var numericRegex = regexp.MustCompile(`^[0-9][0-9,]*\.?[0-9]*$`)

// IsNumeric reports whether a cell is purely a number (after trimming
// currency decoration).
func IsNumeric(s string) bool {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "€")
	cleaned = strings.TrimSpace(cleaned)
	return numericRegex.MatchString(cleaned)
}

// LargestIn returns the largest parseable amount among the given cells,
// used as the gross-total fallback when no total column is mapped.
func LargestIn(cells []string) (decimal.Decimal, bool) {
	best := decimal.Zero
	found := false
	for _, cell := range cells {
		if d, ok := Parse(cell); ok && d.GreaterThan(best) {
			best = d
			found = true
		}
	}
	return best, found
}
