package tabular

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// tableFormat identifies the detected input layout.
type tableFormat string

const (
	formatCSV      tableFormat = "csv"
	formatTSV      tableFormat = "tsv"
	formatKeyValue tableFormat = "key-value"
	formatJSON     tableFormat = "json"
)

// detectFormat picks the input layout. Detection order is CSV, TSV,
// key-value, JSON; a body that opens with a JSON bracket short-circuits
// to JSON since its commas and colons would otherwise satisfy the
// earlier checks.
func detectFormat(content, fileName string) (tableFormat, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return formatJSON, true
	}
	if strings.Contains(content, ",") || strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return formatCSV, true
	}
	if strings.Contains(content, "\t") {
		return formatTSV, true
	}
	if strings.Contains(content, ":") && strings.Contains(content, "\n") {
		return formatKeyValue, true
	}
	return "", false
}

// toRows parses the content into a row/column matrix according to the
// detected format.
func toRows(content string, format tableFormat) ([][]string, error) {
	switch format {
	case formatCSV:
		return readDelimited(content, ',')
	case formatTSV:
		return readDelimited(content, '\t')
	case formatKeyValue:
		return readKeyValue(content), nil
	case formatJSON:
		return readJSON(content)
	default:
		return nil, fmt.Errorf("unsupported table format %q", format)
	}
}

// readDelimited parses CSV/TSV content. LazyQuotes plus a variable
// field count keeps RFC4180-style quoted fields with embedded commas
// working while tolerating ragged machine exports.
func readDelimited(content string, comma rune) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("delimited parse failed: %w", err)
	}
	return rows, nil
}

// readKeyValue turns "key: value" lines into two-column rows.
func readKeyValue(content string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			rows = append(rows, []string{line})
			continue
		}
		rows = append(rows, []string{strings.TrimSpace(key), strings.TrimSpace(value)})
	}
	return rows
}

// readJSON flattens a JSON object or array of objects into rows, one
// row per leaf key/value pair.
func readJSON(content string) ([][]string, error) {
	var root interface{}
	if err := json.Unmarshal([]byte(content), &root); err != nil {
		return nil, fmt.Errorf("json parse failed: %w", err)
	}

	var rows [][]string
	flattenJSON("", root, &rows)
	return rows, nil
}

func flattenJSON(prefix string, node interface{}, rows *[][]string) {
	switch value := node.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			name := key
			if prefix != "" {
				name = prefix + "." + key
			}
			flattenJSON(name, value[key], rows)
		}
	case []interface{}:
		for i, child := range value {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), child, rows)
		}
	case nil:
		// skip nulls
	default:
		*rows = append(*rows, []string{prefix, fmt.Sprintf("%v", value)})
	}
}

// flatten joins the matrix into one text blob for marker detection and
// pattern fallback.
func flatten(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, " "))
		b.WriteString("\n")
	}
	return b.String()
}
