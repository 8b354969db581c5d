// pkg/locale/decimal.go
package locale

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses Brazilian or dot-decimal monetary text.
// "1.234,56", "R$ 1.234,56", "1234,56" and "1234.56" all yield 1234.56.
// Empty text, a lone "-" or anything that does not parse is reported as missing.
func ParseDecimal(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" || s == "-" {
		return 0, false
	}
	s = normalizeSeparators(stripCurrency(s))
	return parseNumber(s)
}

// ParseDecimalOrZero is the revenue report variant of ParseDecimal: after
// separator handling only digits, '.' and '-' are kept and anything that does
// not parse becomes 0.
func ParseDecimalOrZero(text string) float64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}
	s = keepNumeric(normalizeSeparators(stripCurrency(s)))
	if s == "" || s == "." || s == "-" {
		return 0
	}
	v, ok := parseNumber(s)
	if !ok {
		return 0
	}
	return v
}

// ParsePercent converts "1,50%" into 0.015. Empty or invalid input yields 0,
// never missing.
func ParsePercent(text string) float64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = keepNumeric(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	v, _ := d.Div(decimal.NewFromInt(100)).Float64()
	return v
}

// CleanNumericID removes the ".0" suffix spreadsheets add to integer
// identifiers stored as numbers. Other text is returned trimmed.
func CleanNumericID(text string) string {
	s := strings.TrimSpace(text)
	return strings.TrimSuffix(s, ".0")
}

// ParseInteger parses an identifier-like integer ("123", "123.0").
func ParseInteger(text string) (int64, bool) {
	s := CleanNumericID(text)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// BlankDash turns a cell holding only a dash into an empty string.
func BlankDash(text string) string {
	s := strings.TrimSpace(text)
	if s == "-" {
		return ""
	}
	return s
}

func stripCurrency(s string) string {
	s = strings.ReplaceAll(s, "R$", "")
	return strings.ReplaceAll(s, " ", "")
}

// normalizeSeparators applies the Brazilian convention: with both '.' and ','
// present the dots are thousands separators; a lone ',' is the decimal point.
func normalizeSeparators(s string) string {
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

func keepNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseNumber(s string) (float64, bool) {
	if d, err := decimal.NewFromString(s); err == nil {
		v, _ := d.Float64()
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
