// pkg/schema/transform.go
package schema

// TransformKind names the per-column parsing rule applied during a load
type TransformKind string

const (
	TransformNone          TransformKind = ""
	TransformDecimal       TransformKind = "decimal"         // Brazilian/dot decimal, missing on failure
	TransformDecimalOrZero TransformKind = "decimal_or_zero" // revenue money columns, 0 on failure
	TransformPercent       TransformKind = "percent"         // "1,50%" -> 0.015, 0 on failure
	TransformDate          TransformKind = "date"            // ISO first, month-first fallback
	TransformDateDayFirst  TransformKind = "date_day_first"  // ISO first, day-first fallback
	TransformLegacyDate    TransformKind = "legacy_date"     // revenue report layouts
	TransformNumericID     TransformKind = "numeric_id"      // strip spreadsheet ".0"
	TransformInteger       TransformKind = "integer"
	TransformBlankDash     TransformKind = "blank_dash" // "-" -> ""
	TransformMonth         TransformKind = "month"      // derived YYYY-MM of another date column
)

// Valid reports whether the kind is known
func (k TransformKind) Valid() bool {
	switch k {
	case TransformNone, TransformDecimal, TransformDecimalOrZero, TransformPercent,
		TransformDate, TransformDateDayFirst, TransformLegacyDate,
		TransformNumericID, TransformInteger, TransformBlankDash, TransformMonth:
		return true
	}
	return false
}

// NeverMissing reports whether the transform defaults to zero instead of
// producing a missing value
func (k TransformKind) NeverMissing() bool {
	return k == TransformPercent || k == TransformDecimalOrZero
}

// IsDate reports whether the transform yields a date
func (k TransformKind) IsDate() bool {
	switch k {
	case TransformDate, TransformDateDayFirst, TransformLegacyDate:
		return true
	}
	return false
}
