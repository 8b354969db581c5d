// pkg/cleaner/operations.go
package cleaner

import (
	"strconv"
	"strings"
	"time"

	"github.com/dbvcapital/data-ingress/pkg/locale"
	"github.com/dbvcapital/data-ingress/pkg/model"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

// Cleaning reasons recorded with each coercion
const (
	ReasonUnparsableDecimal = "unparsable_decimal"
	ReasonUnparsableDate    = "unparsable_date"
	ReasonUnparsableInteger = "unparsable_integer"
	ReasonDefaultedToZero   = "defaulted_to_zero"
)

// naTokens are the cell texts read as missing, whatever the column
var naTokens = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {},
	"nan": {}, "null": {},
}

// isNA reports whether a raw cell holds a missing marker
func isNA(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return true
	}
	_, ok := naTokens[s]
	return ok
}

// cellResult is one cleaned value; date holds the parsed date for derived columns
type cellResult struct {
	value interface{}
	date  time.Time
	dated bool
	op    *model.CleaningOperation
}

// cleanValue applies a column's transform to one raw cell. A nil value is missing.
func cleanValue(raw string, spec *schema.ColumnSpec, ctx model.CleaningContext) cellResult {
	if isNA(raw) {
		if spec.Transform.NeverMissing() {
			return cellResult{value: 0.0}
		}
		return cellResult{}
	}

	switch spec.Transform {
	case schema.TransformDecimal:
		if v, ok := locale.ParseDecimal(raw); ok {
			return cellResult{value: v}
		}
		if strings.TrimSpace(raw) == "-" {
			return cellResult{}
		}
		return cellResult{op: coercion(ctx, raw, "", spec.Transform, ReasonUnparsableDecimal)}

	case schema.TransformDecimalOrZero:
		v := locale.ParseDecimalOrZero(raw)
		if _, ok := locale.ParseDecimal(raw); !ok && strings.TrimSpace(raw) != "-" {
			return cellResult{value: v, op: coercion(ctx, raw, formatFloat(v), spec.Transform, ReasonDefaultedToZero)}
		}
		return cellResult{value: v}

	case schema.TransformPercent:
		v := locale.ParsePercent(raw)
		if !percentParsable(raw) {
			return cellResult{value: v, op: coercion(ctx, raw, formatFloat(v), spec.Transform, ReasonDefaultedToZero)}
		}
		return cellResult{value: v}

	case schema.TransformDate, schema.TransformDateDayFirst, schema.TransformLegacyDate:
		t, ok := parseDate(spec.Transform, raw)
		if ok {
			return cellResult{value: locale.FormatDate(t), date: t, dated: true}
		}
		if strings.TrimSpace(raw) == "-" {
			return cellResult{}
		}
		return cellResult{op: coercion(ctx, raw, "", spec.Transform, ReasonUnparsableDate)}

	case schema.TransformNumericID:
		return textResult(locale.CleanNumericID(raw))

	case schema.TransformBlankDash:
		return textResult(locale.BlankDash(raw))

	case schema.TransformInteger:
		return cleanInteger(raw, spec, ctx)
	}

	// No transform: numeric columns still need a number
	switch spec.Type {
	case model.TypeReal:
		if v, ok := locale.ParseDecimal(raw); ok {
			return cellResult{value: v}
		}
		return cellResult{op: coercion(ctx, raw, "", spec.Transform, ReasonUnparsableDecimal)}
	case model.TypeInteger:
		return cleanInteger(raw, spec, ctx)
	}
	return cellResult{value: raw}
}

func cleanInteger(raw string, spec *schema.ColumnSpec, ctx model.CleaningContext) cellResult {
	if v, ok := locale.ParseInteger(raw); ok {
		return cellResult{value: v}
	}
	return cellResult{op: coercion(ctx, raw, "", spec.Transform, ReasonUnparsableInteger)}
}

func textResult(s string) cellResult {
	if s == "" {
		return cellResult{}
	}
	return cellResult{value: s}
}

func parseDate(kind schema.TransformKind, raw string) (time.Time, bool) {
	switch kind {
	case schema.TransformDateDayFirst:
		return locale.ParseDateDayFirst(raw)
	case schema.TransformLegacyDate:
		return locale.ParseLegacyDate(raw)
	}
	return locale.ParseDate(raw)
}

// percentParsable reports whether the percent text holds a number. A lone
// dash is a blank cell, not a coercion.
func percentParsable(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "-" {
		return true
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func coercion(ctx model.CleaningContext, original, newValue string, kind schema.TransformKind, reason string) *model.CleaningOperation {
	op := string(kind)
	if op == "" {
		op = "type_check"
	}
	return &model.CleaningOperation{
		TableName:         ctx.TableName,
		ColumnName:        ctx.ColumnName,
		RowNumber:         ctx.RowNumber,
		OriginalValue:     original,
		NewValue:          newValue,
		CleaningOperation: op,
		CleaningReason:    reason,
		CleanedAt:         time.Now(),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
