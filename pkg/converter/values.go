// pkg/converter/values.go
package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dbvcapital/data-ingress/pkg/model"
)

// ConvertValue converts a cleaned cell to a driver argument for a column of
// the given type. Missing numbers become NULL, missing text becomes "".
func (c *TypeConverter) ConvertValue(value interface{}, colType model.ColumnType, colName string) (interface{}, error) {
	switch colType {
	case model.TypeText:
		if isNull(value) {
			if c.config.EmptyTextAsNull {
				return nil, nil
			}
			return "", nil
		}
		return c.convertToText(value)

	case model.TypeReal, model.TypeInteger:
		if isNull(value) {
			return nil, nil
		}
		v, err := c.convertToNumeric(value, colType)
		if err != nil {
			if c.config.LenientNumeric {
				return nil, nil
			}
			return nil, fmt.Errorf("column %s: %w", colName, err)
		}
		return v, nil
	}

	return nil, fmt.Errorf("column %s: unknown column type %q", colName, colType)
}

// ConvertRow converts a cleaned row in place against the schema's column order
func (c *TypeConverter) ConvertRow(row []interface{}, columns []model.Column) ([]interface{}, error) {
	if len(row) != len(columns) {
		return nil, fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
	}
	out := make([]interface{}, len(row))
	for i, col := range columns {
		v, err := c.ConvertValue(row[i], col.Type, col.Name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// isNull determines if a value should be treated as NULL
func isNull(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case float64:
		return math.IsNaN(v)
	}
	return false
}

// convertToText converts a value to text/string
func (c *TypeConverter) convertToText(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format("2006-01-02"), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// convertToNumeric converts a value to float64 or int64
func (c *TypeConverter) convertToNumeric(value interface{}, colType model.ColumnType) (interface{}, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		if colType == model.TypeInteger {
			return v, nil
		}
		f = float64(v)
	case int:
		if colType == model.TypeInteger {
			return int64(v), nil
		}
		f = float64(v)
	case string:
		s := strings.TrimSpace(v)
		if colType == model.TypeInteger {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to %s", v, colType)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("unsupported type for numeric conversion: %T", value)
	}

	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("non-finite value for %s column", colType)
	}
	if colType == model.TypeInteger {
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("cannot store %v in integer column", f)
		}
		return int64(f), nil
	}
	return f, nil
}
