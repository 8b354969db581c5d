// pkg/converter/mapping.go
package converter

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/model"
)

// Dialect selects the SQL flavour of generated statements
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	}
	return "unknown"
}

func (d Dialect) surrogateKey() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// MapColumnType converts a semantic column type to the dialect's SQL type
func (c *TypeConverter) MapColumnType(t model.ColumnType, dialect Dialect) (string, error) {
	switch dialect {
	case DialectSQLite:
		switch t {
		case model.TypeText:
			return "TEXT", nil
		case model.TypeReal:
			return "REAL", nil
		case model.TypeInteger:
			return "INTEGER", nil
		}
	case DialectPostgres:
		switch t {
		case model.TypeText:
			return "TEXT", nil
		case model.TypeReal:
			return "DOUBLE PRECISION", nil
		case model.TypeInteger:
			return "BIGINT", nil
		}
	}

	c.logger.Warn("Unknown column type encountered",
		zap.String("columnType", string(t)),
		zap.Stringer("dialect", dialect))
	return "TEXT", fmt.Errorf("unknown column type: %s (mapped to TEXT as fallback)", t)
}

// ColumnTypeFromDeclared maps a declared SQLite column type back to its
// semantic type using SQLite's affinity rules
func ColumnTypeFromDeclared(declared string) model.ColumnType {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "INT"):
		return model.TypeInteger
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return model.TypeText
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return model.TypeReal
	}
	return model.TypeText
}
