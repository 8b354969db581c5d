// pkg/converter/converter.go
package converter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/model"
)

// SurrogateIDColumn is the auto-increment key added to tables that declare one
const SurrogateIDColumn = "id"

// TypeConverter handles mapping of column types to SQL and of cell values to driver arguments
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Whether missing text is written as NULL instead of ""
	EmptyTextAsNull bool
	// Whether numeric columns accept unparsable text as NULL instead of failing
	LenientNumeric bool
	// Page cache budget for bulk loads, in KiB
	CacheSizeKiB int
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		EmptyTextAsNull: false,
		LenientNumeric:  true,
		CacheSizeKiB:    64 * 1024,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.L().Named("type-converter")
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// GenerateColumnDefinitions creates the column definitions of a table, the
// surrogate key first when the schema declares one
func (c *TypeConverter) GenerateColumnDefinitions(ts *model.TableSchema, dialect Dialect) ([]string, error) {
	definitions := make([]string, 0, len(ts.Columns)+1)

	if ts.SurrogateID {
		definitions = append(definitions, fmt.Sprintf("%s %s",
			quoteIdentifier(SurrogateIDColumn), dialect.surrogateKey()))
	}

	for _, col := range ts.Columns {
		sqlType, err := c.MapColumnType(col.Type, dialect)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		definitions = append(definitions, fmt.Sprintf("%s %s", quoteIdentifier(col.Name), sqlType))
	}

	return definitions, nil
}

// CreateTableSQL returns an idempotent CREATE TABLE statement. qualifiedName
// must already be quoted.
func (c *TypeConverter) CreateTableSQL(ts *model.TableSchema, dialect Dialect, qualifiedName string) (string, error) {
	defs, err := c.GenerateColumnDefinitions(ts, dialect)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		qualifiedName, strings.Join(defs, ",\n    ")), nil
}

// CreateIndexSQL returns one idempotent CREATE INDEX statement per declared index
func (c *TypeConverter) CreateIndexSQL(ts *model.TableSchema) []string {
	stmts := make([]string, 0, len(ts.Indexes))
	for _, idx := range ts.Indexes {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quoteIdentifier(idx.Name), quoteIdentifier(ts.Table), quoteIdentifier(idx.Column)))
	}
	return stmts
}

// InsertSQL returns a parameterized INSERT over the given columns
func (c *TypeConverter) InsertSQL(qualifiedName string, columns []string, dialect Dialect) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// QuoteIdentifier quotes a table or column name for SQLite
func QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// quoteIdentifier quotes and escapes an identifier, keeping its case
func quoteIdentifier(name string) string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
}
