// pkg/model/metadata.go
package model

import "strings"

// ColumnType is the semantic type of a target column
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeReal    ColumnType = "real"
	TypeInteger ColumnType = "integer"
)

// Valid reports whether the type is one of the supported semantic types
func (t ColumnType) Valid() bool {
	switch t {
	case TypeText, TypeReal, TypeInteger:
		return true
	}
	return false
}

// TableSchema contains the structure information for a target table
type TableSchema struct {
	Table       string   // Table name
	Columns     []Column // Column definitions, in table order
	Indexes     []Index  // Secondary indexes
	SurrogateID bool     // Whether an auto-increment id column precedes the data columns
}

// Column represents metadata about a target column
type Column struct {
	Name string
	Type ColumnType
}

// Index is a single-column secondary index
type Index struct {
	Name   string
	Column string
}

// ColumnNames returns the data column names in table order
func (ts *TableSchema) ColumnNames() []string {
	names := make([]string, len(ts.Columns))
	for i, col := range ts.Columns {
		names[i] = col.Name
	}
	return names
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (ts *TableSchema) GetColumnByName(name string) *Column {
	normalizedName := strings.ToLower(name)
	for i, col := range ts.Columns {
		if strings.ToLower(col.Name) == normalizedName {
			return &ts.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether the schema declares the column
func (ts *TableSchema) HasColumn(name string) bool {
	return ts.GetColumnByName(name) != nil
}
