// pkg/model/cleaning.go
package model

import (
	"time"
)

// CleaningOperation represents a single value coercion applied during a load
type CleaningOperation struct {
	TableName         string    // Target table
	ColumnName        string    // Column that was cleaned
	RowNumber         int       // 1-based data row in the source file
	OriginalValue     string    // Raw text as read from the source
	NewValue          string    // Value written after cleaning ("" means missing)
	CleaningOperation string    // Transform that produced the change (e.g. "decimal")
	CleaningReason    string    // Reason for cleaning (e.g. "unparsable_decimal")
	CleanedAt         time.Time // When the coercion happened
}

// CleaningContext contains information needed for cleaning a value
type CleaningContext struct {
	TableName  string
	ColumnName string
	RowNumber  int
}
