// pkg/converter/optimizations.go
package converter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/model"
)

// BulkLoadPragmas returns the per-connection SQLite settings applied before a load
func (c *TypeConverter) BulkLoadPragmas() []string {
	pragmas := []string{"PRAGMA temp_store = MEMORY"}
	if c.config.CacheSizeKiB > 0 {
		// Negative cache_size is a budget in KiB rather than pages
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = -%d", c.config.CacheSizeKiB))
	}
	return pragmas
}

// AnalyzeTableForOptimization returns the statements that refresh the query
// planner statistics of a freshly loaded table
func (c *TypeConverter) AnalyzeTableForOptimization(ts *model.TableSchema) []string {
	if len(ts.Indexes) == 0 {
		c.logger.Debug("Skipping ANALYZE for table without indexes",
			zap.String("table", ts.Table))
		return nil
	}
	return []string{fmt.Sprintf("ANALYZE %s", quoteIdentifier(ts.Table))}
}
