// pkg/nps/columns.go
package nps

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dbvcapital/data-ingress/pkg/locale"
)

var (
	separatorReplacer = strings.NewReplacer(
		" ", "_", "-", "_", ".", "_", ",", "_", "/", "_",
		"(", "", ")", "",
	)

	// Applied in order, after separators became underscores
	columnRenames = []struct{ from, to string }{
		{"Unnamed", "Col"},
		{"Id_do_Usuario", "Id_Usuario"},
		{"Survey_ID", "SurveyID"},
		{"Customer_ID", "CustomerID"},
		{"Codigo_Assessor", "CodigoAssessor"},
	}
)

// SanitizeColumn turns a survey export header into a column name made of
// letters, digits and single underscores. index names columns whose label
// sanitizes to nothing.
func SanitizeColumn(name string, index int) string {
	s := separatorReplacer.Replace(name)
	for _, r := range columnRenames {
		s = strings.ReplaceAll(s, r.from, r.to)
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")

	switch {
	case s == "":
		return fmt.Sprintf("col_%d", index)
	case unicode.IsDigit([]rune(s)[0]):
		return "col_" + s
	}
	return s
}

// SanitizeColumns sanitizes a header row and deduplicates the result
func SanitizeColumns(header []string) []string {
	names := make([]string, len(header))
	for i, label := range header {
		names[i] = SanitizeColumn(label, i)
	}
	return locale.DedupeIdentifiers(names)
}

// mangleDuplicates renames repeated labels of one sheet to "label.1",
// "label.2", ... so that columns stay distinct when sheets are combined
func mangleDuplicates(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, label := range header {
		if n, ok := seen[label]; ok {
			seen[label] = n + 1
			out[i] = fmt.Sprintf("%s.%d", label, n+1)
			continue
		}
		seen[label] = 0
		out[i] = label
	}
	return out
}
