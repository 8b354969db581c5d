// pkg/locale/identifier.go
package locale

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultIdentifier replaces names that normalize to nothing
const DefaultIdentifier = "tabela"

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	identifierStrip = regexp.MustCompile(`[^0-9a-z_]`)

	accentReplacer = strings.NewReplacer(
		"á", "a", "à", "a", "ã", "a", "â", "a",
		"é", "e", "ê", "e",
		"í", "i",
		"ó", "o", "ô", "o", "õ", "o",
		"ú", "u",
		"ç", "c",
	)
)

// NormalizeIdentifier turns a sheet or column label into a lowercase
// ASCII identifier: "Saúde" -> "saude", "Captação Mensal" -> "captacao_mensal".
func NormalizeIdentifier(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = whitespaceRun.ReplaceAllString(s, "_")
	s = accentReplacer.Replace(s)
	s = identifierStrip.ReplaceAllString(s, "")
	if s == "" {
		return DefaultIdentifier
	}
	return s
}

// NormalizeColumns normalizes every label and deduplicates the results.
func NormalizeColumns(labels []string) []string {
	names := make([]string, len(labels))
	for i, label := range labels {
		names[i] = NormalizeIdentifier(label)
	}
	return DedupeIdentifiers(names)
}

// DedupeIdentifiers suffixes repeated names with _2, _3, ... keeping the
// first occurrence unchanged.
func DedupeIdentifiers(names []string) []string {
	seen := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		seen[name]++
		if n := seen[name]; n > 1 {
			out[i] = fmt.Sprintf("%s_%d", name, n)
			continue
		}
		out[i] = name
	}
	return out
}
