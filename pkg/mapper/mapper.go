// pkg/mapper/mapper.go
package mapper

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNoMappedColumns means none of the declared headers appear in the source.
// It usually signals a wrong file, separator or encoding.
var ErrNoMappedColumns = errors.New("no mapped columns")

var spaceRun = regexp.MustCompile(`\s+`)

// Pair binds a spreadsheet header to a schema column
type Pair struct {
	Header string
	Column string
}

// ColumnMap is a static header -> column lookup. Several headers may feed the
// same column (spelling variants); columns keep the order of first declaration.
type ColumnMap struct {
	columns []string
	headers [][]string
	byKey   map[string]int
}

// New builds a ColumnMap from ordered pairs
func New(pairs []Pair) *ColumnMap {
	m := &ColumnMap{byKey: make(map[string]int, len(pairs))}
	position := make(map[string]int)
	for _, p := range pairs {
		idx, ok := position[p.Column]
		if !ok {
			idx = len(m.columns)
			position[p.Column] = idx
			m.columns = append(m.columns, p.Column)
			m.headers = append(m.headers, nil)
		}
		m.headers[idx] = append(m.headers[idx], p.Header)
		key := Canonical(p.Header)
		if _, dup := m.byKey[key]; !dup {
			m.byKey[key] = idx
		}
	}
	return m
}

// Columns returns every column the map can produce, in map order
func (m *ColumnMap) Columns() []string {
	return append([]string(nil), m.columns...)
}

// Canonical is the matching key of a header: trimmed, inner whitespace runs
// collapsed to one space, NFC composed.
func Canonical(header string) string {
	s := strings.TrimSpace(header)
	s = spaceRun.ReplaceAllString(s, " ")
	return norm.NFC.String(s)
}

// Plan aligns a source header row with the map
type Plan struct {
	columns []string
	sources []int
	missing []string
}

// Plan matches the source header. Unmapped headers are dropped, declared
// headers that are absent are skipped, and output columns follow map order
// regardless of the source order. When a header appears twice the first
// occurrence is used.
func (m *ColumnMap) Plan(header []string) (*Plan, error) {
	source := make([]int, len(m.columns))
	for i := range source {
		source[i] = -1
	}

	for pos, h := range header {
		idx, ok := m.byKey[Canonical(h)]
		if !ok || source[idx] >= 0 {
			continue
		}
		source[idx] = pos
	}

	p := &Plan{}
	for idx, col := range m.columns {
		if source[idx] < 0 {
			p.missing = append(p.missing, m.headers[idx][0])
			continue
		}
		p.columns = append(p.columns, col)
		p.sources = append(p.sources, source[idx])
	}

	if len(p.columns) == 0 {
		return nil, ErrNoMappedColumns
	}
	return p, nil
}

// Columns returns the produced columns in output order
func (p *Plan) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Missing returns the declared headers not found in the source
func (p *Plan) Missing() []string {
	return append([]string(nil), p.missing...)
}

// Width is the number of produced columns
func (p *Plan) Width() int {
	return len(p.columns)
}

// Apply projects a raw row onto the plan. Fields beyond the end of a short
// row come out empty.
func (p *Plan) Apply(row []string) []string {
	out := make([]string, len(p.sources))
	for i, src := range p.sources {
		if src < len(row) {
			out[i] = row[src]
		}
	}
	return out
}
