// pkg/schema/registry.go
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/dbvcapital/data-ingress/pkg/mapper"
	"github.com/dbvcapital/data-ingress/pkg/model"
	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var registryYAML []byte

// ErrUnknownDocumentType is returned for document types missing from the registry
var ErrUnknownDocumentType = errors.New("unknown document type")

// ColumnSpec declares one target column and where its value comes from
type ColumnSpec struct {
	Name        string           `yaml:"name"`
	Type        model.ColumnType `yaml:"type"`
	Header      string           `yaml:"header"`
	Aliases     []string         `yaml:"aliases"`
	Transform   TransformKind    `yaml:"transform"`
	Required    bool             `yaml:"required"`
	DerivedFrom string           `yaml:"derived_from"`
}

// Derived reports whether the column is computed from another column
func (c ColumnSpec) Derived() bool {
	return c.DerivedFrom != ""
}

// IndexSpec declares a single-column index
type IndexSpec struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`
}

// Definition is everything the loader needs to know about one document type
type Definition struct {
	Name             string       `yaml:"name"`
	Table            string       `yaml:"table"`
	Source           string       `yaml:"source"`
	Output           string       `yaml:"output"`
	Workbook         string       `yaml:"workbook"`
	SurrogateID      bool         `yaml:"surrogate_id"`
	PreserveDatabase bool         `yaml:"preserve_database"`
	Columns          []ColumnSpec `yaml:"columns"`
	Indexes          []IndexSpec  `yaml:"indexes"`
}

// TableSchema returns the relational shape of the target table
func (d *Definition) TableSchema() *model.TableSchema {
	ts := &model.TableSchema{
		Table:       d.Table,
		SurrogateID: d.SurrogateID,
		Columns:     make([]model.Column, len(d.Columns)),
		Indexes:     make([]model.Index, len(d.Indexes)),
	}
	for i, c := range d.Columns {
		ts.Columns[i] = model.Column{Name: c.Name, Type: c.Type}
	}
	for i, idx := range d.Indexes {
		ts.Indexes[i] = model.Index{Name: idx.Name, Column: idx.Column}
	}
	return ts
}

// ColumnMap returns the header lookup of the source columns (derived columns excluded)
func (d *Definition) ColumnMap() *mapper.ColumnMap {
	var pairs []mapper.Pair
	for _, c := range d.Columns {
		if c.Derived() {
			continue
		}
		pairs = append(pairs, mapper.Pair{Header: c.Header, Column: c.Name})
		for _, alias := range c.Aliases {
			pairs = append(pairs, mapper.Pair{Header: alias, Column: c.Name})
		}
	}
	return mapper.New(pairs)
}

// Column returns the spec of a column, or nil
func (d *Definition) Column(name string) *ColumnSpec {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

// Registry holds the immutable set of document types in run order
type Registry struct {
	definitions []*Definition
	byName      map[string]*Definition
}

type registryFile struct {
	DocumentTypes []*Definition `yaml:"document_types"`
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry embedded in the binary. A registry that does
// not validate is a build defect and panics.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(registryYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded schema registry is invalid: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Parse decodes and validates a registry document
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	r := &Registry{
		definitions: file.DocumentTypes,
		byName:      make(map[string]*Definition, len(file.DocumentTypes)),
	}
	for _, d := range r.definitions {
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate document type %q", d.Name)
		}
		r.byName[d.Name] = d
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup finds a document type by name
func (r *Registry) Lookup(name string) (*Definition, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocumentType, name)
	}
	return d, nil
}

// Ordered returns the document types in run order
func (r *Registry) Ordered() []*Definition {
	return append([]*Definition(nil), r.definitions...)
}

// Validate checks the internal consistency of every definition
func (r *Registry) Validate() error {
	if len(r.definitions) == 0 {
		return errors.New("registry has no document types")
	}
	for _, d := range r.definitions {
		if err := d.validate(); err != nil {
			return fmt.Errorf("document type %q: %w", d.Name, err)
		}
	}
	return nil
}

func (d *Definition) validate() error {
	if d.Name == "" || d.Table == "" {
		return errors.New("name and table are required")
	}
	if d.Source == "" || d.Output == "" {
		return errors.New("source and output file names are required")
	}
	if len(d.Columns) == 0 {
		return errors.New("no columns declared")
	}

	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" {
			return errors.New("column without name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true

		if !c.Type.Valid() {
			return fmt.Errorf("column %q has invalid type %q", c.Name, c.Type)
		}
		if !c.Transform.Valid() {
			return fmt.Errorf("column %q has unknown transform %q", c.Name, c.Transform)
		}
		if c.Derived() {
			if c.Transform != TransformMonth {
				return fmt.Errorf("derived column %q must use the month transform", c.Name)
			}
			src := d.Column(c.DerivedFrom)
			if src == nil || src.Derived() || !src.Transform.IsDate() {
				return fmt.Errorf("derived column %q needs a date source column", c.Name)
			}
			continue
		}
		if c.Header == "" {
			return fmt.Errorf("column %q has no header", c.Name)
		}
		if c.Transform == TransformMonth {
			return fmt.Errorf("column %q uses the month transform without a source", c.Name)
		}
		if c.Type == model.TypeText && (c.Transform == TransformDecimal ||
			c.Transform == TransformDecimalOrZero || c.Transform == TransformPercent) {
			return fmt.Errorf("numeric transform on text column %q", c.Name)
		}
	}

	indexNames := make(map[string]bool, len(d.Indexes))
	for _, idx := range d.Indexes {
		if indexNames[idx.Name] {
			return fmt.Errorf("duplicate index %q", idx.Name)
		}
		indexNames[idx.Name] = true
		if !seen[idx.Column] {
			return fmt.Errorf("index %q references unknown column %q", idx.Name, idx.Column)
		}
	}
	return nil
}
