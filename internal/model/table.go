package model

import (
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

const (
	KindTable = "TABLE"
	KindView  = "VIEW"
)

type Column struct {
	Name          string        `yaml:"name"`
	TypeName      string        `yaml:"type_name"`
	Type          sqltype.Class `yaml:"type"`
	Length        int           `yaml:"length,omitempty"`
	Precision     int           `yaml:"precision,omitempty"`
	Scale         int           `yaml:"scale,omitempty"`
	PrimaryKey    bool          `yaml:"primary_key,omitempty"`
	Nullable      bool          `yaml:"nullable"`
	AutoIncrement bool          `yaml:"auto_increment,omitempty"`
	DefaultValue  *string       `yaml:"default,omitempty"`
}

type PrimaryKey struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

type ForeignKey struct {
	Name              string   `yaml:"name"`
	Columns           []string `yaml:"columns"`
	ReferencedSchema  string   `yaml:"referenced_schema,omitempty"`
	ReferencedTable   string   `yaml:"referenced_table"`
	ReferencedColumns []string `yaml:"referenced_columns"`
	OnDelete          string   `yaml:"on_delete,omitempty"`
	OnUpdate          string   `yaml:"on_update,omitempty"`
}

type Unique struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

type Check struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// Dependency points at another table or view this table needs to exist first.
type Dependency struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// Table is the reverse-engineered description of one table. It is built once
// by the extractor and treated as read-only afterwards.
type Table struct {
	Name         string       `yaml:"name"`
	Schema       string       `yaml:"schema,omitempty"`
	Kind         string       `yaml:"kind"`
	Columns      []Column     `yaml:"columns"`
	PrimaryKey   *PrimaryKey  `yaml:"primary_key,omitempty"`
	ForeignKeys  []ForeignKey `yaml:"foreign_keys,omitempty"`
	Uniques      []Unique     `yaml:"uniques,omitempty"`
	Checks       []Check      `yaml:"checks,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty"`
	Location     string       `yaml:"location,omitempty"`
}

func (t Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column returns the named column or nil.
func (t Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

func (t Table) DependencyNames() []string {
	names := make([]string, len(t.Dependencies))
	for i, dep := range t.Dependencies {
		names[i] = dep.Name
	}
	return names
}

// WithLocation returns a copy tagged with the given provenance.
func (t Table) WithLocation(location string) Table {
	t.Location = location
	return t
}

// DependenciesFromForeignKeys derives one edge per referenced table, in first
// reference order. Self references are not ordering constraints and are left out.
func DependenciesFromForeignKeys(name string, fks []ForeignKey) []Dependency {
	seen := make(map[string]bool)
	var deps []Dependency
	for _, fk := range fks {
		if fk.ReferencedTable == name || seen[fk.ReferencedTable] {
			continue
		}
		seen[fk.ReferencedTable] = true
		deps = append(deps, Dependency{Name: fk.ReferencedTable, Kind: KindTable})
	}
	return deps
}

// Names returns the table names in slice order.
func Names(tables []Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}
