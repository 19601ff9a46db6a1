package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Hints tune the generated DDL.
type Hints struct {
	PreserveDefaults bool `yaml:"preserve_defaults" toml:"preserve_defaults"`
	PreserveChecks   bool `yaml:"preserve_checks" toml:"preserve_checks"`
	SkipForeignKeys  bool `yaml:"skip_foreign_keys" toml:"skip_foreign_keys"`
}

// Catalog reads table metadata. Every method fully drains its result set
// before returning so callers may chain calls on a single connection.
type Catalog interface {
	Tables(ctx context.Context, q Querier, schema string) ([]string, error)
	Columns(ctx context.Context, q Querier, schema, table string) ([]model.Column, error)
	PrimaryKey(ctx context.Context, q Querier, schema, table string) (*model.PrimaryKey, error)
	ForeignKeys(ctx context.Context, q Querier, schema, table string) ([]model.ForeignKey, error)
	Uniques(ctx context.Context, q Querier, schema, table string) ([]model.Unique, error)
	Checks(ctx context.Context, q Querier, schema, table string) ([]model.Check, error)
}

type Dialect interface {
	Catalog

	Name() string
	QuoteIdent(name string) string
	QualifiedName(schema, table string) string
	// Placeholder returns the bind marker for the 1-based parameter i.
	Placeholder(i int) string

	ExistsTable(ctx context.Context, q Querier, schema, table string) (bool, error)
	SetSchema(ctx context.Context, q Querier, schema string) error

	BuildCreateTable(table model.Table, hints Hints) (string, error)
	BuildSelect(schema, table string, columns []string) string
	BuildInsert(schema, table string, columns []string) string
	BuildCount(schema, table string) string

	Classify(nativeType string) sqltype.Class
	ColumnType(col model.Column) string
}

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// Normalize maps driver and product aliases onto a dialect name.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "postgres", "postgresql", "pg", "pgx", "pq":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	default:
		return name
	}
}

func ForName(name string) (Dialect, error) {
	switch Normalize(name) {
	case Postgres:
		return postgres{}, nil
	case MySQL:
		return mysql{}, nil
	case SQLite:
		return sqlite{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

func quoteWith(name, quote string) string {
	return quote + strings.ReplaceAll(name, quote, quote+quote) + quote
}

func qualify(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func quoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func buildSelect(d Dialect, schema, table string, columns []string) string {
	list := "*"
	if len(columns) > 0 {
		list = quoteList(d, columns)
	}
	return fmt.Sprintf("SELECT %s FROM %s", list, d.QualifiedName(schema, table))
}

func buildInsert(d Dialect, schema, table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QualifiedName(schema, table),
		quoteList(d, columns),
		strings.Join(marks, ", "),
	)
}

func buildCount(d Dialect, schema, table string) string {
	return "SELECT count(*) FROM " + d.QualifiedName(schema, table)
}

// columnDefinition renders the type and column level clauses for one column.
// inline reports that the column already carries the table's primary key.
type columnDefinition func(col model.Column) (def string, inline bool)

func buildCreateTable(d Dialect, table model.Table, hints Hints, define columnDefinition) (string, error) {
	if len(table.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", table.Name)
	}

	var defs []string
	inlinePK := false
	for _, col := range table.Columns {
		def, inline := define(col)
		inlinePK = inlinePK || inline

		line := d.QuoteIdent(col.Name)
		if def != "" {
			line += " " + def
		}
		if !col.Nullable && !inline {
			line += " NOT NULL"
		}
		if hints.PreserveDefaults && col.DefaultValue != nil && !col.AutoIncrement {
			line += " DEFAULT " + *col.DefaultValue
		}
		defs = append(defs, line)
	}

	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) > 0 && !inlinePK {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(d, table.PrimaryKey.Columns)))
	}

	for _, u := range table.Uniques {
		defs = append(defs, constraintPrefix(d, u.Name)+fmt.Sprintf("UNIQUE (%s)", quoteList(d, u.Columns)))
	}

	if hints.PreserveChecks {
		for _, c := range table.Checks {
			defs = append(defs, constraintPrefix(d, c.Name)+"CHECK "+checkExpression(c.Expression))
		}
	}

	if !hints.SkipForeignKeys {
		for _, fk := range table.ForeignKeys {
			clause := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				quoteList(d, fk.Columns),
				referenceName(d, fk),
				quoteList(d, fk.ReferencedColumns),
			)
			if rule := referentialAction(fk.OnDelete); rule != "" {
				clause += " ON DELETE " + rule
			}
			if rule := referentialAction(fk.OnUpdate); rule != "" {
				clause += " ON UPDATE " + rule
			}
			defs = append(defs, constraintPrefix(d, fk.Name)+clause)
		}
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)",
		d.QualifiedName(table.Schema, table.Name),
		strings.Join(defs, ",\n  "),
	), nil
}

// unqualifiedReferences is implemented by dialects whose REFERENCES clause
// cannot carry a schema name.
type unqualifiedReferences interface {
	unqualifiedReferences()
}

func referenceName(d Dialect, fk model.ForeignKey) string {
	if _, ok := d.(unqualifiedReferences); ok {
		return d.QuoteIdent(fk.ReferencedTable)
	}
	return d.QualifiedName(fk.ReferencedSchema, fk.ReferencedTable)
}

func constraintPrefix(d Dialect, name string) string {
	if name == "" {
		return ""
	}
	return "CONSTRAINT " + d.QuoteIdent(name) + " "
}

func checkExpression(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(strings.ToUpper(expr), "CHECK ") {
		expr = strings.TrimSpace(expr[len("CHECK "):])
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		return expr
	}
	return "(" + expr + ")"
}

func referentialAction(rule string) string {
	rule = strings.ToUpper(strings.TrimSpace(rule))
	switch rule {
	case "", "NO ACTION":
		return ""
	case "CASCADE", "RESTRICT", "SET NULL", "SET DEFAULT":
		return rule
	default:
		return ""
	}
}

// baseType strips length arguments and collapses whitespace:
// "character varying(255)" becomes "character varying".
func baseType(native string) string {
	t := strings.ToLower(strings.TrimSpace(native))
	if open := strings.Index(t, "("); open >= 0 {
		if end := strings.Index(t[open:], ")"); end >= 0 {
			t = t[:open] + t[open+end+1:]
		} else {
			t = t[:open]
		}
	}
	return strings.Join(strings.Fields(t), " ")
}

func sized(name string, n int) string {
	if n <= 0 {
		return name
	}
	return fmt.Sprintf("%s(%d)", name, n)
}

func decimalType(name string, precision, scale int) string {
	if precision <= 0 {
		return name
	}
	return fmt.Sprintf("%s(%d,%d)", name, precision, scale)
}

func collect[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanString(rows *sql.Rows) (string, error) {
	var s string
	err := rows.Scan(&s)
	return s, err
}

type keyColumn struct {
	constraint string
	column     string
}

func scanKeyColumn(rows *sql.Rows) (keyColumn, error) {
	var k keyColumn
	err := rows.Scan(&k.constraint, &k.column)
	return k, err
}

// groupUniques folds (constraint, column) rows, ordered by constraint and
// position, into unique constraints.
func groupUniques(keys []keyColumn) []model.Unique {
	var out []model.Unique
	for _, k := range keys {
		if n := len(out); n > 0 && out[n-1].Name == k.constraint {
			out[n-1].Columns = append(out[n-1].Columns, k.column)
			continue
		}
		out = append(out, model.Unique{Name: k.constraint, Columns: []string{k.column}})
	}
	return out
}

type fkColumn struct {
	name             string
	column           string
	referencedSchema string
	referencedTable  string
	referencedColumn string
	onDelete         string
	onUpdate         string
}

func groupForeignKeys(cols []fkColumn) []model.ForeignKey {
	var out []model.ForeignKey
	for _, c := range cols {
		if n := len(out); n > 0 && out[n-1].Name == c.name {
			out[n-1].Columns = append(out[n-1].Columns, c.column)
			out[n-1].ReferencedColumns = append(out[n-1].ReferencedColumns, c.referencedColumn)
			continue
		}
		out = append(out, model.ForeignKey{
			Name:              c.name,
			Columns:           []string{c.column},
			ReferencedSchema:  c.referencedSchema,
			ReferencedTable:   c.referencedTable,
			ReferencedColumns: []string{c.referencedColumn},
			OnDelete:          c.onDelete,
			OnUpdate:          c.onUpdate,
		})
	}
	return out
}
