package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

type sqlite struct{}

var sqliteTypes = map[string]sqltype.Class{
	"integer":                  sqltype.BigInt,
	"int":                      sqltype.BigInt,
	"bigint":                   sqltype.BigInt,
	"int8":                     sqltype.BigInt,
	"mediumint":                sqltype.Integer,
	"int4":                     sqltype.Integer,
	"smallint":                 sqltype.SmallInt,
	"int2":                     sqltype.SmallInt,
	"tinyint":                  sqltype.TinyInt,
	"boolean":                  sqltype.Boolean,
	"bool":                     sqltype.Boolean,
	"bit":                      sqltype.Bit,
	"real":                     sqltype.Double,
	"double":                   sqltype.Double,
	"double precision":         sqltype.Double,
	"float":                    sqltype.Float,
	"numeric":                  sqltype.Numeric,
	"decimal":                  sqltype.Decimal,
	"char":                     sqltype.Char,
	"character":                sqltype.Char,
	"nchar":                    sqltype.Char,
	"varchar":                  sqltype.Varchar,
	"nvarchar":                 sqltype.Varchar,
	"varying character":        sqltype.Varchar,
	"character varying":        sqltype.Varchar,
	"text":                     sqltype.Varchar,
	"clob":                     sqltype.Clob,
	"blob":                     sqltype.Blob,
	"binary":                   sqltype.Binary,
	"varbinary":                sqltype.Varbinary,
	"date":                     sqltype.Date,
	"time":                     sqltype.Time,
	"timetz":                   sqltype.TimeWithTimezone,
	"datetime":                 sqltype.Timestamp,
	"timestamp":                sqltype.Timestamp,
	"timestamptz":              sqltype.TimestampWithTimezone,
	"timestamp with time zone": sqltype.TimestampWithTimezone,
}

func (sqlite) Name() string { return SQLite }

func (sqlite) unqualifiedReferences() {}

func (sqlite) QuoteIdent(name string) string { return quoteWith(name, `"`) }

func (s sqlite) QualifiedName(schema, table string) string { return qualify(s, schema, table) }

func (sqlite) Placeholder(int) string { return "?" }

// Classify maps declared column types. Unknown declarations fall back to
// SQLite's column affinity rules.
func (sqlite) Classify(nativeType string) sqltype.Class {
	t := baseType(nativeType)
	if c, ok := sqliteTypes[t]; ok {
		return c
	}
	switch {
	case t == "":
		return sqltype.Other
	case strings.Contains(t, "int"):
		return sqltype.BigInt
	case strings.Contains(t, "char"), strings.Contains(t, "clob"), strings.Contains(t, "text"):
		return sqltype.Varchar
	case strings.Contains(t, "blob"):
		return sqltype.Blob
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"):
		return sqltype.Double
	default:
		return sqltype.Other
	}
}

// ColumnType picks declarations whose affinity keeps the value's storage
// class and which Classify maps back to the same class.
func (sqlite) ColumnType(col model.Column) string {
	switch col.Type {
	case sqltype.BigInt, sqltype.Integer:
		return "INTEGER"
	case sqltype.SmallInt:
		return "SMALLINT"
	case sqltype.TinyInt:
		return "TINYINT"
	case sqltype.Boolean, sqltype.Bit:
		return "BOOLEAN"
	case sqltype.Double, sqltype.Real:
		return "REAL"
	case sqltype.Float:
		return "FLOAT"
	case sqltype.Decimal, sqltype.Numeric:
		return decimalType("DECIMAL", col.Precision, col.Scale)
	case sqltype.Char:
		return sized("CHAR", col.Length)
	case sqltype.Varchar:
		return sized("VARCHAR", col.Length)
	case sqltype.Clob, sqltype.LongVarchar:
		return "TEXT"
	case sqltype.Binary, sqltype.Blob, sqltype.Varbinary, sqltype.LongVarbinary:
		return "BLOB"
	case sqltype.Date:
		return "DATE"
	case sqltype.Time:
		return "TIME"
	case sqltype.TimeWithTimezone:
		return "TIMETZ"
	case sqltype.Timestamp:
		return "TIMESTAMP"
	case sqltype.TimestampWithTimezone:
		return "TIMESTAMPTZ"
	default:
		return ""
	}
}

func (s sqlite) BuildCreateTable(table model.Table, hints Hints) (string, error) {
	return buildCreateTable(s, table, hints, func(col model.Column) (string, bool) {
		def := s.ColumnType(col)
		// AUTOINCREMENT is only legal on a single INTEGER PRIMARY KEY column.
		if col.AutoIncrement && def == "INTEGER" && table.PrimaryKey != nil &&
			len(table.PrimaryKey.Columns) == 1 && table.PrimaryKey.Columns[0] == col.Name {
			return "INTEGER PRIMARY KEY AUTOINCREMENT", true
		}
		return def, false
	})
}

func (s sqlite) BuildSelect(schema, table string, columns []string) string {
	return buildSelect(s, schema, table, columns)
}

func (s sqlite) BuildInsert(schema, table string, columns []string) string {
	return buildInsert(s, schema, table, columns)
}

func (s sqlite) BuildCount(schema, table string) string {
	return buildCount(s, schema, table)
}

func sqliteSchema(schema string) string {
	if schema == "" {
		return "main"
	}
	return schema
}

func (s sqlite) ExistsTable(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var count int
	query := fmt.Sprintf("SELECT count(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?",
		s.QuoteIdent(sqliteSchema(schema)))
	if err := q.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	return count > 0, nil
}

// SetSchema only verifies the database is attached; SQLite has no notion of
// a default schema beyond main.
func (sqlite) SetSchema(ctx context.Context, q Querier, schema string) error {
	if schema == "" || schema == "main" {
		return nil
	}
	var count int
	if err := q.QueryRowContext(ctx, "SELECT count(*) FROM pragma_database_list WHERE name = ?", schema).Scan(&count); err != nil {
		return fmt.Errorf("failed to list attached databases: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("database %s is not attached", schema)
	}
	return nil
}

func (s sqlite) Tables(ctx context.Context, q Querier, schema string) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%%'
		ORDER BY name`, s.QuoteIdent(sqliteSchema(schema)))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return collect(rows, scanString)
}

func (s sqlite) Columns(ctx context.Context, q Querier, schema, table string) ([]model.Column, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?, ?)
		ORDER BY cid`, table, sqliteSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}

	cols, err := collect(rows, func(rows *sql.Rows) (model.Column, error) {
		var (
			col          model.Column
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.TypeName, &notNull, &defaultValue, &pk); err != nil {
			return col, fmt.Errorf("failed to read column metadata: %w", err)
		}
		col.Type = s.Classify(col.TypeName)
		col.Nullable = notNull == 0 && pk == 0
		col.PrimaryKey = pk > 0
		col.Length, col.Precision, col.Scale = typeArguments(col.TypeName, col.Type)
		if defaultValue.Valid {
			value := defaultValue.String
			col.DefaultValue = &value
		}
		return col, nil
	})
	if err != nil {
		return nil, err
	}

	if len(cols) > 0 {
		auto, err := s.hasAutoincrement(ctx, q, schema, table)
		if err != nil {
			return nil, err
		}
		if auto {
			for i := range cols {
				if cols[i].PrimaryKey && cols[i].Type == sqltype.BigInt {
					cols[i].AutoIncrement = true
				}
			}
		}
	}
	return cols, nil
}

func (s sqlite) hasAutoincrement(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var ddl sql.NullString
	query := fmt.Sprintf("SELECT sql FROM %s.sqlite_master WHERE type = 'table' AND name = ?",
		s.QuoteIdent(sqliteSchema(schema)))
	if err := q.QueryRowContext(ctx, query, table).Scan(&ddl); err != nil {
		return false, fmt.Errorf("failed to read table definition: %w", err)
	}
	return strings.Contains(strings.ToUpper(ddl.String), "AUTOINCREMENT"), nil
}

// typeArguments reads "(n)" or "(p,s)" off a declared type.
func typeArguments(declared string, class sqltype.Class) (length, precision, scale int) {
	open := strings.Index(declared, "(")
	end := strings.LastIndex(declared, ")")
	if open < 0 || end < open {
		return 0, 0, 0
	}
	var a, b int
	n, _ := fmt.Sscanf(strings.ReplaceAll(declared[open+1:end], " ", ""), "%d,%d", &a, &b)
	if n == 0 {
		return 0, 0, 0
	}
	if class.IsExactNumeric() {
		return 0, a, b
	}
	return a, 0, 0
}

func (sqlite) PrimaryKey(ctx context.Context, q Querier, schema, table string) (*model.PrimaryKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM pragma_table_info(?, ?)
		WHERE pk > 0
		ORDER BY pk`, table, sqliteSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key metadata: %w", err)
	}

	cols, err := collect(rows, scanString)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key metadata: %w", err)
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return &model.PrimaryKey{Columns: cols}, nil
}

// ForeignKeys synthesizes constraint names; SQLite does not report them.
func (sqlite) ForeignKeys(ctx context.Context, q Querier, schema, table string) ([]model.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, "table", "from", "to", on_delete, on_update
		FROM pragma_foreign_key_list(?, ?)
		ORDER BY id, seq`, table, sqliteSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign key metadata: %w", err)
	}

	cols, err := collect(rows, func(rows *sql.Rows) (fkColumn, error) {
		var (
			c  fkColumn
			id int
			to sql.NullString
		)
		if err := rows.Scan(&id, &c.referencedTable, &c.column, &to, &c.onDelete, &c.onUpdate); err != nil {
			return c, err
		}
		c.name = fmt.Sprintf("fk_%s_%d", table, id)
		c.referencedColumn = to.String
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key metadata: %w", err)
	}
	return groupForeignKeys(cols), nil
}

func (sqlite) Uniques(ctx context.Context, q Querier, schema, table string) ([]model.Unique, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT il.name, ii.name
		FROM pragma_index_list(?, ?) AS il
		JOIN pragma_index_info(il.name, ?) AS ii
		WHERE il."unique" = 1 AND il.origin = 'u'
		ORDER BY il.name, ii.seqno`, table, sqliteSchema(schema), sqliteSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to query unique constraints: %w", err)
	}

	keys, err := collect(rows, scanKeyColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read unique constraints: %w", err)
	}
	uniques := groupUniques(keys)
	// Auto-generated index names are not valid constraint names elsewhere.
	for i := range uniques {
		if strings.HasPrefix(uniques[i].Name, "sqlite_autoindex_") {
			uniques[i].Name = ""
		}
	}
	return uniques, nil
}

// Checks is empty: SQLite keeps CHECK constraints only inside the table DDL.
func (sqlite) Checks(context.Context, Querier, string, string) ([]model.Check, error) {
	return nil, nil
}
