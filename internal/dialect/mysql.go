package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

type mysql struct{}

var mysqlTypes = map[string]sqltype.Class{
	"bigint":     sqltype.BigInt,
	"int":        sqltype.Integer,
	"integer":    sqltype.Integer,
	"mediumint":  sqltype.Integer,
	"smallint":   sqltype.SmallInt,
	"year":       sqltype.SmallInt,
	"tinyint":    sqltype.TinyInt,
	"bit":        sqltype.Bit,
	"bool":       sqltype.Boolean,
	"boolean":    sqltype.Boolean,
	"decimal":    sqltype.Decimal,
	"numeric":    sqltype.Numeric,
	"float":      sqltype.Real,
	"double":     sqltype.Double,
	"real":       sqltype.Double,
	"char":       sqltype.Char,
	"varchar":    sqltype.Varchar,
	"enum":       sqltype.Varchar,
	"set":        sqltype.Varchar,
	"tinytext":   sqltype.Clob,
	"text":       sqltype.Clob,
	"mediumtext": sqltype.LongVarchar,
	"longtext":   sqltype.LongVarchar,
	"binary":     sqltype.Binary,
	"varbinary":  sqltype.Varbinary,
	"tinyblob":   sqltype.Blob,
	"blob":       sqltype.Blob,
	"mediumblob": sqltype.LongVarbinary,
	"longblob":   sqltype.LongVarbinary,
	"date":       sqltype.Date,
	"datetime":   sqltype.Timestamp,
	"timestamp":  sqltype.Timestamp,
	"time":       sqltype.Time,
}

// Unsigned integers are widened so the value always fits the accessor.
var mysqlUnsigned = map[sqltype.Class]sqltype.Class{
	sqltype.BigInt:   sqltype.Decimal,
	sqltype.Integer:  sqltype.BigInt,
	sqltype.SmallInt: sqltype.Integer,
	sqltype.TinyInt:  sqltype.SmallInt,
}

func (mysql) Name() string { return MySQL }

func (mysql) QuoteIdent(name string) string { return quoteWith(name, "`") }

func (m mysql) QualifiedName(schema, table string) string { return qualify(m, schema, table) }

func (mysql) Placeholder(int) string { return "?" }

// Classify accepts both information_schema column types ("int unsigned",
// "tinyint(1)") and driver type names ("UNSIGNED INT").
func (mysql) Classify(nativeType string) sqltype.Class {
	t := baseType(nativeType)
	unsigned := false
	for _, word := range []string{"unsigned", "zerofill"} {
		if strings.Contains(t, word) {
			unsigned = unsigned || word == "unsigned"
			t = strings.Join(strings.Fields(strings.ReplaceAll(t, word, "")), " ")
		}
	}

	c, ok := mysqlTypes[t]
	if !ok {
		return sqltype.Other
	}
	if unsigned {
		if widened, ok := mysqlUnsigned[c]; ok {
			return widened
		}
	}
	return c
}

func (mysql) ColumnType(col model.Column) string {
	var t string
	switch col.Type {
	case sqltype.BigInt:
		t = "BIGINT"
	case sqltype.Integer:
		t = "INT"
	case sqltype.SmallInt:
		t = "SMALLINT"
	case sqltype.TinyInt:
		t = "TINYINT"
	case sqltype.Boolean, sqltype.Bit:
		t = "BOOLEAN"
	case sqltype.Double, sqltype.Float:
		t = "DOUBLE"
	case sqltype.Real:
		t = "FLOAT"
	case sqltype.Decimal, sqltype.Numeric:
		t = decimalType("DECIMAL", col.Precision, col.Scale)
		if col.Precision <= 0 {
			t = "DECIMAL(65,30)"
		}
	case sqltype.Char:
		t = sized("CHAR", col.Length)
	case sqltype.Varchar:
		if col.Length > 0 && col.Length <= 16383 {
			t = sized("VARCHAR", col.Length)
		} else if col.PrimaryKey {
			t = "VARCHAR(255)"
		} else {
			t = "LONGTEXT"
		}
	case sqltype.Clob:
		t = "TEXT"
	case sqltype.LongVarchar:
		t = "LONGTEXT"
	case sqltype.Binary:
		t = sized("BINARY", col.Length)
	case sqltype.Varbinary:
		if col.Length > 0 && col.Length <= 65535 {
			t = sized("VARBINARY", col.Length)
		} else {
			t = "LONGBLOB"
		}
	case sqltype.Blob:
		t = "BLOB"
	case sqltype.LongVarbinary:
		t = "LONGBLOB"
	case sqltype.Date:
		t = "DATE"
	case sqltype.Time:
		t = "TIME(6)"
	case sqltype.TimeWithTimezone:
		// MySQL has no zoned time of day; the offset is kept in text form.
		t = "VARCHAR(32)"
	case sqltype.Timestamp, sqltype.TimestampWithTimezone:
		t = "DATETIME(6)"
	case sqltype.Array:
		t = "JSON"
	default:
		t = "LONGTEXT"
	}

	if col.AutoIncrement && col.Type.IsInteger() {
		t += " AUTO_INCREMENT"
	}
	return t
}

func (m mysql) BuildCreateTable(table model.Table, hints Hints) (string, error) {
	return buildCreateTable(m, table, hints, func(col model.Column) (string, bool) {
		return m.ColumnType(col), false
	})
}

func (m mysql) BuildSelect(schema, table string, columns []string) string {
	return buildSelect(m, schema, table, columns)
}

func (m mysql) BuildInsert(schema, table string, columns []string) string {
	return buildInsert(m, schema, table, columns)
}

func (m mysql) BuildCount(schema, table string) string {
	return buildCount(m, schema, table)
}

func (mysql) ExistsTable(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		AND table_name = ?`, schema, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	return count > 0, nil
}

func (m mysql) SetSchema(ctx context.Context, q Querier, schema string) error {
	if schema == "" {
		return nil
	}
	if _, err := q.ExecContext(ctx, "USE "+m.QuoteIdent(schema)); err != nil {
		return fmt.Errorf("failed to switch database to %s: %w", schema, err)
	}
	return nil
}

func (mysql) Tables(ctx context.Context, q Querier, schema string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		AND table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return collect(rows, scanString)
}

func (m mysql) Columns(ctx context.Context, q Querier, schema, table string) ([]model.Column, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			column_name,
			column_type,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			column_key,
			extra
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		AND table_name = ?
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}

	return collect(rows, func(rows *sql.Rows) (model.Column, error) {
		var (
			col                                model.Column
			isNullable, columnKey, extra       string
			defaultValue                       sql.NullString
			maxLength, precision, numericScale sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &col.TypeName, &isNullable, &defaultValue,
			&maxLength, &precision, &numericScale, &columnKey, &extra); err != nil {
			return col, fmt.Errorf("failed to read column metadata: %w", err)
		}

		col.Type = m.Classify(col.TypeName)
		col.Nullable = isNullable == "YES"
		col.PrimaryKey = columnKey == "PRI"
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		col.Length = int(maxLength.Int64)
		if col.Type.IsExactNumeric() {
			col.Precision = int(precision.Int64)
			col.Scale = int(numericScale.Int64)
		}
		if defaultValue.Valid {
			value := defaultValue.String
			col.DefaultValue = &value
		}
		return col, nil
	})
}

func (mysql) PrimaryKey(ctx context.Context, q Querier, schema, table string) (*model.PrimaryKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT constraint_name, column_name
		FROM information_schema.key_column_usage
		WHERE constraint_name = 'PRIMARY'
		AND table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		AND table_name = ?
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key metadata: %w", err)
	}

	keys, err := collect(rows, scanKeyColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key metadata: %w", err)
	}
	pk := primaryKeyFrom(keys)
	if pk != nil {
		pk.Name = ""
	}
	return pk, nil
}

func (mysql) ForeignKeys(ctx context.Context, q Querier, schema, table string) ([]model.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			kcu.constraint_name,
			kcu.column_name,
			kcu.referenced_table_schema,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.constraint_schema
			AND rc.constraint_name = kcu.constraint_name
		WHERE kcu.referenced_table_name IS NOT NULL
		AND kcu.table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		AND kcu.table_name = ?
		ORDER BY kcu.constraint_name, kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign key metadata: %w", err)
	}

	cols, err := collect(rows, func(rows *sql.Rows) (fkColumn, error) {
		var c fkColumn
		err := rows.Scan(&c.name, &c.column, &c.referencedSchema, &c.referencedTable,
			&c.referencedColumn, &c.onDelete, &c.onUpdate)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key metadata: %w", err)
	}
	return groupForeignKeys(cols), nil
}

func (mysql) Uniques(ctx context.Context, q Querier, schema, table string) ([]model.Unique, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
			AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'UNIQUE'
		AND tc.table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		AND tc.table_name = ?
		ORDER BY tc.constraint_name, kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique constraints: %w", err)
	}

	keys, err := collect(rows, scanKeyColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read unique constraints: %w", err)
	}
	return groupUniques(keys), nil
}

// Checks needs MySQL 8.0.16 or MariaDB 10.2; older servers return an error.
func (mysql) Checks(ctx context.Context, q Querier, schema, table string) ([]model.Check, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT cc.constraint_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.table_constraints tc
			ON tc.constraint_schema = cc.constraint_schema
			AND tc.constraint_name = cc.constraint_name
		WHERE tc.constraint_type = 'CHECK'
		AND tc.table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		AND tc.table_name = ?
		ORDER BY cc.constraint_name`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query check constraints: %w", err)
	}

	return collect(rows, func(rows *sql.Rows) (model.Check, error) {
		var c model.Check
		if err := rows.Scan(&c.Name, &c.Expression); err != nil {
			return c, fmt.Errorf("failed to read check constraint: %w", err)
		}
		return c, nil
	})
}
