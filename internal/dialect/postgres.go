package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

type postgres struct{}

var postgresTypes = map[string]sqltype.Class{
	"int8":                        sqltype.BigInt,
	"bigint":                      sqltype.BigInt,
	"bigserial":                   sqltype.BigInt,
	"serial8":                     sqltype.BigInt,
	"int4":                        sqltype.Integer,
	"int":                         sqltype.Integer,
	"integer":                     sqltype.Integer,
	"serial":                      sqltype.Integer,
	"serial4":                     sqltype.Integer,
	"int2":                        sqltype.SmallInt,
	"smallint":                    sqltype.SmallInt,
	"smallserial":                 sqltype.SmallInt,
	"serial2":                     sqltype.SmallInt,
	"bool":                        sqltype.Boolean,
	"boolean":                     sqltype.Boolean,
	"bit":                         sqltype.Bit,
	"float8":                      sqltype.Double,
	"double precision":            sqltype.Double,
	"float4":                      sqltype.Real,
	"real":                        sqltype.Real,
	"numeric":                     sqltype.Numeric,
	"decimal":                     sqltype.Decimal,
	"bpchar":                      sqltype.Char,
	"char":                        sqltype.Char,
	"character":                   sqltype.Char,
	"varchar":                     sqltype.Varchar,
	"character varying":           sqltype.Varchar,
	"text":                        sqltype.Varchar,
	"name":                        sqltype.Varchar,
	"citext":                      sqltype.Varchar,
	"bytea":                       sqltype.Varbinary,
	"date":                        sqltype.Date,
	"time":                        sqltype.Time,
	"time without time zone":      sqltype.Time,
	"timetz":                      sqltype.TimeWithTimezone,
	"time with time zone":         sqltype.TimeWithTimezone,
	"timestamp":                   sqltype.Timestamp,
	"timestamp without time zone": sqltype.Timestamp,
	"timestamptz":                 sqltype.TimestampWithTimezone,
	"timestamp with time zone":    sqltype.TimestampWithTimezone,
}

func (postgres) Name() string { return Postgres }

func (postgres) QuoteIdent(name string) string { return quoteWith(name, `"`) }

func (p postgres) QualifiedName(schema, table string) string { return qualify(p, schema, table) }

func (postgres) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (postgres) Classify(nativeType string) sqltype.Class {
	t := baseType(nativeType)
	if strings.HasPrefix(t, "_") || strings.HasSuffix(t, "[]") {
		return sqltype.Array
	}
	if c, ok := postgresTypes[t]; ok {
		return c
	}
	return sqltype.Other
}

func (postgres) ColumnType(col model.Column) string {
	var t string
	switch col.Type {
	case sqltype.BigInt:
		t = "BIGINT"
	case sqltype.Integer:
		t = "INTEGER"
	case sqltype.SmallInt, sqltype.TinyInt:
		t = "SMALLINT"
	case sqltype.Boolean, sqltype.Bit:
		t = "BOOLEAN"
	case sqltype.Double, sqltype.Float:
		t = "DOUBLE PRECISION"
	case sqltype.Real:
		t = "REAL"
	case sqltype.Decimal, sqltype.Numeric:
		t = decimalType("NUMERIC", col.Precision, col.Scale)
	case sqltype.Char:
		t = sized("CHAR", col.Length)
	case sqltype.Varchar:
		t = sized("VARCHAR", col.Length)
	case sqltype.Clob, sqltype.LongVarchar:
		t = "TEXT"
	case sqltype.Binary, sqltype.Blob, sqltype.Varbinary, sqltype.LongVarbinary:
		t = "BYTEA"
	case sqltype.Date:
		t = "DATE"
	case sqltype.Time:
		t = "TIME"
	case sqltype.TimeWithTimezone:
		t = "TIME WITH TIME ZONE"
	case sqltype.Timestamp:
		t = "TIMESTAMP"
	case sqltype.TimestampWithTimezone:
		t = "TIMESTAMP WITH TIME ZONE"
	case sqltype.Array:
		t = postgresArrayType(col.TypeName)
	default:
		t = postgresOtherType(col.TypeName)
	}

	if col.AutoIncrement && col.Type.IsInteger() {
		t += " GENERATED BY DEFAULT AS IDENTITY"
	}
	return t
}

func postgresArrayType(native string) string {
	t := baseType(native)
	if strings.HasPrefix(t, "_") {
		return strings.TrimPrefix(t, "_") + "[]"
	}
	if strings.HasSuffix(t, "[]") {
		return t
	}
	return "TEXT[]"
}

func postgresOtherType(native string) string {
	if t := strings.TrimSpace(native); t != "" {
		return t
	}
	return "TEXT"
}

func (p postgres) BuildCreateTable(table model.Table, hints Hints) (string, error) {
	return buildCreateTable(p, table, hints, func(col model.Column) (string, bool) {
		return p.ColumnType(col), false
	})
}

func (p postgres) BuildSelect(schema, table string, columns []string) string {
	return buildSelect(p, schema, table, columns)
}

func (p postgres) BuildInsert(schema, table string, columns []string) string {
	return buildInsert(p, schema, table, columns)
}

func (p postgres) BuildCount(schema, table string) string {
	return buildCount(p, schema, table)
}

func (postgres) ExistsTable(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
			AND table_name = $2
		)`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	return exists, nil
}

func (p postgres) SetSchema(ctx context.Context, q Querier, schema string) error {
	if schema == "" {
		return nil
	}
	if _, err := q.ExecContext(ctx, "SET search_path TO "+p.QuoteIdent(schema)); err != nil {
		return fmt.Errorf("failed to set search_path to %s: %w", schema, err)
	}
	return nil
}

func (postgres) Tables(ctx context.Context, q Querier, schema string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		AND table_schema = COALESCE(NULLIF($1, ''), current_schema())
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return collect(rows, scanString)
}

func (p postgres) Columns(ctx context.Context, q Querier, schema, table string) ([]model.Column, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			column_name,
			udt_name,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_identity
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}

	return collect(rows, func(rows *sql.Rows) (model.Column, error) {
		var (
			col                                model.Column
			isNullable, isIdentity             string
			defaultValue                       sql.NullString
			maxLength, precision, numericScale sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &col.TypeName, &isNullable, &defaultValue,
			&maxLength, &precision, &numericScale, &isIdentity); err != nil {
			return col, fmt.Errorf("failed to read column metadata: %w", err)
		}

		col.Type = p.Classify(col.TypeName)
		col.Nullable = isNullable == "YES"
		col.Length = int(maxLength.Int64)
		if col.Type.IsExactNumeric() {
			col.Precision = int(precision.Int64)
			col.Scale = int(numericScale.Int64)
		}

		col.AutoIncrement = isIdentity == "YES"
		if defaultValue.Valid {
			if strings.HasPrefix(defaultValue.String, "nextval(") {
				col.AutoIncrement = true
			} else {
				value := defaultValue.String
				col.DefaultValue = &value
			}
		}
		return col, nil
	})
}

func (postgres) PrimaryKey(ctx context.Context, q Querier, schema, table string) (*model.PrimaryKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
			AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
		AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key metadata: %w", err)
	}

	keys, err := collect(rows, scanKeyColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key metadata: %w", err)
	}
	return primaryKeyFrom(keys), nil
}

func primaryKeyFrom(keys []keyColumn) *model.PrimaryKey {
	if len(keys) == 0 {
		return nil
	}
	pk := &model.PrimaryKey{Name: keys[0].constraint}
	for _, k := range keys {
		pk.Columns = append(pk.Columns, k.column)
	}
	return pk
}

var postgresActions = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

// ForeignKeys reads pg_constraint directly; information_schema cannot pair
// the columns of a multi-column key with their referenced columns.
func (postgres) ForeignKeys(ctx context.Context, q Querier, schema, table string) ([]model.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			con.conname,
			a.attname,
			rn.nspname,
			rc.relname,
			ra.attname,
			con.confdeltype::text,
			con.confupdtype::text
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_class rc ON rc.oid = con.confrelid
		JOIN pg_namespace rn ON rn.oid = rc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refnum
		WHERE con.contype = 'f'
		AND n.nspname = COALESCE(NULLIF($1, ''), current_schema())
		AND c.relname = $2
		ORDER BY con.conname, k.ord`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign key metadata: %w", err)
	}

	cols, err := collect(rows, func(rows *sql.Rows) (fkColumn, error) {
		var c fkColumn
		err := rows.Scan(&c.name, &c.column, &c.referencedSchema, &c.referencedTable,
			&c.referencedColumn, &c.onDelete, &c.onUpdate)
		c.onDelete = postgresActions[c.onDelete]
		c.onUpdate = postgresActions[c.onUpdate]
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key metadata: %w", err)
	}
	return groupForeignKeys(cols), nil
}

func (postgres) Uniques(ctx context.Context, q Querier, schema, table string) ([]model.Unique, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT con.conname, a.attname
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		WHERE con.contype = 'u'
		AND n.nspname = COALESCE(NULLIF($1, ''), current_schema())
		AND c.relname = $2
		ORDER BY con.conname, k.ord`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique constraints: %w", err)
	}

	keys, err := collect(rows, scanKeyColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read unique constraints: %w", err)
	}
	return groupUniques(keys), nil
}

func (postgres) Checks(ctx context.Context, q Querier, schema, table string) ([]model.Check, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE con.contype = 'c'
		AND n.nspname = COALESCE(NULLIF($1, ''), current_schema())
		AND c.relname = $2
		ORDER BY con.conname`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query check constraints: %w", err)
	}

	return collect(rows, func(rows *sql.Rows) (model.Check, error) {
		var c model.Check
		if err := rows.Scan(&c.Name, &c.Expression); err != nil {
			return c, fmt.Errorf("failed to read check constraint: %w", err)
		}
		c.Expression = strings.TrimSuffix(c.Expression, " NOT VALID")
		return c, nil
	})
}
