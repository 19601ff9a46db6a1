package schema

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/dialect"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

func openSQLite(t *testing.T, name string) *database.Connection {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), name),
	}}
	cfg.Normalize()

	conn, err := database.NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exec(t *testing.T, conn *database.Connection, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := conn.Conn.ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

func TestReverseTables(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t, "source.db")
	exec(t, conn,
		`CREATE TABLE city (id INTEGER PRIMARY KEY, name VARCHAR(80) NOT NULL)`,
		`CREATE TABLE address (
			id INTEGER PRIMARY KEY,
			city_id INTEGER NOT NULL REFERENCES city(id),
			line TEXT
		)`,
		`CREATE TABLE employee (
			id INTEGER PRIMARY KEY,
			manager_id INTEGER REFERENCES employee(id),
			address_id INTEGER REFERENCES address(id),
			photo BLOB
		)`,
	)

	tables, err := NewExtractor(conn, logger.Discard()).ReverseTables(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"address", "city", "employee"}, model.Names(tables))

	address := tables[0]
	assert.Equal(t, model.KindTable, address.Kind)
	assert.Equal(t, []string{"id", "city_id", "line"}, address.ColumnNames())
	assert.Equal(t, []string{"city"}, address.DependencyNames())
	require.NotNil(t, address.PrimaryKey)
	assert.True(t, address.Column("id").PrimaryKey)
	assert.Equal(t, sqltype.BigInt, address.Column("city_id").Type)
	assert.Contains(t, address.Location, "#address")

	employee := tables[2]
	assert.Len(t, employee.ForeignKeys, 2)
	assert.Equal(t, []string{"address"}, employee.DependencyNames(), "self reference is not a dependency")
	assert.Equal(t, sqltype.Blob, employee.Column("photo").Type)
}

func TestReverseTablesEmptySchema(t *testing.T) {
	conn := openSQLite(t, "empty.db")

	_, err := NewExtractor(conn, logger.Discard()).ReverseTables(context.Background(), "")
	var notFound *SchemaNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestReverseTableMissing(t *testing.T) {
	conn := openSQLite(t, "source.db")
	exec(t, conn, `CREATE TABLE city (id INTEGER PRIMARY KEY)`)

	_, err := NewExtractor(conn, logger.Discard()).ReverseTable(context.Background(), "", "nowhere")
	var notFound *TableNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nowhere", notFound.Table)
}

// brokenCatalog fails the foreign key query of one table.
type brokenCatalog struct {
	dialect.Catalog
	table string
}

func (c brokenCatalog) ForeignKeys(ctx context.Context, q dialect.Querier, schema, table string) ([]model.ForeignKey, error) {
	if table == c.table {
		return nil, errors.New("permission denied for relation " + table)
	}
	return c.Catalog.ForeignKeys(ctx, q, schema, table)
}

func TestReverseTablesSkipsUnreadableTable(t *testing.T) {
	conn := openSQLite(t, "source.db")
	exec(t, conn,
		`CREATE TABLE address (id INTEGER PRIMARY KEY, city_id INTEGER REFERENCES city(id))`,
		`CREATE TABLE city (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE country (id INTEGER PRIMARY KEY)`,
	)

	extractor := NewExtractor(conn, logger.Discard())
	extractor.catalog = brokenCatalog{Catalog: conn.Dialect(), table: "city"}

	tables, err := extractor.ReverseTables(context.Background(), "")
	var incomplete *IncompleteSchemaError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"city"}, incomplete.Skipped)
	assert.ErrorContains(t, err, "permission denied for relation city")

	var names []string
	for _, table := range tables {
		names = append(names, table.Name)
	}
	assert.Equal(t, []string{"address", "country"}, names)
}

func TestReverseTablesCancelled(t *testing.T) {
	conn := openSQLite(t, "source.db")
	exec(t, conn, `CREATE TABLE city (id INTEGER PRIMARY KEY)`)

	ctx, cancel := context.WithCancel(context.Background())
	extractor := NewExtractor(conn, logger.Discard())
	extractor.catalog = cancellingCatalog{Catalog: conn.Dialect(), cancel: cancel}

	tables, err := extractor.ReverseTables(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, tables)
}

// cancellingCatalog cancels the extraction while the first table is read.
type cancellingCatalog struct {
	dialect.Catalog
	cancel context.CancelFunc
}

func (c cancellingCatalog) Columns(ctx context.Context, q dialect.Querier, schema, table string) ([]model.Column, error) {
	c.cancel()
	return nil, ctx.Err()
}

func cityTable() model.Table {
	return model.Table{
		Name: "city",
		Kind: model.KindTable,
		Columns: []model.Column{
			{Name: "id", Type: sqltype.BigInt, PrimaryKey: true},
			{Name: "name", Type: sqltype.Varchar, Length: 80, Nullable: true},
		},
		PrimaryKey: &model.PrimaryKey{Columns: []string{"id"}},
	}
}

func TestMaterializeCreateOrSkip(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t, "target.db")
	creator := NewCreator(conn, logger.Discard(), dialect.Hints{})

	outcome, reason, err := creator.Materialize(ctx, cityTable())
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)
	assert.Empty(t, reason)

	outcome, _, err = creator.Materialize(ctx, cityTable())
	require.NoError(t, err)
	assert.Equal(t, Empty, outcome)

	exec(t, conn, `INSERT INTO city (id, name) VALUES (1, 'Sofia')`)

	outcome, reason, err = creator.Materialize(ctx, cityTable())
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
	assert.Equal(t, ReasonNotEmpty, reason)
}

func TestMaterializeOmitsForeignKeysOutsideSnapshot(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t, "target.db")

	address := model.Table{
		Name: "address",
		Columns: []model.Column{
			{Name: "id", Type: sqltype.BigInt},
			{Name: "city_id", Type: sqltype.BigInt, Nullable: true},
			{Name: "region_id", Type: sqltype.BigInt, Nullable: true},
		},
		ForeignKeys: []model.ForeignKey{
			{Name: "fk_city", Columns: []string{"city_id"}, ReferencedTable: "city", ReferencedColumns: []string{"id"}},
			{Name: "fk_region", Columns: []string{"region_id"}, ReferencedTable: "region", ReferencedColumns: []string{"id"}},
		},
	}

	creator := NewCreator(conn, logger.Discard(), dialect.Hints{})
	creator.SetSnapshot([]model.Table{cityTable(), address})

	_, _, err := creator.Materialize(ctx, cityTable())
	require.NoError(t, err)
	outcome, _, err := creator.Materialize(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)

	fks, err := conn.Dialect().ForeignKeys(ctx, conn.Conn, "", "address")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "city", fks[0].ReferencedTable)
	assert.Len(t, address.ForeignKeys, 2, "input model is left untouched")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "skipped", Skipped.String())
}
