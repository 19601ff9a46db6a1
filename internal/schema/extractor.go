package schema

import (
	"context"

	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/dialect"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

// Extractor reverse-engineers table metadata over a caller-owned connection.
// It never opens or closes connections itself.
type Extractor struct {
	conn    *database.Connection
	catalog dialect.Catalog
	logger  *logger.Logger
}

func NewExtractor(conn *database.Connection, logger *logger.Logger) *Extractor {
	return &Extractor{
		conn:    conn,
		catalog: conn.Dialect(),
		logger:  logger,
	}
}

// ReverseTables describes every base table in schemaName. An empty catalog
// result is reported as *SchemaNotFoundError. A table whose catalog queries
// fail is skipped; the tables that could be read are returned together with
// an *IncompleteSchemaError naming the skipped ones.
func (e *Extractor) ReverseTables(ctx context.Context, schemaName string) ([]model.Table, error) {
	e.logger.Info("Extracting tables...")

	names, err := e.catalog.Tables(ctx, e.conn.Conn, schemaName)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, &SchemaNotFoundError{Schema: schemaName}
	}

	tables := make([]model.Table, 0, len(names))
	var incomplete IncompleteSchemaError
	for _, name := range names {
		table, err := e.ReverseTable(ctx, schemaName, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Table(name, "introspection").WithError(err).Warn("Skipping table, failed to gather its details")
			incomplete.Skipped = append(incomplete.Skipped, name)
			incomplete.Errs = append(incomplete.Errs, err)
			continue
		}
		tables = append(tables, table)
	}

	e.logger.Infof("%d tables extracted", len(tables))
	if len(incomplete.Skipped) > 0 {
		return tables, &incomplete
	}
	return tables, nil
}

func (e *Extractor) ReverseTable(ctx context.Context, schemaName, tableName string) (model.Table, error) {
	catalog := e.catalog
	q := e.conn.Conn

	columns, err := catalog.Columns(ctx, q, schemaName, tableName)
	if err != nil {
		return model.Table{}, err
	}
	if len(columns) == 0 {
		return model.Table{}, &TableNotFoundError{Schema: schemaName, Table: tableName}
	}

	table := model.Table{
		Name:    tableName,
		Schema:  schemaName,
		Kind:    model.KindTable,
		Columns: columns,
	}

	if table.PrimaryKey, err = catalog.PrimaryKey(ctx, q, schemaName, tableName); err != nil {
		return model.Table{}, err
	}
	if table.PrimaryKey != nil {
		for _, name := range table.PrimaryKey.Columns {
			if col := table.Column(name); col != nil {
				col.PrimaryKey = true
			}
		}
	}

	if table.ForeignKeys, err = catalog.ForeignKeys(ctx, q, schemaName, tableName); err != nil {
		return model.Table{}, err
	}
	if table.Uniques, err = catalog.Uniques(ctx, q, schemaName, tableName); err != nil {
		return model.Table{}, err
	}

	// Check constraints are optional metadata; older servers cannot report them.
	if table.Checks, err = catalog.Checks(ctx, q, schemaName, tableName); err != nil {
		e.logger.Table(tableName, "introspection").Warnf("Skipping check constraints: %v", err)
		table.Checks = nil
	}

	table.Dependencies = model.DependenciesFromForeignKeys(tableName, table.ForeignKeys)

	e.logger.Table(tableName, "introspection").Debugf("%d columns, %d foreign keys", len(table.Columns), len(table.ForeignKeys))
	return table.WithLocation(e.conn.Location(schemaName, tableName)), nil
}
