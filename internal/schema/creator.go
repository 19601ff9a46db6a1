package schema

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/dialect"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

type Outcome int

const (
	// Created means the table did not exist and was created.
	Created Outcome = iota
	// Empty means the table already existed without rows.
	Empty
	// Skipped means the table already holds rows and must not be copied into.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Empty:
		return "empty"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

const ReasonNotEmpty = "table exists and it is not empty"

// Creator materializes tables on the target. Existence is probed on every
// call and never cached.
type Creator struct {
	conn   *database.Connection
	logger *logger.Logger
	hints  dialect.Hints
	known  map[string]bool
}

func NewCreator(conn *database.Connection, logger *logger.Logger, hints dialect.Hints) *Creator {
	return &Creator{
		conn:   conn,
		logger: logger,
		hints:  hints,
	}
}

// SetSnapshot limits generated foreign keys to tables in the given set.
// Without a snapshot every foreign key is emitted.
func (c *Creator) SetSnapshot(tables []model.Table) {
	c.known = make(map[string]bool, len(tables))
	for _, t := range tables {
		c.known[t.Name] = true
	}
}

// Materialize creates table when missing. An existing table is accepted only
// when it has no rows; otherwise the outcome is Skipped with a reason.
func (c *Creator) Materialize(ctx context.Context, table model.Table) (Outcome, string, error) {
	d := c.conn.Dialect()
	log := c.logger.Table(table.Name, "materialize")

	exists, err := d.ExistsTable(ctx, c.conn.Conn, table.Schema, table.Name)
	if err != nil {
		return Skipped, "", err
	}

	if !exists {
		ddl, err := d.BuildCreateTable(c.prepare(table), c.hints)
		if err != nil {
			return Skipped, "", fmt.Errorf("failed to build create statement: %w", err)
		}

		log.Debugf("Creating table: %s", ddl)
		if _, err := c.conn.Conn.ExecContext(ctx, ddl); err != nil {
			return Skipped, "", fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
		return Created, "", nil
	}

	var count int64
	if err := c.conn.Conn.QueryRowContext(ctx, d.BuildCount(table.Schema, table.Name)).Scan(&count); err != nil {
		return Skipped, "", fmt.Errorf("failed to count rows of %s: %w", table.Name, err)
	}
	if count > 0 {
		log.Infof("Table already holds %d rows", count)
		return Skipped, ReasonNotEmpty, nil
	}

	log.Debug("Table exists and is empty")
	return Empty, "", nil
}

// prepare drops foreign keys that point outside the snapshot and points the
// rest at the table's own schema.
func (c *Creator) prepare(table model.Table) model.Table {
	if len(table.ForeignKeys) == 0 {
		return table
	}

	fks := make([]model.ForeignKey, 0, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		if c.known != nil && !c.known[fk.ReferencedTable] {
			c.logger.Table(table.Name, "materialize").
				Warnf("Omitting foreign key %s: referenced table %s is not part of the transfer", fk.Name, fk.ReferencedTable)
			continue
		}
		fk.ReferencedSchema = table.Schema
		fks = append(fks, fk)
	}
	table.ForeignKeys = fks
	return table
}
