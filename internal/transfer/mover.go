package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

// rowSource is the part of *sql.Rows the copy loop reads from.
type rowSource interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// batchSink receives rows in batches. Begin opens a batch, Commit makes it
// durable and Rollback discards it.
type batchSink interface {
	Begin(ctx context.Context) error
	Insert(ctx context.Context, args []any) error
	Commit() error
	Rollback() error
}

// Mover copies the rows of one table between two connections.
type Mover struct {
	logger       *logger.Logger
	targetSchema string
}

func NewMover(log *logger.Logger, targetSchema string) *Mover {
	return &Mover{logger: log, targetSchema: targetSchema}
}

// CopyTable streams every row of table from source into the same-named table
// on target and returns the number of committed rows. When h reports a stop
// the open batch is rolled back and ErrStopped is returned with the rows
// committed so far.
func (m *Mover) CopyTable(ctx context.Context, table model.Table, source, target *database.Connection, batchSize int, h Handler) (int, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	log := m.logger.Table(table.Name, "copy")

	selectSQL := source.Dialect().BuildSelect(table.Schema, table.Name, nil)
	h.TableSelectSQL(selectSQL)
	log.Debugf("Select: %s", selectSQL)

	rows, err := source.Conn.QueryContext(ctx, selectSQL)
	if err != nil {
		return 0, &TableTransferError{Table: table.Name, Phase: PhaseSelect, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, &TableTransferError{Table: table.Name, Phase: PhaseSelect, Err: err}
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return 0, &TableTransferError{Table: table.Name, Phase: PhaseSelect, Err: err}
	}

	classes := make([]sqltype.Class, len(columns))
	for i, ct := range columnTypes {
		classes[i] = m.classify(source, table, columns[i], ct)
	}

	insertSQL := target.Dialect().BuildInsert(m.targetSchema, table.Name, columns)
	h.TableInsertSQL(insertSQL)
	log.Debugf("Insert: %s", insertSQL)

	sink := &txBatch{conn: target.Conn, query: insertSQL}
	count, err := copyRows(ctx, rows, classes, sink, batchSize, h, table.Name)
	if err != nil && !errors.Is(err, ErrStopped) {
		log.WithError(err).Error("Row copy failed")
	}
	return count, err
}

// classify resolves the class of a result column from the driver's native
// type name, falling back to the introspected model when the driver is vague.
func (m *Mover) classify(source *database.Connection, table model.Table, name string, ct *sql.ColumnType) sqltype.Class {
	class := source.Dialect().Classify(ct.DatabaseTypeName())
	if class != sqltype.Other {
		return class
	}
	if col := table.Column(name); col != nil {
		return col.Type
	}
	return class
}

func copyRows(ctx context.Context, rows rowSource, classes []sqltype.Class, sink batchSink, batchSize int, h Handler, name string) (int, error) {
	access := make([]accessor, len(classes))
	for i, c := range classes {
		access[i] = accessorFor(c)
	}

	fail := func(phase string, err error) error {
		sink.Rollback()
		return &TableTransferError{Table: name, Phase: phase, Err: err}
	}

	committed, pending := 0, 0
	open := false

	for {
		if h.IsStopped() || ctx.Err() != nil {
			if open {
				sink.Rollback()
			}
			return committed, ErrStopped
		}
		if !rows.Next() {
			break
		}

		dest := make([]any, len(access))
		for i, a := range access {
			dest[i] = a.read()
		}
		if err := rows.Scan(dest...); err != nil {
			return committed, fail(PhaseSelect, err)
		}

		args := make([]any, len(access))
		for i, a := range access {
			v, err := a.write(dest[i])
			if err != nil {
				return committed, fail(PhaseInsert, fmt.Errorf("column %d: %w", i+1, err))
			}
			args[i] = v
		}

		if !open {
			if err := sink.Begin(ctx); err != nil {
				return committed, &TableTransferError{Table: name, Phase: PhaseInsert, Err: err}
			}
			open = true
		}
		if err := sink.Insert(ctx, args); err != nil {
			return committed, fail(PhaseInsert, err)
		}
		pending++
		h.RecordTransferFinished(name, committed+pending)

		if pending == batchSize {
			if err := sink.Commit(); err != nil {
				return committed, fail(PhaseCommit, err)
			}
			committed += pending
			pending, open = 0, false
		}
	}

	if err := rows.Err(); err != nil {
		if open {
			sink.Rollback()
		}
		return committed, &TableTransferError{Table: name, Phase: PhaseSelect, Err: err}
	}

	if open {
		if err := sink.Commit(); err != nil {
			return committed, fail(PhaseCommit, err)
		}
		committed += pending
	}
	return committed, nil
}

// txBatch runs each batch in its own transaction with one prepared insert.
type txBatch struct {
	conn  *sql.Conn
	query string
	tx    *sql.Tx
	stmt  *sql.Stmt
}

func (b *txBatch) Begin(ctx context.Context) error {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, b.query)
	if err != nil {
		tx.Rollback()
		return err
	}
	b.tx, b.stmt = tx, stmt
	return nil
}

func (b *txBatch) Insert(ctx context.Context, args []any) error {
	_, err := b.stmt.ExecContext(ctx, args...)
	return err
}

func (b *txBatch) Commit() error {
	if b.tx == nil {
		return nil
	}
	b.stmt.Close()
	err := b.tx.Commit()
	b.tx, b.stmt = nil, nil
	return err
}

func (b *txBatch) Rollback() error {
	if b.tx == nil {
		return nil
	}
	b.stmt.Close()
	err := b.tx.Rollback()
	b.tx, b.stmt = nil, nil
	return err
}
