package transfer

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by the row mover when the handler asked to stop.
// It is a clean early exit, not a failure.
var ErrStopped = errors.New("transfer stopped")

// ConnectionError aborts a transfer before any table work.
type ConnectionError struct {
	Side string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Side, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

const (
	PhaseMaterialize = "materialize"
	PhaseSelect      = "select"
	PhaseInsert      = "insert"
	PhaseCommit      = "commit"
)

// TableTransferError is confined to one table; the remaining tables still run.
type TableTransferError struct {
	Table string
	Phase string
	Err   error
}

func (e *TableTransferError) Error() string {
	return fmt.Sprintf("error while transferring the data for table %s (%s): %v", e.Table, e.Phase, e.Err)
}

func (e *TableTransferError) Unwrap() error {
	return e.Err
}
