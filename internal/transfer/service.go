package transfer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/dialect"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/schema"
	"github.com/kadirbelkuyu/dbxfer/internal/topology"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

// Configuration is the immutable input of one transfer.
type Configuration struct {
	SourceSchema string
	TargetSchema string
	BatchSize    int
	// Tables restricts the transfer to the named tables when non-empty.
	Tables []string
	Hints  dialect.Hints
}

func ConfigurationFrom(tc config.TransferConfig) Configuration {
	return Configuration{
		SourceSchema: tc.SourceSchema,
		TargetSchema: tc.TargetSchema,
		BatchSize:    tc.BatchSize,
		Tables:       slices.Clone(tc.Tables),
		Hints:        tc.Hints,
	}
}

type State int32

const (
	NotStarted State = iota
	SourceConnected
	TargetConnected
	Introspecting
	Sorting
	Copying
	Finished
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case SourceConnected:
		return "source-connected"
	case TargetConnected:
		return "target-connected"
	case Introspecting:
		return "introspecting"
	case Sorting:
		return "sorting"
	case Copying:
		return "copying"
	case Finished:
		return "finished"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type TableStatus string

const (
	StatusCopied  TableStatus = "copied"
	StatusSkipped TableStatus = "skipped"
	StatusFailed  TableStatus = "failed"
	StatusStopped TableStatus = "stopped"
	StatusPending TableStatus = "pending"
)

type TableSummary struct {
	Name   string
	Status TableStatus
	Rows   int
	Reason string
}

// Summary is what Execute hands back to the caller. Handlers see the same
// information as events.
type Summary struct {
	RunID      string
	State      State
	Tables     []TableSummary
	External   []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Rows is the total number of committed rows.
func (s Summary) Rows() int {
	total := 0
	for _, t := range s.Tables {
		total += t.Rows
	}
	return total
}

// Service drives one transfer from a source to a target datasource.
type Service struct {
	source database.Provider
	target database.Provider
	cfg    Configuration
	logger *logger.Logger
	state  atomic.Int32
}

func NewService(source, target database.Provider, cfg Configuration, log *logger.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	return &Service{
		source: source,
		target: target,
		cfg:    cfg,
		logger: log,
	}
}

func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
}

// Execute runs the transfer. Only connection failures and dependency cycles
// abort it with an error; table-level problems are reported through h and
// recorded in the summary. A stop requested through h or ctx ends the run
// cleanly with state Stopped.
func (s *Service) Execute(ctx context.Context, h Handler) (Summary, error) {
	if h == nil {
		h = &NopHandler{}
	}

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	fail := func(err error) (Summary, error) {
		s.setState(Failed)
		h.TransferFailed(err.Error())
		s.logger.WithError(err).Error("Transfer failed")
		summary.State = Failed
		summary.FinishedAt = time.Now()
		return summary, err
	}

	h.TransferStarted(s.cfg)
	s.logger.WithField("run_id", summary.RunID).Info("Starting transfer...")

	source, err := s.source(ctx)
	if err != nil {
		return fail(&ConnectionError{Side: "source", Err: err})
	}
	defer s.release("source", source)
	s.setState(SourceConnected)

	target, err := s.target(ctx)
	if err != nil {
		return fail(&ConnectionError{Side: "target", Err: err})
	}
	defer s.release("target", target)
	s.setState(TargetConnected)

	if err := source.Dialect().SetSchema(ctx, source.Conn, s.cfg.SourceSchema); err != nil {
		return fail(&ConnectionError{Side: "source", Err: err})
	}
	if err := target.Dialect().SetSchema(ctx, target.Conn, s.cfg.TargetSchema); err != nil {
		return fail(&ConnectionError{Side: "target", Err: err})
	}

	s.setState(Introspecting)
	h.MetadataLoadingStarted()
	tables, err := schema.NewExtractor(source, s.logger).ReverseTables(ctx, s.cfg.SourceSchema)
	var incomplete *schema.IncompleteSchemaError
	switch {
	case errors.As(err, &incomplete):
		s.logger.WithError(err).Warn("Metadata loading skipped some tables, continuing with the rest")
		h.MetadataLoadingError(err.Error())
		h.MetadataLoadingFinished(len(tables))
	case err != nil:
		if ctx.Err() == nil {
			s.logger.WithError(err).Warn("Metadata loading failed, continuing without tables")
			h.MetadataLoadingError(err.Error())
		}
		tables = nil
	default:
		h.MetadataLoadingFinished(len(tables))
	}
	tables = s.filter(tables)

	if s.stopped(ctx, h) {
		return s.stop(summary, h, 0), nil
	}

	s.setState(Sorting)
	h.SortingStarted(tables)
	graph := topology.NewGraph[model.Table]()
	for _, t := range tables {
		graph.Add(t.Name, t, t.DependencyNames()...)
	}
	result, err := graph.Sort()
	if err != nil {
		return fail(err)
	}
	ordered := result.Values()
	summary.External = result.External
	for _, name := range result.External {
		s.logger.Warnf("Table depends on %s, which is not part of the transfer", name)
	}
	h.SortingFinished(ordered)

	s.setState(Copying)
	h.DataTransferStarted()

	creator := schema.NewCreator(target, s.logger, s.cfg.Hints)
	creator.SetSnapshot(ordered)
	mover := NewMover(s.logger, s.cfg.TargetSchema)

	processed := 0
	halted := false
	for _, table := range ordered {
		if halted || s.stopped(ctx, h) {
			halted = true
			summary.Tables = append(summary.Tables, TableSummary{Name: table.Name, Status: StatusPending})
			continue
		}

		ts := s.copyTable(ctx, table, source, target, creator, mover, h)
		summary.Tables = append(summary.Tables, ts)
		processed++
		if ts.Status == StatusStopped {
			halted = true
		}
	}

	h.DataTransferFinished()
	if halted {
		return s.stop(summary, h, processed), nil
	}

	h.TransferFinished(processed)
	s.setState(Finished)
	summary.State = Finished
	summary.FinishedAt = time.Now()
	s.logger.Infof("Transfer finished: %d tables, %d rows", processed, summary.Rows())
	return summary, nil
}

func (s *Service) copyTable(ctx context.Context, table model.Table, source, target *database.Connection, creator *schema.Creator, mover *Mover, h Handler) TableSummary {
	log := s.logger.Table(table.Name, PhaseMaterialize)
	h.TableTransferStarted(table.Name)

	targetTable := table
	targetTable.Schema = s.cfg.TargetSchema

	outcome, reason, err := creator.Materialize(ctx, targetTable)
	if err != nil {
		terr := &TableTransferError{Table: table.Name, Phase: PhaseMaterialize, Err: err}
		log.WithError(err).Error("Materialization failed")
		h.TableTransferFailed(table.Name, terr.Error())
		return TableSummary{Name: table.Name, Status: StatusFailed, Reason: terr.Error()}
	}
	if outcome == schema.Skipped {
		log.Infof("Skipping table: %s", reason)
		h.TableSkipped(table.Name, reason)
		return TableSummary{Name: table.Name, Status: StatusSkipped, Reason: reason}
	}
	log.Debugf("Target table %s", outcome)

	rows, err := mover.CopyTable(ctx, table, source, target, s.cfg.BatchSize, h)
	switch {
	case errors.Is(err, ErrStopped):
		reason := fmt.Sprintf("transfer stopped by request after %d committed rows", rows)
		h.TableSkipped(table.Name, reason)
		return TableSummary{Name: table.Name, Status: StatusStopped, Rows: rows, Reason: reason}
	case err != nil:
		h.TableTransferFailed(table.Name, err.Error())
		return TableSummary{Name: table.Name, Status: StatusFailed, Rows: rows, Reason: err.Error()}
	}

	s.logger.Table(table.Name, "copy").Infof("Copied %d rows", rows)
	h.TableTransferFinished(table.Name, rows)
	return TableSummary{Name: table.Name, Status: StatusCopied, Rows: rows}
}

// filter applies the table allow-list, keeping introspection order.
func (s *Service) filter(tables []model.Table) []model.Table {
	if len(s.cfg.Tables) == 0 {
		return tables
	}

	found := make(map[string]bool, len(tables))
	var kept []model.Table
	for _, t := range tables {
		if slices.Contains(s.cfg.Tables, t.Name) {
			kept = append(kept, t)
			found[t.Name] = true
		}
	}
	for _, name := range s.cfg.Tables {
		if !found[name] {
			s.logger.Warnf("Requested table %s was not found in the source schema", name)
		}
	}
	return kept
}

func (s *Service) stopped(ctx context.Context, h Handler) bool {
	return h.IsStopped() || ctx.Err() != nil
}

func (s *Service) stop(summary Summary, h Handler, processed int) Summary {
	h.TransferFinished(processed)
	s.setState(Stopped)
	summary.State = Stopped
	summary.FinishedAt = time.Now()
	s.logger.Warnf("Transfer stopped by request after %d tables", processed)
	return summary
}

func (s *Service) release(side string, conn *database.Connection) {
	if err := conn.Close(); err != nil {
		s.logger.WithError(err).Warnf("Failed to close %s connection", side)
	}
}
