package report

import (
	"sync"
	"time"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
)

type TableReport struct {
	Name       string    `yaml:"name" bson:"name"`
	Status     string    `yaml:"status" bson:"status"`
	Rows       int       `yaml:"rows" bson:"rows"`
	Reason     string    `yaml:"reason,omitempty" bson:"reason,omitempty"`
	SelectSQL  string    `yaml:"select_sql,omitempty" bson:"select_sql,omitempty"`
	InsertSQL  string    `yaml:"insert_sql,omitempty" bson:"insert_sql,omitempty"`
	StartedAt  time.Time `yaml:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt time.Time `yaml:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// Report is the persisted record of one transfer run.
type Report struct {
	RunID         string        `yaml:"run_id" bson:"_id"`
	Job           string        `yaml:"job,omitempty" bson:"job,omitempty"`
	Source        string        `yaml:"source" bson:"source"`
	Target        string        `yaml:"target" bson:"target"`
	SourceSchema  string        `yaml:"source_schema,omitempty" bson:"source_schema,omitempty"`
	TargetSchema  string        `yaml:"target_schema,omitempty" bson:"target_schema,omitempty"`
	BatchSize     int           `yaml:"batch_size" bson:"batch_size"`
	State         string        `yaml:"state" bson:"state"`
	Error         string        `yaml:"error,omitempty" bson:"error,omitempty"`
	MetadataError string        `yaml:"metadata_error,omitempty" bson:"metadata_error,omitempty"`
	Order         []string      `yaml:"order,omitempty" bson:"order,omitempty"`
	External      []string      `yaml:"external,omitempty" bson:"external,omitempty"`
	Tables        []TableReport `yaml:"tables" bson:"tables"`
	Rows          int           `yaml:"rows" bson:"rows"`
	StartedAt     time.Time     `yaml:"started_at" bson:"started_at"`
	FinishedAt    time.Time     `yaml:"finished_at" bson:"finished_at"`
	Duration      time.Duration `yaml:"duration" bson:"duration"`
}

// Table returns the entry for name or nil.
func (r *Report) Table(name string) *TableReport {
	for i := range r.Tables {
		if r.Tables[i].Name == name {
			return &r.Tables[i]
		}
	}
	return nil
}

// Recorder is a transfer handler that collects per-table timings, statements
// and outcomes. Combine it with the run summary through Build.
type Recorder struct {
	transfer.NopHandler

	mu      sync.Mutex
	now     func() time.Time
	cfg     transfer.Configuration
	tables  map[string]*TableReport
	order   []string
	current string
	failure string
	meta    string
}

func NewRecorder() *Recorder {
	return &Recorder{
		now:    time.Now,
		tables: make(map[string]*TableReport),
	}
}

func (r *Recorder) table(name string) *TableReport {
	t, ok := r.tables[name]
	if !ok {
		t = &TableReport{Name: name, Status: string(transfer.StatusPending)}
		r.tables[name] = t
		r.order = append(r.order, name)
	}
	return t
}

func (r *Recorder) TransferStarted(cfg transfer.Configuration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

func (r *Recorder) MetadataLoadingError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta = msg
}

func (r *Recorder) SortingFinished(ordered []model.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ordered {
		r.table(t.Name)
	}
}

func (r *Recorder) TableTransferStarted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = name
	r.table(name).StartedAt = r.now()
}

func (r *Recorder) TableSelectSQL(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != "" {
		r.table(r.current).SelectSQL = query
	}
}

func (r *Recorder) TableInsertSQL(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != "" {
		r.table(r.current).InsertSQL = query
	}
}

func (r *Recorder) RecordTransferFinished(name string, countSoFar int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table(name).Rows = countSoFar
}

func (r *Recorder) TableTransferFinished(name string, rows int) {
	r.finish(name, transfer.StatusCopied, rows, "")
}

func (r *Recorder) TableTransferFailed(name, reason string) {
	r.finish(name, transfer.StatusFailed, -1, reason)
}

func (r *Recorder) TableSkipped(name, reason string) {
	r.finish(name, transfer.StatusSkipped, -1, reason)
}

func (r *Recorder) TransferFailed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = reason
}

func (r *Recorder) finish(name string, status transfer.TableStatus, rows int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.table(name)
	t.Status = string(status)
	t.Reason = reason
	if rows >= 0 {
		t.Rows = rows
	}
	t.FinishedAt = r.now()
	r.current = ""
}

// Build merges the recorded events with the summary returned by Execute.
// Row counts and statuses from the summary win over the event stream since
// they only include committed rows.
func (r *Recorder) Build(summary transfer.Summary, source, target string) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := &Report{
		RunID:         summary.RunID,
		Source:        source,
		Target:        target,
		SourceSchema:  r.cfg.SourceSchema,
		TargetSchema:  r.cfg.TargetSchema,
		BatchSize:     r.cfg.BatchSize,
		State:         summary.State.String(),
		Error:         r.failure,
		MetadataError: r.meta,
		External:      summary.External,
		StartedAt:     summary.StartedAt,
		FinishedAt:    summary.FinishedAt,
		Duration:      summary.FinishedAt.Sub(summary.StartedAt),
	}

	for _, ts := range summary.Tables {
		t := r.table(ts.Name)
		t.Status = string(ts.Status)
		t.Rows = ts.Rows
		if ts.Reason != "" {
			t.Reason = ts.Reason
		}
	}

	for _, name := range r.order {
		t := *r.tables[name]
		rep.Order = append(rep.Order, name)
		rep.Tables = append(rep.Tables, t)
		rep.Rows += t.Rows
	}
	return rep
}
