package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/profiles"
	"github.com/kadirbelkuyu/dbxfer/internal/report"
	"github.com/kadirbelkuyu/dbxfer/internal/schema"
	"github.com/kadirbelkuyu/dbxfer/internal/topology"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
	"github.com/kadirbelkuyu/dbxfer/pkg/progress"
)

// Options control how a workflow reports on itself.
type Options struct {
	Progress bool
	// ReportFile receives a YAML report; %s is replaced by the run ID.
	ReportFile string
	// ReportMongo is a mongodb:// URI or the name of a saved mongo profile.
	ReportMongo string
	// Stop is shared with the signal handler; setting it stops every
	// running transfer at the next row.
	Stop *transfer.StopFlag
}

// TransferRequest names one source/target pair and its settings.
type TransferRequest struct {
	Job      string
	Source   *config.Config
	Target   *config.Config
	Settings config.TransferConfig
}

type Service struct {
	profiles *profiles.Manager
	logger   *logger.Logger
}

func NewService(manager *profiles.Manager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewLogger(false)
	}
	return &Service{profiles: manager, logger: log}
}

// stopSignal lets several transfers share one externally owned stop flag.
type stopSignal struct {
	transfer.NopHandler
	flag *transfer.StopFlag
}

func (s *stopSignal) IsStopped() bool {
	return s.flag != nil && s.flag.IsStopped()
}

func (s *Service) Transfer(ctx context.Context, req TransferRequest, opts Options) (*report.Report, error) {
	settings := req.Settings
	if err := config.ApplyEnv(&settings); err != nil {
		s.logger.WithError(err).Warn("Ignoring environment overrides")
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = config.DefaultBatchSize
	}

	recorder := report.NewRecorder()
	handlers := []transfer.Handler{recorder, &stopSignal{flag: opts.Stop}}
	if opts.Progress {
		handlers = append(handlers, progress.NewHandler())
	} else {
		handlers = append(handlers, transfer.NewLogHandler(s.logger))
	}

	svc := transfer.NewService(
		database.FromConfig(req.Source),
		database.FromConfig(req.Target),
		transfer.ConfigurationFrom(settings),
		s.logger,
	)
	summary, err := svc.Execute(ctx, transfer.Multi(handlers...))

	rep := recorder.Build(summary, req.Source.Describe(), req.Target.Describe())
	rep.Job = req.Job

	sinks, sinkErr := s.sinks(opts)
	if sinkErr != nil {
		s.logger.WithError(sinkErr).Warn("Report will not be stored in MongoDB")
	}
	if saveErr := report.SaveAll(ctx, rep, sinks...); saveErr != nil {
		s.logger.WithError(saveErr).Warn("Failed to store transfer report")
	}

	if err != nil {
		return rep, fmt.Errorf("transfer execution failed: %w", err)
	}
	return rep, nil
}

func (s *Service) sinks(opts Options) ([]report.Sink, error) {
	var sinks []report.Sink
	if opts.ReportFile != "" {
		sinks = append(sinks, report.FileSink{Path: opts.ReportFile})
	}
	if opts.ReportMongo == "" {
		return sinks, nil
	}

	uri := opts.ReportMongo
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		cfg, err := s.profiles.Load(uri)
		if err != nil {
			return sinks, err
		}
		if cfg.Database.Type != config.TypeMongo {
			return sinks, fmt.Errorf("profile %s is a %s datasource, not mongo", uri, cfg.Database.Type)
		}
		uri = cfg.GetMongoURI()
	}
	return append(sinks, report.MongoSink{URI: uri, Logger: s.logger}), nil
}

// RunPlan executes the plan's jobs with at most plan.Workers running at once.
// A failing job does not cancel the others; all job errors are returned
// together.
func (s *Service) RunPlan(ctx context.Context, plan *config.Plan, opts Options) ([]*report.Report, error) {
	reports := make([]*report.Report, len(plan.Jobs))
	errs := make([]error, len(plan.Jobs))

	var g errgroup.Group
	g.SetLimit(max(plan.Workers, 1))

	for i, job := range plan.Jobs {
		g.Go(func() error {
			req, err := s.resolve(job, plan.Resolve(job))
			if err != nil {
				errs[i] = fmt.Errorf("job %s: %w", job.Name, err)
				return nil
			}

			s.logger.WithField("job", job.Name).Infof("Starting %s -> %s", req.Source.Describe(), req.Target.Describe())
			rep, err := s.Transfer(ctx, req, Options{
				ReportFile:  opts.ReportFile,
				ReportMongo: opts.ReportMongo,
				Stop:        opts.Stop,
			})
			reports[i] = rep
			if err != nil {
				errs[i] = fmt.Errorf("job %s: %w", job.Name, err)
			}
			return nil
		})
	}
	g.Wait()

	return reports, errors.Join(errs...)
}

func (s *Service) resolve(job config.Job, settings config.TransferConfig) (TransferRequest, error) {
	source, err := s.profiles.Load(job.Source)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("cannot load source %s: %w", job.Source, err)
	}
	target, err := s.profiles.Load(job.Target)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("cannot load target %s: %w", job.Target, err)
	}
	return TransferRequest{Job: job.Name, Source: source, Target: target, Settings: settings}, nil
}

func (s *Service) reverse(ctx context.Context, cfg *config.Config, schemaName string) ([]model.Table, error) {
	conn, err := database.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Dialect().SetSchema(ctx, conn.Conn, schemaName); err != nil {
		return nil, err
	}
	return schema.NewExtractor(conn, s.logger).ReverseTables(ctx, schemaName)
}

// Inspect writes the reverse-engineered table models as YAML.
func (s *Service) Inspect(ctx context.Context, cfg *config.Config, schemaName string, w io.Writer) error {
	tables, err := s.reverse(ctx, cfg, schemaName)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tables); err != nil {
		return err
	}
	return enc.Close()
}

// Order prints the creation order of the schema's tables followed by the
// referenced tables that live outside it.
func (s *Service) Order(ctx context.Context, cfg *config.Config, schemaName string, w io.Writer) error {
	tables, err := s.reverse(ctx, cfg, schemaName)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	graph := topology.NewGraph[model.Table]()
	for _, t := range tables {
		graph.Add(t.Name, t, t.DependencyNames()...)
	}
	result, err := graph.Sort()
	if err != nil {
		return err
	}

	for i, name := range result.Names() {
		fmt.Fprintf(w, "%3d. %s\n", i+1, name)
	}
	if len(result.External) > 0 {
		fmt.Fprintf(w, "\nExternal references: %s\n", strings.Join(result.External, ", "))
	}
	return nil
}
