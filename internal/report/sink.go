package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

// Sink persists a report.
type Sink interface {
	Save(ctx context.Context, rep *Report) error
}

// FileSink writes the report as YAML. Every %s in Path is replaced by the
// run ID.
type FileSink struct {
	Path string
}

func (s FileSink) Save(_ context.Context, rep *Report) error {
	path := strings.ReplaceAll(s.Path, "%s", rep.RunID)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// LoadFile reads a report written by FileSink.
func LoadFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var rep Report
	if err := yaml.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &rep, nil
}

const (
	DefaultMongoDatabase   = "dbxfer"
	DefaultMongoCollection = "transfer_reports"
)

// MongoSink stores every report as one document keyed by run ID.
type MongoSink struct {
	URI        string
	Database   string
	Collection string
	Logger     *logger.Logger
}

func (s MongoSink) Save(ctx context.Context, rep *Report) error {
	if s.URI == "" {
		return errors.New("mongo report sink requires a connection URI")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(s.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(closeCtx); err != nil && s.Logger != nil {
			s.Logger.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(s.database()).Collection(s.collection())
	if _, err := coll.InsertOne(ctx, rep); err != nil {
		return fmt.Errorf("failed to store report %s: %w", rep.RunID, err)
	}

	if s.Logger != nil {
		s.Logger.Infof("Report %s stored in %s.%s", rep.RunID, s.database(), s.collection())
	}
	return nil
}

func (s MongoSink) database() string {
	if s.Database == "" {
		return DefaultMongoDatabase
	}
	return s.Database
}

func (s MongoSink) collection() string {
	if s.Collection == "" {
		return DefaultMongoCollection
	}
	return s.Collection
}

// SaveAll hands rep to every sink and joins their errors.
func SaveAll(ctx context.Context, rep *Report, sinks ...Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Save(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
