package transfer

import (
	"github.com/sirupsen/logrus"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

// LogHandler writes every lifecycle event to the logger. SQL text and
// per-row progress go to the debug level.
type LogHandler struct {
	NopHandler
	logger *logger.Logger
}

func NewLogHandler(log *logger.Logger) *LogHandler {
	return &LogHandler{logger: log}
}

func (l *LogHandler) TransferStarted(cfg Configuration) {
	l.logger.WithFields(logrus.Fields{
		"source_schema": cfg.SourceSchema,
		"target_schema": cfg.TargetSchema,
		"batch_size":    cfg.BatchSize,
	}).Info("Transfer started")
}

func (l *LogHandler) MetadataLoadingStarted() {
	l.logger.Info("Loading source metadata...")
}

func (l *LogHandler) MetadataLoadingFinished(count int) {
	l.logger.Infof("Metadata loaded for %d tables", count)
}

func (l *LogHandler) MetadataLoadingError(msg string) {
	l.logger.Warnf("Metadata loading failed: %s", msg)
}

func (l *LogHandler) SortingFinished(ordered []model.Table) {
	l.logger.Infof("Transfer order: %v", model.Names(ordered))
}

func (l *LogHandler) TableTransferStarted(name string) {
	l.logger.Table(name, "copy").Info("Table transfer started")
}

func (l *LogHandler) TableTransferFinished(name string, rows int) {
	l.logger.Table(name, "copy").Infof("Table transfer finished: %d rows", rows)
}

func (l *LogHandler) TableTransferFailed(name, reason string) {
	l.logger.Table(name, "copy").Errorf("Table transfer failed: %s", reason)
}

func (l *LogHandler) TableSkipped(name, reason string) {
	l.logger.Table(name, "copy").Warnf("Table skipped: %s", reason)
}

func (l *LogHandler) TableSelectSQL(query string) {
	l.logger.Debugf("Select: %s", query)
}

func (l *LogHandler) TableInsertSQL(query string) {
	l.logger.Debugf("Insert: %s", query)
}

func (l *LogHandler) TransferFinished(tableCount int) {
	l.logger.Infof("Transfer finished: %d tables processed", tableCount)
}

func (l *LogHandler) TransferFailed(reason string) {
	l.logger.Errorf("Transfer failed: %s", reason)
}
