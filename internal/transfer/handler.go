package transfer

import (
	"sync/atomic"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
)

// Handler observes one transfer. Events arrive from the goroutine running
// Service.Execute; IsStopped may be flipped from anywhere and is polled
// before every table and every row.
type Handler interface {
	TransferStarted(cfg Configuration)
	MetadataLoadingStarted()
	MetadataLoadingFinished(count int)
	MetadataLoadingError(msg string)
	SortingStarted(tables []model.Table)
	SortingFinished(ordered []model.Table)
	DataTransferStarted()
	DataTransferFinished()
	TableTransferStarted(name string)
	TableTransferFinished(name string, rows int)
	TableTransferFailed(name, reason string)
	TableSkipped(name, reason string)
	TableSelectSQL(query string)
	TableInsertSQL(query string)
	RecordTransferFinished(name string, countSoFar int)
	TransferFinished(tableCount int)
	TransferFailed(reason string)
	IsStopped() bool
}

// StopFlag is a cancellation flag safe for concurrent use.
type StopFlag struct {
	stopped atomic.Bool
}

func (f *StopFlag) Stop() { f.stopped.Store(true) }

func (f *StopFlag) IsStopped() bool { return f.stopped.Load() }

// NopHandler ignores every event. Embed it to implement only the events of
// interest; the embedded StopFlag provides Stop and IsStopped.
type NopHandler struct {
	StopFlag
}

func (*NopHandler) TransferStarted(Configuration) {}
func (*NopHandler) MetadataLoadingStarted() {}
func (*NopHandler) MetadataLoadingFinished(int) {}
func (*NopHandler) MetadataLoadingError(string) {}
func (*NopHandler) SortingStarted([]model.Table) {}
func (*NopHandler) SortingFinished([]model.Table) {}
func (*NopHandler) DataTransferStarted() {}
func (*NopHandler) DataTransferFinished() {}
func (*NopHandler) TableTransferStarted(string) {}
func (*NopHandler) TableTransferFinished(string, int) {}
func (*NopHandler) TableTransferFailed(string, string) {}
func (*NopHandler) TableSkipped(string, string) {}
func (*NopHandler) TableSelectSQL(string) {}
func (*NopHandler) TableInsertSQL(string) {}
func (*NopHandler) RecordTransferFinished(string, int) {}
func (*NopHandler) TransferFinished(int) {}
func (*NopHandler) TransferFailed(string) {}

type multi []Handler

// Multi fans events out to every handler in order. The transfer counts as
// stopped as soon as any of them reports it.
func Multi(handlers ...Handler) Handler {
	var m multi
	for _, h := range handlers {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

func (m multi) TransferStarted(cfg Configuration) {
	for _, h := range m {
		h.TransferStarted(cfg)
	}
}

func (m multi) MetadataLoadingStarted() {
	for _, h := range m {
		h.MetadataLoadingStarted()
	}
}

func (m multi) MetadataLoadingFinished(count int) {
	for _, h := range m {
		h.MetadataLoadingFinished(count)
	}
}

func (m multi) MetadataLoadingError(msg string) {
	for _, h := range m {
		h.MetadataLoadingError(msg)
	}
}

func (m multi) SortingStarted(tables []model.Table) {
	for _, h := range m {
		h.SortingStarted(tables)
	}
}

func (m multi) SortingFinished(ordered []model.Table) {
	for _, h := range m {
		h.SortingFinished(ordered)
	}
}

func (m multi) DataTransferStarted() {
	for _, h := range m {
		h.DataTransferStarted()
	}
}

func (m multi) DataTransferFinished() {
	for _, h := range m {
		h.DataTransferFinished()
	}
}

func (m multi) TableTransferStarted(name string) {
	for _, h := range m {
		h.TableTransferStarted(name)
	}
}

func (m multi) TableTransferFinished(name string, rows int) {
	for _, h := range m {
		h.TableTransferFinished(name, rows)
	}
}

func (m multi) TableTransferFailed(name, reason string) {
	for _, h := range m {
		h.TableTransferFailed(name, reason)
	}
}

func (m multi) TableSkipped(name, reason string) {
	for _, h := range m {
		h.TableSkipped(name, reason)
	}
}

func (m multi) TableSelectSQL(query string) {
	for _, h := range m {
		h.TableSelectSQL(query)
	}
}

func (m multi) TableInsertSQL(query string) {
	for _, h := range m {
		h.TableInsertSQL(query)
	}
}

func (m multi) RecordTransferFinished(name string, countSoFar int) {
	for _, h := range m {
		h.RecordTransferFinished(name, countSoFar)
	}
}

func (m multi) TransferFinished(tableCount int) {
	for _, h := range m {
		h.TransferFinished(tableCount)
	}
}

func (m multi) TransferFailed(reason string) {
	for _, h := range m {
		h.TransferFailed(reason)
	}
}

func (m multi) IsStopped() bool {
	for _, h := range m {
		if h.IsStopped() {
			return true
		}
	}
	return false
}
