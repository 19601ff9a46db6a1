package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
)

// Handler draws one bar over the ordered tables and shows the running row
// count of the current table in its description.
type Handler struct {
	transfer.NopHandler

	mu     sync.Mutex
	out    io.Writer
	bar    *Bar
	tables map[string]string
}

func NewHandler() *Handler {
	return NewHandlerTo(os.Stdout)
}

func NewHandlerTo(w io.Writer) *Handler {
	return &Handler{out: w, tables: make(map[string]string)}
}

func (h *Handler) SortingFinished(ordered []model.Table) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bar = NewBarTo(h.out, int64(len(ordered)), "Transferring tables")
}

func (h *Handler) TableTransferStarted(name string) {
	h.describe(name + ": starting")
}

func (h *Handler) RecordTransferFinished(name string, countSoFar int) {
	h.describe(fmt.Sprintf("%s: %d rows", name, countSoFar))
}

func (h *Handler) TableTransferFinished(name string, rows int) {
	h.done(name, fmt.Sprintf("%d rows", rows))
}

func (h *Handler) TableTransferFailed(name, _ string) {
	h.done(name, "failed")
}

func (h *Handler) TableSkipped(name, _ string) {
	h.done(name, "skipped")
}

func (h *Handler) DataTransferFinished() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bar != nil {
		h.bar.Finish()
	}
}

// Outcome returns the last state shown for a table.
func (h *Handler) Outcome(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tables[name]
}

func (h *Handler) describe(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bar != nil {
		h.bar.Describe(text)
	}
}

func (h *Handler) done(name, outcome string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tables[name] = outcome
	if h.bar != nil {
		h.bar.Describe(name + ": " + outcome)
		h.bar.Increment()
	}
}
