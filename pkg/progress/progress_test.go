package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
)

func TestHandlerTracksTables(t *testing.T) {
	var out bytes.Buffer
	h := NewHandlerTo(&out)
	var _ transfer.Handler = h

	h.SortingFinished([]model.Table{{Name: "city"}, {Name: "address"}, {Name: "customer"}})
	h.TableTransferStarted("city")
	h.RecordTransferFinished("city", 10)
	h.TableTransferFinished("city", 10)
	h.TableTransferStarted("address")
	h.TableTransferFailed("address", "boom")
	h.TableTransferStarted("customer")
	h.TableSkipped("customer", "table exists and it is not empty")
	h.DataTransferFinished()

	assert.Equal(t, "10 rows", h.Outcome("city"))
	assert.Equal(t, "failed", h.Outcome("address"))
	assert.Equal(t, "skipped", h.Outcome("customer"))
	assert.True(t, h.bar.IsFinished())
	assert.NotEmpty(t, out.String())
}

func TestHandlerWithoutTables(t *testing.T) {
	h := NewHandlerTo(&bytes.Buffer{})

	h.TableTransferFinished("city", 1)
	h.DataTransferFinished()
	assert.Equal(t, "1 rows", h.Outcome("city"))
}

func TestBarIncrement(t *testing.T) {
	bar := NewBarTo(&bytes.Buffer{}, 10, "rows")
	bar.Increment()
	bar.IncrementBy(4)
	assert.InDelta(t, 0.5, bar.State().CurrentPercent, 0.001)
	bar.Finish()
}
