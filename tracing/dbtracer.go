package tracing

import (
	"github.com/fredsys/fred/datarecording"
)

// ExecutionTable is the table the DBTracer writes to.
const ExecutionTable = "fred_executions"

// DBTracer stores every execution as a row of a DataRecorder.
type DBTracer struct {
	backend datarecording.DataRecorder
	count   int
}

// NewDBTracer creates the execution table and returns a tracer writing to it.
func NewDBTracer(backend datarecording.DataRecorder) *DBTracer {
	backend.CreateTable(ExecutionTable, Execution{})

	return &DBTracer{backend: backend}
}

// Record buffers the execution.
func (t *DBTracer) Record(e Execution) {
	t.backend.InsertData(ExecutionTable, e)
	t.count++
}

// Count returns the number of recorded executions.
func (t *DBTracer) Count() int {
	return t.count
}

// Terminate writes the buffered rows.
func (t *DBTracer) Terminate() {
	t.backend.Flush()
}
