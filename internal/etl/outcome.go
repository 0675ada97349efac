package etl

import (
	"time"

	"github.com/taskfabric/warehouse/internal/domain"
)

// StepOutcome is the structured result of one pipeline step. Steps report
// success or failure through this value; error propagation is reserved for
// aborting the batch, never for expected branching.
type StepOutcome struct {
	Table     string
	Operation domain.OperationKind
	StartedAt time.Time
	Duration  time.Duration

	Processed int
	Inserted  int
	Updated   int
	Expired   int
	Unchanged int
	Failed    int

	Err error
}

// Succeeded reports whether the step ran to completion.
func (o StepOutcome) Succeeded() bool {
	return o.Err == nil
}

// Affected is the number of rows the step wrote.
func (o StepOutcome) Affected() int {
	return o.Inserted + o.Updated + o.Expired
}

// Counts projects the outcome onto the ledger's batch counters.
func (o StepOutcome) Counts() domain.BatchCounts {
	return domain.BatchCounts{
		Processed: o.Processed,
		Inserted:  o.Inserted,
		Updated:   o.Updated + o.Expired,
		Failed:    o.Failed,
	}
}
