package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// CycleResult accumulates per-source outcomes for one poll cycle. Each cycle
// gets a fresh UUID so its artifacts and log lines can be correlated.
type CycleResult struct {
	ID        string
	StartedAt time.Time

	succeeded []string
	failed    []string
}

func newCycleResult(start time.Time) *CycleResult {
	return &CycleResult{
		ID:        uuid.New().String(),
		StartedAt: start,
	}
}

func (r *CycleResult) succeed(source string) { r.succeeded = append(r.succeeded, source) }
func (r *CycleResult) fail(source string)    { r.failed = append(r.failed, source) }

// Succeeded returns the sources fetched and persisted this cycle, in fetch
// order.
func (r *CycleResult) Succeeded() []string { return r.succeeded }

// Failed returns the sources that errored this cycle, in fetch order.
func (r *CycleResult) Failed() []string { return r.failed }
