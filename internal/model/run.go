package model

import "time"

// RunStatus is the lifecycle state of a recorded stage invocation.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of a pipeline stage, as kept in the run ledger.
type Run struct {
	ID         string         `json:"id" yaml:"id"`
	Stage      string         `json:"stage" yaml:"stage"`
	Status     RunStatus      `json:"status" yaml:"status"`
	Params     map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Chunk actions recorded in the ledger.
const (
	ChunkWritten   = "written"   // result file created or rewritten
	ChunkSkipped   = "skipped"   // already complete, left alone
	ChunkUnchanged = "unchanged" // pass had nothing to do
)

// ChunkEvent records what a run did to one chunk.
type ChunkEvent struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Part       int            `json:"part" yaml:"part"`
	Action     string         `json:"action" yaml:"action"`
	Targets    int            `json:"targets" yaml:"targets"`
	Resolved   int            `json:"resolved" yaml:"resolved"`
	Counts     map[Status]int `json:"counts,omitempty" yaml:"counts,omitempty"`
	DurationMs int64          `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// CountStatuses tallies rows by status.
func CountStatuses(rows []Row) map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, r := range rows {
		counts[r.Status]++
	}
	return counts
}
