package domain

import "time"

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result is the terminal record for a task. Written once by the worker
// that finalizes the envelope, read-only ever after.
type Result struct {
	TaskID      string    `json:"task_id"`
	Outcome     Outcome   `json:"outcome"`
	OutputRef   string    `json:"output_ref,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}
