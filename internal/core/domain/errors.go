package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Adapters and services wrap these with %w.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrResolution       = errors.New("resolution failed")
	ErrNoUsableEncoding = errors.New("no usable encoding")
	ErrTransfer         = errors.New("transfer failed")
	ErrPackaging        = errors.New("packaging failed")
	ErrStorage          = errors.New("storage failed")
	ErrNoItems          = errors.New("listing yielded no items for the requested window")
	ErrAllItemsFailed   = errors.New("all items failed")
)

// FailureKind classifies a job-fatal failure.
type FailureKind string

const (
	FailureInvalidInput   FailureKind = "invalid-input"
	FailureNoItems        FailureKind = "no-items"
	FailureAllItemsFailed FailureKind = "all-items-failed"
	FailureUpstream       FailureKind = "upstream"
	FailureInternal       FailureKind = "internal"
)

// JobError is returned by the orchestrator when a job cannot complete.
type JobError struct {
	JobID string
	Kind  FailureKind
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("job %s failed (%s): %v", e.JobID, e.Kind, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// NewJobError wraps err with the job id and failure kind.
func NewJobError(jobID string, kind FailureKind, err error) *JobError {
	return &JobError{JobID: jobID, Kind: kind, Err: err}
}
