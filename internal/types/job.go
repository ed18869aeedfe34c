package types

import (
	"time"

	"github.com/google/uuid"
)

// JobKind distinguishes a full analysis from a restore of earlier results.
type JobKind string

const (
	JobKindRun     JobKind = "run"
	JobKindRestore JobKind = "restore"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// CanTransitionTo checks if a status change is allowed.
//
//	pending -> running | canceled | failed
//	running -> succeeded | failed | canceled
//
// Terminal states never change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCanceled || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusSucceeded || next == JobStatusFailed || next == JobStatusCanceled
	default:
		return false
	}
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// Stage status constants
const (
	StageStatusPending    = "pending"
	StageStatusInProgress = "in_progress"
	StageStatusCompleted  = "completed"
	StageStatusFailed     = "failed"
	StageStatusSkipped    = "skipped"
)

// StageRecord tracks one orchestrator stage inside a job.
type StageRecord struct {
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Job is the durable handle for one background analysis.
type Job struct {
	ID           uuid.UUID     `json:"id"`
	Kind         JobKind       `json:"kind"`
	Mode         Mode          `json:"mode,omitempty"`
	Status       JobStatus     `json:"status"`
	Stage        string        `json:"stage,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ResServerID  string        `json:"resServerId,omitempty"`
	Stages       []StageRecord `json:"stages,omitempty"`
	Result       *RunResult    `json:"result,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// StatusString renders the status as reported to clients, e.g. "failed:empty_result".
func (j *Job) StatusString() string {
	if j.Status == JobStatusFailed && j.ErrorKind != "" {
		return string(j.Status) + ":" + j.ErrorKind
	}
	return string(j.Status)
}

// StageByName returns the stage record with the given name, or nil.
func (j *Job) StageByName(name string) *StageRecord {
	for i := range j.Stages {
		if j.Stages[i].Name == name {
			return &j.Stages[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Stages != nil {
		cp.Stages = make([]StageRecord, len(j.Stages))
		copy(cp.Stages, j.Stages)
	}
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	return &cp
}
