package models

import "time"

// JobStatus is the provider-neutral state of a remote enhancement job.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusPending   JobStatus = "pending"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further status change is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job tracks a unit of work on the external provider. A job ID is polled
// only by the request that submitted it.
type Job struct {
	ID        string    `json:"id"`
	Stage     Stage     `json:"stage"`
	Status    JobStatus `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress is the cached view of an in-flight enhancement request.
type Progress struct {
	RequestID string    `json:"request_id"`
	Stage     Stage     `json:"stage"`
	JobID     string    `json:"job_id,omitempty"`
	Status    JobStatus `json:"status"`
	Attempt   int       `json:"attempt"`
	UpdatedAt time.Time `json:"updated_at"`
}
