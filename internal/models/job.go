// Package models defines data structures for the deepresearch pipeline.
package models

import "time"

// JobStatus represents the state of a research job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusExpanding  JobStatus = "expanding"
	JobStatusSearching  JobStatus = "searching"
	JobStatusProcessing JobStatus = "processing"
	JobStatusAnalyzing  JobStatus = "analyzing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus.
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusExpanding, JobStatusSearching,
		JobStatusProcessing, JobStatusAnalyzing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// statusRank orders the non-terminal pipeline stages. Failed is reachable
// from anywhere, so it is not part of the ordering.
var statusRank = map[JobStatus]int{
	JobStatusQueued:     0,
	JobStatusExpanding:  1,
	JobStatusSearching:  2,
	JobStatusProcessing: 3,
	JobStatusAnalyzing:  4,
	JobStatusCompleted:  5,
}

// CanTransition reports whether moving from one status to the next is legal:
// forward through the stage order, or to Failed from any non-terminal state.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

// Job represents one end-to-end research request.
type Job struct {
	ID        string    `json:"job_id"`
	Query     string    `json:"query"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"` // 0-100
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
