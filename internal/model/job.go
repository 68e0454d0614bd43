package model

import "time"

// JobStatus represents a job's position in its state machine.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobKind distinguishes single searches from batch rows.
type JobKind string

const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)

// Job is one search-and-enrich unit of work. Checkpoint holds the last fully
// processed provider page offset so an interrupted job resumes without
// re-fetching (and re-paying for) pages it already consumed.
type Job struct {
	ID         string    `json:"id"`
	BatchID    string    `json:"batch_id,omitempty"`
	Kind       JobKind   `json:"kind"`
	Query      string    `json:"query"`
	Location   string    `json:"location,omitempty"`
	MaxResults int       `json:"max_results"`
	Status     JobStatus `json:"status"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Checkpoint int       `json:"checkpoint"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Progress returns completion as a percentage in [0,100].
func (j *Job) Progress() float64 {
	if j.Total <= 0 {
		if j.Status == JobStatusCompleted {
			return 100
		}
		return 0
	}
	p := float64(j.Processed) / float64(j.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
