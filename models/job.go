package models

import "time"

// IngestJob states. A job is created queued, claimed into processing by
// exactly one worker, and ends in completed or failed. Terminal states are
// immutable; a failed document is re-ingested by submitting a new job.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// IngestJob tracks one ingestion attempt of a Document.
type IngestJob struct {
	ID          string     `bson:"_id" json:"id"`
	DocumentID  string     `bson:"document_id" json:"document_id"`
	OwnerID     string     `bson:"owner_id" json:"owner_id"`
	Kind        string     `bson:"kind" json:"kind"` // upload or scrape
	State       string     `bson:"state" json:"state"`
	Progress    int        `bson:"progress" json:"progress"` // 0-100
	Error       string     `bson:"error,omitempty" json:"error,omitempty"`
	RetryCount  int        `bson:"retry_count" json:"retry_count"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Terminal reports whether the job state can no longer change.
func (j *IngestJob) Terminal() bool {
	return j.State == JobCompleted || j.State == JobFailed
}

// JobStatus is the read-only view exposed to callers polling a job.
type JobStatus struct {
	JobID           string `json:"job_id"`
	State           string `json:"state"`
	ProgressPercent int    `json:"progress_percent"`
	ErrorDetail     string `json:"error_detail,omitempty"`
}

// Status projects the job onto its polling view.
func (j *IngestJob) Status() JobStatus {
	return JobStatus{
		JobID:           j.ID,
		State:           j.State,
		ProgressPercent: j.Progress,
		ErrorDetail:     j.Error,
	}
}
