// Package queue defines the background task types and their payloads. Task
// construction lives here so the HTTP layer and the worker agree on names,
// retry budgets, and timeouts.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskIngestDocument runs the full ingestion pipeline for one document.
	TaskIngestDocument = "ingest:document"

	// QueueIngest is the asynq queue ingestion tasks land on.
	QueueIngest = "ingest"
)

// IngestPayload identifies the job and the document it processes. The raw
// payload bytes live in object storage, not in the task.
type IngestPayload struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
}

// NewIngestTask builds the ingestion task. TaskID is the job id, so a
// double-enqueued job is rejected by the broker instead of running twice.
// Queue-level retry is the outer safety net; transient index failures are
// retried inside the handler with their own policy.
func NewIngestTask(jobID, documentID, ownerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		JobID:      jobID,
		DocumentID: documentID,
		OwnerID:    ownerID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(QueueIngest),
		asynq.TaskID(jobID),
	), nil
}

// Enqueuer is the slice of the asynq client the HTTP layer needs. Handlers
// receive it injected, never a package-level client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
