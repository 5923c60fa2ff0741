package ingest

import (
	"context"
	"time"

	"rag-knowledge-backend/models"
)

// DocumentStore persists document records. All reads are tenant-scoped;
// status transitions are keyed by document id because only the worker that
// claimed the job performs them.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, ownerID, documentID string) (*models.Document, error)
	List(ctx context.Context, ownerID string) ([]models.DocumentSummary, error)
	SetStatus(ctx context.Context, documentID string, status string) error
	SetTitle(ctx context.Context, documentID, title string) error
	SetCompleted(ctx context.Context, documentID string, chunkCount int) error
	SetFailed(ctx context.Context, documentID string) error
	Delete(ctx context.Context, ownerID, documentID string) error
}

// JobStore persists ingestion jobs and enforces the claim contract: Claim
// transitions queued → processing atomically and returns ErrNotClaimable for
// anything not currently queued. Terminal states are write-once.
type JobStore interface {
	Create(ctx context.Context, job *models.IngestJob) error
	Get(ctx context.Context, ownerID, jobID string) (*models.IngestJob, error)
	Claim(ctx context.Context, jobID string) (*models.IngestJob, error)
	SetProgress(ctx context.Context, jobID string, percent int) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, reason string) error
	// ReapStale fails jobs stuck in processing longer than maxAge and returns
	// how many were reaped.
	ReapStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// CancelFlags records cancellation requests for running jobs. The flag is
// polled between batches, so cancellation is cooperative and an in-flight
// batch always finishes.
type CancelFlags interface {
	Set(ctx context.Context, jobID string) error
	IsSet(ctx context.Context, jobID string) (bool, error)
}
