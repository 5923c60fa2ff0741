// Package ingest orchestrates the document ingestion pipeline: claim the job,
// fetch the raw payload, extract, chunk, write to the vector index in
// batches, and drive the job state machine to a terminal state.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rag-knowledge-backend/internal/chunker"
	"rag-knowledge-backend/internal/extract"
	"rag-knowledge-backend/internal/queue"
	"rag-knowledge-backend/internal/storage"
	"rag-knowledge-backend/internal/telemetry"
	"rag-knowledge-backend/internal/vectorindex"
	"rag-knowledge-backend/models"
)

// Index is the slice of the vector index client the coordinator uses.
type Index interface {
	Upsert(ctx context.Context, namespace string, records []vectorindex.Record) error
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	BatchSize() int
}

// Fetcher retrieves the payload of a scrape-sourced document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Progress is the job's percent complete as a pure function of chunks written
// versus total. It is recomputed on every update, never incremented, so
// retried batches cannot drift it past reality.
func Progress(written, total int) int {
	if total <= 0 {
		return 100
	}
	if written < 0 {
		written = 0
	}
	if written > total {
		written = total
	}
	return int(math.Round(100 * float64(written) / float64(total)))
}

// Config holds the chunking parameters for the coordinator.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Coordinator runs ingestion jobs. All collaborators are injected; the
// coordinator holds no global state and is safe to run in many workers.
type Coordinator struct {
	docs    DocumentStore
	jobs    JobStore
	objects storage.ObjectStore
	index   Index
	cancels CancelFlags
	fetcher Fetcher
	cfg     Config
	log     *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

func NewCoordinator(docs DocumentStore, jobs JobStore, objects storage.ObjectStore, index Index, cancels CancelFlags, fetcher Fetcher, cfg Config, log *slog.Logger) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 200
	}
	return &Coordinator{
		docs:    docs,
		jobs:    jobs,
		objects: objects,
		index:   index,
		cancels: cancels,
		fetcher: fetcher,
		cfg:     cfg,
		log:     log,
		tracer:  otel.Tracer("ingest"),
	}
}

// WithMetrics attaches job outcome instrumentation.
func (c *Coordinator) WithMetrics(m *telemetry.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// HandleIngest is the asynq handler for ingest:document tasks.
func (c *Coordinator) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var payload queue.IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal ingest payload: %v: %w", err, asynq.SkipRetry)
	}
	return c.Run(ctx, payload)
}

// Run executes one ingestion job end to end. A job that cannot be claimed
// (already running or already terminal) is a no-op: the queue is
// at-least-once and redelivery must not double-process. Processing failures
// are recorded on the job and the document; they do not bubble to the queue,
// because the terminal state is the outcome.
func (c *Coordinator) Run(ctx context.Context, payload queue.IngestPayload) error {
	ctx, span := c.tracer.Start(ctx, "ingest.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("document.id", payload.DocumentID),
	)

	log := c.log.With("job_id", payload.JobID, "document_id", payload.DocumentID, "owner_id", payload.OwnerID)

	job, err := c.jobs.Claim(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, ErrNotClaimable) {
			log.Info("job not claimable, skipping redelivery")
			return nil
		}
		return fmt.Errorf("claim job %s: %w", payload.JobID, err)
	}

	log.Info("job claimed")
	start := time.Now()
	written, err := c.process(ctx, job)
	if err != nil {
		reason := failureReason(err)
		log.Error("ingestion failed", "error", err, "reason", reason)
		if ferr := c.jobs.Fail(ctx, job.ID, reason); ferr != nil {
			return fmt.Errorf("record job failure: %w", ferr)
		}
		if derr := c.docs.SetFailed(ctx, job.DocumentID); derr != nil {
			return fmt.Errorf("record document failure: %w", derr)
		}
		if c.metrics != nil {
			c.metrics.RecordIngest("failed", 0, time.Since(start))
		}
		return nil
	}

	if c.metrics != nil {
		c.metrics.RecordIngest("completed", written, time.Since(start))
	}
	log.Info("job completed", "chunks", written)
	return nil
}

func (c *Coordinator) process(ctx context.Context, job *models.IngestJob) (int, error) {
	doc, err := c.docs.Get(ctx, job.OwnerID, job.DocumentID)
	if err != nil {
		return 0, &DependencyError{Op: "load document", Err: err}
	}
	if err := c.docs.SetStatus(ctx, doc.ID, models.StatusProcessing); err != nil {
		return 0, &DependencyError{Op: "mark document processing", Err: err}
	}

	raw, fileType, err := c.loadRaw(ctx, doc)
	if err != nil {
		return 0, err
	}

	pages, err := extract.Extract(raw, fileType)
	if err != nil {
		return 0, &InputError{Err: err}
	}

	// Chunker errors mean a bad size/overlap configuration, not a bad
	// document; validated at startup, so this only trips on a misbuilt worker.
	chunks, err := chunker.ChunkPages(pages, c.cfg.ChunkSize, c.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunking configuration: %w", err)
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].OwnerID = doc.OwnerID
	}

	if err := c.writeChunks(ctx, job, doc, chunks); err != nil {
		return 0, err
	}

	if err := c.docs.SetCompleted(ctx, doc.ID, len(chunks)); err != nil {
		return 0, &DependencyError{Op: "mark document completed", Err: err}
	}
	if err := c.jobs.Complete(ctx, job.ID); err != nil {
		return 0, &DependencyError{Op: "mark job completed", Err: err}
	}
	return len(chunks), nil
}

// loadRaw returns the document payload and the type to extract it as. Upload
// documents come from object storage; scrape documents are fetched live and
// their page title captured onto the record.
func (c *Coordinator) loadRaw(ctx context.Context, doc *models.Document) ([]byte, string, error) {
	if doc.SourceKind == models.SourceScrape {
		raw, err := c.fetcher.Fetch(ctx, doc.SourceURL)
		if err != nil {
			return nil, "", &DependencyError{Op: "fetch " + doc.SourceURL, Err: err}
		}
		if title := extract.Title(raw); title != "" && title != doc.Title {
			if err := c.docs.SetTitle(ctx, doc.ID, title); err != nil {
				return nil, "", &DependencyError{Op: "set document title", Err: err}
			}
			doc.Title = title
		}
		return raw, "html", nil
	}

	raw, err := c.objects.FetchRaw(doc.OwnerID, doc.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", &InputError{Err: err}
		}
		return nil, "", &DependencyError{Op: "fetch raw payload", Err: err}
	}
	return raw, doc.FileType, nil
}

// writeChunks upserts all chunks in index-sized batches, recomputing progress
// after each batch and honouring the cancellation flag between batches. After
// the write converges it deletes any stale chunk ids left from a previous,
// larger ingestion of the same document.
func (c *Coordinator) writeChunks(ctx context.Context, job *models.IngestJob, doc *models.Document, chunks []models.Chunk) error {
	total := len(chunks)
	batchSize := c.index.BatchSize()
	written := 0

	for start := 0; start < total; start += batchSize {
		cancelled, err := c.cancels.IsSet(ctx, job.ID)
		if err != nil {
			return &DependencyError{Op: "check cancellation", Err: err}
		}
		if cancelled {
			return ErrCancelled
		}

		end := start + batchSize
		if end > total {
			end = total
		}
		records := make([]vectorindex.Record, 0, end-start)
		for _, ch := range chunks[start:end] {
			records = append(records, vectorindex.Record{
				ID:   ch.VectorID(),
				Text: ch.Text,
				Metadata: vectorindex.Metadata{
					OwnerID:    doc.OwnerID,
					DocumentID: doc.ID,
					Title:      doc.Title,
					Page:       ch.Page,
					ChunkIndex: ch.Index,
				},
			})
		}

		if err := c.index.Upsert(ctx, doc.OwnerID, records); err != nil {
			return &DependencyError{Op: "index upsert", Err: err}
		}
		written = end
		if err := c.jobs.SetProgress(ctx, job.ID, Progress(written, total)); err != nil {
			return &DependencyError{Op: "update progress", Err: err}
		}
	}

	// A shrinking re-ingest leaves orphaned ids beyond the new count; deterministic
	// chunk ids make them enumerable.
	if doc.ChunkCount > total {
		stale := make([]string, 0, doc.ChunkCount-total)
		for i := total; i < doc.ChunkCount; i++ {
			stale = append(stale, fmt.Sprintf("%s:%d", doc.ID, i))
		}
		if err := c.index.DeleteIDs(ctx, doc.OwnerID, stale); err != nil {
			return &DependencyError{Op: "delete stale chunks", Err: err}
		}
	}
	return nil
}

// failureReason maps the error taxonomy to the stored job error detail.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case IsInput(err):
		return err.Error()
	default:
		return err.Error()
	}
}

// HTTPFetcher retrieves scrape payloads with a bounded retry for transient
// upstream failures.
type HTTPFetcher struct {
	client  *http.Client
	retry   vectorindex.RetryPolicy
	maxSize int64
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		retry: vectorindex.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Retryable:   fetchRetryable,
		},
		maxSize: 10 << 20,
	}
}

// fetchRetryable widens the transient classification for scrape targets:
// connection refusals and DNS hiccups clear within seconds at least as often
// as 5xx responses do. Cancellation is never retried.
func fetchRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if vectorindex.IsTransient(err) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return &vectorindex.APIError{StatusCode: resp.StatusCode, Message: "fetch " + url}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
