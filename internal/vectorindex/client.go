// Package vectorindex is the client for the remote similarity-search index.
// The index performs integrated (server-side) embedding: callers submit raw
// text records and text queries, never vectors. All writes and reads are
// scoped to a tenant namespace; the client never trusts callers to have
// pre-filtered by owner.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrBatchTooLarge is returned when a caller submits more records than the
// configured batch size in one Upsert. The client does not silently re-batch.
var ErrBatchTooLarge = errors.New("vectorindex: batch too large")

// APIError is a non-2xx response from the index service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vectorindex: status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying: rate limiting and
// server-side errors are; auth and malformed requests are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Metadata carried with every record, sufficient to reconstruct a citation
// without a secondary lookup.
type Metadata struct {
	OwnerID    string `json:"owner_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// Record is one chunk submitted for indexing. The id is the deterministic
// documentID:chunkIndex form, so upserts overwrite on re-ingestion.
type Record struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Match is one ranked query result.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Config for the index client.
type Config struct {
	BaseURL   string
	APIKey    string
	BatchSize int           // max records per Upsert call
	Timeout   time.Duration // per-call deadline
	Retry     RetryPolicy
	// RequestsPerSecond caps the call rate against the index. Zero disables
	// limiting.
	RequestsPerSecond float64
}

// Client talks to the index over REST. Safe for concurrent use across jobs.
type Client struct {
	baseURL   string
	apiKey    string
	batchSize int
	timeout   time.Duration
	retry     RetryPolicy
	limiter   *rate.Limiter
	http      *http.Client
	tracer    trace.Tracer
}

// New builds a Client. Zero-value config fields fall back to sane defaults
// (batch 64, 30s timeout, default retry policy).
func New(cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		limiter:   limiter,
		http:      &http.Client{},
		tracer:    otel.Tracer("vectorindex"),
	}
}

// BatchSize is the maximum records accepted per Upsert call.
func (c *Client) BatchSize() int { return c.batchSize }

type upsertRequest struct {
	Namespace string   `json:"namespace"`
	Records   []Record `json:"records"`
}

// Upsert writes one batch of records under the tenant namespace. Callers must
// pre-batch: submitting more than BatchSize records fails with
// ErrBatchTooLarge. Transient failures are retried per the configured policy.
func (c *Client) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > c.batchSize {
		return fmt.Errorf("%w: %d records, max %d", ErrBatchTooLarge, len(records), c.batchSize)
	}

	ctx, span := c.tracer.Start(ctx, "vectorindex.upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.namespace", namespace),
		attribute.Int("index.records", len(records)),
	)

	req := upsertRequest{Namespace: namespace, Records: records}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.post(ctx, "/vectors/upsert", req, nil)
	})
}

type queryRequest struct {
	Namespace       string            `json:"namespace"`
	Text            string            `json:"text"`
	TopK            int               `json:"top_k"`
	Filter          map[string]string `json:"filter"`
	IncludeMetadata bool              `json:"include_metadata"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

// Query runs a text similarity search scoped to the namespace. The owner
// filter is always applied here regardless of what the caller did upstream.
// Results are ordered by descending score, ties broken by ascending chunk
// index so ranking is deterministic.
func (c *Client) Query(ctx context.Context, namespace, text string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	ctx, span := c.tracer.Start(ctx, "vectorindex.query")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.namespace", namespace),
		attribute.Int("index.top_k", topK),
	)

	req := queryRequest{
		Namespace:       namespace,
		Text:            text,
		TopK:            topK,
		Filter:          map[string]string{"owner_id": namespace},
		IncludeMetadata: true,
	}

	var resp queryResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp = queryResponse{}
		return c.post(ctx, "/query", req, &resp)
	})
	if err != nil {
		return nil, err
	}

	matches := resp.Matches
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Metadata.ChunkIndex < matches[j].Metadata.ChunkIndex
	})
	span.SetAttributes(attribute.Int("index.matches", len(matches)))
	return matches, nil
}

type deleteRequest struct {
	Namespace string            `json:"namespace"`
	IDs       []string          `json:"ids,omitempty"`
	Filter    map[string]string `json:"filter,omitempty"`
}

// Delete removes every chunk of a document from the tenant namespace. Used
// when a document is deleted or re-ingested from scratch.
func (c *Client) Delete(ctx context.Context, namespace, documentID string) error {
	ctx, span := c.tracer.Start(ctx, "vectorindex.delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.namespace", namespace),
		attribute.String("index.document_id", documentID),
	)

	req := deleteRequest{Namespace: namespace, Filter: map[string]string{"document_id": documentID}}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.post(ctx, "/vectors/delete", req, nil)
	})
}

// DeleteIDs removes specific chunk ids, used to clear stale chunks left
// behind when a re-ingest produces fewer chunks than the previous run.
func (c *Client) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "vectorindex.delete_ids")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.namespace", namespace),
		attribute.Int("index.ids", len(ids)),
	)

	req := deleteRequest{Namespace: namespace, IDs: ids}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.post(ctx, "/vectors/delete", req, nil)
	})
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
