package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application's counters and histograms.
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	DocumentsIngested metric.Int64Counter
	ChunksIndexed     metric.Int64Counter
	IngestDuration    metric.Float64Histogram
	QueriesAnswered   metric.Int64Counter
	TokensUsed        metric.Int64Counter
}

// InitMetrics registers all instruments on the global meter.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-knowledge-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentsIngested, err := meter.Int64Counter(
		"ingest.documents.total",
		metric.WithDescription("Documents that reached a terminal ingestion state"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"ingest.chunks.indexed",
		metric.WithDescription("Chunks written to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.job.duration",
		metric.WithDescription("Ingestion job duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queriesAnswered, err := meter.Int64Counter(
		"retrieval.queries.total",
		metric.WithDescription("Retrieval queries answered"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"retrieval.tokens.used",
		metric.WithDescription("Estimated model tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		DocumentsIngested: documentsIngested,
		ChunksIndexed:     chunksIndexed,
		IngestDuration:    ingestDuration,
		QueriesAnswered:   queriesAnswered,
		TokensUsed:        tokensUsed,
	}, nil
}

// RecordRequest records one HTTP request outcome.
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, duration, attrs)
}

// RecordIngest records one finished ingestion job.
func (m *Metrics) RecordIngest(outcome string, chunks int, took time.Duration) {
	ctx := context.Background()
	m.DocumentsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if chunks > 0 {
		m.ChunksIndexed.Add(ctx, int64(chunks))
	}
	m.IngestDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordQuery records one answered retrieval query.
func (m *Metrics) RecordQuery(outcome string, tokensUsed int) {
	ctx := context.Background()
	m.QueriesAnswered.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if tokensUsed > 0 {
		m.TokensUsed.Add(ctx, int64(tokensUsed))
	}
}
