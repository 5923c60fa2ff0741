package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, attempts int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		BatchSize: 64,
		Retry:     testRetry(attempts),
	})
	return c, srv
}

func TestUpsertRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n := atomic.AddInt32(&calls, 1); n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, 5)

	err := c.Upsert(context.Background(), "owner-1", []Record{{ID: "doc:0", Text: "x"}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestUpsertExhaustsRetryBudget(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, 4)

	err := c.Upsert(context.Background(), "owner-1", []Record{{ID: "doc:0", Text: "x"}})
	if err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
}

func TestUpsertDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 5)

	err := c.Upsert(context.Background(), "owner-1", []Record{{ID: "doc:0", Text: "x"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 401)", got)
	}
}

func TestUpsertRejectsOversizedBatch(t *testing.T) {
	c := New(Config{BaseURL: "http://unused", BatchSize: 2, Retry: testRetry(1)})
	records := []Record{{ID: "d:0"}, {ID: "d:1"}, {ID: "d:2"}}
	if err := c.Upsert(context.Background(), "owner-1", records); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestUpsertEmptyBatchIsNoop(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for empty batch")
	}, 1)
	if err := c.Upsert(context.Background(), "owner-1", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestQueryAppliesOwnerFilterAndOrdersMatches(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Namespace != "owner-1" {
			t.Errorf("namespace = %q", req.Namespace)
		}
		if req.Filter["owner_id"] != "owner-1" {
			t.Errorf("owner filter missing: %v", req.Filter)
		}
		if req.TopK != 5 {
			t.Errorf("top_k = %d", req.TopK)
		}
		// Out of order on purpose, with a score tie.
		json.NewEncoder(w).Encode(queryResponse{Matches: []Match{
			{ID: "d:4", Score: 0.70, Metadata: Metadata{ChunkIndex: 4}},
			{ID: "d:9", Score: 0.91, Metadata: Metadata{ChunkIndex: 9}},
			{ID: "d:2", Score: 0.91, Metadata: Metadata{ChunkIndex: 2}},
		}})
	}, 1)

	matches, err := c.Query(context.Background(), "owner-1", "how does draining work", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"d:2", "d:9", "d:4"}
	for i, id := range want {
		if matches[i].ID != id {
			t.Errorf("match %d = %q, want %q", i, matches[i].ID, id)
		}
	}
}

func TestQueryRetriesTransient(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(queryResponse{Matches: []Match{{ID: "d:0", Score: 0.5}}})
	}, 3)

	matches, err := c.Query(context.Background(), "owner-1", "q", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "d:0" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestDeleteSendsDocumentFilter(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req deleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Filter["document_id"] != "doc-7" {
			t.Errorf("filter = %v", req.Filter)
		}
		if len(req.IDs) != 0 {
			t.Errorf("ids should be empty, got %v", req.IDs)
		}
		w.WriteHeader(http.StatusOK)
	}, 1)

	if err := c.Delete(context.Background(), "owner-1", "doc-7"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestDeleteIDs(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req deleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.IDs) != 2 || req.IDs[0] != "doc-7:5" || req.IDs[1] != "doc-7:6" {
			t.Errorf("ids = %v", req.IDs)
		}
		w.WriteHeader(http.StatusOK)
	}, 1)

	if err := c.DeleteIDs(context.Background(), "owner-1", []string{"doc-7:5", "doc-7:6"}); err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}
}

func TestAPIKeyHeaderSent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Api-Key"); got != "test-key" {
			t.Errorf("Api-Key = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}, 1)
	if err := c.Upsert(context.Background(), "owner-1", []Record{{ID: "d:0"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}
