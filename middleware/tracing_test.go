package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// tracedRouter starts a recorded span per request, the way the otelgin
// middleware does, so EnrichTrace has a real span to annotate.
func tracedRouter(recorder *tracetest.SpanRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		ctx, span := provider.Tracer("test").Start(c.Request.Context(), "request")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	router.Use(EnrichTrace())
	return router
}

func spanAttr(t *testing.T, recorder *tracetest.SpanRecorder, key string) (string, bool) {
	t.Helper()
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	for _, a := range spans[0].Attributes() {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func TestEnrichTraceRecordsTenantSetByAuth(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	router := tracedRouter(recorder)
	// Auth sets the owner inside the route group, after EnrichTrace ran its
	// pre-handler half.
	router.GET("/docs", func(c *gin.Context) {
		c.Set(ownerContextKey, "tenant-1")
		c.Next()
	}, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))

	got, ok := spanAttr(t, recorder, "tenant.id")
	if !ok {
		t.Fatal("tenant.id attribute missing from span")
	}
	if got != "tenant-1" {
		t.Errorf("tenant.id = %q, want tenant-1", got)
	}
}

func TestEnrichTraceRecordsResponseStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	router := tracedRouter(recorder)
	router.GET("/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	got, ok := spanAttr(t, recorder, "http.response.status_code")
	if !ok {
		t.Fatal("status code attribute missing from span")
	}
	if got != "404" {
		t.Errorf("status code attribute = %q, want 404", got)
	}
}
