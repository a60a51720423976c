package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("test", 10, zap.New(core))
	return tracer, logs
}

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer, _ := newObservedTracer(t)
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	require.NotEmpty(t, root.TraceID)
	assert.Empty(t, root.ParentID)

	child, _ := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestCloseFlushesSpans(t *testing.T) {
	tracer, logs := newObservedTracer(t)

	span, _ := tracer.StartSpan(context.Background(), "op")
	span.SetTag("k", "v")
	span.Finish()
	tracer.Submit(span)
	tracer.Close()

	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "op", entries[0].ContextMap()["operation"])
	assert.Equal(t, "v", entries[0].ContextMap()["k"])

	tracer.Submit(span)
	tracer.Close()
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObservedTracer(t)

	var seen TraceID
	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	r.GET("/x", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(TraceIDHeader, "trace-1")
	r.ServeHTTP(w, req)
	tracer.Close()

	assert.Equal(t, TraceID("trace-1"), seen)
	assert.Equal(t, "trace-1", w.Header().Get(TraceIDHeader))
	assert.NotEmpty(t, w.Header().Get(SpanIDHeader))

	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "418", entries[0].ContextMap()["status"])
}
