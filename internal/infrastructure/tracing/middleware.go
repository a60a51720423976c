package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing. Incoming
// X-Trace-ID/X-Span-ID headers continue the caller's trace; the response
// carries the ids of the server span.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithTraceContext(c.Request.Context(),
			TraceID(c.GetHeader(TraceIDHeader)),
			SpanID(c.GetHeader(SpanIDHeader)))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, name)
		span.SetTag("http.method", c.Request.Method)
		c.Request = c.Request.WithContext(ctx)

		c.Header(TraceIDHeader, string(span.TraceID))
		c.Header(SpanIDHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}
