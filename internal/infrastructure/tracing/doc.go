/*
Package tracing records lightweight spans for HTTP requests and websocket
connections.

Trace context travels in the X-Trace-ID and X-Span-ID headers. Finished
spans are queued on a bounded buffer and written to the zap logger by a
single collector goroutine; when the buffer is full the span is dropped
rather than blocking the request.

# Usage

	tracer := tracing.New("wavesrv", 1000, logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "ws.session")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
