/*
Package monitoring collects Prometheus metrics for the server.

Every Metrics instance registers its collectors on a private registry, so
tests can build as many as they like. All metric names start with wavesrv_.

Tracked:
  - HTTP requests by route template and status
  - websocket connections, watching connections, frames by direction and type
  - updates dropped by each bus
  - user input RPC outcomes
  - rejected and failed input frames
  - remotes, input breaker transitions and shell state updates

Usage:

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
