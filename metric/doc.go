// Package metric provides Prometheus metrics for the blissdata bridge.
//
// The Registry owns a dedicated Prometheus registry preloaded with the
// bridge's core metrics (document counts, stream sends and send errors,
// active-scan gauge, store call durations) plus Go runtime collectors.
// Server exposes the registry over HTTP on /metrics with a trivial /health
// endpoint next to it.
//
// The dispatcher and the subscriber receive *Metrics and increment counters
// directly; there is no sampling or aggregation layer in between.
package metric
